// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// CONVERSATION REF TESTS
// =============================================================================

func TestConversationRef_Variants(t *testing.T) {
	tests := []struct {
		name      string
		ref       ConversationRef
		none      bool
		pending   bool
		committed bool
		wire      string
	}{
		{"zero value", ConversationRef{}, true, false, false, ""},
		{"pending", PendingConversation(), false, true, false, ""},
		{"committed", Committed("c1"), false, false, true, "c1"},
		{"committed empty id", Committed(""), false, true, false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.none, tc.ref.IsNone())
			assert.Equal(t, tc.pending, tc.ref.IsPending())
			assert.Equal(t, tc.committed, tc.ref.IsCommitted())
			assert.Equal(t, tc.wire, tc.ref.WireID())
		})
	}
}

func TestConversationRef_Comparable(t *testing.T) {
	assert.Equal(t, Committed("a"), Committed("a"))
	assert.NotEqual(t, Committed("a"), Committed("b"))
	assert.NotEqual(t, PendingConversation(), NoConversation)
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestTurn_Constructors(t *testing.T) {
	u := NewUserTurn("hi")
	assert.True(t, u.Frozen)
	assert.False(t, u.IsOpenAssistant())

	a := NewAssistantTurn()
	assert.True(t, a.IsOpenAssistant())
	assert.Empty(t, a.Content)

	img := NewImageTurn("u1")
	assert.True(t, img.IsImage)
	assert.True(t, img.Frozen)
	assert.Equal(t, "u1", img.Display())
	assert.Empty(t, img.Content)

	assert.NotEqual(t, u.ID, a.ID)
	assert.True(t, strings.HasPrefix(u.ID, "turn_"))
}

func TestTurn_Preview(t *testing.T) {
	turn := NewUserTurn("你好世界你好世界")
	if got := turn.Preview(5); got != "你好..." {
		t.Errorf("Preview(5) = %q, want %q", got, "你好...")
	}
	if got := turn.Preview(100); got != "你好世界你好世界" {
		t.Errorf("Preview(100) = %q", got)
	}
}

// =============================================================================
// SUMMARY TESTS
// =============================================================================

func TestSummary_DefaultNames(t *testing.T) {
	now := time.Date(2025, 1, 2, 13, 4, 5, 0, time.Local)

	p := NewPendingSummary("", now)
	assert.True(t, p.Ref.IsPending())
	assert.Equal(t, "新对话 (13:04:05)", p.DisplayName)
	assert.Equal(t, p.DisplayName, p.Label())

	r := NewRemoteSummary("c1", "", now.Unix())
	assert.Equal(t, DefaultConversationName, r.DisplayName)
	assert.Equal(t, Committed("c1"), r.Ref)
	assert.Equal(t, "新对话 (13:04:05)", r.Label())
}
