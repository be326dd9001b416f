// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/difychat/internal/model"
)

func remote(ids ...string) []model.Summary {
	out := make([]model.Summary, 0, len(ids))
	for i, id := range ids {
		out = append(out, model.NewRemoteSummary(id, "conv "+id, int64(1700000000-i)))
	}
	return out
}

func countPending(d *Directory) int {
	n := 0
	for _, s := range d.List() {
		if s.Ref.IsPending() {
			n++
		}
	}
	return n
}

// =============================================================================
// PENDING OVERLAY TESTS
// =============================================================================

func TestDirectory_AtMostOnePending(t *testing.T) {
	d := New()
	now := time.Now()

	d.UpsertPending("", now)
	d.UpsertPending("", now.Add(time.Second))
	d.ReplaceAllFromRemote(append(remote("a"), model.Summary{Ref: model.PendingConversation()}))
	d.UpsertPending("", now.Add(2*time.Second))

	assert.Equal(t, 1, countPending(d))
	assert.Equal(t, 2, d.Len())

	list := d.List()
	assert.True(t, list[0].Ref.IsPending(), "pending overlay must be listed first")
}

func TestDirectory_RemovePending(t *testing.T) {
	d := New()
	assert.False(t, d.RemovePending())

	d.UpsertPending("", time.Now())
	assert.Equal(t, model.PendingConversation(), d.Selected())

	assert.True(t, d.RemovePending())
	assert.False(t, d.HasPending())
	assert.True(t, d.Selected().IsNone())
}

// =============================================================================
// REFRESH TESTS
// =============================================================================

func TestDirectory_ReplaceKeepsSelection(t *testing.T) {
	d := New()
	d.ReplaceAllFromRemote(remote("a", "b", "c"))
	assert.Equal(t, model.Committed("a"), d.Selected())

	d.MarkSelected(model.Committed("b"))
	d.ReplaceAllFromRemote(remote("c", "b"))
	assert.Equal(t, model.Committed("b"), d.Selected())
}

func TestDirectory_ReplaceSelectsFirstWhenSelectionGone(t *testing.T) {
	d := New()
	d.ReplaceAllFromRemote(remote("a", "b"))
	d.MarkSelected(model.Committed("b"))

	d.ReplaceAllFromRemote(remote("x", "a"))
	assert.Equal(t, model.Committed("x"), d.Selected())
}

func TestDirectory_ReplaceWithPendingKeepsPendingSelected(t *testing.T) {
	d := New()
	d.UpsertPending("", time.Now())

	d.ReplaceAllFromRemote(remote("a", "b"))

	assert.Equal(t, model.PendingConversation(), d.Selected())
	require.Equal(t, 3, d.Len())
	assert.True(t, d.List()[0].Ref.IsPending())
}

func TestDirectory_ReplaceEmpty(t *testing.T) {
	d := New()
	d.ReplaceAllFromRemote(remote("a"))
	d.ReplaceAllFromRemote(nil)
	assert.True(t, d.Selected().IsNone())
	assert.Zero(t, d.Len())
}

func TestDirectory_FindAndMark(t *testing.T) {
	d := New()
	d.ReplaceAllFromRemote(remote("a", "b"))

	s, ok := d.Find(model.Committed("b"))
	require.True(t, ok)
	assert.Equal(t, "conv b", s.DisplayName)

	_, ok = d.Find(model.Committed("zzz"))
	assert.False(t, ok)
	_, ok = d.Find(model.PendingConversation())
	assert.False(t, ok)

	assert.False(t, d.MarkSelected(model.Committed("zzz")))
	assert.True(t, d.MarkSelected(model.Committed("a")))
}

func TestDirectory_CommitPending(t *testing.T) {
	d := New()
	d.ReplaceAllFromRemote(remote("a", "c1"))
	assert.False(t, d.CommitPending("c1", time.Now()))

	d.UpsertPending("", time.Now())
	require.True(t, d.CommitPending("c1", time.Now()))

	assert.False(t, d.HasPending())
	assert.Equal(t, model.Committed("c1"), d.Selected())
	list := d.List()
	require.Len(t, list, 2)
	assert.Equal(t, model.Committed("c1"), list[0].Ref)
	assert.Equal(t, model.Committed("a"), list[1].Ref)
}

// =============================================================================
// CHECKPOINT TESTS
// =============================================================================

func TestDirectory_CheckpointRestore(t *testing.T) {
	d := New()
	d.ReplaceAllFromRemote(remote("a"))
	cp := d.Checkpoint()
	before := d.List()

	d.UpsertPending("", time.Now())
	d.Restore(cp)

	assert.Equal(t, before, d.List())
	assert.Equal(t, model.Committed("a"), d.Selected())
	assert.False(t, d.HasPending())
}

func TestDirectory_Notifications(t *testing.T) {
	d := New()
	var kinds []ChangeKind
	d.Subscribe(func(c Change) { kinds = append(kinds, c.Kind) })

	d.UpsertPending("", time.Now())
	d.ReplaceAllFromRemote(remote("a"))
	d.MarkSelected(model.Committed("a"))
	d.RemovePending()

	assert.Equal(t, []ChangeKind{PendingUpserted, Replaced, SelectionChanged, PendingRemoved}, kinds)
}
