// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// DefaultConversationName is shown for conversations without a remote name.
const DefaultConversationName = "新对话"

// Summary is one entry of the conversation directory.
type Summary struct {
	Ref           ConversationRef
	DisplayName   string
	LastUpdatedAt time.Time
}

// NewPendingSummary builds the client-only overlay for a conversation that has
// not been created remotely yet.
func NewPendingSummary(name string, now time.Time) Summary {
	if name == "" {
		name = DefaultConversationName
	}
	return Summary{
		Ref:           PendingConversation(),
		DisplayName:   fmt.Sprintf("%s (%s)", name, now.Format("15:04:05")),
		LastUpdatedAt: now,
	}
}

// NewRemoteSummary converts a remote listing record into a Summary.
func NewRemoteSummary(id, name string, updatedAtEpoch int64) Summary {
	if name == "" {
		name = DefaultConversationName
	}
	return Summary{
		Ref:           Committed(id),
		DisplayName:   name,
		LastUpdatedAt: time.Unix(updatedAtEpoch, 0),
	}
}

// Label renders the summary the way the sidebar lists it.
func (s Summary) Label() string {
	if s.Ref.IsPending() {
		return s.DisplayName
	}
	return fmt.Sprintf("%s (%s)", s.DisplayName, s.LastUpdatedAt.Format("15:04:05"))
}
