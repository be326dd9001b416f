// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// =============================================================================
// CONVERSATION REFERENCE
// =============================================================================

type refKind uint8

const (
	refNone refKind = iota
	refPending
	refCommitted
)

// ConversationRef identifies a conversation as either Pending (not yet created
// on the remote service) or Committed with a remote id. The zero value means
// no conversation is active.
type ConversationRef struct {
	kind refKind
	id   string
}

// NoConversation is the zero ConversationRef.
var NoConversation = ConversationRef{}

// PendingConversation returns the ref of a conversation that has no remote id yet.
func PendingConversation() ConversationRef {
	return ConversationRef{kind: refPending}
}

// Committed returns the ref of a conversation known to the remote service.
// An empty id yields the pending ref.
func Committed(id string) ConversationRef {
	if id == "" {
		return PendingConversation()
	}
	return ConversationRef{kind: refCommitted, id: id}
}

// IsNone reports whether no conversation is referenced.
func (r ConversationRef) IsNone() bool { return r.kind == refNone }

// IsPending reports whether r is the pending conversation.
func (r ConversationRef) IsPending() bool { return r.kind == refPending }

// IsCommitted reports whether r carries a remote id.
func (r ConversationRef) IsCommitted() bool { return r.kind == refCommitted }

// ID returns the remote id, or "" when r is not committed.
func (r ConversationRef) ID() string { return r.id }

// WireID returns the value sent as conversation_id: "" for a pending or
// absent conversation.
func (r ConversationRef) WireID() string {
	if r.kind == refCommitted {
		return r.id
	}
	return ""
}

// String implements fmt.Stringer.
func (r ConversationRef) String() string {
	switch r.kind {
	case refPending:
		return "pending"
	case refCommitted:
		return fmt.Sprintf("committed(%s)", r.id)
	default:
		return "none"
	}
}
