// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assembler

import (
	"errors"
	"fmt"

	"github.com/jeranaias/difychat/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is the state of the turn assembler.
type State int

const (
	Idle State = iota
	AwaitingFirstToken
	Streaming
	Settled
	Aborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingFirstToken:
		return "awaiting-first-token"
	case Streaming:
		return "streaming"
	case Settled:
		return "settled"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InFlight reports whether a submission is being streamed.
func (s State) InFlight() bool {
	return s == AwaitingFirstToken || s == Streaming
}

// Session is a snapshot of the assembler: the active conversation, the
// current submission token and the state-machine state.
type Session struct {
	Conversation model.ConversationRef
	Token        uint64
	State        State
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned by Submit while another submission is in flight.
	ErrBusy = errors.New("a reply is still streaming")

	// ErrEmptyQuery is returned by Submit for a blank query.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrStale is returned by Apply for an event of an abandoned submission.
	ErrStale = errors.New("event belongs to an abandoned submission")

	// ErrAbandoned is returned by Submit when the submission was abandoned by
	// a conversation switch before it finished.
	ErrAbandoned = errors.New("submission abandoned")

	// ErrUnexpectedEnd means the stream ended without a message_end event.
	ErrUnexpectedEnd = errors.New("stream ended before message_end")
)

// ProtocolError is an error event received in-band from the remote service.
type ProtocolError struct {
	Message string
	Code    string
	Status  int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote reported error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote reported error: %s", e.Message)
}
