// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/difychat/internal/assembler"
)

// =============================================================================
// STORE MESSAGES
// =============================================================================

// StoreChangedMsg tells the model that the transcript or the directory
// changed and the view must be rebuilt from the stores.
type StoreChangedMsg struct{}

// =============================================================================
// OPERATION MESSAGES
// =============================================================================

// SubmitDoneMsg reports the end of a submission.
type SubmitDoneMsg struct {
	Session assembler.Session
	Err     error
}

// Op names a conversation lifecycle operation run in the background.
type Op string

const (
	OpLoad   Op = "load"
	OpOpen   Op = "open"
	OpRename Op = "rename"
	OpDelete Op = "delete"
)

// OpDoneMsg reports the end of a lifecycle operation. Failures have
// already been posted to the transcript as notices.
type OpDoneMsg struct {
	Op  Op
	ID  string
	Err error
}
