// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assembler implements the turn assembler: the state machine that
// folds the event stream of one outgoing query into the transcript.
//
// # States
//
//	Idle -> AwaitingFirstToken -> Streaming -> Settled
//	            |                    |
//	            +------> Aborted <---+
//
// Settled and Aborted are terminal for a submission; the assembler returns to
// Idle right after either. At most one submission is in flight per
// Assembler. Every submission captures a token; events carrying an older
// token are ignored, which is how switching conversations abandons a stream.
//
// # Failure Policy
//
// An in-band error event, a transport failure, a premature end of stream or
// an idle-read timeout aborts the submission. A submission that started a new
// conversation is rolled back entirely (transcript and pending overlay). A
// continuation keeps its partial reply, skips the directory refresh and keeps
// the conversation id it had before the submission.
//
// # Conversation IDs
//
// Any event carrying a conversation id commits a pending conversation to it.
// A later event with a different id is logged as a protocol anomaly and the
// last id received wins.
//
// # Usage
//
//	a := assembler.New(ts, dir, client, refresher, assembler.Config{User: uid})
//	sess, err := a.Submit(ctx, "hello")
//	if err != nil {
//	    var perr *assembler.ProtocolError
//	    if errors.As(err, &perr) { ... }
//	}
//	fmt.Println(sess.State, sess.Conversation)
package assembler
