// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for turns and conversations.
//
// This package defines the core domain types shared by the transcript store,
// the conversation directory, the turn assembler and the presentation layers.
// It performs no I/O.
//
// # Key Types
//
//   - Turn: One message unit in a transcript (user query, assistant text or assistant image)
//   - Role: Turn role enumeration (user, assistant)
//   - ConversationRef: Union of Pending and Committed(id), with a zero value meaning "none"
//   - Summary: Directory entry (ref, display name, last update time)
//
// # Usage
//
// Build turns:
//
//	u := model.NewUserTurn("hi")
//	a := model.NewAssistantTurn()
//	img := model.NewImageTurn("https://example.com/cat.png")
//
// Work with conversation references:
//
//	ref := model.PendingConversation()
//	if ref.IsPending() {
//	    ref = model.Committed("c1")
//	}
//	fmt.Println(ref.WireID()) // "c1"
package model
