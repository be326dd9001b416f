// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session ties the transcript, the conversation directory and the
// turn assembler together behind the conversation lifecycle operations.
//
// # Key Types
//
//   - Manager: owns one transcript and one directory for one user
//   - Gateway: the remote operations the manager needs
//
// # Usage
//
//	mgr := session.NewManager(client, session.Config{User: userID})
//	if err := mgr.Refresh(ctx); err != nil {
//	    // A notice has already been posted to the transcript.
//	}
//	sess, err := mgr.Submit(ctx, "hello")
//
// Presentation code renders mgr.Transcript() and mgr.Directory() and
// subscribes to both for change notifications. Failures are reported as
// returned errors and as error notices, never as assistant content.
package session
