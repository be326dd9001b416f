// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat interface of difychat.

The interface is a Bubble Tea program that presents a session.Manager: the
conversation directory in a sidebar, the transcript in a scrolling viewport
and the latest notice in a status line of its own. It never owns
conversation state. Every frame is rendered from the manager's stores.

# Key Components

## Model (model.go)

Model holds only presentation state: sizes, the sidebar cursor, the input
area, the spinner and the background operation in progress. Submissions and
lifecycle operations run as tea.Cmd functions that call the manager.

## Update Loop (update.go)

Keyboard handling, layout and viewport refresh. The key bindings are listed
in keys.go.

## View Rendering (view.go)

Header, sidebar, transcript and footer. Assistant text is rendered as
markdown through glamour. An open assistant turn with no text yet shows the
spinner.

## Store Notifications (streaming.go)

Notifier subscribes to the transcript and the directory and forwards
changes to the program with Send, merging bursts and capping the redraw
rate while a reply streams in.

# Usage

	err := chat.Run(ctx, mgr, chat.Options{ResumeID: lastID})
*/
package chat
