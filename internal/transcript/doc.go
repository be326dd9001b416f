// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript holds the ordered turns of the conversation on display.
//
// The Store is append-only except for its single open assistant turn, whose
// content the turn assembler appends to or replaces while a reply streams.
// Errors meant for the user are kept on a separate notice channel so they are
// never mistaken for assistant content. Subscribers receive a Change for every
// mutation; notifications are delivered after the store lock is released.
package transcript
