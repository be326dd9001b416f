// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the difychat command line.
//
// The command tree is built with cobra. Every command shares one app value
// that loads the configuration, the logger and the local state store on
// first use.
//
// # Commands Overview
//
//   - serve: run the proxy in front of the chat service
//   - chat: full-screen chat (Bubble Tea)
//   - repl: line-by-line chat with input history (liner)
//   - ask: one question, answer on stdout
//   - conversations list|rename|delete, history: conversation management
//   - config show|get|set|path|keys, version
//
// Commands that print data support --json. Errors are displayed once by
// Execute and mapped to exit codes (see errors.go).
package cli
