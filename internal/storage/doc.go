// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local client state of difychat.
//
// Transcripts are never stored locally; the remote service owns them. What
// is kept here is small per-machine state: the generated user identifier,
// the last active conversation and the REPL input history.
//
// # Key Types
//
//   - Store: SQLite-backed key/value and history store
//
// # Usage
//
//	store, err := storage.Open(cfg.State.Path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	id, ok, err := store.Get(ctx, storage.KeyLastConversation)
//
// # Storage Location
//
// The database lives at ~/.difychat/state.db unless [state] path says
// otherwise.
package storage
