// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP proxy that sits between browser or
// terminal clients and the remote chat service.
//
// The proxy keeps the remote API key on the server side. Clients talk to the
// same routes the remote service exposes, with missing request fields filled
// in, and the proxy relays the answers unchanged.
//
// # Endpoints
//
//   - POST   /v1/chat-messages              - Submit a turn (streaming or blocking)
//   - GET    /v1/conversations              - List conversations
//   - GET    /v1/messages                   - List a conversation's messages
//   - DELETE /v1/conversations/{id}         - Delete a conversation
//   - POST   /v1/conversations/{id}/name    - Rename a conversation
//   - GET    /health                        - Health check
//   - GET    /                              - Static front end
//
// # Middleware
//
// Requests pass through Recovery, SecurityHeaders, CORS, Logging and
// RateLimit, in that order. Rate limits are per client IP and use
// golang.org/x/time/rate token buckets.
//
// # Failures
//
// When the remote service cannot be reached, or answers with a body that is
// not JSON, the proxy answers 500 with {"error": "...", "details": "..."}.
//
// # Hot Reload
//
// WatchConfig follows the configuration file and swaps the upstream client
// and rate limits without restarting the listener.
package server
