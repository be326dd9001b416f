// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the client of the remote conversational-AI API.
//
// It speaks the chat-messages, conversations and messages endpoints of a
// Dify-style service, either directly (with an API key) or through the local
// proxy (without one). Reads are retried with exponential backoff; mutations
// and streams are never retried.
//
// # Key Types
//
//   - Client: REST and SSE client with pooled transports
//   - TurnRequest: One outgoing query with its structured inputs
//   - APIError: A non-2xx answer, unwrapping to a status sentinel
//   - TransportError: The request never produced a usable response
//   - RemoteFailure: A CRUD call the service refused or answered incompletely
//
// # Usage
//
//	c := gateway.New(gateway.Config{
//	    BaseURL: "http://localhost:3000/v1",
//	    Logger:  logger,
//	})
//	body, err := c.StreamTurn(ctx, gateway.TurnRequest{
//	    Query: "hello",
//	    User:  userID,
//	})
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//
// # Error Handling
//
// Status sentinels can be matched through any wrapper:
//
//	if errors.Is(err, gateway.ErrRateLimited) {
//	    // back off
//	}
package gateway
