// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

func (c *Client) chatRequest(req TurnRequest, mode ResponseMode) ChatRequest {
	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	return ChatRequest{
		Inputs:         inputs,
		Query:          normalize(req.Query),
		ResponseMode:   mode,
		ConversationID: req.Conversation.WireID(),
		User:           orDefault(req.User, DefaultUser),
	}
}

// StreamTurn opens a streaming chat request and returns the SSE body. Any
// failure before the body is available, including a non-2xx status, is a
// *TransportError.
func (c *Client) StreamTurn(ctx context.Context, req TurnRequest) (io.ReadCloser, error) {
	const op = "stream turn"

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat-messages", nil, c.chatRequest(req, ModeStreaming))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("API request", "op", op, "path", httpReq.URL.Path, "conversation", req.Conversation.String())
	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		return nil, &TransportError{Op: op, Err: handleErrorResponse(resp.StatusCode, body)}
	}
	return resp.Body, nil
}

// CreateTurnBlocking sends a blocking chat request and returns the answer.
func (c *Client) CreateTurnBlocking(ctx context.Context, req TurnRequest) (*BlockingAnswer, error) {
	const op = "create turn"

	var answer BlockingAnswer
	if err := c.doJSON(ctx, op, http.MethodPost, "/chat-messages", nil, c.chatRequest(req, ModeBlocking), &answer); err != nil {
		return nil, err
	}
	if answer.ConversationID == "" {
		return nil, &RemoteFailure{Op: op, Err: fmt.Errorf("%w: conversation_id", ErrIncomplete)}
	}
	return &answer, nil
}
