// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListConversations returns a page of the user's conversations, most recently
// updated first by default.
func (c *Client) ListConversations(ctx context.Context, p ListConversationsParams) (*ConversationPage, error) {
	const op = "list conversations"

	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	q := url.Values{
		"user":    {orDefault(p.User, DefaultUser)},
		"last_id": {p.LastID},
		"limit":   {strconv.Itoa(p.Limit)},
		"sort_by": {orDefault(p.SortBy, DefaultSortBy)},
	}

	var page ConversationPage
	if err := c.doWithRetry(ctx, op, "/conversations", q, &page); err != nil {
		return nil, asRemoteFailure(op, err)
	}
	if page.Data == nil {
		return nil, &RemoteFailure{Op: op, Err: fmt.Errorf("%w: data", ErrIncomplete)}
	}
	return &page, nil
}

// ListMessages returns a page of a conversation's history.
func (c *Client) ListMessages(ctx context.Context, p ListMessagesParams) (*MessagePage, error) {
	const op = "list messages"

	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	q := url.Values{
		"conversation_id": {p.ConversationID},
		"user":            {orDefault(p.User, DefaultUser)},
		"first_id":        {p.FirstID},
		"limit":           {strconv.Itoa(p.Limit)},
	}

	var page MessagePage
	if err := c.doWithRetry(ctx, op, "/messages", q, &page); err != nil {
		return nil, asRemoteFailure(op, err)
	}
	if page.Data == nil {
		return nil, &RemoteFailure{Op: op, Err: fmt.Errorf("%w: data", ErrIncomplete)}
	}
	return &page, nil
}

// DeleteConversation removes a conversation. A result other than "success"
// is a *RemoteFailure.
func (c *Client) DeleteConversation(ctx context.Context, id, user string) error {
	const op = "delete conversation"

	var res DeleteResult
	path := "/conversations/" + url.PathEscape(id)
	err := c.doJSON(ctx, op, http.MethodDelete, path, nil, DeleteRequest{User: orDefault(user, DefaultUser)}, &res)
	if err != nil {
		return asRemoteFailure(op, err)
	}
	if res.Result != "success" {
		return &RemoteFailure{Op: op, Result: res.Result, Message: res.Message}
	}
	return nil
}

// RenameConversation renames a conversation. An empty name asks the service
// to generate one.
func (c *Client) RenameConversation(ctx context.Context, id, name, user string) (*RenameResult, error) {
	const op = "rename conversation"

	body := RenameRequest{
		Name:         normalize(name),
		AutoGenerate: name == "",
		User:         orDefault(user, DefaultUser),
	}

	var res RenameResult
	path := "/conversations/" + url.PathEscape(id) + "/name"
	if err := c.doJSON(ctx, op, http.MethodPost, path, nil, body, &res); err != nil {
		return nil, asRemoteFailure(op, err)
	}
	if res.ID == "" {
		return nil, &RemoteFailure{Op: op, Err: fmt.Errorf("%w: id", ErrIncomplete)}
	}
	return &res, nil
}

// asRemoteFailure wraps service-side refusals. Transport failures keep their
// own type.
func asRemoteFailure(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &RemoteFailure{Op: op, Err: err}
}
