// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import "github.com/jeranaias/difychat/internal/model"

// ResponseMode selects how createTurn answers.
type ResponseMode string

const (
	ModeBlocking  ResponseMode = "blocking"
	ModeStreaming ResponseMode = "streaming"
)

// Default query values, matching what the proxy fills in.
const (
	DefaultUser      = "anonymous"
	DefaultPageLimit = 20
	DefaultSortBy    = "-updated_at"
)

// =============================================================================
// CHAT MESSAGES
// =============================================================================

// TurnRequest is one outgoing user query.
type TurnRequest struct {
	Query        string
	Inputs       map[string]any
	Conversation model.ConversationRef
	User         string
}

// ChatRequest is the body of POST /chat-messages.
type ChatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   ResponseMode   `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
}

// BlockingAnswer is the body returned by a blocking chat request.
type BlockingAnswer struct {
	Event          string `json:"event,omitempty"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	CreatedAt      int64  `json:"created_at"`
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListConversationsParams are the query parameters of GET /conversations.
type ListConversationsParams struct {
	User   string
	LastID string
	Limit  int
	SortBy string
}

// ConversationRecord is one entry of the remote conversation listing.
type ConversationRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// Summary converts the record for the directory.
func (r ConversationRecord) Summary() model.Summary {
	return model.NewRemoteSummary(r.ID, r.Name, r.UpdatedAt)
}

// ConversationPage is the body of GET /conversations.
type ConversationPage struct {
	Data    []ConversationRecord `json:"data"`
	HasMore bool                 `json:"has_more"`
	Limit   int                  `json:"limit"`
}

// RenameRequest is the body of POST /conversations/{id}/name.
type RenameRequest struct {
	Name         string `json:"name"`
	AutoGenerate bool   `json:"auto_generate"`
	User         string `json:"user"`
}

// RenameResult is the body returned by a rename.
type RenameResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

// DeleteRequest is the body of DELETE /conversations/{id}.
type DeleteRequest struct {
	User string `json:"user"`
}

// DeleteResult is the body returned by a delete.
type DeleteResult struct {
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

// =============================================================================
// MESSAGES
// =============================================================================

// ListMessagesParams are the query parameters of GET /messages.
type ListMessagesParams struct {
	ConversationID string
	User           string
	FirstID        string
	Limit          int
}

// MessageFileRecord is an attachment of a history message.
type MessageFileRecord struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	BelongsTo string `json:"belongs_to"`
	URL       string `json:"url"`
}

// MessageRecord is one query/answer pair of the conversation history.
type MessageRecord struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Query          string              `json:"query"`
	Answer         string              `json:"answer"`
	CreatedAt      int64               `json:"created_at"`
	Files          []MessageFileRecord `json:"message_files,omitempty"`
}

// AssistantImage returns the URL of the first image owned by the assistant.
func (m MessageRecord) AssistantImage() (string, bool) {
	for _, f := range m.Files {
		if f.Type == "image" && f.BelongsTo == "assistant" {
			return f.URL, true
		}
	}
	return "", false
}

// MessagePage is the body of GET /messages.
type MessagePage struct {
	Data    []MessageRecord `json:"data"`
	HasMore bool            `json:"has_more"`
	Limit   int             `json:"limit"`
}
