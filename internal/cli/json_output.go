// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for difychat commands.
//
// Every command that prints data supports --json so that scripts can consume
// conversation listings, history and answers.

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/difychat/internal/gateway"
)

// JSONResponse is the envelope of every JSON answer.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the ISO8601 timestamp when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response to w with indentation.
func (r *JSONResponse) Print(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// ConversationData is one conversation in list output.
type ConversationData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UpdatedAt string `json:"updated_at"`
}

func conversationData(r gateway.ConversationRecord) ConversationData {
	s := r.Summary()
	return ConversationData{
		ID:        r.ID,
		Name:      s.DisplayName,
		UpdatedAt: s.LastUpdatedAt.UTC().Format(time.RFC3339),
	}
}

// TurnData is one turn of history output.
type TurnData struct {
	Role     string `json:"role"`
	Content  string `json:"content,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// AskData represents the data returned by the ask command.
type AskData struct {
	Answer         string `json:"answer"`
	ImageURL       string `json:"image_url,omitempty"`
	ConversationID string `json:"conversation_id"`
	Mode           string `json:"mode"`
	DurationMs     int64  `json:"duration_ms"`
}

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}
