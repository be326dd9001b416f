// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one message unit in a transcript.
//
// Text and image content are mutually exclusive: when IsImage is set the turn
// carries ImageURL and Content is empty. Only an open (non-frozen) assistant
// turn may have its Content changed.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	Content  string `json:"content,omitempty"`
	IsImage  bool   `json:"is_image,omitempty"`
	ImageURL string `json:"image_url,omitempty"`

	// Frozen is set once the turn can no longer change.
	Frozen bool `json:"-"`
}

// NewUserTurn creates a frozen user turn.
func NewUserTurn(content string) Turn {
	return Turn{
		ID:        NewTurnID(),
		Role:      RoleUser,
		CreatedAt: time.Now(),
		Content:   content,
		Frozen:    true,
	}
}

// NewAssistantTurn creates an empty open assistant turn for streaming.
func NewAssistantTurn() Turn {
	return Turn{
		ID:        NewTurnID(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// NewAssistantText creates a frozen assistant text turn, as replayed from history.
func NewAssistantText(content string) Turn {
	t := NewAssistantTurn()
	t.Content = content
	t.Frozen = true
	return t
}

// NewImageTurn creates a frozen assistant turn carrying an image reference.
func NewImageTurn(url string) Turn {
	return Turn{
		ID:        NewTurnID(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		IsImage:   true,
		ImageURL:  url,
		Frozen:    true,
	}
}

// IsOpenAssistant reports whether the turn is a streaming assistant text turn.
func (t Turn) IsOpenAssistant() bool {
	return t.Role == RoleAssistant && !t.IsImage && !t.Frozen
}

// Display returns the text to show for the turn.
func (t Turn) Display() string {
	if t.IsImage {
		return t.ImageURL
	}
	return t.Content
}

// Preview returns a rune-safe truncated preview of the turn.
func (t Turn) Preview(maxLen int) string {
	runes := []rune(t.Display())
	if len(runes) <= maxLen {
		return string(runes)
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// NewTurnID returns a fresh identifier for a locally created turn.
func NewTurnID() string {
	return "turn_" + uuid.NewString()
}
