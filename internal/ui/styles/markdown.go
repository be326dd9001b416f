// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// Markdown renders assistant content with glamour. The renderer is rebuilt
// only when the wrap width changes. Safe for concurrent use.
type Markdown struct {
	mu       sync.Mutex
	style    string
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer matching the theme's terminal.
func NewMarkdown(t *Theme) *Markdown {
	style := "light"
	switch {
	case t == nil || t.ColorProfile == termenv.Ascii:
		style = "notty"
	case t.IsDark:
		style = "dark"
	}
	return &Markdown{style: style}
}

// Render renders content wrapped at width. Content that fails to render is
// returned unchanged.
func (m *Markdown) Render(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	if width < 20 {
		width = 20
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderer == nil || m.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.renderer, m.width = r, width
	}

	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
