// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for difychat commands.
//
// Colors come from the chat UI palette and are dropped when output is not a
// terminal.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/difychat/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(colorProfile())
}

// labelWidth fits the longest config key.
const labelWidth = 26

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(styles.Cyan)

	// LabelStyle is used for key/value listings
	LabelStyle = lipgloss.NewStyle().Foreground(styles.TextSecondary).Width(labelWidth)

	SuccessStyle = lipgloss.NewStyle().Foreground(styles.Emerald).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(styles.Rose).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)

	// DimStyle is used for ids, timestamps and hints
	DimStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)

	SeparatorStyle = lipgloss.NewStyle().Foreground(styles.Overlay)

	promptStyle    = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
)

// RenderSeparator renders a rule of width dashes between transcript entries.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 40
	}
	return RenderConditional(SeparatorStyle, strings.Repeat("-", width))
}

// RenderLabel pads label to labelWidth.
func RenderLabel(label string) string {
	if !ColorsEnabled() {
		return label + strings.Repeat(" ", max(labelWidth-len(label), 1))
	}
	return LabelStyle.Render(label)
}

// RenderConditional renders text with style if colors are enabled,
// otherwise returns the text unmodified.
func RenderConditional(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}
