// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderInfo  lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarPending  lipgloss.Style
	SidebarEmpty    lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserTurn       lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantTurn  lipgloss.Style
	ImageTurn      lipgloss.Style
	Placeholder    lipgloss.Style

	// ==========================================================================
	// STATUS AND INPUT
	// ==========================================================================

	Notice       lipgloss.Style
	StatusBar    lipgloss.Style
	Spinner      lipgloss.Style
	ThinkingText lipgloss.Style
	Input        lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()
	return NewThemeFor(profile, termenv.HasDarkBackground())
}

// NewThemeFor creates a theme for an explicit color profile.
func NewThemeFor(profile termenv.Profile, isDark bool) *Theme {
	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.HeaderInfo = lipgloss.NewStyle().Foreground(TextSecondary)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.SidebarTitle = lipgloss.NewStyle().Bold(true).Foreground(TextSecondary).MarginBottom(1)
	t.SidebarItem = lipgloss.NewStyle().Foreground(TextPrimary)
	t.SidebarSelected = lipgloss.NewStyle().
		Foreground(Purple).
		Background(SelectionBg).
		Bold(true)
	t.SidebarPending = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.SidebarEmpty = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.UserTurn = lipgloss.NewStyle().
		Foreground(UserTurnFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserTurnBorder).
		PaddingLeft(1)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.AssistantTurn = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantTurnBorder)
	t.ImageTurn = lipgloss.NewStyle().Foreground(Cyan).Underline(true)
	t.Placeholder = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.Notice = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Background(SurfaceDim).Padding(0, 1)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
	t.ThinkingText = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Cyan)
	t.ShortcutKey = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, sidebar hidden
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// SidebarWidth returns the sidebar width for the current layout, zero when
// the sidebar is hidden.
func (t *Theme) SidebarWidth() int {
	switch t.GetLayoutMode() {
	case LayoutNarrow:
		return 0
	case LayoutMedium:
		return 24
	default:
		return 32
	}
}
