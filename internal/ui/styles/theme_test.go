// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestNewThemeFor(t *testing.T) {
	th := NewThemeFor(termenv.TrueColor, true)
	assert.True(t, th.IsDark)
	assert.True(t, th.HasTrueColor)

	th = NewThemeFor(termenv.Ascii, false)
	assert.False(t, th.HasTrueColor)
	assert.Equal(t, termenv.Ascii, th.ColorProfile)
}

func TestLayoutMode(t *testing.T) {
	tests := []struct {
		width   int
		mode    LayoutMode
		sidebar int
	}{
		{40, LayoutNarrow, 0},
		{59, LayoutNarrow, 0},
		{60, LayoutMedium, 24},
		{99, LayoutMedium, 24},
		{100, LayoutWide, 32},
		{200, LayoutWide, 32},
	}
	th := NewThemeFor(termenv.Ascii, true)
	for _, tt := range tests {
		th.SetSize(tt.width, 40)
		assert.Equal(t, tt.mode, th.GetLayoutMode(), "width %d", tt.width)
		assert.Equal(t, tt.sidebar, th.SidebarWidth(), "width %d", tt.width)
	}
}

func TestRenderHelpersCarryMarkers(t *testing.T) {
	assert.True(t, strings.Contains(RenderSuccess("saved"), "[OK] saved"))
	assert.True(t, strings.Contains(RenderError("failed"), "[X] failed"))
	assert.True(t, strings.Contains(RenderWarning("careful"), "[!] careful"))
	assert.True(t, strings.Contains(RenderInfo("note"), "[i] note"))
	assert.Contains(t, RenderMuted("quiet"), "quiet")
}

func TestMarkdownRender(t *testing.T) {
	md := NewMarkdown(NewThemeFor(termenv.Ascii, false))

	out := md.Render("# Title\n\nSome **bold** text.", 40)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")

	assert.Equal(t, "", md.Render("", 40))
	assert.Equal(t, "   ", md.Render("   ", 40))

	// A narrow width still renders.
	assert.Contains(t, md.Render("hello", 5), "hello")
}
