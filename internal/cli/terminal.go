// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for difychat commands.
//
// Markdown and colors are used only when the output is a terminal.
// NO_COLOR turns colors off and FORCE_COLOR turns them on regardless of
// detection.

package cli

import (
	"io"
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Bounds for rendered answers. Wider than maxAnswerWidth is hard to read.
const (
	defaultAnswerWidth = 80
	minAnswerWidth     = 40
	maxAnswerWidth     = 120
)

// stdinIsTerminal reports whether questions can be typed interactively.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// isTerminalWriter reports whether w is a terminal file.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// answerWidth is the wrap width for markdown written to w.
func answerWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultAnswerWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	switch {
	case err != nil || width <= 0:
		return defaultAnswerWidth
	case width < minAnswerWidth:
		return minAnswerWidth
	case width > maxAnswerWidth:
		return maxAnswerWidth
	}
	return width
}

// =============================================================================
// COLORS
// =============================================================================

var (
	colorsOnce sync.Once
	colorsOn   bool
)

// ColorsEnabled reports whether styled output should be used.
func ColorsEnabled() bool {
	colorsOnce.Do(func() {
		switch {
		case os.Getenv("NO_COLOR") != "":
			colorsOn = false
		case os.Getenv("FORCE_COLOR") != "":
			colorsOn = true
		default:
			colorsOn = term.IsTerminal(int(os.Stdout.Fd()))
		}
	})
	return colorsOn
}

// ForceColorsEnabled overrides detection. Tests only.
func ForceColorsEnabled(enabled bool) {
	colorsOnce = sync.Once{}
	colorsOnce.Do(func() { colorsOn = enabled })
}

// colorProfile is Ascii when colors are off, else the terminal's profile.
func colorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// =============================================================================
// FULL-SCREEN REQUIREMENT
// =============================================================================

// TTYRequiredError is returned by commands that need a terminal on both
// stdin and stdout.
type TTYRequiredError struct {
	Command string
}

func (e *TTYRequiredError) Error() string {
	return e.Command + " needs a terminal; use 'difychat repl' or 'difychat ask' when piping"
}

// requireTerminal fails unless stdin and stdout are both terminals.
func requireTerminal(command string) error {
	if !stdinIsTerminal() || !term.IsTerminal(int(os.Stdout.Fd())) {
		return &TTYRequiredError{Command: command}
	}
	return nil
}
