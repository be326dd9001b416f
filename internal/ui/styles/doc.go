// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and Lip Gloss styles of the difychat
terminal front ends.

All colors are AdaptiveColor values so the same palette works on light and
dark terminals. NewTheme detects the terminal's color profile with termenv
and builds the styles the chat view and the CLI commands use.

# Color System (colors.go)

  - Purple - Assistant turns and the selected conversation
  - Cyan - Brand color, user turns and key hints
  - Emerald - Success messages
  - Amber - The pending conversation and warnings
  - Rose - Error notices

# Theme (theme.go)

	theme := styles.NewTheme()
	theme.SetSize(width, height)
	fmt.Println(theme.Notice.Render("Network error"))

# Status Helpers

RenderSuccess, RenderError, RenderWarning and RenderInfo prefix the message
with an ASCII status marker so state is readable without color.
*/
package styles
