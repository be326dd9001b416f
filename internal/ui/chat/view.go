// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/difychat/internal/assembler"
	"github.com/jeranaias/difychat/internal/model"
	"github.com/jeranaias/difychat/internal/transcript"
	"github.com/jeranaias/difychat/internal/util"
)

// View renders the chat interface.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	body := m.viewport.View()
	if w := m.theme.SidebarWidth(); w > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderSidebar(w, m.viewport.Height),
			" ",
			body,
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderNotice(),
		m.renderStatus(),
		m.theme.Input.Render(m.input.View()),
		m.renderHelp(),
	)
}

// =============================================================================
// HEADER AND FOOTER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render(m.opts.Title)

	name := "no conversation"
	if s, ok := m.mgr.Directory().Find(m.mgr.Directory().Selected()); ok {
		name = util.TruncateWidth(s.DisplayName, 40)
	}
	info := m.theme.HeaderInfo.Render(fmt.Sprintf("%s | user %s", name, m.mgr.User()))

	return m.theme.Header.Width(m.width).Render(title + "  " + info)
}

func (m Model) renderNotice() string {
	n, ok := m.latestNotice()
	if !ok {
		return ""
	}
	text := util.TruncateWidth(util.FirstLine(n.Text), m.width)
	if n.Kind == transcript.NoticeError {
		return m.theme.Notice.Render(text)
	}
	return m.theme.HeaderInfo.Render(text)
}

func (m Model) renderStatus() string {
	sess := m.mgr.Session()

	var status string
	switch {
	case m.busy != "":
		status = m.spinner.View() + " " + m.theme.ThinkingText.Render(busyText(m.busy))
	case sess.State == assembler.AwaitingFirstToken:
		status = m.spinner.View() + " " + m.theme.ThinkingText.Render("Waiting for reply...")
	case sess.State == assembler.Streaming:
		status = m.spinner.View() + " " + m.theme.ThinkingText.Render("Receiving reply... (esc to cancel)")
	default:
		status = fmt.Sprintf("%d conversations", m.mgr.Directory().Len())
	}
	return m.theme.StatusBar.Width(m.width).Render(status)
}

func busyText(op Op) string {
	switch op {
	case OpLoad:
		return "Loading conversations..."
	case OpOpen:
		return "Loading history..."
	case OpRename:
		return "Renaming..."
	case OpDelete:
		return "Deleting..."
	default:
		return "Working..."
	}
}

func (m Model) renderHelp() string {
	m.help.Width = m.width
	if m.showHelp {
		return m.help.FullHelpView(m.keys.FullHelp())
	}
	return m.help.ShortHelpView(m.keys.ShortHelp())
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar(width, height int) string {
	inner := width - 3
	lines := []string{m.theme.SidebarTitle.Render("Conversations")}

	list := m.mgr.Directory().List()
	if len(list) == 0 {
		lines = append(lines, m.theme.SidebarEmpty.Render("none yet (C-n)"))
	}

	selected := m.mgr.Directory().Selected()
	for i, s := range list {
		label := s.Label()
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		text := marker + util.TruncateWidth(label, inner-2)

		style := m.theme.SidebarItem
		switch {
		case s.Ref == selected:
			style = m.theme.SidebarSelected
		case s.Ref.IsPending():
			style = m.theme.SidebarPending
		}
		lines = append(lines, style.Render(util.PadWidth(text, inner)))
	}

	// Keep the cursor row visible.
	visible := height - 2
	if visible > 0 && len(lines)-1 > visible {
		start := 1
		if m.cursor+1 > visible {
			start = m.cursor + 2 - visible
		}
		end := start + visible
		if end > len(lines) {
			end = len(lines)
		}
		lines = append([]string{lines[0]}, lines[start:end]...)
	}

	return m.theme.Sidebar.Width(width - 1).Height(height).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every turn in order. Assistant text goes through
// glamour; the open turn shows the spinner until its first delta.
func (m Model) renderTranscript(width int) string {
	turns := m.mgr.Transcript().List()
	if len(turns) == 0 {
		return m.theme.Placeholder.Render("Type a message and press enter to start.")
	}

	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderTurn(t, width))
	}
	return b.String()
}

func (m Model) renderTurn(t model.Turn, width int) string {
	switch {
	case t.Role == model.RoleUser:
		label := m.theme.UserLabel.Render(t.Role.DisplayName())
		return label + "\n" + m.theme.UserTurn.Width(width-2).Render(t.Content)

	case t.IsImage:
		label := m.theme.AssistantLabel.Render(t.Role.DisplayName())
		return label + "\n" + m.theme.ImageTurn.Render("[image] "+t.ImageURL)

	default:
		label := m.theme.AssistantLabel.Render(t.Role.DisplayName())
		if t.Content == "" && t.IsOpenAssistant() {
			return label + "\n" + m.spinner.View() + " " + m.theme.ThinkingText.Render("thinking")
		}
		return label + "\n" + m.theme.AssistantTurn.Render(m.markdown.Render(t.Content, width-2))
	}
}
