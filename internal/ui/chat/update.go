// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Layout constants.
const (
	headerHeight = 1
	noticeHeight = 1
	statusHeight = 1
	helpHeight   = 1
	inputHeight  = 3
	inputChrome  = 2 // rounded border
	minBody      = 3
)

// Update handles all Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout()
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StoreChangedMsg:
		m.followSelection()
		m.refreshViewport()
		if m.inFlight() {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if !m.inFlight() && m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refreshViewport()
		return m, cmd

	case SubmitDoneMsg:
		m.refreshViewport()
		return m, nil

	case OpDoneMsg:
		m.busy = ""
		m.syncCursor()
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.mgr.Cancel()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		m.mgr.Cancel()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.layout()
		m.refreshViewport()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		m.input.Reset()
		m.noticeSeen = time.Now()
		m.followTail = true
		return m, tea.Batch(m.submit(query), m.spinner.Tick)

	case key.Matches(msg, m.keys.New):
		m.mgr.StartNew()
		m.syncCursor()
		m.refreshViewport()
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.cursor--
		m.clampCursor()
		return m, nil

	case key.Matches(msg, m.keys.Next):
		m.cursor++
		m.clampCursor()
		return m, nil

	case key.Matches(msg, m.keys.Open):
		return m.onCursor(OpOpen, m.open)

	case key.Matches(msg, m.keys.Rename):
		return m.onCursor(OpRename, m.rename)

	case key.Matches(msg, m.keys.Delete):
		return m.onCursor(OpDelete, m.remove)

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.followTail = m.viewport.AtBottom()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// onCursor runs op on the committed conversation under the cursor. The
// pending overlay has no remote id, so remote operations skip it.
func (m Model) onCursor(op Op, run func(id string) tea.Cmd) (tea.Model, tea.Cmd) {
	list := m.mgr.Directory().List()
	if m.cursor < 0 || m.cursor >= len(list) {
		return m, nil
	}
	ref := list[m.cursor].Ref
	if !ref.IsCommitted() {
		return m, nil
	}
	m.busy = op
	if op == OpOpen {
		m.noticeSeen = time.Now()
		m.followTail = true
	}
	return m, tea.Batch(run(ref.ID()), m.spinner.Tick)
}

// followSelection moves the cursor when the selected conversation changed
// under it, for example after a conversation id was adopted.
func (m *Model) followSelection() {
	list := m.mgr.Directory().List()
	if m.cursor >= 0 && m.cursor < len(list) && list[m.cursor].Ref == m.mgr.Directory().Selected() {
		return
	}
	sel := m.mgr.Directory().Selected()
	if sel.IsNone() {
		m.clampCursor()
		return
	}
	m.syncCursor()
}

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) layout() {
	sidebar := m.theme.SidebarWidth()
	contentWidth := m.width - sidebar
	if sidebar > 0 {
		contentWidth -= 3 // border and padding
	}
	if contentWidth < 10 {
		contentWidth = 10
	}

	chrome := headerHeight + noticeHeight + statusHeight + inputHeight + inputChrome
	if m.showHelp {
		rows := 0
		for _, group := range m.keys.FullHelp() {
			rows = max(rows, len(group))
		}
		chrome += rows
	} else {
		chrome += helpHeight
	}
	bodyHeight := m.height - chrome
	if bodyHeight < minBody {
		bodyHeight = minBody
	}

	if !m.ready {
		m.viewport = viewport.New(contentWidth, bodyHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = bodyHeight
	}
	m.input.SetWidth(m.width - inputChrome)
}

// refreshViewport re-renders the transcript into the viewport.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript(m.viewport.Width))
	if m.followTail {
		m.viewport.GotoBottom()
	}
}

