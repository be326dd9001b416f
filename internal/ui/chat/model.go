// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/difychat/internal/session"
	"github.com/jeranaias/difychat/internal/transcript"
	"github.com/jeranaias/difychat/internal/ui/styles"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Model.
type Options struct {
	// Context bounds every background operation the model starts.
	Context context.Context

	// Theme defaults to styles.NewTheme().
	Theme *styles.Theme

	// Title is shown in the header.
	Title string

	// ResumeID is the conversation to reopen on start. Empty means the
	// first listed conversation.
	ResumeID string

	// Blocking submits with response_mode=blocking.
	Blocking bool
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. It renders the session
// manager's stores and never keeps its own copy of the conversation.
type Model struct {
	mgr  *session.Manager
	ctx  context.Context
	opts Options

	theme    *styles.Theme
	markdown *styles.Markdown
	keys     KeyMap
	help     help.Model

	// Dimensions
	width  int
	height int
	ready  bool

	// UI Components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	// cursor is the highlighted sidebar row. It follows the selection until
	// the user moves it.
	cursor int

	// busy is the lifecycle operation running in the background, if any.
	busy Op

	// noticeSeen is the time of the newest notice the user dismissed by
	// sending.
	noticeSeen time.Time

	showHelp   bool
	followTail bool
	quitting   bool
}

// New creates the chat model for mgr.
func New(mgr *session.Manager, opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme()
	}
	if opts.Title == "" {
		opts.Title = "difychat"
	}

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = opts.Theme.Spinner

	return Model{
		mgr:        mgr,
		ctx:        opts.Context,
		opts:       opts,
		theme:      opts.Theme,
		markdown:   styles.NewMarkdown(opts.Theme),
		keys:       DefaultKeyMap(),
		help:       help.New(),
		input:      ta,
		spinner:    sp,
		followTail: true,
	}
}

// Init loads the conversation list and reopens the resumed conversation.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.load())
}

// =============================================================================
// BACKGROUND COMMANDS
// =============================================================================

func (m Model) load() tea.Cmd {
	mgr, ctx, id := m.mgr, m.ctx, m.opts.ResumeID
	return func() tea.Msg {
		var err error
		if id != "" {
			err = mgr.Resume(ctx, id)
		} else {
			err = mgr.Refresh(ctx)
		}
		return OpDoneMsg{Op: OpLoad, ID: id, Err: err}
	}
}

func (m Model) submit(query string) tea.Cmd {
	mgr, ctx, blocking := m.mgr, m.ctx, m.opts.Blocking
	return func() tea.Msg {
		var (
			sess = mgr.Session()
			err  error
		)
		if blocking {
			sess, err = mgr.SubmitBlocking(ctx, query)
		} else {
			sess, err = mgr.Submit(ctx, query)
		}
		return SubmitDoneMsg{Session: sess, Err: err}
	}
}

func (m Model) open(id string) tea.Cmd {
	mgr, ctx := m.mgr, m.ctx
	return func() tea.Msg {
		return OpDoneMsg{Op: OpOpen, ID: id, Err: mgr.SwitchTo(ctx, id)}
	}
}

func (m Model) rename(id string) tea.Cmd {
	mgr, ctx := m.mgr, m.ctx
	return func() tea.Msg {
		_, err := mgr.Rename(ctx, id, "")
		return OpDoneMsg{Op: OpRename, ID: id, Err: err}
	}
}

func (m Model) remove(id string) tea.Cmd {
	mgr, ctx := m.mgr, m.ctx
	return func() tea.Msg {
		return OpDoneMsg{Op: OpDelete, ID: id, Err: mgr.Remove(ctx, id)}
	}
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// inFlight reports whether a reply is being received.
func (m Model) inFlight() bool {
	return m.mgr.Session().State.InFlight()
}

// latestNotice returns the newest notice unless the user dismissed it.
func (m Model) latestNotice() (transcript.Notice, bool) {
	notices := m.mgr.Transcript().Notices()
	if len(notices) == 0 {
		return transcript.Notice{}, false
	}
	n := notices[len(notices)-1]
	if !n.At.After(m.noticeSeen) {
		return transcript.Notice{}, false
	}
	return n, true
}

// syncCursor moves the sidebar cursor onto the selected conversation.
func (m *Model) syncCursor() {
	selected := m.mgr.Directory().Selected()
	for i, s := range m.mgr.Directory().List() {
		if s.Ref == selected {
			m.cursor = i
			return
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	n := m.mgr.Directory().Len()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// =============================================================================
// PROGRAM
// =============================================================================

// Run starts the chat program in the alternate screen and blocks until the
// user quits or ctx is done. Store changes reach the program through a
// Notifier.
func Run(ctx context.Context, mgr *session.Manager, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	opts.Context = ctx

	p := tea.NewProgram(New(mgr, opts), tea.WithAltScreen(), tea.WithContext(ctx))

	n := NewNotifier(defaultMaxFPS)
	detach := n.Attach(mgr)
	defer detach()
	go n.Run(ctx, p.Send)

	_, err := p.Run()
	mgr.Cancel()
	mgr.Wait()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
