// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/difychat/internal/assembler"
	"github.com/jeranaias/difychat/internal/directory"
	"github.com/jeranaias/difychat/internal/gateway"
	"github.com/jeranaias/difychat/internal/model"
	"github.com/jeranaias/difychat/internal/transcript"
)

// ErrNoConversationID is returned for lifecycle operations given an empty id.
var ErrNoConversationID = errors.New("conversation id is required")

// Gateway is the remote API used by a Manager.
type Gateway interface {
	assembler.Gateway
	ListConversations(ctx context.Context, p gateway.ListConversationsParams) (*gateway.ConversationPage, error)
	ListMessages(ctx context.Context, p gateway.ListMessagesParams) (*gateway.MessagePage, error)
	DeleteConversation(ctx context.Context, id, user string) error
	RenameConversation(ctx context.Context, id, name, user string) (*gateway.RenameResult, error)
}

// Config configures a Manager.
type Config struct {
	User           string
	Inputs         map[string]any
	PageLimit      int
	PendingName    string
	IdleTimeout    time.Duration
	RefreshTimeout time.Duration
	MaxBlockSize   int
	Logger         *slog.Logger
	Now            func() time.Time

	// OnActivate is called with the id of every conversation that becomes
	// active, and with "" when the active conversation is cleared.
	OnActivate func(id string)
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager runs the conversation lifecycle for one user.
type Manager struct {
	transcript *transcript.Store
	directory  *directory.Directory
	gateway    Gateway
	assembler  *assembler.Assembler
	cfg        Config
	logger     *slog.Logger

	// mu serializes lifecycle operations that replace the transcript.
	mu sync.Mutex
}

// NewManager creates a Manager with an empty transcript and directory.
func NewManager(gw Gateway, cfg Config) *Manager {
	if cfg.User == "" {
		cfg.User = gateway.DefaultUser
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = gateway.DefaultPageLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		transcript: transcript.New(),
		directory:  directory.New(),
		gateway:    gw,
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "session", "user", cfg.User),
	}
	m.assembler = assembler.New(m.transcript, m.directory, gw, assembler.RefreshFunc(m.Refresh), assembler.Config{
		User:           cfg.User,
		Inputs:         cfg.Inputs,
		IdleTimeout:    cfg.IdleTimeout,
		RefreshTimeout: cfg.RefreshTimeout,
		MaxBlockSize:   cfg.MaxBlockSize,
		PendingName:    cfg.PendingName,
		Logger:         cfg.Logger,
		Now:            cfg.Now,
	})
	return m
}

// Transcript returns the transcript of the active conversation.
func (m *Manager) Transcript() *transcript.Store { return m.transcript }

// Directory returns the conversation directory.
func (m *Manager) Directory() *directory.Directory { return m.directory }

// Session returns a snapshot of the assembler session.
func (m *Manager) Session() assembler.Session { return m.assembler.Session() }

// User returns the user identifier sent with every request.
func (m *Manager) User() string { return m.cfg.User }

// Cancel aborts the in-flight submission, if any.
func (m *Manager) Cancel() { m.assembler.Cancel() }

// Wait blocks until background directory refreshes have finished.
func (m *Manager) Wait() { m.assembler.WaitRefresh() }

func (m *Manager) activated(ref model.ConversationRef) {
	if m.cfg.OnActivate != nil {
		m.cfg.OnActivate(ref.WireID())
	}
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit streams a reply to query into the transcript.
func (m *Manager) Submit(ctx context.Context, query string) (assembler.Session, error) {
	sess, err := m.assembler.Submit(ctx, query)
	return m.finish(sess, err)
}

// SubmitBlocking sends query in blocking mode and appends the whole reply.
func (m *Manager) SubmitBlocking(ctx context.Context, query string) (assembler.Session, error) {
	sess, err := m.assembler.SubmitBlocking(ctx, query)
	return m.finish(sess, err)
}

func (m *Manager) finish(sess assembler.Session, err error) (assembler.Session, error) {
	switch {
	case err == nil:
		if sess.State == assembler.Settled && sess.Conversation.IsCommitted() {
			m.activated(sess.Conversation)
		}
	case errors.Is(err, assembler.ErrAbandoned), errors.Is(err, assembler.ErrEmptyQuery):
		// Not worth a notice: the user moved on or typed nothing.
	default:
		m.notifyError(err)
	}
	return sess, err
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

// SwitchTo makes id the active conversation and replays its history into
// the transcript. Any in-flight reply is abandoned.
func (m *Manager) SwitchTo(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoConversationID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switchLocked(ctx, id)
}

func (m *Manager) switchLocked(ctx context.Context, id string) error {
	prior := m.assembler.Session().Conversation
	ref := model.Committed(id)

	m.assembler.Reset(ref)
	m.transcript.Clear()
	if prior.IsPending() {
		m.directory.RemovePending()
	}
	m.directory.MarkSelected(ref)
	m.activated(ref)

	page, err := m.gateway.ListMessages(ctx, gateway.ListMessagesParams{
		ConversationID: id,
		User:           m.cfg.User,
		Limit:          m.cfg.PageLimit,
	})
	if err != nil {
		m.logger.Warn("history load failed", "conversation", id, "error", err)
		m.notifyError(err)
		return err
	}

	for _, t := range replay(page.Data) {
		m.transcript.Append(t)
	}
	m.logger.Debug("conversation opened", "conversation", id, "messages", len(page.Data))
	return nil
}

// replay converts history records into frozen turns, oldest first.
func replay(records []gateway.MessageRecord) []model.Turn {
	sorted := make([]gateway.MessageRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt < sorted[j].CreatedAt })

	turns := make([]model.Turn, 0, 2*len(sorted))
	for _, rec := range sorted {
		if rec.Query != "" {
			turns = append(turns, model.NewUserTurn(rec.Query))
		}
		if url, ok := rec.AssistantImage(); ok {
			turns = append(turns, model.NewImageTurn(url))
		} else if rec.Answer != "" {
			turns = append(turns, model.NewAssistantText(rec.Answer))
		}
	}
	return turns
}

// StartNew begins a new conversation that gets its id from the first reply.
func (m *Manager) StartNew() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.assembler.Reset(model.PendingConversation())
	m.directory.UpsertPending(m.cfg.PendingName, m.cfg.Now())
	m.transcript.Clear()
	m.activated(model.NoConversation)
}

// Rename renames conversation id. An empty name asks the service to generate
// one. The directory is refreshed on success.
func (m *Manager) Rename(ctx context.Context, id, name string) (*gateway.RenameResult, error) {
	if id == "" {
		return nil, ErrNoConversationID
	}
	res, err := m.gateway.RenameConversation(ctx, id, strings.TrimSpace(name), m.cfg.User)
	if err != nil {
		m.notifyError(err)
		return nil, err
	}
	m.logger.Info("conversation renamed", "conversation", id, "name", res.Name)
	_ = m.Refresh(ctx)
	return res, nil
}

// Remove deletes conversation id. When it was the active conversation the
// transcript is cleared and no conversation is active. The directory is
// refreshed either way.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoConversationID
	}
	err := m.gateway.DeleteConversation(ctx, id, m.cfg.User)
	if err != nil {
		m.notifyError(err)
	} else {
		m.mu.Lock()
		if m.assembler.Session().Conversation == model.Committed(id) {
			m.assembler.Reset(model.NoConversation)
			m.transcript.Clear()
			m.activated(model.NoConversation)
		}
		m.mu.Unlock()
		m.logger.Info("conversation deleted", "conversation", id)
	}

	if rerr := m.Refresh(ctx); err == nil {
		err = rerr
	}
	return err
}

// Refresh reloads the directory from the remote listing. When nothing is
// active and no conversation is pending, the first listed conversation is
// opened.
func (m *Manager) Refresh(ctx context.Context) error {
	page, err := m.gateway.ListConversations(ctx, gateway.ListConversationsParams{
		User:   m.cfg.User,
		Limit:  m.cfg.PageLimit,
		SortBy: gateway.DefaultSortBy,
	})
	if err != nil {
		m.notifyError(err)
		return err
	}

	list := make([]model.Summary, 0, len(page.Data))
	for _, rec := range page.Data {
		list = append(list, rec.Summary())
	}
	m.directory.ReplaceAllFromRemote(list)

	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.assembler.Session()
	if len(list) == 0 || !sess.Conversation.IsNone() || sess.State.InFlight() || m.directory.HasPending() {
		return nil
	}
	return m.switchLocked(ctx, list[0].Ref.ID())
}

// Resume opens id if the directory lists it, and otherwise falls back to
// Refresh's choice. It is used to restore the last active conversation.
func (m *Manager) Resume(ctx context.Context, id string) error {
	if err := m.Refresh(ctx); err != nil {
		return err
	}
	if id == "" || m.assembler.Session().Conversation == model.Committed(id) {
		return nil
	}
	if _, ok := m.directory.Find(model.Committed(id)); !ok {
		return nil
	}
	return m.SwitchTo(ctx, id)
}

// =============================================================================
// NOTICES
// =============================================================================

func (m *Manager) notifyError(err error) {
	m.transcript.PostNotice(transcript.NoticeError, Describe(err))
}

// Describe returns the user-visible text for err. Transport failures get a
// generic message; the details go to the log.
func Describe(err error) string {
	var (
		perr *assembler.ProtocolError
		terr *gateway.TransportError
		rerr *gateway.RemoteFailure
	)
	switch {
	case errors.Is(err, assembler.ErrBusy):
		return "A reply is still streaming. Wait for it to finish or cancel it."
	case errors.As(err, &perr):
		return "Error: " + perr.Message
	case errors.Is(err, gateway.ErrUnauthorized):
		return "Error: the service rejected the API key."
	case errors.As(err, &terr):
		return "Network error: the chat service could not be reached."
	case errors.As(err, &rerr):
		return "Error: " + rerr.Error()
	default:
		return "Error: " + err.Error()
	}
}
