// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assembler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/difychat/internal/directory"
	"github.com/jeranaias/difychat/internal/gateway"
	"github.com/jeranaias/difychat/internal/model"
	"github.com/jeranaias/difychat/internal/protocol"
	"github.com/jeranaias/difychat/internal/transcript"
)

// Defaults for Config.
const (
	DefaultIdleTimeout    = 60 * time.Second
	DefaultRefreshTimeout = 15 * time.Second
)

// Gateway is the part of the remote API the assembler drives.
type Gateway interface {
	StreamTurn(ctx context.Context, req gateway.TurnRequest) (io.ReadCloser, error)
	CreateTurnBlocking(ctx context.Context, req gateway.TurnRequest) (*gateway.BlockingAnswer, error)
}

// Refresher reloads the conversation directory from the remote service.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

// Refresh calls f.
func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Config configures an Assembler.
type Config struct {
	User           string
	Inputs         map[string]any
	IdleTimeout    time.Duration
	RefreshTimeout time.Duration
	MaxBlockSize   int
	PendingName    string
	Logger         *slog.Logger
	Now            func() time.Time
}

// submission is the bookkeeping of one in-flight query.
type submission struct {
	token         uint64
	prior         model.ConversationRef
	wasPending    bool
	transcriptLen int
	checkpoint    directory.Checkpoint
	hasAssistant  bool
}

// Assembler is the turn state machine for one transcript.
type Assembler struct {
	transcript *transcript.Store
	directory  *directory.Directory
	gateway    Gateway
	refresher  Refresher
	cfg        Config
	logger     *slog.Logger

	// opMu serializes every mutation of the stores made by the assembler.
	opMu sync.Mutex
	sub  *submission

	stateMu sync.RWMutex
	session Session

	cancelMgr *cancelManager
	refreshWG sync.WaitGroup
}

// New creates an Assembler in the Idle state with no active conversation.
func New(ts *transcript.Store, dir *directory.Directory, gw Gateway, refresher Refresher, cfg Config) *Assembler {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Assembler{
		transcript: ts,
		directory:  dir,
		gateway:    gw,
		refresher:  refresher,
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "assembler"),
		cancelMgr:  newCancelManager(),
	}
}

// Session returns a snapshot of the current session.
func (a *Assembler) Session() Session {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.session
}

func (a *Assembler) setState(s State) {
	a.stateMu.Lock()
	a.session.State = s
	a.stateMu.Unlock()
}

func (a *Assembler) setConversation(ref model.ConversationRef) {
	a.stateMu.Lock()
	a.session.Conversation = ref
	a.stateMu.Unlock()
}

// snapshotWith returns the session with its state replaced by s.
func (a *Assembler) snapshotWith(s State) Session {
	sess := a.Session()
	sess.State = s
	return sess
}

// Reset abandons any in-flight submission and makes ref the active
// conversation. Events of the abandoned stream are ignored from now on.
// The stores are left to the caller.
func (a *Assembler) Reset(ref model.ConversationRef) Session {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.cancelMgr.cancel()
	a.sub = nil

	a.stateMu.Lock()
	a.session.Token++
	a.session.Conversation = ref
	a.session.State = Idle
	sess := a.session
	a.stateMu.Unlock()
	return sess
}

// Cancel aborts the in-flight submission, if any, as a transport failure.
func (a *Assembler) Cancel() {
	a.cancelMgr.cancel()
}

// WaitRefresh blocks until every directory refresh started by a settled
// submission has finished.
func (a *Assembler) WaitRefresh() {
	a.refreshWG.Wait()
}

// =============================================================================
// SUBMIT
// =============================================================================

// begin performs the Idle -> AwaitingFirstToken transition. cancel is
// registered under opMu so a later Reset or submission can never be
// cancelled by it.
func (a *Assembler) begin(query string, cancel context.CancelFunc) (*submission, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if a.sub != nil || a.Session().State.InFlight() {
		return nil, ErrBusy
	}

	sess := a.Session()
	sub := &submission{
		prior:         sess.Conversation,
		wasPending:    !sess.Conversation.IsCommitted(),
		transcriptLen: a.transcript.Len(),
		checkpoint:    a.directory.Checkpoint(),
	}

	a.transcript.Append(model.NewUserTurn(query))
	if sub.wasPending {
		a.directory.UpsertPending(a.cfg.PendingName, a.cfg.Now())
	}

	a.stateMu.Lock()
	a.session.Token++
	if sub.wasPending {
		a.session.Conversation = model.PendingConversation()
	}
	a.session.State = AwaitingFirstToken
	sub.token = a.session.Token
	a.stateMu.Unlock()

	a.sub = sub
	a.cancelMgr.set(cancel)
	return sub, nil
}

func (a *Assembler) turnRequest(query string, sub *submission) gateway.TurnRequest {
	return gateway.TurnRequest{
		Query:        query,
		Inputs:       a.cfg.Inputs,
		Conversation: sub.prior,
		User:         a.cfg.User,
	}
}

// Submit sends query and folds the streamed reply into the transcript. It
// returns when the submission settles, aborts or is abandoned. The returned
// Session carries the terminal state of the submission (Settled or Aborted);
// the assembler itself is back in Idle.
func (a *Assembler) Submit(ctx context.Context, query string) (Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return a.Session(), ErrEmptyQuery
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := a.begin(query, cancel)
	if err != nil {
		return a.Session(), err
	}

	log := a.logger.With("token", sub.token)
	log.Debug("submission started", "conversation", sub.prior.String())

	body, err := a.gateway.StreamTurn(ctx, a.turnRequest(query, sub))
	if err != nil {
		return a.fail(sub, asTransport("open stream", err))
	}

	reader := protocol.NewReader(body,
		protocol.WithIdleTimeout(a.cfg.IdleTimeout),
		protocol.WithMaxBlockSize(a.cfg.MaxBlockSize),
		protocol.WithLogger(log),
	)
	defer reader.Close()

	for {
		ev, err := reader.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrUnexpectedEnd
			}
			return a.fail(sub, asTransport("read stream", err))
		}

		terminal, err := a.Apply(sub.token, ev)
		if errors.Is(err, ErrStale) {
			return a.Session(), ErrAbandoned
		}
		if terminal {
			return a.snapshotWith(terminalState(err)), err
		}
	}
}

// SubmitBlocking sends query in blocking mode and appends the whole answer
// at once. Failures follow the same rollback policy as Submit.
func (a *Assembler) SubmitBlocking(ctx context.Context, query string) (Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return a.Session(), ErrEmptyQuery
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := a.begin(query, cancel)
	if err != nil {
		return a.Session(), err
	}

	answer, err := a.gateway.CreateTurnBlocking(ctx, a.turnRequest(query, sub))
	if err != nil {
		return a.fail(sub, err)
	}

	events := []protocol.Event{
		protocol.Message{Header: protocol.Header{Conversation: answer.ConversationID}, Answer: answer.Answer},
		protocol.MessageEnd{Header: protocol.Header{Conversation: answer.ConversationID}},
	}
	for _, ev := range events {
		terminal, err := a.Apply(sub.token, ev)
		if errors.Is(err, ErrStale) {
			return a.Session(), ErrAbandoned
		}
		if terminal {
			return a.snapshotWith(terminalState(err)), err
		}
	}
	return a.Session(), nil
}

func terminalState(err error) State {
	if err != nil {
		return Aborted
	}
	return Settled
}

// asTransport wraps err as a *gateway.TransportError unless it already is one.
func asTransport(op string, err error) error {
	var te *gateway.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &gateway.TransportError{Op: op, Err: err}
}

// fail aborts sub with cause, unless the submission was abandoned meanwhile.
func (a *Assembler) fail(sub *submission, cause error) (Session, error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	if a.sub != sub {
		return a.Session(), ErrAbandoned
	}
	a.abortLocked(sub, cause)
	return a.snapshotWith(Aborted), cause
}

// =============================================================================
// EVENT APPLICATION
// =============================================================================

// Apply folds one event of the submission identified by token into the
// stores. It reports whether the event ended the submission; for an in-band
// error event the returned error is the *ProtocolError. Events of an
// abandoned submission return ErrStale and change nothing.
func (a *Assembler) Apply(token uint64, ev protocol.Event) (terminal bool, err error) {
	a.opMu.Lock()
	defer a.opMu.Unlock()

	sub := a.sub
	if sub == nil || sub.token != token || a.Session().Token != token {
		return false, ErrStale
	}

	a.adopt(sub, ev.ConversationID())

	switch e := ev.(type) {
	case protocol.Message:
		a.appendDelta(sub, e.Answer)
	case protocol.AgentMessage:
		a.appendDelta(sub, e.Answer)
	case protocol.MessageReplace:
		if !sub.hasAssistant {
			a.logger.Warn("message_replace before any answer; ignored", "token", token)
			break
		}
		if err := a.transcript.ReplaceLastAssistant(e.Answer); err != nil {
			a.logger.Warn("message_replace without open turn; ignored", "token", token, "error", err)
		}
	case protocol.MessageFile:
		if e.IsAssistantImage() {
			// The image becomes the tail; later text opens a new turn.
			a.transcript.Append(model.NewImageTurn(e.URL))
			sub.hasAssistant = false
			a.setState(Streaming)
		}
	case protocol.MessageEnd:
		a.settleLocked(sub)
		return true, nil
	case protocol.Error:
		cause := &ProtocolError{Message: e.Message, Code: e.Code, Status: e.Status}
		a.abortLocked(sub, cause)
		return true, cause
	case protocol.AgentThought, protocol.Ping, protocol.TTSMessage, protocol.TTSMessageEnd:
		// Bookkeeping only.
	default:
		a.logger.Warn("unhandled event kind", "kind", ev.Kind())
	}
	return false, nil
}

func (a *Assembler) appendDelta(sub *submission, delta string) {
	if !sub.hasAssistant {
		a.transcript.Append(model.NewAssistantTurn())
		sub.hasAssistant = true
		a.setState(Streaming)
	}
	if err := a.transcript.AppendToOpenAssistant(delta); err != nil {
		a.logger.Warn("answer delta without open turn; ignored", "error", err)
	}
}

// adopt applies a conversation id carried by an event. Last writer wins.
func (a *Assembler) adopt(sub *submission, id string) {
	if id == "" {
		return
	}
	cur := a.Session().Conversation
	if cur.IsCommitted() {
		if cur.ID() == id {
			return
		}
		a.logger.Warn("conversation id changed mid-stream",
			"token", sub.token, "previous", cur.ID(), "received", id)
	}
	a.setConversation(model.Committed(id))
}

// settleLocked performs the Streaming -> Settled -> Idle transition and
// starts the directory refresh.
func (a *Assembler) settleLocked(sub *submission) {
	a.transcript.FreezeOpen()

	conv := a.Session().Conversation
	switch {
	case sub.wasPending && conv.IsCommitted():
		a.directory.CommitPending(conv.ID(), a.cfg.Now())
	case sub.wasPending:
		a.logger.Warn("reply settled without a conversation id", "token", sub.token)
	default:
		a.directory.MarkSelected(conv)
	}

	a.setState(Settled)
	a.sub = nil
	a.cancelMgr.cancel()
	a.setState(Idle)

	a.logger.Debug("submission settled", "token", sub.token, "conversation", conv.String())
	a.startRefresh()
}

// abortLocked performs the transition to Aborted -> Idle and applies the
// rollback policy.
func (a *Assembler) abortLocked(sub *submission, cause error) {
	a.setState(Aborted)

	if sub.wasPending {
		a.transcript.TruncateTo(sub.transcriptLen)
		a.directory.Restore(sub.checkpoint)
	} else {
		a.transcript.FreezeOpen()
	}
	a.setConversation(sub.prior)

	a.sub = nil
	a.cancelMgr.cancel()
	a.setState(Idle)

	a.logger.Warn("submission aborted", "token", sub.token, "rolled_back", sub.wasPending, "error", cause)
}

// startRefresh reloads the directory without blocking the state machine.
func (a *Assembler) startRefresh() {
	if a.refresher == nil {
		return
	}
	a.refreshWG.Add(1)
	go func() {
		defer a.refreshWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RefreshTimeout)
		defer cancel()
		if err := a.refresher.Refresh(ctx); err != nil {
			a.logger.Warn("directory refresh failed", "error", err)
		}
	}()
}
