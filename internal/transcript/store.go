// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/difychat/internal/model"
)

// ErrNoOpenTurn is returned when an update targets the open assistant turn
// but none exists.
var ErrNoOpenTurn = errors.New("no open assistant turn")

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind identifies the mutation a Change describes.
type ChangeKind int

const (
	TurnAppended ChangeKind = iota
	TurnUpdated
	TurnsTruncated
	Cleared
	NoticePosted
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind   ChangeKind
	Index  int        // Affected turn index, or the new length for TurnsTruncated
	Turn   model.Turn // Affected turn for TurnAppended and TurnUpdated
	Notice Notice     // Posted notice for NoticePosted
}

// =============================================================================
// NOTICES
// =============================================================================

// NoticeKind classifies a notice.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeError
)

// Notice is a user-visible status message that is not part of the transcript.
type Notice struct {
	Kind NoticeKind
	Text string
	At   time.Time
}

// maxNotices bounds the notice history.
const maxNotices = 50

// =============================================================================
// STORE
// =============================================================================

// Store is the transcript of the active conversation. It is safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	turns   []model.Turn
	open    int // index of the open assistant turn, -1 when none
	notices []Notice

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates an empty Store.
func New() *Store {
	return &Store{open: -1, subs: make(map[int]func(Change))}
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Append adds a turn and returns its index. Any open assistant turn is
// frozen first: only the last turn may ever be open.
func (s *Store) Append(t model.Turn) int {
	s.mu.Lock()
	frozen, frozenIdx := model.Turn{}, s.open
	if s.open >= 0 {
		s.turns[s.open].Frozen = true
		frozen = s.turns[s.open]
		s.open = -1
	}
	s.turns = append(s.turns, t)
	idx := len(s.turns) - 1
	if t.IsOpenAssistant() {
		s.open = idx
	}
	s.mu.Unlock()

	if frozenIdx >= 0 {
		s.emit(Change{Kind: TurnUpdated, Index: frozenIdx, Turn: frozen})
	}
	s.emit(Change{Kind: TurnAppended, Index: idx, Turn: t})
	return idx
}

// HasOpenAssistant reports whether an open assistant turn exists.
func (s *Store) HasOpenAssistant() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open >= 0
}

// AppendToOpenAssistant appends delta to the open assistant turn.
func (s *Store) AppendToOpenAssistant(delta string) error {
	return s.updateOpen(func(t *model.Turn) { t.Content += delta })
}

// ReplaceLastAssistant replaces the content of the open assistant turn.
func (s *Store) ReplaceLastAssistant(content string) error {
	return s.updateOpen(func(t *model.Turn) { t.Content = content })
}

func (s *Store) updateOpen(fn func(*model.Turn)) error {
	s.mu.Lock()
	if s.open < 0 {
		s.mu.Unlock()
		return ErrNoOpenTurn
	}
	idx := s.open
	fn(&s.turns[idx])
	t := s.turns[idx]
	s.mu.Unlock()

	s.emit(Change{Kind: TurnUpdated, Index: idx, Turn: t})
	return nil
}

// FreezeOpen marks the open assistant turn immutable. It is a no-op when no
// turn is open.
func (s *Store) FreezeOpen() {
	s.mu.Lock()
	if s.open < 0 {
		s.mu.Unlock()
		return
	}
	idx := s.open
	s.turns[idx].Frozen = true
	s.open = -1
	t := s.turns[idx]
	s.mu.Unlock()

	s.emit(Change{Kind: TurnUpdated, Index: idx, Turn: t})
}

// TruncateTo drops every turn at index n or later.
func (s *Store) TruncateTo(n int) {
	s.mu.Lock()
	if n < 0 {
		n = 0
	}
	if n >= len(s.turns) {
		s.mu.Unlock()
		return
	}
	s.turns = s.turns[:n]
	if s.open >= n {
		s.open = -1
	}
	s.mu.Unlock()

	s.emit(Change{Kind: TurnsTruncated, Index: n})
}

// Clear removes every turn. Notices are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	s.turns = nil
	s.open = -1
	s.mu.Unlock()

	s.emit(Change{Kind: Cleared})
}

// List returns a copy of the turns in order.
func (s *Store) List() []model.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the final turn.
func (s *Store) Last() (model.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return model.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// PostNotice records a user-visible notice on the error channel.
func (s *Store) PostNotice(kind NoticeKind, text string) Notice {
	n := Notice{Kind: kind, Text: text, At: time.Now()}
	s.mu.Lock()
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
	s.mu.Unlock()

	s.emit(Change{Kind: NoticePosted, Notice: n})
	return n
}

// Notices returns a copy of the recorded notices, oldest first.
func (s *Store) Notices() []Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notice, len(s.notices))
	copy(out, s.notices)
	return out
}
