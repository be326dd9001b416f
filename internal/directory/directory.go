// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package directory keeps the summaries of a user's conversations.
//
// Entries come from the remote listing, plus at most one client-only pending
// overlay for a conversation that has no remote id yet. The overlay is always
// listed first. The directory also tracks which conversation is selected and
// keeps that selection stable across refreshes.
package directory

import (
	"sync"
	"time"

	"github.com/jeranaias/difychat/internal/model"
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind identifies the mutation a Change describes.
type ChangeKind int

const (
	PendingUpserted ChangeKind = iota
	PendingRemoved
	Replaced
	SelectionChanged
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind     ChangeKind
	Selected model.ConversationRef
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Directory is safe for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	pending  *model.Summary
	remote   []model.Summary
	selected model.ConversationRef

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{subs: make(map[int]func(Change))}
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (d *Directory) Subscribe(fn func(Change)) (unsubscribe func()) {
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}

func (d *Directory) emit(kind ChangeKind) {
	d.mu.RLock()
	c := Change{Kind: kind, Selected: d.selected}
	d.mu.RUnlock()

	d.subMu.Lock()
	fns := make([]func(Change), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// UpsertPending registers the pending overlay, replacing any existing one,
// and selects it.
func (d *Directory) UpsertPending(name string, now time.Time) model.Summary {
	s := model.NewPendingSummary(name, now)
	d.mu.Lock()
	d.pending = &s
	d.selected = s.Ref
	d.mu.Unlock()

	d.emit(PendingUpserted)
	return s
}

// RemovePending drops the pending overlay. It reports whether one existed.
func (d *Directory) RemovePending() bool {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return false
	}
	d.pending = nil
	if d.selected.IsPending() {
		d.selected = model.NoConversation
	}
	d.mu.Unlock()

	d.emit(PendingRemoved)
	return true
}

// CommitPending turns the pending overlay into a committed entry for id,
// listed first and selected, until the next remote refresh replaces it. An
// existing entry for id is moved rather than duplicated.
func (d *Directory) CommitPending(id string, now time.Time) bool {
	ref := model.Committed(id)
	d.mu.Lock()
	if d.pending == nil || !ref.IsCommitted() {
		d.mu.Unlock()
		return false
	}
	s := *d.pending
	s.Ref = ref
	s.LastUpdatedAt = now
	d.pending = nil

	remote := make([]model.Summary, 0, len(d.remote)+1)
	remote = append(remote, s)
	for _, r := range d.remote {
		if r.Ref != ref {
			remote = append(remote, r)
		}
	}
	d.remote = remote
	d.selected = ref
	d.mu.Unlock()

	d.emit(Replaced)
	return true
}

// Pending returns the pending overlay.
func (d *Directory) Pending() (model.Summary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.pending == nil {
		return model.Summary{}, false
	}
	return *d.pending, true
}

// HasPending reports whether the pending overlay exists.
func (d *Directory) HasPending() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pending != nil
}

// ReplaceAllFromRemote swaps the remote entries for list. Entries without a
// committed ref are dropped. The selection is kept when its conversation is
// still listed; otherwise the pending overlay stays selected if present, and
// the first remote entry is selected if not.
func (d *Directory) ReplaceAllFromRemote(list []model.Summary) {
	remote := make([]model.Summary, 0, len(list))
	for _, s := range list {
		if s.Ref.IsCommitted() {
			remote = append(remote, s)
		}
	}

	d.mu.Lock()
	d.remote = remote
	switch {
	case d.selected.IsCommitted() && containsRef(remote, d.selected):
	case d.pending != nil:
		d.selected = d.pending.Ref
	case len(remote) > 0:
		d.selected = remote[0].Ref
	default:
		d.selected = model.NoConversation
	}
	d.mu.Unlock()

	d.emit(Replaced)
}

// MarkSelected selects ref. It reports whether ref is listed.
func (d *Directory) MarkSelected(ref model.ConversationRef) bool {
	d.mu.Lock()
	d.selected = ref
	found := d.findLocked(ref) >= 0 || (ref.IsPending() && d.pending != nil)
	d.mu.Unlock()

	d.emit(SelectionChanged)
	return found
}

// Selected returns the selected conversation.
func (d *Directory) Selected() model.ConversationRef {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected
}

// List returns all summaries, pending overlay first.
func (d *Directory) List() []model.Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Summary, 0, len(d.remote)+1)
	if d.pending != nil {
		out = append(out, *d.pending)
	}
	return append(out, d.remote...)
}

// Find returns the summary for ref.
func (d *Directory) Find(ref model.ConversationRef) (model.Summary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ref.IsPending() {
		if d.pending != nil {
			return *d.pending, true
		}
		return model.Summary{}, false
	}
	if i := d.findLocked(ref); i >= 0 {
		return d.remote[i], true
	}
	return model.Summary{}, false
}

// Len returns the number of summaries, overlay included.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := len(d.remote)
	if d.pending != nil {
		n++
	}
	return n
}

func (d *Directory) findLocked(ref model.ConversationRef) int {
	if !ref.IsCommitted() {
		return -1
	}
	for i, s := range d.remote {
		if s.Ref == ref {
			return i
		}
	}
	return -1
}

func containsRef(list []model.Summary, ref model.ConversationRef) bool {
	for _, s := range list {
		if s.Ref == ref {
			return true
		}
	}
	return false
}

// =============================================================================
// PENDING CHECKPOINT
// =============================================================================

// Checkpoint captures the pending overlay and selection so a failed
// submission can put them back.
type Checkpoint struct {
	pending  *model.Summary
	selected model.ConversationRef
}

// Checkpoint returns the current pending overlay and selection.
func (d *Directory) Checkpoint() Checkpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cp := Checkpoint{selected: d.selected}
	if d.pending != nil {
		p := *d.pending
		cp.pending = &p
	}
	return cp
}

// Restore reinstates the pending overlay and selection from cp. Remote
// entries are left untouched.
func (d *Directory) Restore(cp Checkpoint) {
	d.mu.Lock()
	d.pending = cp.pending
	d.selected = cp.selected
	d.mu.Unlock()

	if cp.pending != nil {
		d.emit(PendingUpserted)
	} else {
		d.emit(PendingRemoved)
	}
}
