// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/difychat/internal/directory"
	"github.com/jeranaias/difychat/internal/session"
	"github.com/jeranaias/difychat/internal/transcript"
)

// =============================================================================
// STORE NOTIFIER
// =============================================================================

// defaultMaxFPS caps redraws while deltas stream in.
const defaultMaxFPS = 30

// Notifier turns store change callbacks into StoreChangedMsg deliveries.
//
// Store callbacks run on the goroutine that mutated the store, often the
// stream reader, so Signal never blocks: signals that arrive while one is
// already queued are merged. Run delivers at most maxFPS messages per
// second, which keeps a fast stream from flooding the program.
type Notifier struct {
	signal      chan struct{}
	minInterval time.Duration
}

// NewNotifier creates a Notifier that delivers at most maxFPS messages per
// second.
func NewNotifier(maxFPS int) *Notifier {
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = defaultMaxFPS
	}
	return &Notifier{
		signal:      make(chan struct{}, 1),
		minInterval: time.Second / time.Duration(maxFPS),
	}
}

// Signal records that a store changed.
func (n *Notifier) Signal() {
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// Attach subscribes the notifier to mgr's stores and returns a function
// that detaches it.
func (n *Notifier) Attach(mgr *session.Manager) (detach func()) {
	offT := mgr.Transcript().Subscribe(func(transcript.Change) { n.Signal() })
	offD := mgr.Directory().Subscribe(func(directory.Change) { n.Signal() })
	return func() {
		offT()
		offD()
	}
}

// Run calls send with a StoreChangedMsg after signals until ctx is done.
// Pass (*tea.Program).Send as send.
func (n *Notifier) Run(ctx context.Context, send func(tea.Msg)) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.signal:
		}

		if wait := n.minInterval - time.Since(last); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		last = time.Now()
		send(StoreChangedMsg{})
	}
}
