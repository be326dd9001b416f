// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/difychat/internal/model"
	"github.com/jeranaias/difychat/internal/transcript"
)

// streamPrinter writes assistant text to w as it arrives in a transcript.
// Deltas are written as-is; when the service replaces an answer wholesale
// the new text is printed on a fresh line.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]string // turn id -> text already written
	last    string            // id of the turn written last
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w, printed: make(map[string]string)}
}

// attach subscribes p to store and returns the unsubscribe function.
func (p *streamPrinter) attach(store *transcript.Store) func() {
	return store.Subscribe(p.onChange)
}

func (p *streamPrinter) onChange(c transcript.Change) {
	if c.Kind != transcript.TurnAppended && c.Kind != transcript.TurnUpdated {
		return
	}
	t := c.Turn
	if t.Role != model.RoleAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t.IsImage {
		if _, seen := p.printed[t.ID]; !seen {
			p.printed[t.ID] = t.ImageURL
			p.newlineIfNeeded(t.ID)
			fmt.Fprintf(p.w, "[image] %s\n", t.ImageURL)
			p.last = ""
		}
		return
	}

	prev := p.printed[t.ID]
	switch {
	case t.Content == prev:
	case strings.HasPrefix(t.Content, prev):
		io.WriteString(p.w, t.Content[len(prev):])
		p.last = t.ID
	default:
		fmt.Fprintf(p.w, "\n%s", t.Content)
		p.last = t.ID
	}
	p.printed[t.ID] = t.Content
}

func (p *streamPrinter) newlineIfNeeded(id string) {
	if p.last != "" && p.last != id {
		io.WriteString(p.w, "\n")
	}
}

// finish ends the current line if any text was written.
func (p *streamPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" {
		io.WriteString(p.w, "\n")
		p.last = ""
	}
}

// wrote reports whether any assistant output was written.
func (p *streamPrinter) wrote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.printed) > 0
}
