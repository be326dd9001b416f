// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/difychat/internal/logging"
	"github.com/jeranaias/difychat/internal/model"
	"github.com/jeranaias/difychat/internal/session"
)

func TestNotifier_SignalNeverBlocks(t *testing.T) {
	n := NewNotifier(30)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			n.Signal()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Signal blocked without a reader")
	}
}

func TestNotifier_MergesBursts(t *testing.T) {
	n := NewNotifier(10)
	var sent atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx, func(msg tea.Msg) {
		assert.IsType(t, StoreChangedMsg{}, msg)
		sent.Add(1)
	})

	for i := 0; i < 500; i++ {
		n.Signal()
	}
	require.Eventually(t, func() bool { return sent.Load() >= 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, sent.Load(), int32(3), "a burst is delivered as a few messages")
}

func TestNotifier_StopsWithContext(t *testing.T) {
	n := NewNotifier(0)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		n.Run(ctx, func(tea.Msg) {})
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNotifier_AttachForwardsStoreChanges(t *testing.T) {
	mgr := session.NewManager(&fakeRemote{}, session.Config{Logger: logging.Discard()})
	n := NewNotifier(60)
	detach := n.Attach(mgr)

	mgr.Transcript().Append(model.NewUserTurn("hello"))
	select {
	case <-n.signal:
	default:
		t.Fatal("transcript change was not signalled")
	}

	mgr.StartNew()
	select {
	case <-n.signal:
	default:
		t.Fatal("directory change was not signalled")
	}

	detach()
	mgr.Transcript().Append(model.NewUserTurn("ignored"))
	select {
	case <-n.signal:
		t.Fatal("signal after detach")
	default:
	}
}
