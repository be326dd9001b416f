// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrIdleTimeout is returned by Reader.Next when no bytes arrive within the
// configured idle timeout.
var ErrIdleTimeout = errors.New("stream idle timeout")

// readChunkSize is the size of each read from the underlying stream.
const readChunkSize = 4096

type idleTimeout time.Duration

// WithIdleTimeout makes Reader.Next fail with ErrIdleTimeout when the source
// stays silent for d. Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idle = idleTimeout(d) }
}

type readResult struct {
	data []byte
	err  error
}

// =============================================================================
// READER
// =============================================================================

// Reader exposes an SSE byte stream as a lazy, finite, non-restartable
// sequence of events. Next must not be called concurrently.
type Reader struct {
	src     io.Reader
	dec     *Decoder
	idle    time.Duration
	pending []Event
	err     error

	startOnce sync.Once
	closeOnce sync.Once
	chunks    chan readResult
	done      chan struct{}
}

// NewReader wraps src. If src implements io.Closer, Close closes it.
func NewReader(src io.Reader, opts ...Option) *Reader {
	o := buildOptions(opts)
	return &Reader{
		src:    src,
		dec:    &Decoder{maxBlock: o.maxBlock, logger: o.logger, onError: o.onError},
		idle:   time.Duration(o.idle),
		chunks: make(chan readResult),
		done:   make(chan struct{}),
	}
}

// Next returns the next event. It returns io.EOF once the stream ended
// cleanly, ErrIdleTimeout when the source went silent, ctx.Err() on
// cancellation, or the underlying read error. After an error every later
// call returns the same error.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	r.startOnce.Do(func() { go r.pump() })

	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return ev, nil
		}
		if r.err != nil {
			return nil, r.err
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if r.idle > 0 {
			timer = time.NewTimer(r.idle)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()

		case <-timeout:
			r.err = ErrIdleTimeout
			return nil, r.err

		case res := <-r.chunks:
			stopTimer(timer)
			if len(res.data) > 0 {
				r.pending = append(r.pending, r.dec.Feed(res.data)...)
			}
			if res.err != nil {
				r.pending = append(r.pending, r.dec.Flush()...)
				r.err = res.err
			}
		}
	}
}

// Close stops the background read and closes the source when possible.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		if c, ok := r.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// pump performs the blocking reads so Next can select on ctx and the timer.
func (r *Reader) pump() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.src.Read(buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}
		if n == 0 && err == nil {
			continue
		}
		select {
		case r.chunks <- readResult{data: data, err: err}:
		case <-r.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
