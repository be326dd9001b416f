// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
)

// =============================================================================
// DECODER CONSTANTS
// =============================================================================

// MaxBlockSize is the default limit for one buffered event block (64KB).
const MaxBlockSize = 64 * 1024

// ErrBlockTooLarge is reported when a block exceeds the configured limit
// without a terminator. The buffered bytes are discarded.
var ErrBlockTooLarge = errors.New("event block exceeds maximum size")

// maxQuotedBlock bounds how much of a bad block is kept in a DecodeError.
const maxQuotedBlock = 256

// =============================================================================
// DECODE ERROR
// =============================================================================

// DecodeError describes a malformed block that was skipped.
type DecodeError struct {
	Block string // Raw block, truncated
	Err   error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event block: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder frames and decodes an SSE byte stream fed in arbitrary chunks.
// A block may straddle any number of Feed calls. Decoder is not safe for
// concurrent use.
type Decoder struct {
	buf      []byte
	maxBlock int
	logger   *slog.Logger
	onError  func(*DecodeError)
}

// Option configures a Decoder or Reader.
type Option func(*options)

type options struct {
	maxBlock int
	logger   *slog.Logger
	onError  func(*DecodeError)
	idle     idleTimeout
}

// WithMaxBlockSize overrides MaxBlockSize.
func WithMaxBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBlock = n
		}
	}
}

// WithLogger sets the logger that reports skipped blocks.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDecodeErrorHook registers fn to observe every skipped block.
func WithDecodeErrorHook(fn func(*DecodeError)) Option {
	return func(o *options) { o.onError = fn }
}

func buildOptions(opts []Option) options {
	o := options{maxBlock: MaxBlockSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewDecoder creates a Decoder.
func NewDecoder(opts ...Option) *Decoder {
	o := buildOptions(opts)
	return &Decoder{maxBlock: o.maxBlock, logger: o.logger, onError: o.onError}
}

// Feed appends chunk to the internal buffer and returns every event whose
// block is now complete. Malformed blocks are reported and skipped.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)
	if bytes.IndexByte(d.buf, '\r') >= 0 {
		d.buf = normalizeNewlines(d.buf)
	}

	var events []Event
	for {
		idx := bytes.Index(d.buf, []byte("\n\n"))
		if idx < 0 {
			break
		}
		block := d.buf[:idx]
		if ev, ok := d.decodeBlock(block); ok {
			events = append(events, ev)
		}
		d.buf = append(d.buf[:0], d.buf[idx+2:]...)
	}

	if len(d.buf) > d.maxBlock {
		d.report(d.buf, ErrBlockTooLarge)
		d.buf = d.buf[:0]
	}
	return events
}

// Flush decodes a trailing block left without a terminator at end of stream.
func (d *Decoder) Flush() []Event {
	if len(bytes.TrimSpace(d.buf)) == 0 {
		d.buf = d.buf[:0]
		return nil
	}
	block := d.buf
	d.buf = nil
	if ev, ok := d.decodeBlock(block); ok {
		return []Event{ev}
	}
	return nil
}

// Buffered returns the number of bytes waiting for a block terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) decodeBlock(block []byte) (Event, bool) {
	payload, ok := extractData(block)
	if !ok {
		// Keep-alive noise, comments and bare "event:" lines.
		return nil, false
	}
	ev, err := Parse(payload)
	if err != nil {
		d.report(block, err)
		return nil, false
	}
	return ev, true
}

func (d *Decoder) report(block []byte, err error) {
	quoted := block
	if len(quoted) > maxQuotedBlock {
		quoted = quoted[:maxQuotedBlock]
	}
	de := &DecodeError{Block: string(quoted), Err: err}
	d.logger.Warn("skipping malformed event block", "error", err, "bytes", len(block))
	if d.onError != nil {
		d.onError(de)
	}
}

// extractData joins the payload of every "data:" line of a block.
func extractData(block []byte) ([]byte, bool) {
	var (
		payload []byte
		found   bool
	)
	for _, line := range bytes.Split(block, []byte("\n")) {
		if !bytes.HasPrefix(line, []byte(DataPrefix)) {
			continue
		}
		value := line[len(DataPrefix):]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		if found {
			payload = append(payload, '\n')
		}
		payload = append(payload, value...)
		found = true
	}
	return payload, found
}

// normalizeNewlines rewrites CRLF as LF. A trailing lone CR is kept so the
// matching LF of the next chunk can complete it.
func normalizeNewlines(b []byte) []byte {
	out := b[:0]
	for i := 0; i < len(b); i++ {
		if b[i] == '\r' && i+1 < len(b) && b[i+1] == '\n' {
			continue
		}
		out = append(out, b[i])
	}
	return out
}
