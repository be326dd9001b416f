// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const sampleStream = `data: {"event":"message","answer":"He","conversation_id":"c1"}

data: {"event":"message","answer":"llo","conversation_id":"c1"}

data: {"event":"message_end","conversation_id":"c1"}

`

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_WholeStream(t *testing.T) {
	d := NewDecoder(WithLogger(quietLogger()))
	events := d.Feed([]byte(sampleStream))

	require.Len(t, events, 3)
	assert.Equal(t, Message{Header: Header{Conversation: "c1"}, Answer: "He"}, events[0])
	assert.Equal(t, Message{Header: Header{Conversation: "c1"}, Answer: "llo"}, events[1])
	assert.Equal(t, KindMessageEnd, events[2].Kind())
	assert.Equal(t, "c1", events[2].ConversationID())
	assert.Zero(t, d.Buffered())
}

func TestDecoder_ByteAtATime(t *testing.T) {
	d := NewDecoder(WithLogger(quietLogger()))

	var events []Event
	for i := 0; i < len(sampleStream); i++ {
		events = append(events, d.Feed([]byte{sampleStream[i]})...)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "He", events[0].(Message).Answer)
	assert.Equal(t, "llo", events[1].(Message).Answer)
}

func TestDecoder_SplitAcrossBoundary(t *testing.T) {
	d := NewDecoder(WithLogger(quietLogger()))

	// The first chunk ends between the two newlines of the terminator.
	first := d.Feed([]byte("data: {\"event\":\"message\",\"answer\":\"A\"}\n"))
	assert.Empty(t, first)

	second := d.Feed([]byte("\ndata: {\"event\":\"message\",\"answer\":\"B\"}\n\n"))
	require.Len(t, second, 2)
	assert.Equal(t, "A", second[0].(Message).Answer)
	assert.Equal(t, "B", second[1].(Message).Answer)
}

func TestDecoder_CRLF(t *testing.T) {
	d := NewDecoder(WithLogger(quietLogger()))

	events := d.Feed([]byte("data: {\"event\":\"ping\"}\r\n\r"))
	assert.Empty(t, events)
	events = d.Feed([]byte("\ndata: {\"event\":\"message\",\"answer\":\"x\"}\r\n\r\n"))

	require.Len(t, events, 2)
	assert.Equal(t, KindPing, events[0].Kind())
	assert.Equal(t, "x", events[1].(Message).Answer)
}

func TestDecoder_IgnoresNoise(t *testing.T) {
	d := NewDecoder(WithLogger(quietLogger()))

	events := d.Feed([]byte(": keep-alive\n\nevent: ping\n\nretry: 100\n\ndata: {\"event\":\"ping\"}\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, KindPing, events[0].Kind())
}

func TestDecoder_MalformedBlockSkipped(t *testing.T) {
	var reported []*DecodeError
	d := NewDecoder(
		WithLogger(quietLogger()),
		WithDecodeErrorHook(func(e *DecodeError) { reported = append(reported, e) }),
	)

	events := d.Feed([]byte("data: {not json\n\ndata: {\"event\":\"bogus\"}\n\ndata: {\"answer\":\"no kind\"}\n\ndata: {\"event\":\"message\",\"answer\":\"ok\"}\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].(Message).Answer)

	require.Len(t, reported, 3)
	assert.True(t, errors.Is(reported[1], ErrUnknownKind))
	assert.True(t, errors.Is(reported[2], ErrMissingKind))
	assert.Contains(t, reported[0].Block, "{not json")
}

func TestDecoder_BlockTooLarge(t *testing.T) {
	var reported []*DecodeError
	d := NewDecoder(
		WithLogger(quietLogger()),
		WithMaxBlockSize(32),
		WithDecodeErrorHook(func(e *DecodeError) { reported = append(reported, e) }),
	)

	events := d.Feed([]byte("data: " + strings.Repeat("x", 64)))
	assert.Empty(t, events)
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrBlockTooLarge)
	assert.Zero(t, d.Buffered())

	// The tail of the oversized block has no prefix and is dropped as noise.
	events = d.Feed([]byte("yyy\n\ndata: {\"event\":\"ping\"}\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, KindPing, events[0].Kind())
}

func TestDecoder_FlushTrailingBlock(t *testing.T) {
	d := NewDecoder(WithLogger(quietLogger()))

	assert.Empty(t, d.Feed([]byte("data: {\"event\":\"message_end\",\"conversation_id\":\"c9\"}")))
	events := d.Flush()

	require.Len(t, events, 1)
	assert.Equal(t, "c9", events[0].ConversationID())
	assert.Empty(t, d.Flush())
}

func TestDecoder_AllKinds(t *testing.T) {
	payload := strings.Join([]string{
		`data: {"event":"agent_message","answer":"a"}`,
		`data: {"event":"agent_thought","thought":"t"}`,
		`data: {"event":"message_file","type":"image","belongs_to":"assistant","url":"u1"}`,
		`data: {"event":"message_replace","answer":"r"}`,
		`data: {"event":"error","message":"boom","code":"x","status":400}`,
		`data: {"event":"tts_message","audio":"AAA"}`,
		`data: {"event":"tts_message_end"}`,
	}, "\n\n") + "\n\n"

	events := NewDecoder(WithLogger(quietLogger())).Feed([]byte(payload))
	require.Len(t, events, 7)

	file, ok := events[2].(MessageFile)
	require.True(t, ok)
	assert.True(t, file.IsAssistantImage())
	assert.Equal(t, "u1", file.URL)

	errEv, ok := events[4].(Error)
	require.True(t, ok)
	assert.Equal(t, "boom", errEv.Message)
	assert.Equal(t, 400, errEv.Status)

	assert.Equal(t, KindTTSMessageEnd, events[6].Kind())
}

// =============================================================================
// ENCODE TESTS
// =============================================================================

func TestEncode_DecodesBack(t *testing.T) {
	in := MessageFile{Header: Header{Conversation: "c1"}, FileType: "image", BelongsTo: "assistant", URL: "u1"}
	block, err := Encode(in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(block), "data: {\"event\":\"message_file\""))
	assert.True(t, strings.HasSuffix(string(block), "\n\n"))

	out := NewDecoder(WithLogger(quietLogger())).Feed(block)
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])
}

// =============================================================================
// READER TESTS
// =============================================================================

func TestReader_ReadsUntilEOF(t *testing.T) {
	r := NewReader(strings.NewReader(sampleStream), WithLogger(quietLogger()))
	defer r.Close()

	var kinds []Kind
	for {
		ev, err := r.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind())
	}
	assert.Equal(t, []Kind{KindMessage, KindMessage, KindMessageEnd}, kinds)

	_, err := r.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestReader_IdleTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewReader(pr, WithIdleTimeout(30*time.Millisecond), WithLogger(quietLogger()))
	defer r.Close()

	start := time.Now()
	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestReader_IdleTimerResetsOnData(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, WithIdleTimeout(200*time.Millisecond), WithLogger(quietLogger()))
	defer r.Close()

	go func() {
		for _, part := range []string{"data: {\"event\":", "\"message\",\"answer\":\"A\"}\n\n"} {
			time.Sleep(20 * time.Millisecond)
			_, _ = pw.Write([]byte(part))
		}
		_ = pw.Close()
	}()

	ev, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", ev.(Message).Answer)

	_, err = r.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestReader_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewReader(pr, WithLogger(quietLogger()))
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
