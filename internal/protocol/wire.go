// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DataPrefix marks the payload line of an event block.
const DataPrefix = "data:"

var (
	// ErrMissingKind is returned for a payload without an "event" field.
	ErrMissingKind = errors.New("event kind missing")

	// ErrUnknownKind is returned for an "event" value outside Kinds.
	ErrUnknownKind = errors.New("unknown event kind")
)

// wireEvent is the JSON shape of one event on the wire.
type wireEvent struct {
	Event          Kind   `json:"event"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	TaskID         string `json:"task_id,omitempty"`
	Answer         string `json:"answer,omitempty"`
	Thought        string `json:"thought,omitempty"`
	Type           string `json:"type,omitempty"`
	BelongsTo      string `json:"belongs_to,omitempty"`
	URL            string `json:"url,omitempty"`
	Message        string `json:"message,omitempty"`
	Code           string `json:"code,omitempty"`
	Status         int    `json:"status,omitempty"`
	Audio          string `json:"audio,omitempty"`
}

// Parse decodes one JSON payload into its Event variant.
func Parse(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("invalid event JSON: %w", err)
	}

	h := Header{Conversation: w.ConversationID, MessageID: w.MessageID, TaskID: w.TaskID}
	switch w.Event {
	case KindMessage:
		return Message{Header: h, Answer: w.Answer}, nil
	case KindAgentMessage:
		return AgentMessage{Header: h, Answer: w.Answer}, nil
	case KindAgentThought:
		return AgentThought{Header: h, Thought: w.Thought}, nil
	case KindMessageFile:
		return MessageFile{Header: h, FileType: w.Type, BelongsTo: w.BelongsTo, URL: w.URL}, nil
	case KindMessageEnd:
		return MessageEnd{Header: h}, nil
	case KindMessageReplace:
		return MessageReplace{Header: h, Answer: w.Answer}, nil
	case KindError:
		return Error{Header: h, Message: w.Message, Code: w.Code, Status: w.Status}, nil
	case KindPing:
		return Ping{Header: h}, nil
	case KindTTSMessage:
		return TTSMessage{Header: h, Audio: w.Audio}, nil
	case KindTTSMessageEnd:
		return TTSMessageEnd{Header: h, Audio: w.Audio}, nil
	case "":
		return nil, ErrMissingKind
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Event)
	}
}

// Encode renders ev as a complete SSE block, terminator included.
func Encode(ev Event) ([]byte, error) {
	w := toWire(ev)
	payload, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + len(DataPrefix) + 3)
	buf.WriteString(DataPrefix)
	buf.WriteByte(' ')
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

func toWire(ev Event) wireEvent {
	var h Header
	w := wireEvent{Event: ev.Kind()}
	switch e := ev.(type) {
	case Message:
		h, w.Answer = e.Header, e.Answer
	case AgentMessage:
		h, w.Answer = e.Header, e.Answer
	case AgentThought:
		h, w.Thought = e.Header, e.Thought
	case MessageFile:
		h, w.Type, w.BelongsTo, w.URL = e.Header, e.FileType, e.BelongsTo, e.URL
	case MessageEnd:
		h = e.Header
	case MessageReplace:
		h, w.Answer = e.Header, e.Answer
	case Error:
		h, w.Message, w.Code, w.Status = e.Header, e.Message, e.Code, e.Status
	case Ping:
		h = e.Header
	case TTSMessage:
		h, w.Audio = e.Header, e.Audio
	case TTSMessageEnd:
		h, w.Audio = e.Header, e.Audio
	}
	w.ConversationID, w.MessageID, w.TaskID = h.Conversation, h.MessageID, h.TaskID
	return w
}
