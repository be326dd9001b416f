// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

// =============================================================================
// EVENT KINDS
// =============================================================================

// Kind is the value of the "event" field of a protocol event.
type Kind string

const (
	KindMessage        Kind = "message"
	KindAgentMessage   Kind = "agent_message"
	KindAgentThought   Kind = "agent_thought"
	KindMessageFile    Kind = "message_file"
	KindMessageEnd     Kind = "message_end"
	KindMessageReplace Kind = "message_replace"
	KindError          Kind = "error"
	KindPing           Kind = "ping"
	KindTTSMessage     Kind = "tts_message"
	KindTTSMessageEnd  Kind = "tts_message_end"
)

// Kinds lists every event kind the decoder accepts.
var Kinds = []Kind{
	KindMessage, KindAgentMessage, KindAgentThought, KindMessageFile,
	KindMessageEnd, KindMessageReplace, KindError, KindPing,
	KindTTSMessage, KindTTSMessageEnd,
}

// =============================================================================
// EVENT VARIANTS
// =============================================================================

// Event is one decoded protocol event. The set of implementations is closed:
// only the variants in this file satisfy it.
type Event interface {
	Kind() Kind
	// ConversationID returns the conversation id carried by the event, or "".
	ConversationID() string
	isEvent()
}

// Header carries the identifiers shared by every event.
type Header struct {
	Conversation string
	MessageID    string
	TaskID       string
}

// ConversationID returns the conversation id carried by the event.
func (h Header) ConversationID() string { return h.Conversation }

// Message is a text delta of the assistant answer.
type Message struct {
	Header
	Answer string
}

// AgentMessage is a text delta produced by an agent application.
type AgentMessage struct {
	Header
	Answer string
}

// AgentThought reports an intermediate agent reasoning step.
type AgentThought struct {
	Header
	Thought string
}

// MessageFile attaches a file to the reply.
type MessageFile struct {
	Header
	FileType  string
	BelongsTo string
	URL       string
}

// IsAssistantImage reports whether the file is an image owned by the assistant.
func (m MessageFile) IsAssistantImage() bool {
	return m.FileType == "image" && m.BelongsTo == "assistant"
}

// MessageEnd settles the turn.
type MessageEnd struct {
	Header
}

// MessageReplace replaces the assistant answer wholesale.
type MessageReplace struct {
	Header
	Answer string
}

// Error is an error reported in-band by the remote service.
type Error struct {
	Header
	Message string
	Code    string
	Status  int
}

// Ping is a keep-alive event.
type Ping struct {
	Header
}

// TTSMessage carries a chunk of synthesized audio.
type TTSMessage struct {
	Header
	Audio string
}

// TTSMessageEnd ends the synthesized audio stream.
type TTSMessageEnd struct {
	Header
	Audio string
}

func (Message) Kind() Kind        { return KindMessage }
func (AgentMessage) Kind() Kind   { return KindAgentMessage }
func (AgentThought) Kind() Kind   { return KindAgentThought }
func (MessageFile) Kind() Kind    { return KindMessageFile }
func (MessageEnd) Kind() Kind     { return KindMessageEnd }
func (MessageReplace) Kind() Kind { return KindMessageReplace }
func (Error) Kind() Kind          { return KindError }
func (Ping) Kind() Kind           { return KindPing }
func (TTSMessage) Kind() Kind     { return KindTTSMessage }
func (TTSMessageEnd) Kind() Kind  { return KindTTSMessageEnd }

func (Message) isEvent()        {}
func (AgentMessage) isEvent()   {}
func (AgentThought) isEvent()   {}
func (MessageFile) isEvent()    {}
func (MessageEnd) isEvent()     {}
func (MessageReplace) isEvent() {}
func (Error) isEvent()          {}
func (Ping) isEvent()           {}
func (TTSMessage) isEvent()     {}
func (TTSMessageEnd) isEvent()  {}
