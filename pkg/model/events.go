package model

import "encoding/json"

// EventType tags one socket frame.
type EventType string

const (
	// Server -> client events.
	EventMessageCreated EventType = "message.created"
	EventTypingChanged  EventType = "typing.changed"
	EventChatUpdated    EventType = "chat.updated"

	// Client -> server commands.
	EventJoin        EventType = "join"
	EventTypingSend  EventType = "typing.send"
	EventMessageSend EventType = "message.send"
)

// Typing action tags carried on typing.changed events. Anything else is
// ignored by the dispatcher.
const (
	TypingStart = "start"
	TypingStop  = "stop"
)

// Envelope is the wire frame exchanged over the socket. Payload holds the
// type-specific body.
type Envelope struct {
	Type    EventType       `json:"type"`
	ChatID  string          `json:"chatId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingPayload is the body of typing.changed and typing.send frames.
type TypingPayload struct {
	Action     string          `json:"action"`
	PersonID   string          `json:"personId"`
	PersonKind ParticipantKind `json:"personKind"`
}

// MessageSendPayload is the body of a client message.send frame.
type MessageSendPayload struct {
	Body string `json:"body"`
}

// NewEnvelope marshals a payload into a typed envelope.
func NewEnvelope(t EventType, chatID string, payload any) (Envelope, error) {
	env := Envelope{Type: t, ChatID: chatID}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}
