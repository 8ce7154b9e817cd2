package model

import "time"

// ParticipantKind discriminates the kinds of entities that can appear as
// "typing" in a conversation.
type ParticipantKind string

const (
	ParticipantManager ParticipantKind = "manager"
	ParticipantBot     ParticipantKind = "bot"
)

// Participant is one typing-capable entity. Identity is the (ID, Kind)
// pair; values are inserted and removed, never mutated in place.
type Participant struct {
	ID        string          `json:"id"`
	Kind      ParticipantKind `json:"kind"`
	Name      string          `json:"name,omitempty"`
	AvatarURL string          `json:"avatarUrl,omitempty"`
}

// Key returns the identity key used to pair a participant with its
// typing-expiry timer.
func (p Participant) Key() string {
	return string(p.Kind) + ":" + p.ID
}

// SameIdentity reports whether the participant matches the given identity pair.
func (p Participant) SameIdentity(id string, kind ParticipantKind) bool {
	return p.ID == id && p.Kind == kind
}

// SessionKind enumerates conversation kinds. There is currently a single
// variant.
type SessionKind string

const SessionUserChat SessionKind = "user_chat"

// Plugin is the widget configuration served by the backend.
type Plugin struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Color           string `json:"color,omitempty"`
	WelcomeMessage  string `json:"welcomeMessage,omitempty"`
	WorkingTimeOnly bool   `json:"workingTimeOnly,omitempty"`
}

// Bot is the optional bot descriptor attached to a plugin.
type Bot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Script is one welcome script keyed by script key ("welcome" or
// "welcome_ghost").
type Script struct {
	ID       string `json:"id"`
	PluginID string `json:"pluginId"`
	Key      string `json:"key"`
	Message  string `json:"message"`
}

// Guest holds the ambient identity of the person using the widget.
type Guest struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Ghost bool   `json:"ghost"`
}

// Chat is one conversation resource.
type Chat struct {
	ID        string    `json:"id"`
	PluginID  string    `json:"pluginId"`
	State     string    `json:"state,omitempty"`
	OpenedAt  time.Time `json:"openedAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Session is the per-person membership record of a chat.
type Session struct {
	ID         string          `json:"id"`
	ChatID     string          `json:"chatId"`
	PersonID   string          `json:"personId"`
	PersonKind ParticipantKind `json:"personKind,omitempty"`
	Unread     int             `json:"unread"`
}

// ChatSnapshot is the payload of a chat fetch: the chat itself plus the
// staff roster the UI needs to resolve typing identities.
type ChatSnapshot struct {
	Chat     Chat          `json:"chat"`
	Session  *Session      `json:"session,omitempty"`
	Managers []Participant `json:"managers,omitempty"`
}

// Message is one chat message as delivered over the socket or REST.
type Message struct {
	ID         string          `json:"id"`
	ChatID     string          `json:"chatId"`
	PersonID   string          `json:"personId"`
	PersonKind ParticipantKind `json:"personKind"`
	Body       string          `json:"body"`
	CreatedAt  time.Time       `json:"createdAt"`
}
