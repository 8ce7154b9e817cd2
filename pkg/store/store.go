// Package store holds the widget's global application state as an
// immutable snapshot reduced from published facts. It replaces a
// process-wide singleton: the coordinator receives it as two narrow
// interfaces, a fact sink for writes and a config reader for ambient
// values.
package store

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskstream/chatkit/pkg/model"
)

// Fact is one immutable thing that happened. Facts are reduced into the
// store's state in publish order; the store never interprets them beyond
// that.
type Fact interface {
	isFact()
}

// PluginAcquired records a successful plugin-config fetch.
type PluginAcquired struct {
	Plugin model.Plugin
	Bot    *model.Bot
}

// ScriptAcquired records a fetched welcome script.
type ScriptAcquired struct {
	Script model.Script
}

// ChatAcquired records a fetched or freshly created chat.
type ChatAcquired struct {
	Snapshot model.ChatSnapshot
}

// SessionAcquired records the guest's session record for a chat.
type SessionAcquired struct {
	Session model.Session
}

func (PluginAcquired) isFact()  {}
func (ScriptAcquired) isFact()  {}
func (ChatAcquired) isFact()    {}
func (SessionAcquired) isFact() {}

// State is one immutable snapshot of the application state.
type State struct {
	Plugin   model.Plugin
	Bot      *model.Bot
	Scripts  map[string]model.Script
	Chat     model.Chat
	Session  model.Session
	Managers []model.Participant
	Guest    model.Guest
	Version  uint64
}

// Store is the process-local state container. Publish is last-writer-wins
// per field group; reads return copies.
type Store struct {
	mu       sync.RWMutex
	state    State
	watchers []func(State)
	log      zerolog.Logger
}

// New builds a Store seeded with the ambient configuration the widget
// starts with (plugin id, guest identity).
func New(initial State) *Store {
	if initial.Scripts == nil {
		initial.Scripts = map[string]model.Script{}
	}
	return &Store{
		state: initial,
		log:   log.With().Str("component", "store").Logger(),
	}
}

// Publish reduces one fact into the state and notifies watchers with the
// resulting snapshot.
func (s *Store) Publish(fact Fact) {
	s.mu.Lock()
	switch f := fact.(type) {
	case PluginAcquired:
		s.state.Plugin = f.Plugin
		s.state.Bot = f.Bot
	case ScriptAcquired:
		s.state.Scripts[f.Script.Key] = f.Script
	case ChatAcquired:
		s.state.Chat = f.Snapshot.Chat
		if f.Snapshot.Session != nil {
			s.state.Session = *f.Snapshot.Session
		}
		if len(f.Snapshot.Managers) > 0 {
			s.state.Managers = append([]model.Participant(nil), f.Snapshot.Managers...)
		}
	case SessionAcquired:
		s.state.Session = f.Session
	default:
		s.mu.Unlock()
		s.log.Warn().Type("fact", fact).Msg("unknown fact dropped")
		return
	}
	s.state.Version++
	snapshot := s.state.clone()
	watchers := append(([]func(State))(nil), s.watchers...)
	s.mu.Unlock()

	s.log.Debug().Type("fact", fact).Uint64("version", snapshot.Version).Msg("fact reduced")
	for _, w := range watchers {
		w(snapshot)
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Watch registers fn to run after every reduction. The returned cancel
// removes it.
func (s *Store) Watch(fn func(State)) (cancel func()) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	idx := len(s.watchers) - 1
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.watchers) {
			s.watchers[idx] = func(State) {}
		}
	}
}

// PluginID returns the ambient plugin id.
func (s *Store) PluginID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Plugin.ID
}

// GuestGhost reports whether the current guest is anonymous.
func (s *Store) GuestGhost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Guest.Ghost
}

// Participant resolves a typing identity against the known staff roster
// (managers and the plugin bot).
func (s *Store) Participant(id string, kind model.ParticipantKind) (model.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind == model.ParticipantBot && s.state.Bot != nil && s.state.Bot.ID == id {
		return model.Participant{ID: id, Kind: kind, Name: s.state.Bot.Name, AvatarURL: s.state.Bot.AvatarURL}, true
	}
	for _, m := range s.state.Managers {
		if m.SameIdentity(id, kind) {
			return m, true
		}
	}
	return model.Participant{}, false
}

func (st State) clone() State {
	out := st
	out.Scripts = make(map[string]model.Script, len(st.Scripts))
	for k, v := range st.Scripts {
		out.Scripts[k] = v
	}
	out.Managers = append([]model.Participant(nil), st.Managers...)
	if st.Bot != nil {
		bot := *st.Bot
		out.Bot = &bot
	}
	return out
}
