package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskstream/chatkit/pkg/model"
)

// Server is an in-memory stand-in for the real support backend, good
// enough to run the demo client against: the four REST endpoints plus a
// websocket endpoint that handles join frames and replays a scripted
// agent response for every guest message.
type Server struct {
	plugin  model.Plugin
	bot     model.Bot
	manager model.Participant
	scripts map[string]model.Script
	log     zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room

	upgrader websocket.Upgrader
}

type room struct {
	chat    model.Chat
	session model.Session

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewServer(pluginID string) *Server {
	bot := model.Bot{ID: uuid.NewString(), Name: "Helper Bot"}
	return &Server{
		plugin: model.Plugin{
			ID:             pluginID,
			Name:           "Support",
			Color:          "#4A7CFE",
			WelcomeMessage: "Hi! How can we help?",
		},
		bot:     bot,
		manager: model.Participant{ID: uuid.NewString(), Kind: model.ParticipantManager, Name: "Naomi"},
		scripts: map[string]model.Script{
			"welcome": {
				ID:       uuid.NewString(),
				PluginID: pluginID,
				Key:      "welcome",
				Message:  "Welcome back! Ask us anything.",
			},
			"welcome_ghost": {
				ID:       uuid.NewString(),
				PluginID: pluginID,
				Key:      "welcome_ghost",
				Message:  "Hello stranger! Ask us anything.",
			},
		},
		log:   log.With().Str("component", "supportd").Logger(),
		rooms: map[string]*room{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/api/plugins/{pluginID}", s.handleGetPlugin)
	r.Get("/api/plugins/{pluginID}/scripts/{key}", s.handleGetScript)
	r.Get("/api/chats/{chatID}", s.handleGetChat)
	r.Post("/api/chats", s.handleCreateChat)
	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "pluginID") != s.plugin.ID {
		http.Error(w, "plugin not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"plugin": s.plugin, "bot": s.bot})
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	script, ok := s.scripts[chi.URLParam(r, "key")]
	if !ok || chi.URLParam(r, "pluginID") != s.plugin.ID {
		http.Error(w, "script not found", http.StatusNotFound)
		return
	}
	writeJSON(w, script)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rm, ok := s.rooms[chi.URLParam(r, "chatID")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	session := rm.session
	writeJSON(w, model.ChatSnapshot{
		Chat:     rm.chat,
		Session:  &session,
		Managers: []model.Participant{s.manager},
	})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PluginID string     `json:"pluginId"`
		OpenedAt *time.Time `json:"openedAt,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.PluginID != s.plugin.ID {
		http.Error(w, "plugin not found", http.StatusNotFound)
		return
	}

	openedAt := time.Now()
	if req.OpenedAt != nil {
		openedAt = *req.OpenedAt
	}
	chat := model.Chat{
		ID:       uuid.NewString(),
		PluginID: req.PluginID,
		State:    "open",
		OpenedAt: openedAt,
	}
	session := model.Session{
		ID:     uuid.NewString(),
		ChatID: chat.ID,
	}
	s.mu.Lock()
	s.rooms[chat.ID] = &room{chat: chat, session: session, conns: map[*websocket.Conn]struct{}{}}
	s.mu.Unlock()

	s.log.Info().Str("chat_id", chat.ID).Msg("chat created")
	writeJSON(w, map[string]any{"chat": chat, "session": session})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	go s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	var joined *room
	defer func() {
		if joined != nil {
			joined.remove(conn)
		}
		_ = conn.Close()
	}()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env model.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.log.Warn().Err(err).Msg("malformed client frame")
			continue
		}
		switch env.Type {
		case model.EventJoin:
			s.mu.Lock()
			rm, ok := s.rooms[env.ChatID]
			s.mu.Unlock()
			if !ok {
				s.log.Warn().Str("chat_id", env.ChatID).Msg("join for unknown chat")
				continue
			}
			rm.add(conn)
			joined = rm
			s.log.Info().Str("chat_id", env.ChatID).Msg("client joined room")
		case model.EventMessageSend:
			if joined == nil {
				continue
			}
			var body model.MessageSendPayload
			if err := json.Unmarshal(env.Payload, &body); err != nil {
				continue
			}
			s.handleGuestMessage(joined, body.Body)
		case model.EventTypingSend:
			// Guest typing is not echoed back to the guest.
		default:
			s.log.Debug().Str("type", string(env.Type)).Msg("ignoring client frame")
		}
	}
}

// handleGuestMessage acknowledges the guest's message and replays a
// scripted manager response: typing starts, then the reply lands.
func (s *Server) handleGuestMessage(rm *room, body string) {
	rm.broadcast(s.log, mustEnvelope(model.EventMessageCreated, rm.chat.ID, model.Message{
		ID:        uuid.NewString(),
		ChatID:    rm.chat.ID,
		Body:      body,
		CreatedAt: time.Now(),
	}))

	go func() {
		rm.broadcast(s.log, mustEnvelope(model.EventTypingChanged, rm.chat.ID, model.TypingPayload{
			Action:     model.TypingStart,
			PersonID:   s.manager.ID,
			PersonKind: s.manager.Kind,
		}))
		time.Sleep(600 * time.Millisecond)
		rm.broadcast(s.log, mustEnvelope(model.EventMessageCreated, rm.chat.ID, model.Message{
			ID:         uuid.NewString(),
			ChatID:     rm.chat.ID,
			PersonID:   s.manager.ID,
			PersonKind: s.manager.Kind,
			Body:       "Thanks for reaching out, let me take a look.",
			CreatedAt:  time.Now(),
		}))
	}()
}

func (rm *room) add(conn *websocket.Conn) {
	rm.mu.Lock()
	rm.conns[conn] = struct{}{}
	rm.mu.Unlock()
}

func (rm *room) remove(conn *websocket.Conn) {
	rm.mu.Lock()
	delete(rm.conns, conn)
	rm.mu.Unlock()
}

func (rm *room) broadcast(logger zerolog.Logger, data []byte) {
	rm.mu.Lock()
	for conn := range rm.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn().Err(err).Msg("ws broadcast failed, dropping connection")
			delete(rm.conns, conn)
			_ = conn.Close()
		}
	}
	rm.mu.Unlock()
}

func mustEnvelope(t model.EventType, chatID string, payload any) []byte {
	env, err := model.NewEnvelope(t, chatID, payload)
	if err != nil {
		panic(err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return raw
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}
