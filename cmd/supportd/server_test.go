package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/deskstream/chatkit/pkg/model"
)

func newTestBackend(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("plugin-1")
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func createChat(t *testing.T, srv *httptest.Server) model.Chat {
	t.Helper()
	body, err := json.Marshal(map[string]any{"pluginId": "plugin-1"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/chats", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Chat    model.Chat    `json:"chat"`
		Session model.Session `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Chat.ID)
	require.Equal(t, out.Chat.ID, out.Session.ChatID)
	return out.Chat
}

func TestRESTSurface(t *testing.T) {
	_, srv := newTestBackend(t)

	resp, err := http.Get(srv.URL + "/api/plugins/plugin-1")
	require.NoError(t, err)
	var pluginOut struct {
		Plugin model.Plugin `json:"plugin"`
		Bot    *model.Bot   `json:"bot"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pluginOut))
	_ = resp.Body.Close()
	require.Equal(t, "plugin-1", pluginOut.Plugin.ID)
	require.NotNil(t, pluginOut.Bot)

	resp, err = http.Get(srv.URL + "/api/plugins/plugin-1/scripts/welcome_ghost")
	require.NoError(t, err)
	var script model.Script
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&script))
	_ = resp.Body.Close()
	require.Equal(t, "welcome_ghost", script.Key)

	resp, err = http.Get(srv.URL + "/api/plugins/unknown")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/chats/missing")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	chat := createChat(t, srv)
	resp, err = http.Get(srv.URL + "/api/chats/" + chat.ID)
	require.NoError(t, err)
	var snapshot model.ChatSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	_ = resp.Body.Close()
	require.Equal(t, chat.ID, snapshot.Chat.ID)
	require.NotEmpty(t, snapshot.Managers)
}

func TestGuestMessageTriggersScriptedReply(t *testing.T) {
	_, srv := newTestBackend(t)
	chat := createChat(t, srv)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	join, err := model.NewEnvelope(model.EventJoin, chat.ID, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(join))

	send, err := model.NewEnvelope(model.EventMessageSend, chat.ID, model.MessageSendPayload{Body: "help please"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(send))

	var types []model.EventType
	deadline := time.Now().Add(5 * time.Second)
	for len(types) < 3 {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var env model.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		require.Equal(t, chat.ID, env.ChatID)
		types = append(types, env.Type)
	}

	// Echo of the guest message, the manager starts typing, then the
	// scripted reply lands.
	require.Equal(t, []model.EventType{
		model.EventMessageCreated,
		model.EventTypingChanged,
		model.EventMessageCreated,
	}, types)
}
