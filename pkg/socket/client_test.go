package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/deskstream/chatkit/pkg/bus"
	"github.com/deskstream/chatkit/pkg/model"
)

type wsTestServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	inbound  chan model.Envelope
	conns    chan *websocket.Conn
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ts := &wsTestServer{
		inbound: make(chan model.Envelope, 16),
		conns:   make(chan *websocket.Conn, 1),
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ts.conns <- conn
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env model.Envelope
			require.NoError(t, json.Unmarshal(payload, &env))
			ts.inbound <- env
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *wsTestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func TestJoinSendsJoinFrame(t *testing.T) {
	ts := newWSTestServer(t)
	pub := gochannel.NewGoChannel(gochannel.Config{}, nil)

	c, err := Dial(context.Background(), ts.wsURL(), pub, bus.EventsTopic)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.Join("abc"))

	select {
	case env := <-ts.inbound:
		require.Equal(t, model.EventJoin, env.Type)
		require.Equal(t, "abc", env.ChatID)
	case <-time.After(time.Second):
		t.Fatal("server never received join frame")
	}
}

func TestSendTypingCarriesAction(t *testing.T) {
	ts := newWSTestServer(t)
	pub := gochannel.NewGoChannel(gochannel.Config{}, nil)

	c, err := Dial(context.Background(), ts.wsURL(), pub, bus.EventsTopic)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.SendTyping("abc", false))
	require.NoError(t, c.SendTyping("abc", true))

	var actions []string
	for len(actions) < 2 {
		select {
		case env := <-ts.inbound:
			require.Equal(t, model.EventTypingSend, env.Type)
			var tp model.TypingPayload
			require.NoError(t, json.Unmarshal(env.Payload, &tp))
			actions = append(actions, tp.Action)
		case <-time.After(time.Second):
			t.Fatal("server never received typing frames")
		}
	}
	require.Equal(t, []string{model.TypingStart, model.TypingStop}, actions)
}

func TestRunPublishesInboundFramesToBus(t *testing.T) {
	ts := newWSTestServer(t)
	ch := gochannel.NewGoChannel(gochannel.Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := ch.Subscribe(ctx, bus.EventsTopic)
	require.NoError(t, err)

	c, err := Dial(ctx, ts.wsURL(), ch, bus.EventsTopic)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	serverConn := <-ts.conns
	env, err := model.NewEnvelope(model.EventMessageCreated, "abc", model.Message{ID: "m1", ChatID: "abc", Body: "hello"})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, raw))

	select {
	case msg := <-sub:
		var got model.Envelope
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		require.Equal(t, model.EventMessageCreated, got.Type)
		require.Equal(t, "abc", got.ChatID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("frame never reached the bus")
	}

	// Tearing the connection down ends Run without an error report for a
	// normal close.
	require.NoError(t, serverConn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	))
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after close")
	}
}
