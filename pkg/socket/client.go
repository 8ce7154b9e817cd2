// Package socket maintains the widget's websocket connection. Inbound
// frames are published verbatim onto the event bus; outbound commands
// (join, typing, message send) are fire-and-forget writes.
package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskstream/chatkit/pkg/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one live websocket connection to the support backend.
type Client struct {
	conn  *websocket.Conn
	pub   message.Publisher
	topic string
	log   zerolog.Logger

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

// Dial connects to the backend socket endpoint. Inbound frames will be
// published on topic via pub once Run is started.
func Dial(ctx context.Context, url string, pub message.Publisher, topic string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return &Client{
		conn:  conn,
		pub:   pub,
		topic: topic,
		log:   log.With().Str("component", "socket").Logger(),
		done:  make(chan struct{}),
	}, nil
}

// Run reads frames until the connection closes or ctx is cancelled and
// publishes each one onto the bus. It owns the keepalive pings.
func (c *Client) Run(ctx context.Context) error {
	go c.pingLoop(ctx)
	// ReadMessage only unblocks when the connection dies, so cancellation
	// is delivered by closing it.
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer c.Close()
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "socket read")
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := c.pub.Publish(c.topic, msg); err != nil {
			c.log.Warn().Err(err).Msg("publish inbound frame failed")
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// Join subscribes this connection to the chat's room.
func (c *Client) Join(chatID string) error {
	return c.send(model.EventJoin, chatID, nil)
}

// SendTyping forwards the guest's typing signal for the chat.
func (c *Client) SendTyping(chatID string, stop bool) error {
	action := model.TypingStart
	if stop {
		action = model.TypingStop
	}
	return c.send(model.EventTypingSend, chatID, model.TypingPayload{Action: action})
}

// SendMessage submits a message body over the socket.
func (c *Client) SendMessage(chatID, body string) error {
	return c.send(model.EventMessageSend, chatID, model.MessageSendPayload{Body: body})
}

func (c *Client) send(t model.EventType, chatID string, payload any) error {
	env, err := model.NewEnvelope(t, chatID, payload)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return errors.Wrapf(c.conn.WriteMessage(websocket.TextMessage, raw), "write %s", t)
}

// Close tears the connection down.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
