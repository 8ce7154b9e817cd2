package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskstream/chatkit/pkg/model"
)

// Dispatcher consumes socket frames from the event bus and routes them
// into the coordinator. It is the fan-in point for message, typing, and
// chat-update events.
type Dispatcher struct {
	coord *Coordinator
	sub   message.Subscriber
	topic string
	log   zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewDispatcher builds a dispatcher over the given subscriber and topic.
func NewDispatcher(coord *Coordinator, sub message.Subscriber, topic string) *Dispatcher {
	return &Dispatcher{
		coord: coord,
		sub:   sub,
		topic: topic,
		log:   log.With().Str("component", "dispatch").Str("topic", topic).Logger(),
	}
}

// Start subscribes and begins consuming. Calling Start on a running
// dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := d.sub.Subscribe(runCtx, d.topic)
	if err != nil {
		cancel()
		d.mu.Unlock()
		return err
	}
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	go d.consume(ch)
	return nil
}

// Stop cancels the subscription.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = nil
	d.running = false
	d.mu.Unlock()
}

func (d *Dispatcher) consume(ch <-chan *message.Message) {
	d.log.Debug().Msg("dispatcher started")
	for msg := range ch {
		var env model.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			d.log.Warn().Err(err).Msg("failed to decode socket frame")
			msg.Ack()
			continue
		}
		d.coord.HandleSocketEvent(env)
		msg.Ack()
	}
	d.mu.Lock()
	d.running = false
	d.cancel = nil
	d.mu.Unlock()
	d.log.Debug().Msg("dispatcher stopped")
}

// HandleSocketEvent decodes one socket envelope and posts its handling
// onto the owner loop. Safe to call from any goroutine.
func (c *Coordinator) HandleSocketEvent(env model.Envelope) {
	switch env.Type {
	case model.EventMessageCreated:
		var msg model.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed message payload")
			return
		}
		c.post(func() { c.handleMessage(msg) })
	case model.EventTypingChanged:
		var tp model.TypingPayload
		if err := json.Unmarshal(env.Payload, &tp); err != nil {
			c.log.Warn().Err(err).Msg("malformed typing payload")
			return
		}
		c.post(func() { c.handleTyping(env.ChatID, tp) })
	case model.EventChatUpdated:
		// Chat/session update events are not consumed yet.
		c.log.Debug().Str("chat_id", env.ChatID).Msg("ignoring chat.updated")
	default:
		c.log.Debug().Str("type", string(env.Type)).Msg("ignoring unknown socket event")
	}
}
