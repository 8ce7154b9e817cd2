package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
)

const testTopic = "chat.socket.events.test"

func publishFrame(t *testing.T, pub message.Publisher, payload []byte) {
	t.Helper()
	require.NoError(t, pub.Publish(testTopic, message.NewMessage(watermill.NewUUID(), payload)))
}

func TestDispatcherRoutesFramesToCoordinator(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.ChatID = "abc"
	})
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = pubsub.Close() }()

	d := NewDispatcher(h.coord, pubsub, testTopic)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	raw, err := json.Marshal(messageEnvelope(t, "abc", managerA(), "hello"))
	require.NoError(t, err)
	publishFrame(t, pubsub, raw)

	require.Eventually(t, func() bool {
		for _, n := range h.delegate.list() {
			if n.kind == "message" && n.message.Body == "hello" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherSkipsMalformedFrames(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.ChatID = "abc"
	})
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = pubsub.Close() }()

	d := NewDispatcher(h.coord, pubsub, testTopic)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop()

	// A frame that does not decode is acked and skipped. The in-memory
	// pubsub holds back the next delivery until the previous one is
	// acked, so the well-formed frame arriving proves the skip.
	publishFrame(t, pubsub, []byte("{not json"))
	raw, err := json.Marshal(messageEnvelope(t, "abc", managerA(), "after the noise"))
	require.NoError(t, err)
	publishFrame(t, pubsub, raw)

	require.Eventually(t, func() bool {
		for _, n := range h.delegate.list() {
			if n.kind == "message" && n.message.Body == "after the noise" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherStartIsIdempotentAndStops(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.ChatID = "abc"
	})
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = pubsub.Close() }()

	d := NewDispatcher(h.coord, pubsub, testTopic)
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Start(context.Background()))
	d.Stop()

	raw, err := json.Marshal(messageEnvelope(t, "abc", managerA(), "late"))
	require.NoError(t, err)
	_ = pubsub.Publish(testTopic, message.NewMessage(watermill.NewUUID(), raw))

	require.Never(t, func() bool {
		return len(h.delegate.list()) > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
}
