package bus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundtrip(t *testing.T) {
	b, err := New(Settings{})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscriber.Subscribe(ctx, EventsTopic)
	require.NoError(t, err)

	payload := []byte(`{"type":"typing.changed"}`)
	require.NoError(t, b.Publisher.Publish(EventsTopic, message.NewMessage(watermill.NewUUID(), payload)))

	select {
	case msg := <-ch:
		require.Equal(t, payload, []byte(msg.Payload))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestLoggerAdapterCarriesFields(t *testing.T) {
	logger := NewLogger(zerolog.Nop())
	withFields := logger.With(watermill.LogFields{"topic": EventsTopic})
	require.NotNil(t, withFields)
	// None of these should panic on a nop logger.
	withFields.Info("info", watermill.LogFields{"k": "v"})
	withFields.Debug("debug", nil)
	withFields.Trace("trace", nil)
	withFields.Error("error", context.Canceled, watermill.LogFields{"k": "v"})
}
