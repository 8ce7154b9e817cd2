// Package bus carries socket-origin events from the transport layer to
// the chat dispatcher. The default transport is an in-process channel;
// Redis Streams can be enabled so several widget processes share one
// event feed.
package bus

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// EventsTopic is the topic socket frames are published on.
const EventsTopic = "chat.socket.events"

// Settings holds the bus transport configuration.
type Settings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

// Bus pairs a publisher with a subscriber over the configured transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []func() error
}

// New builds a Bus. With Settings.Enabled false it returns an in-memory
// gochannel transport; otherwise a Redis Streams publisher/subscriber
// bound to the configured consumer group.
func New(s Settings) (*Bus, error) {
	logger := NewLogger(log.Logger)
	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{}, logger)
		return &Bus{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "build redis publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "build redis subscriber")
	}
	return &Bus{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// Close releases the transport.
func (b *Bus) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnsureGroupAtTail creates the consumer group for a stream at the tail
// ($) if it doesn't exist, so a fresh subscriber doesn't replay history.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP means the group already exists.
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
