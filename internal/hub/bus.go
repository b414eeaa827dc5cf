package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// Message is what crosses the bus between server instances. Origin is
// the publishing hub's instance id so every hub can drop its own
// messages on receipt — local delivery already happened at the origin,
// relaying it again would double-deliver.
//
// Exclude names a connection id to skip on delivery. Connections live on
// exactly one instance, so on every other instance the field is inert.
type Message struct {
	Origin    string `json:"origin"`
	SessionID string `json:"sessionId"`
	Exclude   string `json:"exclude,omitempty"`
	Event     Event  `json:"event"`
}

// Bus is the cross-node broadcast transport. A single-instance
// deployment runs without one — the hub then binds its broadcasts
// directly to the local connection registry. A multi-instance deployment
// must attach a Bus or participants on different instances drift apart.
type Bus interface {
	// Publish sends a message to every hub instance, including the
	// origin (which ignores it).
	Publish(ctx context.Context, msg Message) error
	// Start begins delivering received messages to the handler until
	// Close. Called once, by the hub the bus is attached to.
	Start(handler func(Message))
	Close() error
}

// RedisBus implements Bus over a Redis pub/sub channel. All instances
// subscribe to one shared channel; session scoping happens in the hub,
// which only relays to connections of the named session.
type RedisBus struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	logger  *slog.Logger
	done    chan struct{}
}

// NewRedisBus connects to Redis and subscribes to the shared channel.
func NewRedisBus(addr, channel string, logger *slog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: connecting to redis at %s: %w", addr, err)
	}

	return &RedisBus{
		client:  client,
		channel: channel,
		pubsub:  client.Subscribe(context.Background(), channel),
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Publish marshals the message and fans it out through Redis.
func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: encoding message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("bus: publishing: %w", err)
	}
	return nil
}

// Start consumes the subscription in a background goroutine. Messages
// that fail to decode are logged and dropped — one malformed publisher
// must not wedge presence fan-out for everyone.
func (b *RedisBus) Start(handler func(Message)) {
	ch := b.pubsub.Channel()
	go func() {
		for {
			select {
			case <-b.done:
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn("dropping malformed bus message", slog.String("error", err.Error()))
					continue
				}
				handler(msg)
			}
		}
	}()
}

// Close tears down the subscription and the client.
func (b *RedisBus) Close() error {
	close(b.done)
	if err := b.pubsub.Close(); err != nil {
		b.client.Close()
		return err
	}
	return b.client.Close()
}
