// Package fanout bridges realtime message delivery across service
// instances. The connection registry is per-process, so a receiver may be
// connected to a different instance than the sender's; the bridge publishes
// undeliverable message events to a Redis channel and every instance
// delivers the ones whose receiver it holds locally.
//
// Presence itself stays per-instance: the online set each client observes
// covers only its own instance. Sharing it would need keyed presence
// entries with TTLs and is out of scope here.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/core"
	"github.com/msgin/msgin-server/internal/store"
)

const defaultChannel = "msgin:messages"

type envelope struct {
	Origin  string         `json:"origin"`
	Message *store.Message `json:"message"`
}

// Bridge connects the local registry to the shared Redis channel.
type Bridge struct {
	client   *redis.Client
	registry *core.Registry
	channel  string
	instance string
	log      *zerolog.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(url string, registry *core.Registry, logger *zerolog.Logger) (*Bridge, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("fanout: parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("fanout: ping redis: %w", err)
	}

	return &Bridge{
		client:   client,
		registry: registry,
		channel:  defaultChannel,
		instance: uuid.NewString(),
		log:      logger,
	}, nil
}

// PublishMessage forwards a message event to the shared channel. Called by
// the delivery coordinator only when the receiver has no local connection.
func (b *Bridge) PublishMessage(ctx context.Context, msg *store.Message) error {
	payload, err := json.Marshal(envelope{Origin: b.instance, Message: msg})
	if err != nil {
		return fmt.Errorf("fanout: marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("fanout: publish: %w", err)
	}
	return nil
}

// Run subscribes to the shared channel and delivers forwarded messages to
// locally connected receivers. Blocks until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *Bridge) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn().Err(err).Msg("fanout: bad envelope")
		return
	}
	if env.Origin == b.instance || env.Message == nil {
		return
	}

	if b.registry.Push(env.Message.ReceiverID, &core.Event{Kind: core.EventNewMessage, Message: env.Message}) {
		b.log.Debug().Int64("message_id", env.Message.ID).Msg("fanout: delivered forwarded message")
	}
}

// Close releases the Redis connection.
func (b *Bridge) Close() error {
	return b.client.Close()
}
