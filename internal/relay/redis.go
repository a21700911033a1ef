package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mossy-p/webrtc-calling/internal/models"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "relay:user:"

func channelFor(id models.Identity) string {
	return channelPrefix + string(id)
}

// RedisForwarder publishes deliveries on a per-identity Redis channel so
// every relay instance can hand them to its local subscribers.
type RedisForwarder struct {
	client *redis.Client
}

func NewRedisForwarder(client *redis.Client) *RedisForwarder {
	return &RedisForwarder{client: client}
}

func (f *RedisForwarder) Forward(ctx context.Context, to models.Identity, d models.Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := f.client.Publish(ctx, channelFor(to), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channelFor(to), err)
	}
	return nil
}

// RedisBridge feeds every per-identity Redis channel into the local hub.
type RedisBridge struct {
	pubsub *redis.PubSub
	hub    *Hub
	log    *slog.Logger
}

// NewRedisBridge subscribes to all identity channels and waits for Redis to
// confirm the subscription, so nothing published afterwards is missed.
func NewRedisBridge(ctx context.Context, client *redis.Client, hub *Hub, log *slog.Logger) (*RedisBridge, error) {
	if log == nil {
		log = slog.Default()
	}

	pubsub := client.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to relay channels: %w", err)
	}

	return &RedisBridge{pubsub: pubsub, hub: hub, log: log}, nil
}

// Run pumps messages until ctx is done or the subscription is closed.
func (b *RedisBridge) Run(ctx context.Context) error {
	const op = "relay.redis_bridge.run"
	log := b.log.With(slog.String("op", op))

	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id := models.Identity(strings.TrimPrefix(msg.Channel, channelPrefix))
			n := b.hub.deliver(id, []byte(msg.Payload))
			log.Debug("delivered from redis", slog.String("to", string(id)), slog.Int("subscribers", n))
		}
	}
}

func (b *RedisBridge) Close() error {
	return b.pubsub.Close()
}
