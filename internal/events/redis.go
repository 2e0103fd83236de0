package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const publishTimeout = 2 * time.Second

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisPublisher publishes each event as JSON on a pub/sub channel so
// dashboards and notifiers can follow the bot without reading its logs.
type RedisPublisher struct {
	client  *goredis.Client
	channel string
}

func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis event publisher connected", "addr", cfg.Addr, "channel", cfg.Channel)
	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

func (r *RedisPublisher) Emit(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event for redis failed", "type", event.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		slog.Error("redis publish failed", "channel", r.channel, "type", event.Type, "error", err)
	}
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}
