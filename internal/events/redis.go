package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jvbeek/pricewatch/internal/core/config"
	"github.com/jvbeek/pricewatch/internal/core/domain"
	"github.com/jvbeek/pricewatch/internal/metrics"
)

const (
	// ChannelPriceChange carries price_change events.
	ChannelPriceChange = "pricewatch:price_change"
	// ChannelSystemAlert carries system_alert events.
	ChannelSystemAlert = "pricewatch:system_alert"
)

// RedisEmitter publishes events to Redis pub/sub channels. Delivery is
// fire-and-forget; consumers that need durability must subscribe before
// runs start.
type RedisEmitter struct {
	rdb *redis.Client
}

// NewRedisEmitter connects to Redis and verifies the connection.
func NewRedisEmitter(cfg config.RedisConfig) (*RedisEmitter, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisEmitter{rdb: rdb}, nil
}

func (e *RedisEmitter) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := e.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	metrics.EventsPublished.WithLabelValues(channel).Inc()
	return nil
}

// PriceChange publishes a price_change event.
func (e *RedisEmitter) PriceChange(ctx context.Context, ev *domain.PriceChangeEvent) error {
	return e.publish(ctx, ChannelPriceChange, ev)
}

// SystemAlert publishes a system_alert event.
func (e *RedisEmitter) SystemAlert(ctx context.Context, ev *domain.SystemAlertEvent) error {
	return e.publish(ctx, ChannelSystemAlert, ev)
}

// Close closes the Redis connection.
func (e *RedisEmitter) Close() error {
	return e.rdb.Close()
}
