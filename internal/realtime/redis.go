package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBus delivers events locally and mirrors them to a Redis channel so other
// processes sharing the store see them too.
type RedisBus struct {
	local   *MemoryBus
	rdb     *redis.Client
	channel string
	origin  string
	log     *logger.Logger
}

func NewRedisBus(ctx context.Context, addr, channel string, local *MemoryBus, log *logger.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if channel == "" {
		channel = "app056-events"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		local:   local,
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log.With("service", "RedisBus"),
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	evt.Origin = b.origin
	_ = b.local.Publish(ctx, evt)

	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("Redis publish failed", "event", evt.Type, "error", err)
		return err
	}
	return nil
}

func (b *RedisBus) Subscribe(userID string) (<-chan Event, func()) {
	return b.local.Subscribe(userID)
}

// StartForwarder re-injects events published by other processes into the local
// bus until ctx is done.
func (b *RedisBus) StartForwarder(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.log.Warn("Bad redis event payload", "error", err)
					continue
				}
				if evt.Origin == b.origin {
					continue
				}
				_ = b.local.Publish(ctx, evt)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
