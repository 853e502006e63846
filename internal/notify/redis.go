package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Publisher is the subset of the go-redis client the sink uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// RedisSink publishes each event as JSON on a pub/sub channel.
type RedisSink struct {
	Client  Publisher
	Channel string
}

type envelope struct {
	Kind    string `json:"kind"`
	Payload Event  `json:"payload"`
}

// NewRedisClient dials addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s RedisSink) Deliver(ctx context.Context, evt Event) error {
	if s.Client == nil {
		return fmt.Errorf("redis sink not initialized")
	}
	channel := s.Channel
	if channel == "" {
		channel = "sidequest.notifications"
	}
	raw, err := json.Marshal(envelope{Kind: evt.Kind(), Payload: evt})
	if err != nil {
		return err
	}
	if err := s.Client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", evt.Kind(), err)
	}
	return nil
}
