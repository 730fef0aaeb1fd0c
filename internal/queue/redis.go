package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport queues messages on Redis lists.
type RedisTransport struct {
	rdb       *redis.Client
	namespace string
}

// queuedEvent is published on the destination's events channel after each push.
type queuedEvent struct {
	Key      string `json:"key"`
	Priority int    `json:"priority"`
}

// NewRedisTransport creates a transport without checking connectivity.
func NewRedisTransport(redisOpts *redis.Options, namespace string) (*RedisTransport, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &RedisTransport{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// DialRedis parses the Redis URL in cfg.Address, connects and pings.
func DialRedis(ctx context.Context, cfg Config) (*RedisTransport, error) {
	opts, err := redis.ParseURL(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis url: %v", ErrConnect, err)
	}
	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DialTimeout = cfg.ConnectTimeout

	t, err := NewRedisTransport(opts, cfg.Namespace)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := t.Ping(pingCtx); err != nil {
		t.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return t, nil
}

// Ping verifies Redis connectivity.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Publish appends body to the destination's list for priority and announces it.
// The push and the announcement are sent in one MULTI/EXEC block.
func (t *RedisTransport) Publish(ctx context.Context, destination string, body []byte, priority int) error {
	key := QueueKey(t.namespace, destination, priority)

	event, err := json.Marshal(queuedEvent{Key: key, Priority: priority})
	if err != nil {
		return fmt.Errorf("failed to marshal queue event: %w", err)
	}

	_, err = t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, body)
		pipe.Publish(ctx, QueueEventsChannel(t.namespace, destination), event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push message to %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection. Implements io.Closer.
func (t *RedisTransport) Close() error {
	return t.rdb.Close()
}
