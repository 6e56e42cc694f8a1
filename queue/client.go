package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "queue"

// Client moves items and results through a broker.
type Client interface {
	// Push appends an item to a queue.
	Push(ctx context.Context, queue string, item Item) error

	// Pop blocks for up to timeout waiting for an item. It returns nil, nil
	// when the timeout passes with the queue empty. A zero timeout blocks
	// until an item arrives or ctx is done.
	Pop(ctx context.Context, queue string, timeout time.Duration) (*Item, error)

	// Len returns the number of items waiting in a queue.
	Len(ctx context.Context, queue string) (int64, error)

	// Publish sends a result to a channel.
	Publish(ctx context.Context, channel string, result Result) error

	// Subscribe streams results from a channel until ctx is done.
	Subscribe(ctx context.Context, channel string) (<-chan Result, error)

	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout must exceed the longest Pop timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	Logger *logging.Logger
}

// RedisClient implements Client on Redis lists and Pub/Sub.
type RedisClient struct {
	client *redis.Client
	logger *logging.Logger
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, thingerr.New(component, "connect", thingerr.CodeConfig, "failed to parse Redis URL").WithCause(err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, thingerr.Storage(component, "connect", fmt.Errorf("failed to connect to Redis: %w", err))
	}
	return NewRedisClientFromClient(client, opts.Logger), nil
}

// NewRedisClientFromClient wraps an existing go-redis client.
func NewRedisClientFromClient(client *redis.Client, logger *logging.Logger) *RedisClient {
	return &RedisClient{client: client, logger: logging.OrNop(logger).With("component", component)}
}

// Push implements Client with LPUSH.
func (c *RedisClient) Push(ctx context.Context, queue string, item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return thingerr.New(component, "push", thingerr.CodeInvalidRecord, "failed to marshal item").WithCause(err)
	}
	if err := c.client.LPush(ctx, queue, data).Err(); err != nil {
		return thingerr.Storage(component, "push", fmt.Errorf("failed to push to queue %s: %w", queue, err))
	}
	return nil
}

// Pop implements Client with BRPOP, so items leave in push order.
func (c *RedisClient) Pop(ctx context.Context, queue string, timeout time.Duration) (*Item, error) {
	result, err := c.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, thingerr.Storage(component, "pop", fmt.Errorf("failed to pop from queue %s: %w", queue, err))
	}
	if len(result) != 2 {
		return nil, thingerr.Storage(component, "pop", fmt.Errorf("unexpected BRPOP result length: %d", len(result)))
	}

	var item Item
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return nil, thingerr.New(component, "pop", thingerr.CodeInvalidRecord, "failed to unmarshal item").WithCause(err)
	}
	return &item, nil
}

// Len implements Client with LLEN.
func (c *RedisClient) Len(ctx context.Context, queue string) (int64, error) {
	n, err := c.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, thingerr.Storage(component, "len", err)
	}
	return n, nil
}

// Publish implements Client.
func (c *RedisClient) Publish(ctx context.Context, channel string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return thingerr.New(component, "publish", thingerr.CodeInvalidRecord, "failed to marshal result").WithCause(err)
	}
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return thingerr.Storage(component, "publish", fmt.Errorf("failed to publish to channel %s: %w", channel, err))
	}
	return nil
}

// Subscribe implements Client. The returned channel closes when ctx is
// done; undecodable messages are logged and dropped.
func (c *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan Result, error) {
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, thingerr.Storage(component, "subscribe", fmt.Errorf("failed to subscribe to channel %s: %w", channel, err))
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var result Result
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					c.logger.Warn("dropping undecodable result", "channel", channel, "error", err)
					continue
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Ping checks the connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	return thingerr.Storage(component, "ping", c.client.Ping(ctx).Err())
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
