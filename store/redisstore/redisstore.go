// Package redisstore persists entities in Redis, one hash per collection:
//
//	HSET <prefix>:<collection> <canonical id> <sparse JSON>
//
// It is a key/value backend and does not implement store.EdgeStore.
package redisstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "redisstore"

// DefaultPrefix namespaces collection hashes.
const DefaultPrefix = "thinggraph"

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// Prefix namespaces the collection hashes. Defaults to DefaultPrefix.
	Prefix string

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// Logger receives connection and write events.
	Logger *logging.Logger
}

// Store is a Redis-backed store.Store.
type Store struct {
	client   *redis.Client
	registry *schema.Registry
	prefix   string
	logger   *logging.Logger
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, opts Options, reg *schema.Registry) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, thingerr.New(component, "open", thingerr.CodeConfig, "failed to parse Redis URL").WithCause(err)
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, thingerr.Storage(component, "open", err)
	}
	return New(client, reg, opts.Prefix, opts.Logger), nil
}

// New wraps an existing client. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, reg *schema.Registry, prefix string, logger *logging.Logger) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client:   client,
		registry: reg,
		prefix:   prefix,
		logger:   logging.OrNop(logger).With("component", component),
	}
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)

// HashKey returns the Redis key of a collection hash.
func (s *Store) HashKey(collection string) string {
	return s.prefix + ":" + collection
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (*thing.Thing, error) {
	if err := store.CheckContext(ctx, component, "get"); err != nil {
		return nil, err
	}
	locs, err := store.Candidates(s.registry, id)
	if err != nil {
		return nil, err
	}
	for _, loc := range locs {
		raw, err := s.client.HGet(ctx, s.HashKey(loc.Collection), id).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, thingerr.Storage(component, "get", err)
		}
		var t thing.Thing
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, store.Malformed(component, "get", err, map[string]any{"id": id, "collection": loc.Collection})
		}
		return &t, nil
	}
	return nil, store.ErrNotFound
}

// Set implements store.Store. HSET replaces the field atomically.
func (s *Store) Set(ctx context.Context, t thing.Thing) error {
	if err := store.CheckContext(ctx, component, "set"); err != nil {
		return err
	}
	loc, err := store.Route(s.registry, t)
	if err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return thingerr.Storage(component, "set", err)
	}
	if err := s.client.HSet(ctx, s.HashKey(loc.Collection), t.ID, data).Err(); err != nil {
		return thingerr.Storage(component, "set", err)
	}
	s.logger.Debug("entity written", "id", t.ID, "collection", loc.Collection)
	return nil
}

// Exists implements store.Store with HEXISTS.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := store.CheckContext(ctx, component, "exists"); err != nil {
		return false, err
	}
	locs, err := store.Candidates(s.registry, id)
	if err != nil {
		return false, err
	}
	for _, loc := range locs {
		ok, err := s.client.HExists(ctx, s.HashKey(loc.Collection), id).Result()
		if err != nil {
			return false, thingerr.Storage(component, "exists", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Keys returns the canonical IDs stored in a collection, sorted.
func (s *Store) Keys(ctx context.Context, collection string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.HashKey(collection)).Result()
	if err != nil {
		return nil, thingerr.Storage(component, "keys", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping implements store.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return thingerr.Storage(component, "ping", s.client.Ping(ctx).Err())
}

// Close implements store.Store.
func (s *Store) Close(context.Context) error {
	return thingerr.Storage(component, "close", s.client.Close())
}
