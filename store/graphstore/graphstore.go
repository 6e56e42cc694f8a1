package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "graphstore"

// DefaultRelationshipType is the shared edge type.
const DefaultRelationshipType = "LINKS"

// Config holds connection settings for Open.
type Config struct {
	URI      string
	User     string
	Password string
	Database string

	// RelationshipType names the shared edge type. Defaults to LINKS.
	RelationshipType string

	// MaxPoolSize bounds the driver connection pool. Defaults to 50.
	MaxPoolSize int

	// ConnectTimeout bounds socket connects and the connectivity check.
	// Defaults to 10s.
	ConnectTimeout time.Duration
}

// Store is a Neo4j-backed store.Store and store.EdgeStore.
type Store struct {
	runner   Runner
	registry *schema.Registry
	relType  string
	logger   *logging.Logger
	closer   func(context.Context) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithRelationshipType overrides the shared edge type.
func WithRelationshipType(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.relType = name
		}
	}
}

// New creates a store on top of an existing Runner.
func New(runner Runner, reg *schema.Registry, opts ...Option) *Store {
	s := &Store{
		runner:   runner,
		registry: reg,
		relType:  DefaultRelationshipType,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With("component", component)
	return s
}

// Open connects to Neo4j and verifies connectivity.
func Open(ctx context.Context, cfg Config, reg *schema.Registry, opts ...Option) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, thingerr.New(component, "open", thingerr.CodeConfig, "neo4j uri is required")
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, thingerr.New(component, "open", thingerr.CodeConfig, "failed to init neo4j driver").WithCause(err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, thingerr.Storage(component, "open", err)
	}

	s := New(&DriverRunner{Driver: driver, Database: cfg.Database}, reg,
		append([]Option{WithRelationshipType(cfg.RelationshipType)}, opts...)...)
	s.closer = driver.Close
	s.logger.Info("connected", "uri", cfg.URI, "database", cfg.Database)
	return s, nil
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.EdgeStore = (*Store)(nil)
	_ store.Pinger    = (*Store)(nil)
)

// EnsureSchema creates a uniqueness constraint on _key for every collection
// in the registry and an index on edge keys. Statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := make([]string, 0, len(s.registry.Collections())+1)
	for _, c := range s.registry.Collections() {
		stmts = append(stmts, constraintQuery(c))
	}
	stmts = append(stmts, edgeIndexQuery(s.relType))

	for _, q := range stmts {
		if _, err := s.runner.Run(ctx, true, q, nil); err != nil {
			return thingerr.Storage(component, "ensure_schema", err)
		}
	}
	return nil
}

// DocumentKey returns the node key for a canonical ID.
func DocumentKey(id string) string {
	return store.EscapeKey(id)
}

// DocumentID returns the collection-qualified document ID.
func DocumentID(collection, id string) string {
	return collection + "/" + DocumentKey(id)
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (*thing.Thing, error) {
	t, _, err := s.locate(ctx, id, "get")
	return t, err
}

// locate finds the document for id and the collection holding it.
func (s *Store) locate(ctx context.Context, id, op string) (*thing.Thing, string, error) {
	if err := store.CheckContext(ctx, component, op); err != nil {
		return nil, "", err
	}
	locs, err := store.Candidates(s.registry, id)
	if err != nil {
		return nil, "", err
	}
	for _, loc := range locs {
		rows, err := s.runner.Run(ctx, false, getQuery(loc.Collection), map[string]any{"key": DocumentKey(id)})
		if err != nil {
			return nil, "", thingerr.Storage(component, op, err)
		}
		if len(rows) == 0 {
			continue
		}
		doc, _ := rows[0]["doc"].(string)
		var t thing.Thing
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, "", store.Malformed(component, op, err, map[string]any{"id": id, "collection": loc.Collection})
		}
		return &t, loc.Collection, nil
	}
	return nil, "", store.ErrNotFound
}

// Set implements store.Store with a single MERGE upsert.
func (s *Store) Set(ctx context.Context, t thing.Thing) error {
	if err := store.CheckContext(ctx, component, "set"); err != nil {
		return err
	}
	loc, err := store.Route(s.registry, t)
	if err != nil {
		return err
	}
	sp := t.Sparse()
	doc, err := json.Marshal(sp)
	if err != nil {
		return thingerr.Storage(component, "set", err)
	}

	key := DocumentKey(t.ID)
	props := map[string]any{
		propKey:     key,
		propID:      DocumentID(loc.Collection, t.ID),
		propDoc:     string(doc),
		propThingID: t.ID,
		propType:    sp.Type,
	}
	if sp.Date != nil {
		props[propDate] = sp.Date.UTC().Format(time.RFC3339Nano)
	}

	if _, err := s.runner.Run(ctx, true, setQuery(loc.Collection), map[string]any{"key": key, "props": props}); err != nil {
		return thingerr.Storage(component, "set", err)
	}
	s.logger.Debug("entity upserted", "id", t.ID, "collection", loc.Collection)
	return nil
}

// Exists implements store.Store.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Ping implements store.Pinger with a trivial read.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.runner.Run(ctx, false, pingQuery, nil)
	return thingerr.Storage(component, "ping", err)
}

// Close implements store.Store. It closes the driver when the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	err := s.closer(ctx)
	s.closer = nil
	return thingerr.Storage(component, "close", err)
}

// UpsertEdge implements store.EdgeStore.
func (s *Store) UpsertEdge(ctx context.Context, e store.Edge) error {
	_, fromCollection, err := s.locate(ctx, e.From, "upsert_edge")
	if err != nil {
		return endpointErr(e.From, err)
	}
	_, toCollection, err := s.locate(ctx, e.To, "upsert_edge")
	if err != nil {
		return endpointErr(e.To, err)
	}

	params := map[string]any{
		"fromKey":  DocumentKey(e.From),
		"toKey":    DocumentKey(e.To),
		"key":      e.Key,
		"relation": e.Relation,
		"from":     e.From,
		"to":       e.To,
	}
	rows, err := s.runner.Run(ctx, true, upsertEdgeQuery(fromCollection, toCollection, s.relType), params)
	if err != nil {
		return thingerr.Storage(component, "upsert_edge", err)
	}
	if count(rows) == 0 {
		// an endpoint vanished between lookup and merge
		return fmt.Errorf("edge %s -> %s: %w", e.From, e.To, store.ErrNotFound)
	}
	return nil
}

func endpointErr(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("edge endpoint %q: %w", id, store.ErrNotFound)
	}
	return err
}

// DeleteEdge implements store.EdgeStore.
func (s *Store) DeleteEdge(ctx context.Context, key string) error {
	if err := store.CheckContext(ctx, component, "delete_edge"); err != nil {
		return err
	}
	_, err := s.runner.Run(ctx, true, deleteEdgeQuery(s.relType), map[string]any{"key": key})
	return thingerr.Storage(component, "delete_edge", err)
}

// DeleteEdges implements store.EdgeStore.
func (s *Store) DeleteEdges(ctx context.Context, from, to string) (int, error) {
	if err := store.CheckContext(ctx, component, "delete_edges"); err != nil {
		return 0, err
	}
	rows, err := s.runner.Run(ctx, true, deleteEdgesQuery(s.relType), map[string]any{"from": from, "to": to})
	if err != nil {
		return 0, thingerr.Storage(component, "delete_edges", err)
	}
	return count(rows), nil
}

// Edges implements store.EdgeStore.
func (s *Store) Edges(ctx context.Context, id string, dir store.Direction) ([]store.Edge, error) {
	if err := store.CheckContext(ctx, component, "edges"); err != nil {
		return nil, err
	}
	rows, err := s.runner.Run(ctx, false, edgesQuery(s.relType, dir), map[string]any{"id": id})
	if err != nil {
		return nil, thingerr.Storage(component, "edges", err)
	}
	out := make([]store.Edge, 0, len(rows))
	for _, row := range rows {
		e := store.Edge{}
		e.Key, _ = row["key"].(string)
		e.From, _ = row["source"].(string)
		e.To, _ = row["target"].(string)
		e.Relation, _ = row["relation"].(string)
		out = append(out, e)
	}
	store.SortEdges(out)
	return out, nil
}

// count reads the n column of a single-row aggregate.
func count(rows []map[string]any) int {
	if len(rows) == 0 {
		return 0
	}
	switch n := rows[0]["n"].(type) {
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}
