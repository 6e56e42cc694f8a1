// Package memstore is an in-process store.Store and store.EdgeStore. It keeps
// encoded documents so reads never alias caller memory.
package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "memstore"

// Store holds entities per collection and a flat edge table.
type Store struct {
	registry *schema.Registry

	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	edges   map[string]store.Edge
	writes  int
}

// New creates an empty store.
func New(reg *schema.Registry) *Store {
	return &Store{
		registry: reg,
		buckets:  make(map[string]map[string][]byte),
		edges:    make(map[string]store.Edge),
	}
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.EdgeStore = (*Store)(nil)
	_ store.Pinger    = (*Store)(nil)
)

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (*thing.Thing, error) {
	if err := store.CheckContext(ctx, component, "get"); err != nil {
		return nil, err
	}
	locs, err := store.Candidates(s.registry, id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, loc := range locs {
		raw, ok := s.buckets[loc.Collection][loc.Key]
		if !ok {
			continue
		}
		var t thing.Thing
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, store.Malformed(component, "get", err, map[string]any{"id": id, "collection": loc.Collection})
		}
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, t thing.Thing) error {
	if err := store.CheckContext(ctx, component, "set"); err != nil {
		return err
	}
	loc, err := store.Route(s.registry, t)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return thingerr.Storage(component, "set", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.buckets[loc.Collection]
	if bucket == nil {
		bucket = make(map[string][]byte)
		s.buckets[loc.Collection] = bucket
	}
	if bytes.Equal(bucket[loc.Key], raw) {
		return nil
	}
	bucket[loc.Key] = raw
	s.writes++
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

// Ping implements store.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return store.CheckContext(ctx, component, "ping")
}

// Close implements store.Store. The contents stay readable.
func (s *Store) Close(context.Context) error {
	return nil
}

// Writes returns how many Set calls changed stored bytes.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Len returns the number of entities in a collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[collection])
}

// UpsertEdge implements store.EdgeStore.
func (s *Store) UpsertEdge(ctx context.Context, e store.Edge) error {
	for _, id := range []string{e.From, e.To} {
		ok, err := s.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("edge endpoint %q: %w", id, store.ErrNotFound)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[e.Key] = e
	return nil
}

// DeleteEdge implements store.EdgeStore.
func (s *Store) DeleteEdge(ctx context.Context, key string) error {
	if err := store.CheckContext(ctx, component, "delete_edge"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges, key)
	return nil
}

// DeleteEdges implements store.EdgeStore.
func (s *Store) DeleteEdges(ctx context.Context, from, to string) (int, error) {
	if err := store.CheckContext(ctx, component, "delete_edges"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.edges {
		if e.From == from && e.To == to {
			delete(s.edges, k)
			n++
		}
	}
	return n, nil
}

// Edges implements store.EdgeStore.
func (s *Store) Edges(ctx context.Context, id string, dir store.Direction) ([]store.Edge, error) {
	if err := store.CheckContext(ctx, component, "edges"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Edge
	for _, e := range s.edges {
		if dir.Matches(e, id) {
			out = append(out, e)
		}
	}
	store.SortEdges(out)
	return out, nil
}
