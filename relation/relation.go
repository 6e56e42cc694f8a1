// Package relation records typed, deduplicated edges between canonical
// entity IDs on stores that implement store.EdgeStore.
package relation

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/zero-day-ai/thinggraph/identity"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "relation"

// Namespace seeds edge keys. Changing it re-keys every stored edge.
var Namespace = uuid.MustParse("6f1c2a4e-9b53-5d0e-8a47-3c2b1e0f9d71")

// EdgeKey returns the deterministic key of (from, to, relation).
func EdgeKey(from, to, relation string) string {
	return uuid.NewSHA1(Namespace, []byte(from+"\x00"+to+"\x00"+relation)).String()
}

// Layer links entities through a store.
type Layer struct {
	store store.Store
	edges store.EdgeStore
}

// New wraps s. Every operation fails with thingerr.CodeUnsupported when s
// does not implement store.EdgeStore.
func New(s store.Store) *Layer {
	l := &Layer{store: s}
	l.edges, _ = s.(store.EdgeStore)
	return l
}

// Supported reports whether the underlying store persists edges.
func (l *Layer) Supported() bool {
	return l.edges != nil
}

func (l *Layer) require(op string) error {
	if l.edges == nil {
		return thingerr.Newf(component, op, thingerr.CodeUnsupported,
			"%T does not store edges", l.store)
	}
	return nil
}

func validate(op string, ids ...string) error {
	for _, id := range ids {
		if !identity.Valid(id) {
			return thingerr.Newf(component, op, thingerr.CodeIdentity, "%q is not a canonical id", id)
		}
	}
	return nil
}

// Link upserts the edge from -relation-> to and returns it. Linking the same
// triple again is a no-op.
func (l *Layer) Link(ctx context.Context, from, relation, to string) (store.Edge, error) {
	if err := l.require("link"); err != nil {
		return store.Edge{}, err
	}
	if err := validate("link", from, to); err != nil {
		return store.Edge{}, err
	}
	relation = strings.TrimSpace(relation)
	if relation == "" {
		return store.Edge{}, thingerr.New(component, "link", thingerr.CodeIdentity, "relation is required")
	}

	e := store.Edge{Key: EdgeKey(from, to, relation), From: from, To: to, Relation: relation}
	if err := l.edges.UpsertEdge(ctx, e); err != nil {
		return store.Edge{}, err
	}
	return e, nil
}

// Unlink removes the edge from -relation-> to, or every edge from -> to when
// relation is empty, and returns how many edges were removed.
func (l *Layer) Unlink(ctx context.Context, from, to, relation string) (int, error) {
	if err := l.require("unlink"); err != nil {
		return 0, err
	}
	if err := validate("unlink", from, to); err != nil {
		return 0, err
	}
	relation = strings.TrimSpace(relation)
	if relation == "" {
		return l.edges.DeleteEdges(ctx, from, to)
	}

	key := EdgeKey(from, to, relation)
	out, err := l.edges.Edges(ctx, from, store.Outbound)
	if err != nil {
		return 0, err
	}
	for _, e := range out {
		if e.Key == key {
			if err := l.edges.DeleteEdge(ctx, key); err != nil {
				return 0, err
			}
			return 1, nil
		}
	}
	return 0, nil
}

// Edges lists the edges touching id.
func (l *Layer) Edges(ctx context.Context, id string, dir store.Direction) ([]store.Edge, error) {
	if err := l.require("edges"); err != nil {
		return nil, err
	}
	if err := validate("edges", id); err != nil {
		return nil, err
	}
	return l.edges.Edges(ctx, id, dir)
}
