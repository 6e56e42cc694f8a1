// Package store defines the persistence contract for canonical entities and
// the typed edges between them.
//
// Every backend keys entities by canonical ID and routes writes to the
// partition named by the schema resolution of the entity's type. Backends
// store the sparse form, make Set idempotent and serve Get immediately after
// Set in the same process. I/O failures, including context cancellation,
// surface as thingerr.CodeStorage errors.
//
// Backends live in sub-packages:
//
//   - filestore: one JSON file per entity inside a directory per collection
//   - graphstore: Neo4j nodes per collection plus a shared edge type
//   - redisstore: one Redis hash per collection
//   - memstore: in-process maps, for tests and dry runs
package store

import (
	"context"
	"errors"

	"github.com/zero-day-ai/thinggraph/thing"
)

// ErrNotFound is returned by Get when no entity is stored under the ID.
var ErrNotFound = errors.New("store: entity not found")

// Direction selects which edges of an entity Edges returns.
type Direction int

const (
	// Outbound selects edges whose From is the entity.
	Outbound Direction = iota

	// Inbound selects edges whose To is the entity.
	Inbound

	// Both selects edges in either direction.
	Both
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// Matches reports whether e touches id in direction d.
func (d Direction) Matches(e Edge, id string) bool {
	switch d {
	case Outbound:
		return e.From == id
	case Inbound:
		return e.To == id
	case Both:
		return e.From == id || e.To == id
	}
	return false
}

// Edge is a directed, typed relationship between two canonical IDs. Key is
// derived from (From, To, Relation) so re-linking the same pair is an upsert.
type Edge struct {
	Key      string `json:"key"`
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Store is the entity persistence contract.
type Store interface {
	// Get returns the entity stored under a canonical ID, or ErrNotFound.
	// The result equals the sparse form that was Set, except that numbers
	// in Extra come back as int64 when integral and float64 otherwise.
	Get(ctx context.Context, id string) (*thing.Thing, error)

	// Set writes the sparse form of t under t.ID, in the collection its type
	// resolves to. Writing identical content again is a no-op.
	Set(ctx context.Context, t thing.Thing) error

	// Exists reports whether an entity is stored under id.
	Exists(ctx context.Context, id string) (bool, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Pinger is implemented by backends that can report whether they are
// reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EdgeStore is implemented by backends that can persist edges.
type EdgeStore interface {
	// UpsertEdge inserts e or replaces the edge with the same key. Both
	// endpoints must already be stored.
	UpsertEdge(ctx context.Context, e Edge) error

	// DeleteEdge removes the edge with the given key. Deleting a missing edge
	// is not an error.
	DeleteEdge(ctx context.Context, key string) error

	// DeleteEdges removes every edge from -> to and returns how many went.
	DeleteEdges(ctx context.Context, from, to string) (int, error)

	// Edges lists the edges touching id in the given direction, ordered by
	// relation, then from, then to.
	Edges(ctx context.Context, id string, dir Direction) ([]Edge, error)
}
