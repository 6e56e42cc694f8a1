// Package storetest provides a conformance suite every store backend runs in
// its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

// Factory opens an empty store over reg.
type Factory func(t *testing.T, reg *schema.Registry) store.Store

// Registry returns the small forest the suite writes against.
func Registry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.New(
		schema.Node{Name: "Thing", Tag: "thing", Collection: "things"},
		schema.Node{Name: "CreativeWork", Parent: "Thing", Tag: "work", Collection: "works"},
		schema.Node{Name: "BlogPosting", Parent: "CreativeWork", Tag: "post"},
		schema.Node{Name: "Person", Parent: "Thing", Tag: "person", Collection: "people"},
	)
	require.NoError(t, err)
	return reg
}

// Post returns a fully populated entity.
func Post(key string) thing.Thing {
	d := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return thing.Thing{
		ID:          "post:" + key,
		Type:        "BlogPosting",
		Date:        &d,
		Name:        "Hello " + key,
		Description: "first post",
		URL:         "https://example.com/" + key,
		Keywords:    []string{"go", "graphs"},
		Extra: map[string]any{
			"wordCount": int64(420),
			"rating":    4.5,
			"draft":     false,
			"author":    map[string]any{"name": "Ada"},
		},
	}
}

// Person returns a minimal person entity.
func Person(key string) thing.Thing {
	return thing.Thing{ID: "person:" + key, Type: "Person", Name: key}
}

// RunStore runs the entity contract against the backend.
func RunStore(t *testing.T, open Factory) {
	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		s := open(t, Registry(t))
		want := Post("round-trip")
		require.NoError(t, s.Set(ctx, want))

		got, err := s.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want.Sparse(), *got)

		ok, err := s.Exists(ctx, want.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := open(t, Registry(t))
		_, err := s.Get(ctx, "post:missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		_, err = s.Get(ctx, "unknowntag:missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))

		ok, err := s.Exists(ctx, "post:missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Idempotent", func(t *testing.T) {
		s := open(t, Registry(t))
		p := Post("twice")
		require.NoError(t, s.Set(ctx, p))
		require.NoError(t, s.Set(ctx, p))

		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Sparse(), *got)
	})

	t.Run("Replace", func(t *testing.T) {
		s := open(t, Registry(t))
		p := Post("replace")
		require.NoError(t, s.Set(ctx, p))

		p.Name = "renamed"
		p.Description = ""
		require.NoError(t, s.Set(ctx, p))

		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		assert.Empty(t, got.Description)
	})

	t.Run("StoresSparse", func(t *testing.T) {
		s := open(t, Registry(t))
		p := thing.Thing{
			ID:    "person:sparse",
			Type:  "Person",
			Name:  "Grace",
			Extra: map[string]any{"blank": "", "none": nil, "list": []any{"", nil}, "zero": int64(0)},
		}
		require.NoError(t, s.Set(ctx, p))

		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"zero": int64(0)}, got.Extra)
	})

	t.Run("NumberNormalization", func(t *testing.T) {
		s := open(t, Registry(t))
		p := Person("numbers")
		p.Extra = map[string]any{
			"rating": 5.0,
			"count":  3,
			"ratio":  0.25,
			"nested": map[string]any{"score": float32(2)},
		}
		require.NoError(t, s.Set(ctx, p))

		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"rating": int64(5),
			"count":  int64(3),
			"ratio":  0.25,
			"nested": map[string]any{"score": int64(2)},
		}, got.Extra)
	})

	t.Run("UnencodableDate", func(t *testing.T) {
		s := open(t, Registry(t))
		p := Post("far-future")
		far := time.Date(55840, 11, 8, 22, 13, 20, 0, time.UTC)
		p.Date = &far

		err := s.Set(ctx, p)
		assert.True(t, thingerr.IsCode(err, thingerr.CodeInvalidRecord))
		assert.False(t, thingerr.IsRetryable(err))

		ok, err := s.Exists(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("KeySafety", func(t *testing.T) {
		s := open(t, Registry(t))
		p := Person("https://example.com/people/a b?x=1")
		require.NoError(t, s.Set(ctx, p))

		got, err := s.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
	})

	t.Run("Invalid", func(t *testing.T) {
		s := open(t, Registry(t))
		err := s.Set(ctx, thing.Thing{ID: "post:x", Type: "Unknown"})
		assert.True(t, thingerr.IsCode(err, thingerr.CodeSchemaResolution))

		err = s.Set(ctx, thing.Thing{ID: "person:x", Type: "BlogPosting"})
		assert.True(t, thingerr.IsCode(err, thingerr.CodeIdentity))

		_, err = s.Get(ctx, "no-colon")
		assert.True(t, thingerr.IsCode(err, thingerr.CodeIdentity))
	})

	t.Run("Canceled", func(t *testing.T) {
		s := open(t, Registry(t))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := s.Set(cctx, Post("canceled"))
		assert.True(t, thingerr.IsCode(err, thingerr.CodeStorage))
		_, err = s.Get(cctx, "post:canceled")
		assert.True(t, thingerr.IsCode(err, thingerr.CodeStorage))
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t, Registry(t))
		p, ok := s.(store.Pinger)
		if !ok {
			t.Skip("backend does not implement store.Pinger")
		}
		require.NoError(t, p.Ping(ctx))

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.True(t, thingerr.IsCode(p.Ping(cctx), thingerr.CodeStorage))
	})
}

// RunEdges runs the edge contract against a backend implementing
// store.EdgeStore.
func RunEdges(t *testing.T, open Factory) {
	ctx := context.Background()

	setup := func(t *testing.T) (store.Store, store.EdgeStore) {
		s := open(t, Registry(t))
		es, ok := s.(store.EdgeStore)
		require.True(t, ok, "backend does not implement store.EdgeStore")
		require.NoError(t, s.Set(ctx, Post("a")))
		require.NoError(t, s.Set(ctx, Person("ada")))
		require.NoError(t, s.Set(ctx, Person("bob")))
		return s, es
	}

	t.Run("UpsertIdempotent", func(t *testing.T) {
		_, es := setup(t)
		e := store.Edge{Key: "k1", From: "post:a", To: "person:ada", Relation: "creator"}
		require.NoError(t, es.UpsertEdge(ctx, e))
		require.NoError(t, es.UpsertEdge(ctx, e))

		edges, err := es.Edges(ctx, "post:a", store.Outbound)
		require.NoError(t, err)
		assert.Equal(t, []store.Edge{e}, edges)
	})

	t.Run("Directions", func(t *testing.T) {
		_, es := setup(t)
		creator := store.Edge{Key: "k1", From: "post:a", To: "person:ada", Relation: "creator"}
		sponsor := store.Edge{Key: "k2", From: "post:a", To: "person:bob", Relation: "sponsor"}
		knows := store.Edge{Key: "k3", From: "person:bob", To: "person:ada", Relation: "knows"}
		for _, e := range []store.Edge{sponsor, knows, creator} {
			require.NoError(t, es.UpsertEdge(ctx, e))
		}

		out, err := es.Edges(ctx, "post:a", store.Outbound)
		require.NoError(t, err)
		assert.Equal(t, []store.Edge{creator, sponsor}, out)

		in, err := es.Edges(ctx, "person:ada", store.Inbound)
		require.NoError(t, err)
		assert.Equal(t, []store.Edge{creator, knows}, in)

		both, err := es.Edges(ctx, "person:bob", store.Both)
		require.NoError(t, err)
		assert.Equal(t, []store.Edge{knows, sponsor}, both)

		none, err := es.Edges(ctx, "person:ada", store.Outbound)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Delete", func(t *testing.T) {
		_, es := setup(t)
		creator := store.Edge{Key: "k1", From: "post:a", To: "person:ada", Relation: "creator"}
		editor := store.Edge{Key: "k2", From: "post:a", To: "person:ada", Relation: "editor"}
		reverse := store.Edge{Key: "k3", From: "person:ada", To: "post:a", Relation: "wrote"}
		for _, e := range []store.Edge{creator, editor, reverse} {
			require.NoError(t, es.UpsertEdge(ctx, e))
		}

		require.NoError(t, es.DeleteEdge(ctx, "k1"))
		require.NoError(t, es.DeleteEdge(ctx, "k1"))

		n, err := es.DeleteEdges(ctx, "post:a", "person:ada")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		left, err := es.Edges(ctx, "post:a", store.Both)
		require.NoError(t, err)
		assert.Equal(t, []store.Edge{reverse}, left)
	})

	t.Run("MissingEndpoint", func(t *testing.T) {
		_, es := setup(t)
		err := es.UpsertEdge(ctx, store.Edge{Key: "k9", From: "post:a", To: "person:nobody", Relation: "creator"})
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})
}
