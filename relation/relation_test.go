package relation

import (
	"context"
	"errors"
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/store/filestore"
	"github.com/zero-day-ai/thinggraph/store/memstore"
	"github.com/zero-day-ai/thinggraph/store/storetest"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

func setup(t *testing.T) *Layer {
	t.Helper()
	ctx := context.Background()
	s := memstore.New(storetest.Registry(t))
	require.NoError(t, s.Set(ctx, storetest.Post("a")))
	require.NoError(t, s.Set(ctx, storetest.Person("ada")))
	require.NoError(t, s.Set(ctx, storetest.Person("bob")))
	return New(s)
}

func TestEdgeKey(t *testing.T) {
	k := EdgeKey("post:a", "person:ada", "creator")
	assert.Equal(t, k, EdgeKey("post:a", "person:ada", "creator"))
	assert.NotEqual(t, k, EdgeKey("person:ada", "post:a", "creator"), "direction matters")
	assert.NotEqual(t, k, EdgeKey("post:a", "person:ada", "sponsor"))
	// separator keeps field boundaries
	assert.NotEqual(t, EdgeKey("a:b", "c:d", "e"), EdgeKey("a:b", "c:de", ""))
	assert.Len(t, k, 36)
}

func TestLinkIdempotent(t *testing.T) {
	ctx := context.Background()
	l := setup(t)

	e1, err := l.Link(ctx, "post:a", "creator", "person:ada")
	require.NoError(t, err)
	e2, err := l.Link(ctx, "post:a", " creator ", "person:ada")
	require.NoError(t, err)
	assert.Equal(t, e1, e2)

	edges, err := l.Edges(ctx, "post:a", store.Outbound)
	require.NoError(t, err)
	assert.Equal(t, []store.Edge{e1}, edges)
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	l := setup(t)

	_, err := l.Link(ctx, "post:a", "creator", "person:ada")
	require.NoError(t, err)
	_, err = l.Link(ctx, "post:a", "editor", "person:ada")
	require.NoError(t, err)
	sponsor, err := l.Link(ctx, "post:a", "sponsor", "person:bob")
	require.NoError(t, err)

	n, err := l.Unlink(ctx, "post:a", "person:ada", "creator")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = l.Unlink(ctx, "post:a", "person:ada", "creator")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = l.Link(ctx, "post:a", "creator", "person:ada")
	require.NoError(t, err)
	n, err = l.Unlink(ctx, "post:a", "person:ada", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	edges, err := l.Edges(ctx, "post:a", store.Both)
	require.NoError(t, err)
	assert.Equal(t, []store.Edge{sponsor}, edges)
}

func TestLinkValidation(t *testing.T) {
	ctx := context.Background()
	l := setup(t)

	_, err := l.Link(ctx, "post:a", "creator", "ada")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeIdentity))

	_, err = l.Link(ctx, "post:a", "  ", "person:ada")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeIdentity))

	_, err = l.Link(ctx, "post:a", "creator", "person:nobody")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUnsupportedStore(t *testing.T) {
	ctx := context.Background()
	fsys, err := mem.NewFS()
	require.NoError(t, err)
	l := New(filestore.New(fsys, storetest.Registry(t)))
	assert.False(t, l.Supported())

	_, err = l.Link(ctx, "post:a", "creator", "person:ada")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeUnsupported))

	_, err = l.Unlink(ctx, "post:a", "person:ada", "")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeUnsupported))

	_, err = l.Edges(ctx, "post:a", store.Both)
	assert.True(t, thingerr.IsCode(err, thingerr.CodeUnsupported))
}
