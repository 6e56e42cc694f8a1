package redisstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/store/storetest"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

// setupTestStore creates a miniredis instance and returns a connected Store.
func setupTestStore(t *testing.T, reg *schema.Registry) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), Options{URL: fmt.Sprintf("redis://%s", mr.Addr())}, reg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})
	return s, mr
}

func TestStoreContract(t *testing.T) {
	storetest.RunStore(t, func(t *testing.T, reg *schema.Registry) store.Store {
		s, _ := setupTestStore(t, reg)
		return s
	})
}

func TestLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestStore(t, storetest.Registry(t))

	require.NoError(t, s.Set(ctx, storetest.Person("ada")))

	raw := mr.HGet("thinggraph:people", "person:ada")
	assert.Equal(t, `{"id":"person:ada","name":"ada","type":"Person"}`, raw)

	keys, err := s.Keys(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"person:ada"}, keys)
}

func TestPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), Options{URL: "redis://" + mr.Addr(), Prefix: "import42"}, storetest.Registry(t))
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.Set(context.Background(), storetest.Post("p")))
	assert.True(t, mr.Exists("import42:works"))
}

func TestNoEdgeSupport(t *testing.T) {
	s, _ := setupTestStore(t, storetest.Registry(t))
	_, ok := any(s).(store.EdgeStore)
	assert.False(t, ok)
}

func TestServerDown(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestStore(t, storetest.Registry(t))
	mr.Close()

	err := s.Set(ctx, storetest.Person("ada"))
	assert.True(t, thingerr.IsCode(err, thingerr.CodeStorage))

	_, err = s.Get(ctx, "person:ada")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeStorage))

	assert.True(t, thingerr.IsCode(s.Ping(ctx), thingerr.CodeStorage))
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), Options{URL: "not a url"}, storetest.Registry(t))
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))
}
