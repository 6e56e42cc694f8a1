package thinggraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/thinggraph/config"
	"github.com/zero-day-ai/thinggraph/filter"
	"github.com/zero-day-ai/thinggraph/lock"
	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/queue"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store/memstore"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

func TestOpen_Defaults(t *testing.T) {
	for _, k := range []string{"THINGGRAPH_STORE", "LOG_MODE", "LOG_LEVEL", "ETCD_ENDPOINTS"} {
		t.Setenv(k, "")
	}
	ctx := context.Background()

	p, err := Open(ctx, nil, WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer p.Close(ctx)

	_, ok := p.Store().(*memstore.Store)
	assert.True(t, ok)
	assert.True(t, p.Relations().Supported())

	res, err := p.Put(ctx, thing.Thing{Type: "BlogPosting", Name: "Hello", URL: "https://example.com/hello"})
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestOpen_FileBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "types.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`types:
  - name: Thing
    tag: thing
    collection: things
  - name: Note
    parent: Thing
    tag: note
    collection: notes
`), 0o644))

	cfg := &config.Config{
		Schema: config.SchemaConfig{Path: schemaPath},
		Store:  config.StoreConfig{Backend: config.BackendFile, File: &config.FileConfig{Root: filepath.Join(dir, "data")}},
		Lock:   config.LockConfig{Backend: config.LockLocal},
		Filters: []filter.Rule{
			{Name: "named", Expr: `has(record.name)`},
		},
	}
	cfg.ApplyDefaults()

	p, err := Open(ctx, cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer p.Close(ctx)

	res, err := p.Put(ctx, thing.Thing{ID: "n1", Type: "Note", Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, "note:n1", res.ID)
	assert.FileExists(t, filepath.Join(dir, "data", "notes", "n1.json"))

	res, err = p.Put(ctx, thing.Thing{ID: "n2", Type: "Note"})
	require.NoError(t, err)
	assert.Equal(t, "named", res.FilteredBy)

	assert.False(t, p.Relations().Supported())
	_, err = p.Link(ctx, "note:n1", "see", "note:n1")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeUnsupported))
}

func TestOpen_RedisBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Store: config.StoreConfig{
			Backend: config.BackendRedis,
			Redis:   &config.RedisConfig{URL: "redis://" + mr.Addr(), Prefix: "test"},
		},
	}
	cfg.ApplyDefaults()

	p, err := Open(ctx, cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer p.Close(ctx)

	res, err := p.Put(ctx, thing.Thing{ID: "ada", Type: "Person", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "person:ada", res.ID)
	assert.True(t, mr.Exists("test:"+res.Collection))
}

func TestOpen_WithStore(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Store: config.StoreConfig{Backend: config.BackendMem}}
	cfg.ApplyDefaults()

	reg := schema.Default()
	s := memstore.New(reg)
	p, err := Open(ctx, cfg, WithLogger(logging.Nop()), WithRegistry(reg), WithStore(s))
	require.NoError(t, err)
	assert.Same(t, s, p.Store())
	assert.Same(t, reg, p.Registry())
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{
			name: "invalid config",
			cfg:  &config.Config{Store: config.StoreConfig{Backend: "tape"}},
		},
		{
			name: "missing schema",
			cfg: &config.Config{
				Schema: config.SchemaConfig{Path: filepath.Join(t.TempDir(), "nope.yaml")},
				Store:  config.StoreConfig{Backend: config.BackendMem},
			},
		},
		{
			name: "bad filter",
			cfg: &config.Config{
				Store:   config.StoreConfig{Backend: config.BackendMem},
				Filters: []filter.Rule{{Name: "broken", Expr: "record.name +"}},
			},
		},
		{
			name: "bad log level",
			cfg: &config.Config{
				Log:   config.LogConfig{Level: "loud"},
				Store: config.StoreConfig{Backend: config.BackendMem},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			_, err := Open(ctx, tt.cfg)
			require.Error(t, err)
			assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig), "got %v", err)
		})
	}
}

func TestOpenLocker(t *testing.T) {
	l, err := OpenLocker(config.LockConfig{Backend: config.LockNone})
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = OpenLocker(config.LockConfig{Backend: config.LockLocal})
	require.NoError(t, err)
	assert.IsType(t, &lock.Local{}, l)

	_, err = OpenLocker(config.LockConfig{Backend: config.LockEtcd})
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))

	_, err = OpenLocker(config.LockConfig{Backend: "chubby"})
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))
}

func TestOpenWorker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	p, err := Open(ctx, nil, WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer p.Close(ctx)

	_, _, err = OpenWorker(ctx, config.QueueConfig{}, p, logging.Nop())
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))

	w, client, err := OpenWorker(ctx, config.QueueConfig{URL: "redis://" + mr.Addr(), Name: "imports", PollTimeout: "1s"}, p, logging.Nop())
	require.NoError(t, err)
	defer client.Close()

	_, err = queue.Submit(ctx, client, "imports", []thing.Thing{{ID: "w", Type: "BlogPosting", Name: "queued"}})
	require.NoError(t, err)

	handled, err := w.Step(ctx)
	require.NoError(t, err)
	assert.True(t, handled)

	got, err := p.Get(ctx, "post:w")
	require.NoError(t, err)
	assert.Equal(t, "queued", got.Name)
}
