package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zero-day-ai/thinggraph/filter"
	"github.com/zero-day-ai/thinggraph/lock"
	"github.com/zero-day-ai/thinggraph/merge"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/store/memstore"
	"github.com/zero-day-ai/thinggraph/store/storetest"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.New(
		schema.Node{Name: "Thing", Tag: "thing", Collection: "things"},
		schema.Node{Name: "CreativeWork", Parent: "Thing", Tag: "work", Collection: "works"},
		schema.Node{Name: "BlogPosting", Parent: "CreativeWork", Tag: "post"},
		schema.Node{Name: "Article", Parent: "BlogPosting"},
		schema.Node{Name: "Person", Parent: "Thing", Tag: "person", Collection: "people", Identify: []string{"email"}},
	)
	require.NoError(t, err)
	return reg
}

func newPipeline(t *testing.T, opts ...Option) (*Pipeline, *memstore.Store) {
	t.Helper()
	reg := testRegistry(t)
	s := memstore.New(reg)
	p, err := New(reg, s, opts...)
	require.NoError(t, err)
	return p, s
}

func at(day int) *time.Time {
	d := time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestPut_MillisecondDate(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t)

	rec, err := thing.FromFields(map[string]any{"type": "BlogPosting", "id": "hello", "date": int64(1700000000000)})
	require.NoError(t, err)

	res, err := p.Put(ctx, rec)
	require.NoError(t, err)
	assert.True(t, res.Created)

	got, err := p.Get(ctx, "post:hello")
	require.NoError(t, err)
	assert.Equal(t, 2023, got.Date.Year())

	res, err = p.Put(ctx, rec)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestPut_RejectsUnencodableDate(t *testing.T) {
	ctx := context.Background()
	p, s := newPipeline(t)

	far := time.Date(55840, 11, 8, 22, 13, 20, 0, time.UTC)
	rec := thing.Thing{Type: "BlogPosting", ID: "hello", Date: &far}

	_, err := p.Put(ctx, rec)
	require.Error(t, err)
	assert.True(t, thingerr.IsCode(err, thingerr.CodeInvalidRecord))
	assert.False(t, thingerr.IsRetryable(err))
	assert.Zero(t, s.Writes())

	_, err = p.Get(ctx, "post:hello")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNew_Validation(t *testing.T) {
	reg := testRegistry(t)

	_, err := New(nil, memstore.New(reg))
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))

	_, err = New(reg, nil)
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))
}

func TestPut_CreateThenMerge(t *testing.T) {
	ctx := context.Background()
	p, s := newPipeline(t)

	first := storetest.Post("hello")
	res, err := p.Put(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "post:hello", res.ID)
	assert.Equal(t, "works", res.Collection)
	assert.True(t, res.Created)
	assert.True(t, res.Changed)
	assert.False(t, res.Skipped)
	assert.Equal(t, OutcomeWritten, res.Outcome())

	// identical re-import writes nothing
	res, err = p.Put(ctx, first)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Changed)
	assert.True(t, res.Skipped)
	assert.Equal(t, OutcomeSkipped, res.Outcome())
	assert.Equal(t, 1, s.Writes())

	// a newer partial record overrides and keeps the older fields
	newer := thing.Thing{ID: "post:hello", Type: "BlogPosting", Date: at(1), Name: "Renamed"}
	res, err = p.Put(ctx, newer)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, merge.SideIncoming, res.Report.Winner)
	assert.Equal(t, OutcomeMerged, res.Outcome())

	got, err := p.Get(ctx, "post:hello")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, first.Description, got.Description)
	assert.Equal(t, first.URL, got.URL)
	assert.Equal(t, at(1), got.Date)
}

func TestPut_OlderRecordOnlyFillsGaps(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t)

	_, err := p.Put(ctx, thing.Thing{ID: "post:a", Type: "BlogPosting", Date: at(10), Name: "current"})
	require.NoError(t, err)

	res, err := p.Put(ctx, thing.Thing{ID: "post:a", Type: "BlogPosting", Date: at(2), Name: "stale", URL: "https://a"})
	require.NoError(t, err)
	assert.Equal(t, merge.SideExisting, res.Report.Winner)
	assert.Equal(t, []string{"url"}, res.Report.Filled)

	got, err := p.Get(ctx, "post:a")
	require.NoError(t, err)
	assert.Equal(t, "current", got.Name)
	assert.Equal(t, "https://a", got.URL)
}

func TestPut_DerivedIdentity(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t)

	a := thing.Thing{Type: "Person", Name: "Ada", Extra: map[string]any{"email": "ada@example.com"}}
	b := thing.Thing{Type: "Person", Name: "Ada Lovelace", Date: at(3), Extra: map[string]any{"email": "ada@example.com"}}

	ra, err := p.Put(ctx, a)
	require.NoError(t, err)
	rb, err := p.Put(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, ra.ID, rb.ID, "same identifying field, same entity")
	assert.Regexp(t, `^person:`, ra.ID)
	assert.True(t, ra.Created)
	assert.False(t, rb.Created)

	got, err := p.Get(ctx, ra.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)
}

func TestPut_Filtered(t *testing.T) {
	set, err := filter.Compile([]filter.Rule{{Name: "needs-url", Expr: `has(record.url)`}})
	require.NoError(t, err)
	p, s := newPipeline(t, WithFilters(set))

	res, err := p.Put(context.Background(), thing.Thing{ID: "post:x", Type: "BlogPosting", Name: "no url"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "needs-url", res.FilteredBy)
	assert.Empty(t, res.ID)
	assert.Equal(t, 0, s.Writes())
}

func TestPut_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		record thing.Thing
		code   string
	}{
		{"unknown type", thing.Thing{Type: "Spaceship", Name: "x"}, thingerr.CodeSchemaResolution},
		{"no content", thing.Thing{Type: "BlogPosting"}, thingerr.CodeIdentity},
		{"blank explicit key", thing.Thing{Type: "BlogPosting", ID: "post:  "}, thingerr.CodeIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s := newPipeline(t)
			_, err := p.Put(ctx, tt.record)
			require.Error(t, err)
			assert.True(t, thingerr.IsCode(err, tt.code), "got %v", err)
			assert.False(t, thingerr.IsRetryable(err))
			assert.Equal(t, 0, s.Writes())
		})
	}
}

func TestPut_TypeMismatchReject(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t, WithMerger(merge.New(merge.WithPolicy(merge.MismatchReject))))

	_, err := p.Put(ctx, thing.Thing{ID: "post:a", Type: "BlogPosting", Name: "post"})
	require.NoError(t, err)

	res, err := p.Put(ctx, thing.Thing{ID: "post:a", Type: "Article", Name: "article"})
	require.Error(t, err)
	assert.True(t, thingerr.IsCode(err, thingerr.CodeMergeConflict))
	assert.Equal(t, "post:a", res.ID)

	got, err := p.Get(ctx, "post:a")
	require.NoError(t, err)
	assert.Equal(t, "BlogPosting", got.Type)
}

func TestPut_ConcurrentWithLocker(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLocal()
	p, _ := newPipeline(t, WithLocker(locker))

	var wg sync.WaitGroup
	for day := 1; day <= 20; day++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			_, err := p.Put(ctx, thing.Thing{
				ID:    "post:busy",
				Type:  "BlogPosting",
				Date:  at(day),
				Name:  "v",
				Extra: map[string]any{"seen": int64(day)},
			})
			assert.NoError(t, err)
		}(day)
	}
	wg.Wait()

	got, err := p.Get(ctx, "post:busy")
	require.NoError(t, err)
	assert.Equal(t, at(20), got.Date)
	assert.Equal(t, int64(20), got.Extra["seen"])
	assert.Equal(t, 0, locker.Len())
}

func TestLinkUnlink(t *testing.T) {
	ctx := context.Background()
	p, _ := newPipeline(t)

	_, err := p.Put(ctx, storetest.Post("a"))
	require.NoError(t, err)
	_, err = p.Put(ctx, thing.Thing{ID: "person:ada", Type: "Person", Name: "Ada"})
	require.NoError(t, err)

	e, err := p.Link(ctx, "post:a", "author", "person:ada")
	require.NoError(t, err)
	assert.Equal(t, store.Edge{Key: e.Key, From: "post:a", To: "person:ada", Relation: "author"}, e)

	edges, err := p.Edges(ctx, "person:ada", store.Inbound)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	_, err = p.Link(ctx, "post:a", "author", "person:nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := p.Unlink(ctx, "post:a", "person:ada", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTelemetry(t *testing.T) {
	ctx := context.Background()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	p, _ := newPipeline(t, WithTracerProvider(tp), WithMeterProvider(mp))

	_, err := p.Put(ctx, storetest.Post("a"))
	require.NoError(t, err)
	_, err = p.Put(ctx, storetest.Post("a"))
	require.NoError(t, err)
	_, err = p.Put(ctx, thing.Thing{Type: "Spaceship"})
	require.Error(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "thinggraph.ingest.put", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("ingest.outcome", OutcomeWritten))
	assert.Contains(t, ended[1].Attributes(), attribute.String("ingest.outcome", OutcomeSkipped))
	assert.Contains(t, ended[2].Attributes(), attribute.String("error.code", thingerr.CodeSchemaResolution))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "thinggraph.ingest.records" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				counts[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{OutcomeWritten: 1, OutcomeSkipped: 1, OutcomeFailed: 1}, counts)
}

func TestHealth(t *testing.T) {
	p, _ := newPipeline(t, WithLocker(lock.NewLocal()))
	assert.True(t, p.Health(context.Background()).IsHealthy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, p.Health(ctx).IsUnhealthy())
}
