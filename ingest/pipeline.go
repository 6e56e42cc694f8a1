package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/thinggraph/filter"
	"github.com/zero-day-ai/thinggraph/health"
	"github.com/zero-day-ai/thinggraph/identity"
	"github.com/zero-day-ai/thinggraph/lock"
	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/merge"
	"github.com/zero-day-ai/thinggraph/relation"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const (
	component           = "ingest"
	instrumentationName = "github.com/zero-day-ai/thinggraph/ingest"
)

// Outcomes recorded on the records counter.
const (
	OutcomeWritten = "written"
	OutcomeMerged  = "merged"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Result describes what Put did with one record.
type Result struct {
	// ID is the canonical ID, empty when the record was filtered out or
	// failed before identification.
	ID string

	// Collection is the storage partition of the record's type.
	Collection string

	// Created is true when no entity with ID existed before.
	Created bool

	// Changed is true when the store was written.
	Changed bool

	// Skipped is true when nothing was written, either because a filter
	// rejected the record or because the merge produced no change.
	Skipped bool

	// FilteredBy names the rule that rejected the record.
	FilteredBy string

	// Report is the merge report. Zero when the record was filtered out.
	Report merge.Report
}

// Outcome classifies the result for metrics and summaries.
func (r Result) Outcome() string {
	switch {
	case r.Skipped:
		return OutcomeSkipped
	case r.Created:
		return OutcomeWritten
	default:
		return OutcomeMerged
	}
}

// Pipeline is safe for concurrent use when its store and locker are. Without
// a locker, concurrent Puts for one ID race on the read-merge-write cycle.
type Pipeline struct {
	registry  *schema.Registry
	store     store.Store
	resolver  *identity.Resolver
	merger    *merge.Merger
	locker    lock.Locker
	filters   *filter.Set
	relations *relation.Layer
	logger    *logging.Logger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	records        metric.Int64Counter
	duration       metric.Float64Histogram
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver replaces the default identity resolver.
func WithResolver(r *identity.Resolver) Option {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

// WithMerger replaces the default merger.
func WithMerger(m *merge.Merger) Option {
	return func(p *Pipeline) {
		p.merger = m
	}
}

// WithLocker serializes Puts per canonical ID.
func WithLocker(l lock.Locker) Option {
	return func(p *Pipeline) {
		p.locker = l
	}
}

// WithFilters drops records that fail any rule in s.
func WithFilters(s *filter.Set) Option {
	return func(p *Pipeline) {
		p.filters = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		p.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Pipeline) {
		p.meterProvider = mp
	}
}

// New creates a Pipeline writing to s.
func New(reg *schema.Registry, s store.Store, opts ...Option) (*Pipeline, error) {
	if reg == nil {
		return nil, thingerr.New(component, "new", thingerr.CodeConfig, "schema registry is required")
	}
	if s == nil {
		return nil, thingerr.New(component, "new", thingerr.CodeConfig, "store is required")
	}

	p := &Pipeline{registry: reg, store: s}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = logging.OrNop(p.logger)
	if p.resolver == nil {
		p.resolver = identity.New(reg)
	}
	if p.merger == nil {
		p.merger = merge.New(merge.WithLogger(p.logger))
	}
	if p.tracerProvider == nil {
		p.tracerProvider = otel.GetTracerProvider()
	}
	if p.meterProvider == nil {
		p.meterProvider = otel.GetMeterProvider()
	}
	p.relations = relation.New(s)

	p.tracer = p.tracerProvider.Tracer(instrumentationName)
	meter := p.meterProvider.Meter(instrumentationName)

	var err error
	p.records, err = meter.Int64Counter(
		"thinggraph.ingest.records",
		metric.WithDescription("Records handled by the ingest pipeline"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, thingerr.New(component, "new", thingerr.CodeConfig, "create records counter").WithCause(err)
	}
	p.duration, err = meter.Float64Histogram(
		"thinggraph.ingest.duration",
		metric.WithDescription("Time spent in Put"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, thingerr.New(component, "new", thingerr.CodeConfig, "create duration histogram").WithCause(err)
	}

	return p, nil
}

// Registry returns the schema registry.
func (p *Pipeline) Registry() *schema.Registry {
	return p.registry
}

// Store returns the underlying store.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// Relations returns the relationship layer over the store.
func (p *Pipeline) Relations() *relation.Layer {
	return p.relations
}

// Put ingests one record.
func (p *Pipeline) Put(ctx context.Context, t thing.Thing) (Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "thinggraph.ingest.put",
		trace.WithAttributes(attribute.String("thing.type", t.Type)))
	defer span.End()

	res, err := p.put(ctx, t)

	outcome := res.Outcome()
	if err != nil {
		outcome = OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", thingerr.Code(err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.String("thing.id", res.ID),
		attribute.String("thing.collection", res.Collection),
		attribute.String("ingest.outcome", outcome),
	)

	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("collection", res.Collection),
	)
	p.records.Add(ctx, 1, attrs)
	p.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)

	return res, err
}

func (p *Pipeline) put(ctx context.Context, t thing.Thing) (Result, error) {
	var res Result

	allowed, rule, err := p.filters.Allow(t)
	if err != nil {
		return res, err
	}
	if !allowed {
		p.logger.Debug("record filtered", "type", t.Type, "rule", rule)
		return Result{Skipped: true, FilteredBy: rule}, nil
	}
	if err := thing.CheckDate(t.Date); err != nil {
		return res, err
	}

	resolution, err := p.registry.Resolve(t.Type)
	if err != nil {
		return res, err
	}
	res.Collection = resolution.Collection

	id, err := p.resolver.Identify(t)
	if err != nil {
		return res, err
	}
	t.ID = id
	res.ID = id

	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, id)
		if err != nil {
			return res, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("failed to release lock", "id", id, "error", err)
			}
		}()
	}

	existing, err := p.store.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		existing = nil
	case err != nil:
		return res, err
	}
	res.Created = existing == nil

	merged, report, err := p.merger.Merge(existing, t)
	if err != nil {
		return res, err
	}
	res.Report = report
	if !report.Changed {
		res.Skipped = true
		return res, nil
	}

	if err := p.store.Set(ctx, merged); err != nil {
		return res, err
	}
	res.Changed = true

	p.logger.Debug("record stored",
		"id", id,
		"collection", res.Collection,
		"created", res.Created,
		"winner", string(report.Winner),
		"filled", len(report.Filled),
	)
	return res, nil
}

// Get returns the stored entity for a canonical ID.
func (p *Pipeline) Get(ctx context.Context, id string) (*thing.Thing, error) {
	return p.store.Get(ctx, id)
}

// Link records from -relation-> to. Both entities must already be stored.
func (p *Pipeline) Link(ctx context.Context, from, rel, to string) (store.Edge, error) {
	ctx, span := p.tracer.Start(ctx, "thinggraph.ingest.link",
		trace.WithAttributes(
			attribute.String("edge.from", from),
			attribute.String("edge.to", to),
			attribute.String("edge.relation", rel),
		))
	defer span.End()

	e, err := p.relations.Link(ctx, from, rel, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return e, err
}

// Unlink removes edges between from and to. An empty relation removes all
// of them. It returns the number of edges removed.
func (p *Pipeline) Unlink(ctx context.Context, from, to, rel string) (int, error) {
	return p.relations.Unlink(ctx, from, to, rel)
}

// Edges lists edges touching id.
func (p *Pipeline) Edges(ctx context.Context, id string, dir store.Direction) ([]store.Edge, error) {
	return p.relations.Edges(ctx, id, dir)
}

// Health checks the store and, when it can be pinged, the locker.
func (p *Pipeline) Health(ctx context.Context) health.Status {
	checks := []health.Status{health.StoreCheck(ctx, p.store)}
	if pinger, ok := p.locker.(health.Pinger); ok {
		checks = append(checks, health.PingCheck(ctx, "lock", pinger))
	}
	return health.Combine(checks...)
}

// Close closes the locker, if any, then the store.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	if p.locker != nil {
		if err := p.locker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close locker: %w", err))
		}
	}
	if err := p.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
