package thinggraph

import (
	"context"
	"time"

	"github.com/zero-day-ai/thinggraph/config"
	"github.com/zero-day-ai/thinggraph/filter"
	"github.com/zero-day-ai/thinggraph/identity"
	"github.com/zero-day-ai/thinggraph/ingest"
	"github.com/zero-day-ai/thinggraph/lock"
	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/merge"
	"github.com/zero-day-ai/thinggraph/queue"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/store/filestore"
	"github.com/zero-day-ai/thinggraph/store/graphstore"
	"github.com/zero-day-ai/thinggraph/store/memstore"
	"github.com/zero-day-ai/thinggraph/store/redisstore"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "thinggraph"

// Version is the library version.
const Version = "0.1.0"

// Open builds an ingest pipeline from cfg: schema, identity resolver, merge
// policy, store backend, locker and filters. A nil cfg means
// config.Default(). The returned pipeline owns the store and locker.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*ingest.Pipeline, error) {
	if cfg == nil {
		var err error
		if cfg, err = config.Default(); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	oc := &openConfig{}
	for _, opt := range opts {
		opt(oc)
	}

	logger := oc.logger
	if logger == nil {
		var err error
		if logger, err = logging.New(cfg.Log.Mode, cfg.Log.Level); err != nil {
			return nil, thingerr.New(component, "open", thingerr.CodeConfig, "failed to build logger").WithCause(err)
		}
	}

	reg := oc.registry
	if reg == nil {
		var err error
		if reg, err = loadRegistry(cfg.Schema); err != nil {
			return nil, err
		}
	}

	policy, err := merge.ParsePolicy(cfg.Merge.OnTypeMismatch)
	if err != nil {
		return nil, err
	}

	filters, err := filter.Compile(cfg.Filters)
	if err != nil {
		return nil, err
	}

	var resolverOpts []identity.Option
	if len(cfg.Identity.IgnoredFields) > 0 {
		resolverOpts = append(resolverOpts, identity.WithIgnoredFields(cfg.Identity.IgnoredFields...))
	}

	s := oc.store
	if s == nil {
		if s, err = OpenStore(ctx, cfg.Store, reg, logger); err != nil {
			return nil, err
		}
	}

	locker, err := OpenLocker(cfg.Lock)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	pipelineOpts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithResolver(identity.New(reg, resolverOpts...)),
		ingest.WithMerger(merge.New(merge.WithPolicy(policy), merge.WithLogger(logger))),
		ingest.WithFilters(filters),
	}
	if locker != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithLocker(locker))
	}
	if oc.tracerProvider != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithTracerProvider(oc.tracerProvider))
	}
	if oc.meterProvider != nil {
		pipelineOpts = append(pipelineOpts, ingest.WithMeterProvider(oc.meterProvider))
	}

	p, err := ingest.New(reg, s, pipelineOpts...)
	if err != nil {
		if locker != nil {
			_ = locker.Close()
		}
		_ = s.Close(ctx)
		return nil, err
	}

	logger.Info("pipeline ready",
		"store", cfg.Store.Backend,
		"lock", cfg.Lock.Backend,
		"types", reg.Len(),
		"filters", filters.Len(),
		"policy", string(policy),
	)
	return p, nil
}

func loadRegistry(cfg config.SchemaConfig) (*schema.Registry, error) {
	if cfg.Path == "" {
		return schema.Default(), nil
	}
	return schema.Load(cfg.Path)
}

// OpenStore opens the backend selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig, reg *schema.Registry, logger *logging.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMem:
		return memstore.New(reg), nil

	case config.BackendFile:
		if cfg.File == nil {
			return nil, thingerr.New(component, "open_store", thingerr.CodeConfig, "store.file is required")
		}
		fs, err := filestore.Open(cfg.File.Root, reg, filestore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return fs, nil

	case config.BackendNeo4j:
		if cfg.Neo4j == nil {
			return nil, thingerr.New(component, "open_store", thingerr.CodeConfig, "store.neo4j is required")
		}
		gs, err := graphstore.Open(ctx, graphstore.Config{
			URI:              cfg.Neo4j.URI,
			User:             cfg.Neo4j.User,
			Password:         cfg.Neo4j.Password,
			Database:         cfg.Neo4j.Database,
			RelationshipType: cfg.Neo4j.RelationshipType,
			MaxPoolSize:      cfg.Neo4j.MaxPoolSize,
			ConnectTimeout:   cfg.Neo4j.GetConnectTimeout(),
		}, reg, graphstore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if cfg.Neo4j.EnsureSchema {
			if err := gs.EnsureSchema(ctx); err != nil {
				_ = gs.Close(ctx)
				return nil, err
			}
		}
		return gs, nil

	case config.BackendRedis:
		if cfg.Redis == nil {
			return nil, thingerr.New(component, "open_store", thingerr.CodeConfig, "store.redis is required")
		}
		rs, err := redisstore.Open(ctx, redisstore.Options{
			URL:            cfg.Redis.URL,
			Prefix:         cfg.Redis.Prefix,
			ConnectTimeout: cfg.Redis.GetConnectTimeout(),
			ReadTimeout:    cfg.Redis.GetReadTimeout(),
			WriteTimeout:   cfg.Redis.GetWriteTimeout(),
			Logger:         logger,
		}, reg)
		if err != nil {
			return nil, err
		}
		return rs, nil

	default:
		return nil, thingerr.Newf(component, "open_store", thingerr.CodeConfig, "unknown store backend %q", cfg.Backend)
	}
}

// OpenLocker builds the locker selected by cfg.Backend. It returns nil for
// the "none" backend.
func OpenLocker(cfg config.LockConfig) (lock.Locker, error) {
	switch cfg.Backend {
	case "", config.LockNone:
		return nil, nil
	case config.LockLocal:
		return lock.NewLocal(), nil
	case config.LockEtcd:
		if cfg.Etcd == nil {
			return nil, thingerr.New(component, "open_locker", thingerr.CodeConfig, "lock.etcd is required")
		}
		lc := lock.EtcdConfig{
			Endpoints:   cfg.Etcd.Endpoints,
			Namespace:   cfg.Etcd.Namespace,
			TTL:         cfg.Etcd.GetTTL(),
			DialTimeout: cfg.Etcd.GetDialTimeout(),
		}
		if cfg.Etcd.TLSEnabled {
			lc.TLS = &lock.TLSConfig{
				Enabled:  true,
				CertFile: cfg.Etcd.CertFile,
				KeyFile:  cfg.Etcd.KeyFile,
				CAFile:   cfg.Etcd.CAFile,
			}
		}
		l, err := lock.NewEtcd(lc)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, thingerr.Newf(component, "open_locker", thingerr.CodeConfig, "unknown lock backend %q", cfg.Backend)
	}
}

// OpenWorker connects to the configured ingest queue and returns a worker
// feeding p. The caller closes the returned client.
func OpenWorker(ctx context.Context, cfg config.QueueConfig, p *ingest.Pipeline, logger *logging.Logger) (*queue.Worker, *queue.RedisClient, error) {
	if cfg.URL == "" {
		return nil, nil, thingerr.New(component, "open_worker", thingerr.CodeConfig, "queue.url is required")
	}
	client, err := queue.NewRedisClient(ctx, queue.RedisOptions{
		URL:         cfg.URL,
		ReadTimeout: cfg.GetPollTimeout() + 5*time.Second,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	name := cfg.Name
	if name == "" {
		name = queue.DefaultQueue
	}
	w := queue.NewWorker(client, p,
		queue.WithQueue(name),
		queue.WithPollTimeout(cfg.GetPollTimeout()),
		queue.WithLogger(logger),
	)
	return w, client, nil
}
