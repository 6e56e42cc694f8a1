// Package config loads thinggraph.yaml, the file that wires a schema, a
// store backend, an optional locker and record filters into a pipeline.
//
// Loading applies defaults, then environment overrides, then validation:
//
//	THINGGRAPH_STORE   store.backend
//	THINGGRAPH_ROOT    store.file.root
//	NEO4J_URI          store.neo4j.uri
//	NEO4J_USER         store.neo4j.user
//	NEO4J_PASSWORD     store.neo4j.password
//	NEO4J_DATABASE     store.neo4j.database
//	REDIS_URL          store.redis.url
//	ETCD_ENDPOINTS     lock.etcd.endpoints (comma separated)
//	THINGGRAPH_QUEUE   queue.url
//	LOG_MODE           log.mode
//	LOG_LEVEL          log.level
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/thinggraph/filter"
	"github.com/zero-day-ai/thinggraph/merge"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "config"

// File names searched for when Load is given a directory.
var FileNames = []string{"thinggraph.yaml", "thinggraph.yml"}

// Store backends.
const (
	BackendFile  = "file"
	BackendNeo4j = "neo4j"
	BackendRedis = "redis"
	BackendMem   = "memory"
)

// Lock backends.
const (
	LockNone  = "none"
	LockLocal = "local"
	LockEtcd  = "etcd"
)

// Config is the root of thinggraph.yaml.
type Config struct {
	Log      LogConfig      `yaml:"log,omitempty"`
	Schema   SchemaConfig   `yaml:"schema,omitempty"`
	Identity IdentityConfig `yaml:"identity,omitempty"`
	Merge    MergeConfig    `yaml:"merge,omitempty"`
	Store    StoreConfig    `yaml:"store"`
	Lock     LockConfig     `yaml:"lock,omitempty"`
	Queue    QueueConfig    `yaml:"queue,omitempty"`

	// Filters are CEL rules every record must pass to be ingested.
	Filters []filter.Rule `yaml:"filters,omitempty"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	// Mode is "development" (console) or "production" (JSON).
	// Default: development
	Mode string `yaml:"mode,omitempty"`

	// Level is a zap level name ("debug", "info", ...).
	// Default: the preset's level
	Level string `yaml:"level,omitempty"`
}

// SchemaConfig points at the type forest.
type SchemaConfig struct {
	// Path to a YAML type forest. Empty selects the built-in default.
	Path string `yaml:"path,omitempty"`
}

// IdentityConfig tunes content hashing.
type IdentityConfig struct {
	// IgnoredFields replaces the default volatile field list.
	IgnoredFields []string `yaml:"ignored_fields,omitempty"`
}

// MergeConfig tunes the merge engine.
type MergeConfig struct {
	// OnTypeMismatch is one of merge, reject, prefer_existing,
	// prefer_incoming.
	// Default: merge
	OnTypeMismatch string `yaml:"on_type_mismatch,omitempty"`
}

// StoreConfig selects and configures the entity store.
type StoreConfig struct {
	// Backend is file, neo4j, redis or memory.
	// Default: file
	Backend string `yaml:"backend,omitempty"`

	File  *FileConfig  `yaml:"file,omitempty"`
	Neo4j *Neo4jConfig `yaml:"neo4j,omitempty"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// FileConfig configures the bucketed file store.
type FileConfig struct {
	// Root is the directory holding one subdirectory per collection.
	// Relative paths are resolved against the config file's directory.
	Root string `yaml:"root"`
}

// Neo4jConfig configures the graph store.
type Neo4jConfig struct {
	URI              string `yaml:"uri"`
	User             string `yaml:"user,omitempty"`
	Password         string `yaml:"password,omitempty"`
	Database         string `yaml:"database,omitempty"`
	RelationshipType string `yaml:"relationship_type,omitempty"`
	MaxPoolSize      int    `yaml:"max_pool_size,omitempty"`

	// ConnectTimeout is a Go duration string.
	// Default: 10s
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`

	// EnsureSchema creates key constraints on open.
	EnsureSchema bool `yaml:"ensure_schema,omitempty"`
}

// GetConnectTimeout parses the connect timeout, falling back to 10s.
func (c *Neo4jConfig) GetConnectTimeout() time.Duration {
	return durationOr(c.ConnectTimeout, 10*time.Second)
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix,omitempty"`

	// ConnectTimeout is a Go duration string.
	// Default: 5s
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`

	// ReadTimeout is a Go duration string.
	// Default: 5s
	ReadTimeout string `yaml:"read_timeout,omitempty"`

	// WriteTimeout is a Go duration string.
	// Default: 5s
	WriteTimeout string `yaml:"write_timeout,omitempty"`
}

// GetConnectTimeout parses the connect timeout, falling back to 5s.
func (c *RedisConfig) GetConnectTimeout() time.Duration {
	return durationOr(c.ConnectTimeout, 5*time.Second)
}

// GetReadTimeout parses the read timeout, falling back to 5s.
func (c *RedisConfig) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, 5*time.Second)
}

// GetWriteTimeout parses the write timeout, falling back to 5s.
func (c *RedisConfig) GetWriteTimeout() time.Duration {
	return durationOr(c.WriteTimeout, 5*time.Second)
}

// QueueConfig points importers and workers at a Redis ingest queue.
type QueueConfig struct {
	// URL is the Redis connection string. Empty disables the queue.
	URL string `yaml:"url,omitempty"`

	// Name is the list holding pending records.
	// Default: thinggraph:ingest
	Name string `yaml:"name,omitempty"`

	// PollTimeout bounds each blocking pop. Go duration string.
	// Default: 5s
	PollTimeout string `yaml:"poll_timeout,omitempty"`
}

// GetPollTimeout parses the poll timeout, falling back to 5s.
func (c QueueConfig) GetPollTimeout() time.Duration {
	return durationOr(c.PollTimeout, 5*time.Second)
}

// LockConfig selects per-ID write serialization.
type LockConfig struct {
	// Backend is none, local or etcd.
	// Default: none
	Backend string `yaml:"backend,omitempty"`

	Etcd *EtcdConfig `yaml:"etcd,omitempty"`
}

// EtcdConfig configures the etcd locker.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Namespace string   `yaml:"namespace,omitempty"`

	// TTL is the session lease in seconds.
	// Default: 30
	TTL int `yaml:"ttl,omitempty"`

	// DialTimeout is a Go duration string.
	// Default: 5s
	DialTimeout string `yaml:"dial_timeout,omitempty"`

	TLSEnabled bool   `yaml:"tls_enabled,omitempty"`
	CertFile   string `yaml:"cert_file,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	CAFile     string `yaml:"ca_file,omitempty"`
}

// GetDialTimeout parses the dial timeout, falling back to 5s.
func (c *EtcdConfig) GetDialTimeout() time.Duration {
	return durationOr(c.DialTimeout, 5*time.Second)
}

// GetTTL returns the lease TTL or the default.
func (c *EtcdConfig) GetTTL() int {
	if c == nil || c.TTL <= 0 {
		return 30
	}
	return c.TTL
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Load reads a config file, or the first of FileNames inside a directory,
// then applies defaults, environment overrides and validation.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, configErr("load", err, "failed to stat %s", path)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range FileNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, thingerr.Newf(component, "load", thingerr.CodeConfig,
				"no %s found in %s", strings.Join(FileNames, " or "), path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, configErr("load", err, "failed to read %s", configPath)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(configPath))
	return cfg, nil
}

// Parse decodes YAML and applies defaults, environment overrides and
// validation. Relative paths are left as written.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, configErr("parse", err, "failed to parse config")
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration for an in-memory store,
// honoring environment overrides.
func Default() (*Config, error) {
	cfg := &Config{Store: StoreConfig{Backend: BackendMem}}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	if c.Schema.Path != "" && !filepath.IsAbs(c.Schema.Path) {
		c.Schema.Path = filepath.Join(base, c.Schema.Path)
	}
	if c.Store.File != nil && c.Store.File.Root != "" && !filepath.IsAbs(c.Store.File.Root) {
		c.Store.File.Root = filepath.Join(base, c.Store.File.Root)
	}
}

// ApplyDefaults fills unset selectors.
func (c *Config) ApplyDefaults() {
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = LockNone
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "thinggraph:ingest"
	}
	if c.Merge.OnTypeMismatch == "" {
		c.Merge.OnTypeMismatch = string(merge.MismatchMerge)
	}
}

// ApplyEnv overlays the environment variables listed in the package
// documentation. Unset or empty variables leave the config untouched.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Log.Mode, "LOG_MODE")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Store.Backend, "THINGGRAPH_STORE")
	set(&c.Queue.URL, "THINGGRAPH_QUEUE")

	if v := os.Getenv("THINGGRAPH_ROOT"); v != "" {
		if c.Store.File == nil {
			c.Store.File = &FileConfig{}
		}
		c.Store.File.Root = v
	}
	if os.Getenv("NEO4J_URI") != "" || c.Store.Neo4j != nil {
		if c.Store.Neo4j == nil {
			c.Store.Neo4j = &Neo4jConfig{}
		}
		set(&c.Store.Neo4j.URI, "NEO4J_URI")
		set(&c.Store.Neo4j.User, "NEO4J_USER")
		set(&c.Store.Neo4j.Password, "NEO4J_PASSWORD")
		set(&c.Store.Neo4j.Database, "NEO4J_DATABASE")
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		if c.Store.Redis == nil {
			c.Store.Redis = &RedisConfig{}
		}
		c.Store.Redis.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("ETCD_ENDPOINTS")); v != "" {
		if c.Lock.Etcd == nil {
			c.Lock.Etcd = &EtcdConfig{}
		}
		c.Lock.Etcd.Endpoints = nil
		for _, ep := range strings.Split(v, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				c.Lock.Etcd.Endpoints = append(c.Lock.Etcd.Endpoints, ep)
			}
		}
	}
}

// Validate checks selectors, required per-backend settings, the merge
// policy and duration strings.
func (c *Config) Validate() error {
	if _, err := merge.ParsePolicy(c.Merge.OnTypeMismatch); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.File == nil || c.Store.File.Root == "" {
			return invalid("store.file.root is required for the file backend")
		}
	case BackendNeo4j:
		if c.Store.Neo4j == nil || c.Store.Neo4j.URI == "" {
			return invalid("store.neo4j.uri is required for the neo4j backend")
		}
		if err := checkDuration("store.neo4j.connect_timeout", c.Store.Neo4j.ConnectTimeout); err != nil {
			return err
		}
	case BackendRedis:
		if c.Store.Redis == nil || c.Store.Redis.URL == "" {
			return invalid("store.redis.url is required for the redis backend")
		}
		for name, v := range map[string]string{
			"store.redis.connect_timeout": c.Store.Redis.ConnectTimeout,
			"store.redis.read_timeout":    c.Store.Redis.ReadTimeout,
			"store.redis.write_timeout":   c.Store.Redis.WriteTimeout,
		} {
			if err := checkDuration(name, v); err != nil {
				return err
			}
		}
	case BackendMem:
	default:
		return invalid(fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}

	switch c.Lock.Backend {
	case LockNone, LockLocal:
	case LockEtcd:
		if c.Lock.Etcd == nil || len(c.Lock.Etcd.Endpoints) == 0 {
			return invalid("lock.etcd.endpoints is required for the etcd lock backend")
		}
		if err := checkDuration("lock.etcd.dial_timeout", c.Lock.Etcd.DialTimeout); err != nil {
			return err
		}
	default:
		return invalid(fmt.Sprintf("unknown lock backend %q", c.Lock.Backend))
	}

	if err := checkDuration("queue.poll_timeout", c.Queue.PollTimeout); err != nil {
		return err
	}

	for i, r := range c.Filters {
		if strings.TrimSpace(r.Expr) == "" {
			return invalid(fmt.Sprintf("filters[%d] has an empty expression", i))
		}
	}
	return nil
}

func checkDuration(name, v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.ParseDuration(v); err != nil {
		return configErr("validate", err, "%s: invalid duration %q", name, v)
	}
	return nil
}

func invalid(msg string) error {
	return thingerr.New(component, "validate", thingerr.CodeConfig, msg)
}

func configErr(op string, cause error, format string, args ...any) error {
	return thingerr.Newf(component, op, thingerr.CodeConfig, format, args...).WithCause(cause)
}
