package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

// EtcdConfig configures an Etcd locker.
type EtcdConfig struct {
	// Endpoints is the list of etcd endpoints
	// Format: ["host1:2379", "host2:2379"]
	Endpoints []string `yaml:"endpoints" json:"endpoints"`

	// Namespace prefixes every lock key as /{namespace}/locks/{escaped id}
	// Default: "thinggraph"
	Namespace string `yaml:"namespace" json:"namespace"`

	// TTL is the session lease time-to-live in seconds. Locks held by a
	// process that dies are released after at most TTL seconds.
	// Default: 30
	TTL int `yaml:"ttl" json:"ttl"`

	// DialTimeout bounds connection setup. Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// TLS configures client certificates. Nil or disabled means plaintext.
	TLS *TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`
}

// Etcd is a Locker backed by etcd mutexes, for importers running in
// separate processes. One lease-backed session is shared by all locks of a
// locker; a Local lock in front of it serializes goroutines of the same
// process, which etcd would otherwise treat as the same owner.
type Etcd struct {
	client  *clientv3.Client
	session *concurrency.Session
	prefix  string
	local   *Local
}

var _ Locker = (*Etcd)(nil)

// NewEtcd connects to etcd and opens a session.
func NewEtcd(cfg EtcdConfig) (*Etcd, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, thingerr.New(component, "connect", thingerr.CodeConfig, "etcd endpoints cannot be empty")
	}
	namespace := strings.Trim(cfg.Namespace, "/")
	if namespace == "" {
		namespace = "thinggraph"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dial,
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := cfg.TLS.ClientConfig()
		if err != nil {
			return nil, thingerr.New(component, "connect", thingerr.CodeConfig, "failed to configure TLS").WithCause(err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, thingerr.Storage(component, "connect", fmt.Errorf("failed to create etcd client: %w", err))
	}

	session, err := concurrency.NewSession(cli, concurrency.WithTTL(ttl))
	if err != nil {
		cli.Close()
		return nil, thingerr.Storage(component, "connect", fmt.Errorf("failed to open etcd session: %w", err))
	}

	return &Etcd{
		client:  cli,
		session: session,
		prefix:  "/" + namespace + "/locks/",
		local:   NewLocal(),
	}, nil
}

// Key returns the etcd key prefix of the mutex guarding id.
func (e *Etcd) Key(id string) string {
	return e.prefix + store.EscapeKey(id)
}

// Lock implements Locker.
func (e *Etcd) Lock(ctx context.Context, id string) (Unlock, error) {
	unlockLocal, err := e.local.Lock(ctx, id)
	if err != nil {
		return nil, err
	}

	m := concurrency.NewMutex(e.session, e.Key(id))
	if err := m.Lock(ctx); err != nil {
		_ = unlockLocal(ctx)
		return nil, thingerr.Storage(component, "lock", err)
	}

	return once(func(ctx context.Context) error {
		defer unlockLocal(ctx)
		return thingerr.Storage(component, "unlock", m.Unlock(ctx))
	}), nil
}

// Ping fails once the session lease has expired or when etcd does not
// answer a read.
func (e *Etcd) Ping(ctx context.Context) error {
	select {
	case <-e.session.Done():
		return thingerr.New(component, "ping", thingerr.CodeStorage, "etcd session expired")
	default:
	}
	_, err := e.client.Get(ctx, e.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	return thingerr.Storage(component, "ping", err)
}

// Close ends the session, releasing every lock it holds, and closes the
// client.
func (e *Etcd) Close() error {
	serr := e.session.Close()
	cerr := e.client.Close()
	if serr != nil {
		return thingerr.Storage(component, "close", serr)
	}
	return thingerr.Storage(component, "close", cerr)
}
