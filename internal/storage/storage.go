package storage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/config"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

// Client is the capability surface the pipeline needs from an object store.
type Client interface {
	FetchObject(ctx context.Context, bucket string, key string) ([]byte, error)
	DeleteObject(ctx context.Context, bucket string, key string) error
}

type Factory func(ctx context.Context, args interface{}) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// Provider is the process-wide handle to the selected backend. The inner
// client is built lazily on first use and recycled after maxAge so that
// short-lived credentials get refreshed; recycling is a cache policy, not a
// correctness requirement.
type Provider struct {
	name    string
	factory Factory
	args    interface{}
	maxAge  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	client  Client
	builtAt time.Time
}

// NewProvider resolves the backend variant from the environment switches and
// the configured default, once per process. Unknown variants and absent
// selection are configuration errors.
func NewProvider(cfg config.StorageConfig) (*Provider, error) {
	name, err := config.ResolveStorageProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	factory := registry[name]
	registryMu.RUnlock()
	if factory == nil {
		return nil, errs.Newf(errs.ErrConfiguration, "unsupported storage backend: %s", name)
	}
	return &Provider{
		name:    name,
		factory: factory,
		args:    cfg.Providers[name],
		maxAge:  time.Duration(cfg.MaxClientAgeMinutes) * time.Minute,
		now:     time.Now,
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) get(ctx context.Context) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && (p.maxAge <= 0 || p.now().Sub(p.builtAt) < p.maxAge) {
		return p.client, nil
	}
	client, err := p.factory(ctx, p.args)
	if err != nil {
		return nil, err
	}
	if p.client != nil {
		logutil.GetLogger(ctx).Info("storage client recycled", zap.String("backend", p.name))
	}
	p.client = client
	p.builtAt = p.now()
	return client, nil
}

func (p *Provider) FetchObject(ctx context.Context, bucket string, key string) ([]byte, error) {
	client, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return client.FetchObject(ctx, bucket, key)
}

func (p *Provider) DeleteObject(ctx context.Context, bucket string, key string) error {
	client, err := p.get(ctx)
	if err != nil {
		return err
	}
	return client.DeleteObject(ctx, bucket, key)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return errs.New(errs.ErrConfiguration, "storage backend config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.ErrConfiguration, err, "encode storage backend config")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errs.Wrap(errs.ErrConfiguration, err, "decode storage backend config")
	}
	return nil
}
