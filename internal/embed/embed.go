package embed

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kbworks/docingest/internal/config"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

// MaxBatchSize is the provider-side ceiling on one embedding request. The
// uploader keeps its own batch size under this; exceeding it here is a
// caller bug, not a remote failure.
const MaxBatchSize = 100

// Embedder maps a batch of texts to one vector per text, order preserved.
// Either every input gets a vector or the call fails as a whole.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

type Factory func(model string, args interface{}) (Embedder, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func New(cfg config.EmbeddingConfig) (Embedder, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if key == "" {
		return nil, errs.New(errs.ErrConfiguration, "embedding.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, errs.Newf(errs.ErrConfiguration, "unsupported embedding provider: %s", cfg.Provider)
	}
	return factory(cfg.Model, cfg.Data)
}

func checkBatch(texts []string) error {
	if len(texts) == 0 {
		return errs.New(errs.ErrEmbedding, "empty batch")
	}
	if len(texts) > MaxBatchSize {
		return errs.Newf(errs.ErrEmbedding, "batch of %d exceeds provider limit of %d", len(texts), MaxBatchSize)
	}
	return nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return errs.New(errs.ErrConfiguration, "embedding provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.ErrConfiguration, err, "encode embedding provider config")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errs.Wrap(errs.ErrConfiguration, err, "decode embedding provider config")
	}
	return nil
}
