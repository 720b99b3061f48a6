package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/embed"
)

// WrapLRU puts an in-process expirable cache in front of an embedder.
// Lookups are per text; only the misses of a batch are forwarded, and the
// merged result keeps the caller's order.
func WrapLRU(e embed.Embedder, size int, ttl time.Duration) embed.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  embed.Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	missTexts := make([]string, 0, len(texts))
	missIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if cached, ok := l.cache.Get(buildCacheKey(l.next.ModelName(), text)); ok {
			result[i] = cloneEmbedding(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		logutil.GetLogger(ctx).Debug("embedding batch fully cached", zap.Int("count", len(texts)))
		return result, nil
	}
	if len(missTexts) < len(texts) {
		logutil.GetLogger(ctx).Debug("embedding batch partially cached",
			zap.Int("total", len(texts)), zap.Int("misses", len(missTexts)))
	}
	fetched, err := l.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		result[i] = fetched[j]
		l.cache.Add(buildCacheKey(l.next.ModelName(), missTexts[j]), cloneEmbedding(fetched[j]))
	}
	return result, nil
}

func buildCacheKey(modelName, text string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	return "embed:" + modelName + ":" + hex.EncodeToString(hash[:])
}

func cloneEmbedding(in []float32) []float32 {
	if in == nil {
		return nil
	}
	out := make([]float32, len(in))
	copy(out, in)
	return out
}
