package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/ai"
)

// WrapLruCacheToEmbedder keeps recent embeddings in memory. Repeated
// questions skip the embedder entirely.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := buildCacheKey(l.next.ModelName(), taskType, text).full
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType))
		return append([]float32(nil), cached...), nil
	}
	res, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, append([]float32(nil), res...))
	return res, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}
