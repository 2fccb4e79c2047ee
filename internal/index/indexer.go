package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/model"
)

const defaultEmbedParallel = 4

type Indexer struct {
	chunker  *Chunker
	embedder ai.IEmbedder
	parallel int
}

func NewIndexer(chunker *Chunker, embedder ai.IEmbedder) *Indexer {
	return &Indexer{chunker: chunker, embedder: embedder, parallel: defaultEmbedParallel}
}

// Split chunks the pages without embedding them.
func (ix *Indexer) Split(docID string, pages []model.PageText) ([]model.Chunk, error) {
	return ix.chunker.Split(docID, pages)
}

// Build chunks the pages and attaches one embedding to every chunk. The
// result depends only on docID and the page texts.
func (ix *Indexer) Build(ctx context.Context, docID string, pages []model.PageText) ([]model.Chunk, error) {
	chunks, err := ix.chunker.Split(docID, pages)
	if err != nil {
		return nil, err
	}
	if err := ix.Embed(ctx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Embed fills chunk embeddings in place. Each worker writes only its own
// slot so the output order matches the input.
func (ix *Indexer) Embed(ctx context.Context, chunks []model.Chunk) error {
	if ix.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.parallel)
	for i := range chunks {
		i := i
		g.Go(func() error {
			vec, err := ix.embedOne(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunks[i].Seq, err)
			}
			chunks[i].Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Debug("chunks embedded",
		zap.Int("count", len(chunks)),
		zap.String("model", ix.embedder.ModelName()),
		zap.Duration("cost", time.Since(start)))
	return nil
}

func (ix *Indexer) embedOne(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(
		func() error {
			v, err := ix.embedder.Embed(ctx, text, ai.TaskRetrievalDocument)
			if err != nil {
				return err
			}
			if len(v) == 0 {
				return retry.Unrecoverable(fmt.Errorf("empty embedding"))
			}
			vec = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ai.ErrUnavailable)
		}),
	)
	return vec, err
}
