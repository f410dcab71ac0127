package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"docrag/internal/metrics"
	"docrag/internal/models"
	"docrag/internal/store"
)

const (
	// DefaultCandidateFactor is how many index candidates are fetched per requested result.
	DefaultCandidateFactor = 10
	// MaxTopK bounds the passages one search returns.
	MaxTopK = 100
)

// Engine runs similarity search restricted to a visible document set.
type Engine struct {
	Index    store.VectorIndex
	Chunks   store.ChunkStore
	Registry store.DocumentRegistry

	CandidateFactor int
	Metrics         *metrics.Metrics
	Log             logrus.FieldLogger
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

// Search returns at most topK passages from visible documents, best first. topK
// is capped at MaxTopK. An empty visible set returns an empty result without
// touching the index.
func (e *Engine) Search(ctx context.Context, queryEmbedding []float32, visible map[string]struct{}, topK int) (models.RankedResult, error) {
	start := time.Now()
	if len(visible) == 0 || topK <= 0 {
		e.Metrics.Search("empty_scope", start)
		return models.RankedResult{}, nil
	}
	topK = min(topK, MaxTopK)

	ids := make([]string, 0, len(visible))
	for id := range visible {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	factor := e.CandidateFactor
	if factor <= 0 {
		factor = DefaultCandidateFactor
	}
	hits, err := e.Index.Search(ctx, queryEmbedding, ids, topK*factor)
	if err != nil {
		return models.RankedResult{}, fmt.Errorf("vector search: %w", err)
	}
	e.Metrics.Search("vector", start)
	if len(hits) == 0 {
		return models.RankedResult{}, nil
	}

	chunkIDs := make([]string, 0, len(hits))
	docIDs := make([]string, 0, len(hits))
	seenDoc := make(map[string]struct{})
	for _, h := range hits {
		if _, ok := visible[h.DocumentID]; !ok {
			continue
		}
		chunkIDs = append(chunkIDs, h.ChunkID)
		if _, ok := seenDoc[h.DocumentID]; !ok {
			seenDoc[h.DocumentID] = struct{}{}
			docIDs = append(docIDs, h.DocumentID)
		}
	}
	chunks, err := e.Chunks.GetByIDs(ctx, chunkIDs)
	if err != nil {
		return models.RankedResult{}, fmt.Errorf("load chunks: %w", err)
	}
	docs, err := e.Registry.GetMany(ctx, docIDs)
	if err != nil {
		return models.RankedResult{}, fmt.Errorf("load documents: %w", err)
	}

	passages := make([]models.Passage, 0, len(hits))
	for _, h := range hits {
		c, ok := chunks[h.ChunkID]
		if !ok {
			continue
		}
		d, ok := docs[h.DocumentID]
		if !ok || d.Status == models.StatusDeleting {
			continue
		}
		passages = append(passages, models.Passage{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Filename:   d.Filename,
			PageNumber: c.PageNumber,
			Text:       c.Text,
			Score:      h.Score,
		})
	}
	if dropped := len(chunkIDs) - len(passages); dropped > 0 {
		e.logger().WithField("dropped", dropped).Debug("retrieval: skipped hits without chunk or live document")
	}

	sort.SliceStable(passages, func(i, j int) bool {
		a, b := passages[i], passages[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.DocumentID < b.DocumentID
	})
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return models.RankedResult{Passages: passages}, nil
}
