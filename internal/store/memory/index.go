package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docrag/internal/models"
)

// Index is an in-process vector index using brute-force cosine similarity.
type Index struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]models.VectorPoint
}

func NewIndex(dimension int) *Index {
	return &Index{dimension: dimension, points: make(map[string]models.VectorPoint)}
}

func (x *Index) Upsert(_ context.Context, points []models.VectorPoint) error {
	for _, p := range points {
		if len(p.Vector) != x.dimension {
			return fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, len(p.Vector), x.dimension)
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, p := range points {
		p.Vector = append([]float32(nil), p.Vector...)
		x.points[p.ChunkID] = p
	}
	return nil
}

func (x *Index) Search(_ context.Context, vector []float32, documentIDs []string, limit int) ([]models.VectorHit, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, len(vector), x.dimension)
	}
	allowed := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = struct{}{}
	}

	x.mu.RLock()
	hits := make([]models.VectorHit, 0, len(x.points))
	for _, p := range x.points {
		if _, ok := allowed[p.DocumentID]; !ok {
			continue
		}
		hits = append(hits, models.VectorHit{
			ChunkID:    p.ChunkID,
			DocumentID: p.DocumentID,
			ChunkIndex: p.ChunkIndex,
			Score:      (1 + cosine(vector, p.Vector)) / 2,
		})
	}
	x.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].ChunkIndex != hits[j].ChunkIndex {
			return hits[i].ChunkIndex < hits[j].ChunkIndex
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (x *Index) DeleteByDocument(_ context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, p := range x.points {
		if p.DocumentID == documentID {
			delete(x.points, id)
		}
	}
	return nil
}

func (x *Index) CountByDocument(_ context.Context, documentID string) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, p := range x.points {
		if p.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (x *Index) DocumentIDs(_ context.Context) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range x.points {
		seen[p.DocumentID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
