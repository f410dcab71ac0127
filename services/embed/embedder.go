// Package embed turns text into fixed-dimension vectors.
package embed

import (
	"context"
	"fmt"

	"docrag/internal/models"
)

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EmbedBatched splits texts into batches of at most size and checks every vector
// against the embedder's fixed dimension.
func EmbedBatched(ctx context.Context, e Embedder, texts []string, size int) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: %d vectors for %d texts", models.ErrEmbeddingService, len(vecs), end-start)
		}
		for _, v := range vecs {
			if len(v) != e.Dimensions() {
				return nil, fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, len(v), e.Dimensions())
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
