package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Hashing is an offline embedder: tokens are hashed into a fixed number of
// buckets with a signed count, then L2-normalized. Texts sharing words score closer.
type Hashing struct {
	dimensions int
}

func NewHashing(dimensions int) *Hashing { return &Hashing{dimensions: dimensions} }

func (h *Hashing) Dimensions() int { return h.dimensions }

func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	v := make([]float64, h.dimensions)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dimensions))
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1.0
		}
		v[bucket] += sign
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, h.dimensions)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}
