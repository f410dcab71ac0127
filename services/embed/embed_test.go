package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/models"
)

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// fakeEmbeddings answers /embeddings with vectors of the given size, in reverse order.
func fakeEmbeddings(t *testing.T, size int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.Equal(t, "/embeddings", r.URL.Path)
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, size)
			vec[0] = float32(i)
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
}

func TestClientEmbedPreservesOrder(t *testing.T) {
	calls := 0
	srv := fakeEmbeddings(t, 4, &calls)
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}
	assert.Equal(t, 1, calls)
}

func TestClientDimensionMismatch(t *testing.T) {
	calls := 0
	srv := fakeEmbeddings(t, 3, &calls)
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestClientServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, models.ErrEmbeddingService)
}

func TestHashingIsDeterministicAndNormalized(t *testing.T) {
	h := NewHashing(64)
	vecs, err := h.Embed(context.Background(), []string{"Refund policy for orders", "refund POLICY for orders", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[1])

	var norm float64
	for _, x := range vecs[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
	assert.Len(t, vecs[2], 64)
}

type countingEmbedder struct {
	*Hashing
	batches []int
	short   bool
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, len(texts))
	vecs, err := c.Hashing.Embed(ctx, texts)
	if c.short {
		return vecs[:len(vecs)-1], err
	}
	return vecs, err
}

func TestEmbedBatched(t *testing.T) {
	e := &countingEmbedder{Hashing: NewHashing(8)}
	vecs, err := EmbedBatched(context.Background(), e, []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, []int{2, 2, 1}, e.batches)

	e = &countingEmbedder{Hashing: NewHashing(8), short: true}
	_, err = EmbedBatched(context.Background(), e, []string{"a", "b"}, 10)
	assert.True(t, errors.Is(err, models.ErrEmbeddingService))
}
