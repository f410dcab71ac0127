package embed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"docrag/internal/models"
)

// Client embeds text through an OpenAI-compatible embeddings endpoint.
type Client struct {
	api        *openai.Client
	model      string
	dimensions int
}

// ClientConfig configures NewClient. BaseURL may point at any OpenAI-compatible server.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// NewClient creates and returns a new client for the embedding service.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be > 0")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	logrus.WithFields(logrus.Fields{
		"model":      cfg.Model,
		"dimensions": cfg.Dimensions,
	}).Info("embedding client configured")
	return &Client{api: openai.NewClientWithConfig(oc), model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

func (c *Client) Dimensions() int { return c.dimensions }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			logrus.WithFields(logrus.Fields{
				"status": apiErr.HTTPStatusCode,
				"code":   apiErr.Code,
			}).Warn("embedding request rejected")
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d inputs", models.ErrEmbeddingService, len(resp.Data), len(texts))
	}

	// The API reports each vector's input position; do not rely on response order.
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, len(d.Embedding), c.dimensions)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
