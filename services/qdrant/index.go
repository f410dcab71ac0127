package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"

	"docrag/internal/models"
)

const (
	payloadDocumentID = "document_id"
	payloadChunkIndex = "chunk_index"
	payloadPageNumber = "page_number"

	scrollPage = 256
)

// Index stores chunk embeddings as Qdrant points keyed by chunk id.
type Index struct {
	Points     qdrant.PointsClient
	Collection string
	Dimension  int
}

func (x *Index) wait() *bool {
	w := true
	return &w
}

func documentFilter(documentIDs ...string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords(payloadDocumentID, documentIDs...)},
	}
}

func (x *Index) checkDimension(n int) error {
	if n != x.Dimension {
		return fmt.Errorf("%w: got %d, want %d", models.ErrDimensionMismatch, n, x.Dimension)
	}
	return nil
}

func (x *Index) Upsert(ctx context.Context, points []models.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if err := x.checkDimension(len(p.Vector)); err != nil {
			return err
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ChunkID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocumentID: p.DocumentID,
				payloadChunkIndex: int64(p.ChunkIndex),
				payloadPageNumber: int64(p.PageNumber),
			}),
		})
	}
	_, err := x.Points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.Collection,
		Wait:           x.wait(),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"collection": x.Collection,
		"points":     len(structs),
	}).Debug("qdrant: points upserted")
	return nil
}

// Search pre-filters on document_id and maps cosine similarity onto [0,1].
func (x *Index) Search(ctx context.Context, vector []float32, documentIDs []string, limit int) ([]models.VectorHit, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	if err := x.checkDimension(len(vector)); err != nil {
		return nil, err
	}
	resp, err := x.Points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: x.Collection,
		Vector:         vector,
		Filter:         documentFilter(documentIDs...),
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	hits := make([]models.VectorHit, 0, len(resp.GetResult()))
	for _, sp := range resp.GetResult() {
		payload := sp.GetPayload()
		hits = append(hits, models.VectorHit{
			ChunkID:    sp.GetId().GetUuid(),
			DocumentID: payload[payloadDocumentID].GetStringValue(),
			ChunkIndex: int(payload[payloadChunkIndex].GetIntegerValue()),
			Score:      (1 + float64(sp.GetScore())) / 2,
		})
	}
	return hits, nil
}

func (x *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := x.Points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: x.Collection,
		Wait:           x.wait(),
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

func (x *Index) CountByDocument(ctx context.Context, documentID string) (int, error) {
	exact := true
	resp, err := x.Points.Count(ctx, &qdrant.CountPoints{
		CollectionName: x.Collection,
		Filter:         documentFilter(documentID),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// DocumentIDs scrolls the whole collection. It only backs the orphan sweep.
func (x *Index) DocumentIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	var offset *qdrant.PointId
	limit := uint32(scrollPage)
	for {
		resp, err := x.Points.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: x.Collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			id := p.GetPayload()[payloadDocumentID].GetStringValue()
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return ids, nil
		}
	}
}
