package models

import (
	"strconv"

	"github.com/google/uuid"
)

// Chunk is one retrievable, page-tagged fragment of a document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	PageNumber int       `json:"page_number"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// ChunkID is a deterministic function of the document id and chunk index, so
// re-running ingestion for a document overwrites the same rows.
func ChunkID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID+":"+strconv.Itoa(chunkIndex))).String()
}

// VectorPoint is what the vector index stores for a chunk.
type VectorPoint struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	PageNumber int
	Vector     []float32
}

// VectorHit is a raw similarity match from the vector index. Score is in [0,1].
type VectorHit struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Score      float64
}
