// Package store declares the persistence boundaries of the document core.
package store

import (
	"context"
	"time"

	"docrag/internal/models"
)

// DocumentRegistry is the global, checksum-deduplicated document catalog.
type DocumentRegistry interface {
	// FindByChecksum returns models.ErrNotFound when no document carries checksum.
	FindByChecksum(ctx context.Context, checksum string) (*models.Document, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	GetMany(ctx context.Context, ids []string) (map[string]*models.Document, error)
	// Create fails with models.ErrDuplicateChecksum when another writer won the race.
	Create(ctx context.Context, doc models.NewDocument) (*models.Document, error)
	// SetStatus is a no-op for an absent document.
	SetStatus(ctx context.Context, id string, status models.DocumentStatus) error
	// Delete fails with models.ErrDocumentStillReferenced while links or chunks remain.
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, status models.DocumentStatus, olderThan time.Time) ([]*models.Document, error)
	BlobKeys(ctx context.Context) (map[string]struct{}, error)
}

// ScopeLinks is the many-to-many junction between documents and scopes.
type ScopeLinks interface {
	// Link is idempotent on (documentID, scope).
	Link(ctx context.Context, documentID string, scope models.Scope) (*models.ScopeLink, error)
	Unlink(ctx context.Context, documentID string, scope models.Scope) (bool, error)
	UnlinkAllForScope(ctx context.Context, scope models.Scope) ([]string, error)
	CountRemainingLinks(ctx context.Context, documentID string) (int, error)
	DocumentIDsForScope(ctx context.Context, scope models.Scope) (map[string]struct{}, error)
	ScopesForDocument(ctx context.Context, documentID string) ([]models.Scope, error)
	Usage(ctx context.Context, scope models.Scope) (models.ScopeUsage, error)
}

// ChunkStore keeps chunk text and provenance keyed by the deterministic chunk id.
type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]models.Chunk, error)
	// OrphanDocumentIDs lists document ids that own chunks but have no registry row.
	OrphanDocumentIDs(ctx context.Context) ([]string, error)
}

// VectorIndex holds chunk embeddings and answers similarity queries.
type VectorIndex interface {
	Upsert(ctx context.Context, points []models.VectorPoint) error
	// Search returns at most limit hits whose document id is in documentIDs, best first.
	Search(ctx context.Context, vector []float32, documentIDs []string, limit int) ([]models.VectorHit, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	CountByDocument(ctx context.Context, documentID string) (int, error)
	DocumentIDs(ctx context.Context) ([]string, error)
}
