// Package memory keeps the registry, link table and chunk store in process.
// It enforces the same uniqueness and reference rules as the Postgres schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docrag/internal/models"
)

type linkKey struct {
	documentID string
	scope      models.Scope
}

// Store implements store.DocumentRegistry, store.ScopeLinks and store.ChunkStore.
type Store struct {
	mu         sync.RWMutex
	docs       map[string]*models.Document
	byChecksum map[string]string
	links      map[linkKey]*models.ScopeLink
	chunks     map[string]models.Chunk
	now        func() time.Time
}

func New() *Store {
	return &Store{
		docs:       make(map[string]*models.Document),
		byChecksum: make(map[string]string),
		links:      make(map[linkKey]*models.ScopeLink),
		chunks:     make(map[string]models.Chunk),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for new rows.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func clone(d *models.Document) *models.Document {
	c := *d
	return &c
}

func (s *Store) FindByChecksum(_ context.Context, checksum string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byChecksum[checksum]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(s.docs[id]), nil
}

func (s *Store) Get(_ context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(d), nil
}

func (s *Store) GetMany(_ context.Context, ids []string) (map[string]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Document, len(ids))
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out[id] = clone(d)
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, nd models.NewDocument) (*models.Document, error) {
	if err := nd.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byChecksum[nd.Checksum]; taken {
		return nil, fmt.Errorf("create document: %w", models.ErrDuplicateChecksum)
	}
	d := &models.Document{
		ID:         uuid.NewString(),
		Filename:   nd.Filename,
		BlobKey:    nd.BlobKey,
		Checksum:   nd.Checksum,
		SizeBytes:  nd.SizeBytes,
		Status:     models.StatusPending,
		UploadedAt: s.now(),
	}
	s.docs[d.ID] = d
	s.byChecksum[d.Checksum] = d.ID
	return clone(d), nil
}

func (s *Store) SetStatus(_ context.Context, id string, status models.DocumentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid document status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[id]; ok {
		d.Status = status
	}
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil
	}
	for k := range s.links {
		if k.documentID == id {
			return fmt.Errorf("delete document: %w", models.ErrDocumentStillReferenced)
		}
	}
	for _, c := range s.chunks {
		if c.DocumentID == id {
			return fmt.Errorf("delete document: %w", models.ErrDocumentStillReferenced)
		}
	}
	delete(s.byChecksum, d.Checksum)
	delete(s.docs, id)
	return nil
}

func (s *Store) ListByStatus(_ context.Context, status models.DocumentStatus, olderThan time.Time) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, d := range s.docs {
		if d.Status == status && d.UploadedAt.Before(olderThan) {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (s *Store) BlobKeys(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make(map[string]struct{}, len(s.docs))
	for _, d := range s.docs {
		keys[d.BlobKey] = struct{}{}
	}
	return keys, nil
}

func (s *Store) Link(_ context.Context, documentID string, scope models.Scope) (*models.ScopeLink, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return nil, fmt.Errorf("link document: %w", models.ErrNotFound)
	}
	k := linkKey{documentID: documentID, scope: scope}
	if l, ok := s.links[k]; ok {
		c := *l
		return &c, nil
	}
	l := &models.ScopeLink{ID: uuid.NewString(), DocumentID: documentID, Scope: scope, LinkedAt: s.now()}
	s.links[k] = l
	c := *l
	return &c, nil
}

func (s *Store) Unlink(_ context.Context, documentID string, scope models.Scope) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := linkKey{documentID: documentID, scope: scope}
	if _, ok := s.links[k]; !ok {
		return false, nil
	}
	delete(s.links, k)
	return true, nil
}

func (s *Store) UnlinkAllForScope(_ context.Context, scope models.Scope) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for k := range s.links {
		if k.scope == scope {
			ids = append(ids, k.documentID)
			delete(s.links, k)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CountRemainingLinks(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.links {
		if k.documentID == documentID {
			n++
		}
	}
	return n, nil
}

func (s *Store) DocumentIDsForScope(_ context.Context, scope models.Scope) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{})
	for k := range s.links {
		if k.scope == scope {
			ids[k.documentID] = struct{}{}
		}
	}
	return ids, nil
}

func (s *Store) ScopesForDocument(_ context.Context, documentID string) ([]models.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scopes []models.Scope
	for k := range s.links {
		if k.documentID == documentID {
			scopes = append(scopes, k.scope)
		}
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].String() < scopes[j].String() })
	return scopes, nil
}

func (s *Store) Usage(_ context.Context, scope models.Scope) (models.ScopeUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var u models.ScopeUsage
	for k := range s.links {
		if k.scope != scope {
			continue
		}
		u.Count++
		if d, ok := s.docs[k.documentID]; ok {
			u.TotalBytes += d.SizeBytes
		}
	}
	return u, nil
}

func (s *Store) UpsertChunks(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.Text == "" {
			return fmt.Errorf("upsert chunks: empty text for chunk %d", c.ChunkIndex)
		}
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *Store) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CountByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetByIDs(_ context.Context, ids []string) (map[string]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

// ListByDocument returns a document's chunks ordered by chunk index.
func (s *Store) ListByDocument(_ context.Context, documentID string) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *Store) OrphanDocumentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, c := range s.chunks {
		if _, ok := s.docs[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PutOrphanChunk stores a chunk without checking its document exists. Only the
// sweep's tests need this; the Postgres schema would reject it.
func (s *Store) PutOrphanChunk(c models.Chunk) {
	s.mu.Lock()
	s.chunks[c.ID] = c
	s.mu.Unlock()
}
