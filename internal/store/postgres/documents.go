package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"docrag/internal/models"
)

var documentColumns = []string{"id", "filename", "blob_key", "checksum", "size_bytes", "status", "uploaded_at"}

// Documents is the Postgres-backed document registry.
type Documents struct {
	DB *sql.DB
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.Postgres) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d      models.Document
		status string
	)
	if err := row.Scan(&d.ID, &d.Filename, &d.BlobKey, &d.Checksum, &d.SizeBytes, &status, &d.UploadedAt); err != nil {
		return nil, err
	}
	d.Status = models.DocumentStatus(status)
	return &d, nil
}

func (s *Documents) getOne(ctx context.Context, op string, pred *entsql.Predicate) (*models.Document, error) {
	query, args := builder().Select(documentColumns...).From(entsql.Table("documents")).Where(pred).Query()
	doc, err := scanDocument(s.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, mapError(op, err)
	}
	return doc, nil
}

func (s *Documents) FindByChecksum(ctx context.Context, checksum string) (*models.Document, error) {
	return s.getOne(ctx, "find document by checksum", entsql.EQ("checksum", checksum))
}

func (s *Documents) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.getOne(ctx, "get document", entsql.EQ("id", id))
}

func (s *Documents) GetMany(ctx context.Context, ids []string) (map[string]*models.Document, error) {
	out := make(map[string]*models.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args := builder().Select(documentColumns...).From(entsql.Table("documents")).
		Where(entsql.In("id", anySlice(ids)...)).Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("get documents", err)
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, mapError("scan document", err)
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

func (s *Documents) Create(ctx context.Context, nd models.NewDocument) (*models.Document, error) {
	if err := nd.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	doc := &models.Document{
		ID:         uuid.NewString(),
		Filename:   nd.Filename,
		BlobKey:    nd.BlobKey,
		Checksum:   nd.Checksum,
		SizeBytes:  nd.SizeBytes,
		Status:     models.StatusPending,
		UploadedAt: now,
	}
	query, args := builder().Insert("documents").
		Columns("id", "filename", "blob_key", "checksum", "size_bytes", "status", "uploaded_at", "updated_at").
		Values(doc.ID, doc.Filename, doc.BlobKey, doc.Checksum, doc.SizeBytes, string(doc.Status), now, now).
		Query()
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("create document", err)
	}
	logrus.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"checksum":    doc.Checksum,
	}).Debug("store: document row created")
	return doc, nil
}

func (s *Documents) SetStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid document status %q", status)
	}
	query, args := builder().Update("documents").
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()
	_, err := s.DB.ExecContext(ctx, query, args...)
	return mapError("set document status", err)
}

func (s *Documents) Delete(ctx context.Context, id string) error {
	query, args := builder().Delete("documents").Where(entsql.EQ("id", id)).Query()
	_, err := s.DB.ExecContext(ctx, query, args...)
	return mapError("delete document", err)
}

func (s *Documents) ListByStatus(ctx context.Context, status models.DocumentStatus, olderThan time.Time) ([]*models.Document, error) {
	query, args := builder().Select(documentColumns...).From(entsql.Table("documents")).
		Where(entsql.And(entsql.EQ("status", string(status)), entsql.LT("uploaded_at", olderThan))).
		OrderBy("uploaded_at").
		Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list documents by status", err)
	}
	defer rows.Close()
	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, mapError("scan document", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Documents) BlobKeys(ctx context.Context) (map[string]struct{}, error) {
	query, args := builder().Select("blob_key").From(entsql.Table("documents")).Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list blob keys", err)
	}
	defer rows.Close()
	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, mapError("scan blob key", err)
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
