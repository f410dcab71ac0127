package postgres

import (
	"context"
	"database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"docrag/internal/models"
)

const orphanChunksQuery = `SELECT DISTINCT c."document_id" FROM "chunks" c
LEFT JOIN "documents" d ON d."id" = c."document_id"
WHERE d."id" IS NULL`

// Chunks stores chunk text and provenance. Embeddings live in the vector index.
type Chunks struct {
	DB *sql.DB
	// BatchSize bounds the rows per INSERT statement.
	BatchSize int
}

func (s *Chunks) batchSize() int {
	if s.BatchSize <= 0 {
		return 500
	}
	return s.BatchSize
}

// UpsertChunks overwrites rows by chunk id, so re-ingesting a document never duplicates.
func (s *Chunks) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin chunk upsert", err)
	}
	now := time.Now().UTC()
	for start := 0; start < len(chunks); start += s.batchSize() {
		end := min(start+s.batchSize(), len(chunks))
		ins := builder().Insert("chunks").Columns("id", "document_id", "chunk_index", "page_number", "text", "created_at")
		for _, c := range chunks[start:end] {
			ins.Values(c.ID, c.DocumentID, c.ChunkIndex, c.PageNumber, c.Text, now)
		}
		query, args := ins.OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			tx.Rollback()
			return mapError("upsert chunks", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit chunk upsert", err)
	}
	return nil
}

func (s *Chunks) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	query, args := builder().Delete("chunks").Where(entsql.EQ("document_id", documentID)).Query()
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError("delete chunks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("delete chunks", err)
	}
	return int(n), nil
}

func (s *Chunks) CountByDocument(ctx context.Context, documentID string) (int, error) {
	query, args := builder().Select("COUNT(*)").From(entsql.Table("chunks")).
		Where(entsql.EQ("document_id", documentID)).Query()
	var n int
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapError("count chunks", err)
	}
	return n, nil
}

func (s *Chunks) GetByIDs(ctx context.Context, ids []string) (map[string]models.Chunk, error) {
	out := make(map[string]models.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args := builder().Select("id", "document_id", "chunk_index", "page_number", "text").
		From(entsql.Table("chunks")).
		Where(entsql.In("id", anySlice(ids)...)).
		Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("get chunks", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.PageNumber, &c.Text); err != nil {
			return nil, mapError("scan chunk", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

func (s *Chunks) OrphanDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, orphanChunksQuery)
	if err != nil {
		return nil, mapError("list orphan chunks", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("scan document id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
