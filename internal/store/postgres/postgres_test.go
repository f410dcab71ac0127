package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/models"
)

func TestCreateDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &Documents{DB: db}

	mock.ExpectExec(`INSERT INTO "documents"`).
		WithArgs(sqlmock.AnyArg(), "report.pdf", "documents/chats/c1/report_0a1b2c3d.pdf", "sha256:aaa", int64(42), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc, err := st.Create(context.Background(), models.NewDocument{
		Filename:  "report.pdf",
		BlobKey:   "documents/chats/c1/report_0a1b2c3d.pdf",
		Checksum:  "sha256:aaa",
		SizeBytes: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	assert.NotEmpty(t, doc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocumentDuplicateChecksum(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &Documents{DB: db}

	mock.ExpectExec(`INSERT INTO "documents"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_checksum_key"})

	_, err = st.Create(context.Background(), models.NewDocument{Filename: "a.pdf", BlobKey: "k", Checksum: "sha256:aaa", SizeBytes: 1})
	assert.ErrorIs(t, err, models.ErrDuplicateChecksum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDocumentRejectsMissingFields(t *testing.T) {
	st := &Documents{}
	_, err := st.Create(context.Background(), models.NewDocument{Filename: "a.pdf"})
	assert.ErrorIs(t, err, models.ErrInvalidUpload)
}

func TestFindByChecksum(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &Documents{DB: db}
	now := time.Now()

	cols := []string{"id", "filename", "blob_key", "checksum", "size_bytes", "status", "uploaded_at"}
	mock.ExpectQuery(`SELECT (.+) FROM "documents" WHERE "checksum" = \$1`).
		WithArgs("sha256:aaa").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("d1", "a.pdf", "k1", "sha256:aaa", int64(10), "ready", now))
	mock.ExpectQuery(`SELECT (.+) FROM "documents" WHERE "checksum" = \$1`).
		WithArgs("sha256:bbb").
		WillReturnRows(sqlmock.NewRows(cols))

	doc, err := st.FindByChecksum(context.Background(), "sha256:aaa")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, models.StatusReady, doc.Status)

	_, err = st.FindByChecksum(context.Background(), "sha256:bbb")
	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDocumentStillReferenced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &Documents{DB: db}

	mock.ExpectExec(`DELETE FROM "documents" WHERE "id" = \$1`).
		WithArgs("d1").
		WillReturnError(&pq.Error{Code: "23503"})

	err = st.Delete(context.Background(), "d1")
	assert.ErrorIs(t, err, models.ErrDocumentStillReferenced)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	st := &Documents{}
	assert.Error(t, st.SetStatus(context.Background(), "d1", "processing"))
}

func TestLinkIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &ScopeLinks{DB: db}
	linkedAt := time.Now()

	for i := 0; i < 2; i++ {
		affected := int64(1)
		if i == 1 {
			affected = 0
		}
		mock.ExpectExec(`INSERT INTO "scope_links" (.+) ON CONFLICT (.+) DO NOTHING`).
			WithArgs(sqlmock.AnyArg(), "d1", "project", "p1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, affected))
		mock.ExpectQuery(`SELECT "id", "linked_at" FROM "scope_links"`).
			WithArgs("d1", "project", "p1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "linked_at"}).AddRow("l1", linkedAt))
	}

	first, err := st.Link(context.Background(), "d1", models.ProjectScope("p1"))
	require.NoError(t, err)
	second, err := st.Link(context.Background(), "d1", models.ProjectScope("p1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &ScopeLinks{DB: db}

	mock.ExpectExec(`DELETE FROM "scope_links"`).
		WithArgs("d1", "chat", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "scope_links"`).
		WithArgs("d1", "chat", "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := st.Unlink(context.Background(), "d1", models.ChatScope("c1"))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = st.Unlink(context.Background(), "d1", models.ChatScope("c1"))
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlinkAllForScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &ScopeLinks{DB: db}

	mock.ExpectQuery(`DELETE FROM "scope_links" WHERE (.+) RETURNING "document_id"`).
		WithArgs("project", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("d1").AddRow("d2"))

	ids, err := st.UnlinkAllForScope(context.Background(), models.ProjectScope("p1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeUsage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &ScopeLinks{DB: db}

	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM`).
		WithArgs("chat", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(2, int64(2048)))

	u, err := st.Usage(context.Background(), models.ChatScope("c1"))
	require.NoError(t, err)
	assert.Equal(t, models.ScopeUsage{Count: 2, TotalBytes: 2048}, u)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChunksBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &Chunks{DB: db, BatchSize: 2}

	chunks := make([]models.Chunk, 3)
	for i := range chunks {
		chunks[i] = models.Chunk{ID: models.ChunkID("d1", i), DocumentID: "d1", ChunkIndex: i, PageNumber: 1, Text: "text"}
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "chunks" (.+) ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO "chunks" (.+) ON CONFLICT \("id"\) DO UPDATE SET`).
		WithArgs(chunks[2].ID, "d1", 2, 1, "text", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, st.UpsertChunks(context.Background(), chunks))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChunksRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &Chunks{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "chunks"`).WillReturnError(driver.ErrBadConn)
	mock.ExpectRollback()

	err = st.UpsertChunks(context.Background(), []models.Chunk{{ID: "x", DocumentID: "d1", Text: "t"}})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAndCountChunks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := &Chunks{DB: db}

	mock.ExpectExec(`DELETE FROM "chunks" WHERE "document_id" = \$1`).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "chunks" WHERE "document_id" = \$1`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := st.DeleteByDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	left, err := st.CountByDocument(context.Background(), "d1")
	require.NoError(t, err)
	assert.Zero(t, left)
	require.NoError(t, mock.ExpectationsWereMet())
}
