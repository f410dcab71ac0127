package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/auth"
	"docrag/internal/cascade"
	"docrag/internal/documents"
	"docrag/internal/metrics"
	"docrag/internal/models"
	"docrag/internal/projects"
	"docrag/internal/quota"
	"docrag/internal/retrieval"
	"docrag/internal/store/memory"
	"docrag/services/blob"
	"docrag/services/embed"
	"docrag/services/ingest"
	"docrag/services/parse"
)

const dim = 32

type inlineSubmitter struct{ p *ingest.Pipeline }

func (s inlineSubmitter) Submit(job ingest.Job) error {
	return s.p.Ingest(context.Background(), job)
}

type testServer struct {
	handler  http.Handler
	verifier *auth.Verifier
	healthy  error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memory.New()
	idx := memory.NewIndex(dim)
	blobs := blob.NewMemory()
	dir := projects.NewMemory()
	embedder := embed.NewHashing(dim)
	m := metrics.New()

	pipeline := &ingest.Pipeline{
		Registry:    st,
		Chunks:      st,
		Index:       idx,
		Blobs:       blobs,
		Embedder:    embedder,
		Chunker:     parse.Chunker{Size: 8, Overlap: 2},
		BatchSize:   16,
		MaxAttempts: 1,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Metrics:     m,
	}
	svc := &documents.Service{
		Registry:           st,
		Links:              st,
		Chunks:             st,
		Blobs:              blobs,
		Directory:          dir,
		Resolver:           &retrieval.Resolver{Links: st},
		Engine:             &retrieval.Engine{Index: idx, Chunks: st, Registry: st, Metrics: m},
		Cascade:            &cascade.Orchestrator{Registry: st, Links: st, Chunks: st, Index: idx, Blobs: blobs, Metrics: m},
		Ledger:             quota.NewMemoryLedger(),
		Ingest:             inlineSubmitter{p: pipeline},
		Embedder:           embedder,
		MaxFileSize:        1 << 20,
		MaxScopeSize:       2 << 20,
		DefaultTopK:        5,
		RelevanceThreshold: models.DefaultRelevanceThreshold,
	}
	v, err := auth.NewVerifier("test-secret")
	require.NoError(t, err)

	ts := &testServer{verifier: v}
	rt := &Router{
		Verifier:  v,
		Documents: &DocumentHandler{DocumentService: svc, MaxFileSize: svc.MaxFileSize},
		Projects:  &ProjectHandler{Directory: dir},
		Metrics:   m,
		Health:    func(context.Context) error { return ts.healthy },
	}
	ts.handler = rt.Handler()
	return ts
}

func (ts *testServer) token(t *testing.T, user string, plan quota.Plan) string {
	t.Helper()
	tok, err := ts.verifier.GenerateToken(user, plan, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, token, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var guide = []byte("## Setup\nInstall the agent and point it at the cluster endpoint.\n\n## Upgrade\nDrain each node before replacing the binary.\n")

func TestHealthAndMetricsArePublic(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.healthy = errors.New("db down")
	rec = ts.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docrag_")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "", http.MethodGet, "/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", quota.PlanPro)

	rec := ts.do(t, alice, http.MethodPost, "/projects", map[string]string{"name": "ops"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decode[models.Project](t, rec)

	rec = ts.do(t, alice, http.MethodPost, "/chats", map[string]string{"title": "runbook", "project_id": project.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	chat := decode[models.Chat](t, rec)

	chatPath := "/scopes/chat/" + chat.ID
	projectPath := "/scopes/project/" + project.ID

	rec = ts.upload(t, alice, chatPath+"/documents", "guide.md", guide)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[documents.UploadResult](t, rec)
	assert.True(t, first.IsNew)

	rec = ts.upload(t, alice, projectPath+"/documents", "copy.md", guide)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[documents.UploadResult](t, rec)
	assert.False(t, second.IsNew)
	assert.Equal(t, first.Document.ID, second.Document.ID)

	rec = ts.do(t, alice, http.MethodGet, "/documents/"+first.Document.ID+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[documents.StatusReport](t, rec)
	assert.Equal(t, models.StatusReady, status.Document.Status)
	assert.Len(t, status.Scopes, 2)

	rec = ts.do(t, alice, http.MethodPost, chatPath+"/query", map[string]any{"question": "Drain each node before replacing the binary.", "top_k": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answer := decode[documents.QueryResult](t, rec)
	require.NotEmpty(t, answer.Passages)
	assert.Equal(t, first.Document.ID, answer.Passages[0].DocumentID)
	assert.LessOrEqual(t, len(answer.Passages), 2)

	rec = ts.do(t, alice, http.MethodDelete, chatPath+"/documents/"+first.Document.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unlinked", decode[documents.DeleteResult](t, rec).Status)

	rec = ts.do(t, alice, http.MethodGet, chatPath+"/documents?include_parent=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Document](t, rec), 1)

	rec = ts.do(t, alice, http.MethodGet, chatPath+"/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Document](t, rec))

	rec = ts.do(t, alice, http.MethodDelete, projectPath, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[documents.ScopeDeleteResult](t, rec).PurgedDocumentCount)

	rec = ts.do(t, alice, http.MethodGet, "/documents/"+first.Document.ID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice", quota.PlanFree)
	mallory := ts.token(t, "mallory", quota.PlanPremium)

	rec := ts.do(t, alice, http.MethodPost, "/chats", map[string]string{"title": "c"})
	require.Equal(t, http.StatusCreated, rec.Code)
	chat := decode[models.Chat](t, rec)
	chatPath := "/scopes/chat/" + chat.ID

	t.Run("foreign scope is not found", func(t *testing.T) {
		rec := ts.do(t, mallory, http.MethodGet, chatPath+"/documents", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown scope type", func(t *testing.T) {
		rec := ts.do(t, alice, http.MethodGet, "/scopes/folder/"+chat.ID+"/documents", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported file", func(t *testing.T) {
		rec := ts.upload(t, alice, chatPath+"/documents", "notes.txt", []byte("plain"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty question", func(t *testing.T) {
		rec := ts.upload(t, alice, chatPath+"/documents", "guide.md", guide)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		rec = ts.do(t, alice, http.MethodPost, chatPath+"/query", map[string]any{"question": ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("scope limit", func(t *testing.T) {
		rec := ts.upload(t, alice, chatPath+"/documents", "other.md", []byte("# Other\nsomething else entirely\n"))
		require.Equal(t, http.StatusForbidden, rec.Code)
		body := decode[errorResponse](t, rec)
		assert.Equal(t, "scope_documents", body.Resource)
		require.NotNil(t, body.Limit)
		assert.Equal(t, 1, *body.Limit)
	})

	t.Run("limits report", func(t *testing.T) {
		rec := ts.do(t, alice, http.MethodGet, chatPath+"/limits", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		limits := decode[documents.UploadLimits](t, rec)
		assert.Equal(t, 1, limits.MaxFiles)
		assert.Equal(t, 1, limits.CurrentCount)
		assert.Equal(t, 0, limits.RemainingCount)
	})

	t.Run("project limit", func(t *testing.T) {
		rec := ts.do(t, alice, http.MethodPost, "/projects", map[string]string{"name": "one"})
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = ts.do(t, alice, http.MethodPost, "/projects", map[string]string{"name": "two"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "projects", decode[errorResponse](t, rec).Resource)
	})

	t.Run("missing document in scope", func(t *testing.T) {
		rec := ts.do(t, alice, http.MethodDelete, chatPath+"/documents/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed document id", func(t *testing.T) {
		rec := ts.do(t, alice, http.MethodDelete, chatPath+"/documents/not-a-uuid", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = ts.do(t, alice, http.MethodGet, "/documents/not-a-uuid/status", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("top_k out of range", func(t *testing.T) {
		rec := ts.do(t, alice, http.MethodPost, chatPath+"/query", map[string]any{"question": "q", "top_k": 1 << 40})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("overlong extension", func(t *testing.T) {
		rec := ts.do(t, alice, http.MethodPost, "/chats", map[string]string{"title": "second"})
		require.Equal(t, http.StatusCreated, rec.Code)
		path := "/scopes/chat/" + decode[models.Chat](t, rec).ID + "/documents"
		rec = ts.upload(t, alice, path, "guide."+strings.Repeat("x", 250), guide)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}
