package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/models"
	"docrag/internal/store/memory"
	"docrag/services/blob"
	"docrag/services/embed"
	"docrag/services/parse"
	"docrag/services/throttle"
)

const testDim = 16

var sample = []byte("## Intro\none two three four five six\n\n## Next\nseven eight\n")

type fixture struct {
	store *memory.Store
	index *memory.Index
	blobs *blob.Memory
	p     *Pipeline
	doc   *models.Document
}

func newFixture(t *testing.T, content []byte, filename string) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store: memory.New(),
		index: memory.NewIndex(testDim),
		blobs: blob.NewMemory(),
	}
	key, err := f.blobs.Put(ctx, "documents/chats/c1/"+filename, content)
	require.NoError(t, err)
	f.doc, err = f.store.Create(ctx, models.NewDocument{Filename: filename, BlobKey: key, Checksum: "sha256:aaa", SizeBytes: int64(len(content))})
	require.NoError(t, err)

	f.p = &Pipeline{
		Registry:    f.store,
		Chunks:      f.store,
		Index:       f.index,
		Blobs:       f.blobs,
		Embedder:    embed.NewHashing(testDim),
		Chunker:     parse.Chunker{Size: 5},
		BatchSize:   2,
		MaxAttempts: 3,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
	return f
}

func (f *fixture) job() Job {
	return Job{DocumentID: f.doc.ID, BlobKey: f.doc.BlobKey, Filename: f.doc.Filename}
}

func TestIngestMarksReadyWithOrderedChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sample, "notes.md")

	require.NoError(t, f.p.Ingest(ctx, f.job()))

	doc, err := f.store.Get(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, doc.Status)

	chunks, err := f.store.ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, models.ChunkID(f.doc.ID, i), c.ID)
		assert.NotEmpty(t, c.Text)
	}
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[2].PageNumber)

	n, err := f.index.CountByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIngestTwiceDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sample, "notes.md")

	require.NoError(t, f.p.Ingest(ctx, f.job()))
	require.NoError(t, f.p.Ingest(ctx, f.job()))

	n, err := f.store.CountByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = f.index.CountByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

type countingEmbedder struct {
	embed.Embedder
	calls    atomic.Int32
	failures int32
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.calls.Add(1) <= c.failures {
		return nil, models.ErrEmbeddingService
	}
	return c.Embedder.Embed(ctx, texts)
}

func TestUnparseableIsNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []byte("   \n\n"), "empty.md")
	emb := &countingEmbedder{Embedder: embed.NewHashing(testDim)}
	f.p.Embedder = emb

	err := f.p.Ingest(ctx, f.job())
	require.ErrorIs(t, err, models.ErrUnparseableDocument)
	assert.Zero(t, emb.calls.Load())

	doc, err := f.store.Get(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
}

func TestEmbeddingFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sample, "notes.md")
	emb := &countingEmbedder{Embedder: embed.NewHashing(testDim), failures: 1}
	f.p.Embedder = emb

	require.NoError(t, f.p.Ingest(ctx, f.job()))
	doc, err := f.store.Get(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, doc.Status)
}

func TestRetryBudgetExhaustedLeavesPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sample, "notes.md")
	emb := &countingEmbedder{Embedder: embed.NewHashing(testDim), failures: 100}
	f.p.Embedder = emb

	err := f.p.Ingest(ctx, f.job())
	require.ErrorIs(t, err, models.ErrEmbeddingService)
	assert.Equal(t, int32(3), emb.calls.Load())

	doc, err := f.store.Get(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	n, err := f.store.CountByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMissingBlobIsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sample, "notes.md")
	require.NoError(t, f.blobs.Delete(ctx, f.doc.BlobKey))

	err := f.p.Ingest(ctx, f.job())
	require.ErrorIs(t, err, models.ErrBlobUnavailable)
	assert.True(t, models.Retryable(err))
}

func TestThrottledSecondAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sample, "notes.md")
	f.p.Limiter = throttle.NewMemory(throttle.Policy{Cooldown: time.Minute})

	require.NoError(t, f.p.Ingest(ctx, f.job()))
	err := f.p.Ingest(ctx, f.job())
	require.ErrorIs(t, err, models.ErrIngestionThrottled)
}

func TestDeletingDocumentIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sample, "notes.md")
	require.NoError(t, f.store.SetStatus(ctx, f.doc.ID, models.StatusDeleting))

	err := f.p.Ingest(ctx, f.job())
	require.ErrorIs(t, err, models.ErrDocumentDeleting)
	n, err := f.store.CountByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type blockingIngester struct {
	release chan struct{}
	started chan string
	mu      sync.Mutex
	done    []string
}

func (b *blockingIngester) Ingest(_ context.Context, job Job) error {
	b.started <- job.DocumentID
	<-b.release
	b.mu.Lock()
	b.done = append(b.done, job.DocumentID)
	b.mu.Unlock()
	return errors.New("ignored")
}

func TestDispatcherRejectsInFlightDocument(t *testing.T) {
	ing := &blockingIngester{release: make(chan struct{}), started: make(chan string, 4)}
	d := NewDispatcher(ing, 1, 4)
	d.Start(context.Background())

	require.NoError(t, d.Submit(Job{DocumentID: "d1"}))
	assert.Equal(t, "d1", <-ing.started)
	require.ErrorIs(t, d.Submit(Job{DocumentID: "d1"}), models.ErrIngestionInFlight)
	require.NoError(t, d.Submit(Job{DocumentID: "d2"}))

	close(ing.release)
	d.Stop()

	assert.ElementsMatch(t, []string{"d1", "d2"}, ing.done)
	require.ErrorIs(t, d.Submit(Job{DocumentID: "d3"}), ErrQueueFull)
}

func TestDispatcherQueueFull(t *testing.T) {
	ing := &blockingIngester{release: make(chan struct{}), started: make(chan string, 4)}
	d := NewDispatcher(ing, 1, 1)

	require.NoError(t, d.Submit(Job{DocumentID: "d1"}))
	require.ErrorIs(t, d.Submit(Job{DocumentID: "d2"}), ErrQueueFull)

	d.Start(context.Background())
	<-ing.started
	close(ing.release)
	d.Stop()
}
