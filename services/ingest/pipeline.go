// Package ingest turns a stored upload into searchable chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"docrag/internal/metrics"
	"docrag/internal/models"
	"docrag/internal/store"
	"docrag/services/blob"
	"docrag/services/embed"
	"docrag/services/parse"
	"docrag/services/throttle"
)

// Job identifies one document to ingest.
type Job struct {
	DocumentID string
	BlobKey    string
	Filename   string
}

// Ingester runs ingestion for a job to completion.
type Ingester interface {
	Ingest(ctx context.Context, job Job) error
}

// Pipeline fetches, parses, chunks, embeds and persists a document, then marks it ready.
// Every write is keyed by document id, so a run can always be repeated from the start.
type Pipeline struct {
	Registry store.DocumentRegistry
	Chunks   store.ChunkStore
	Index    store.VectorIndex
	Blobs    blob.Store
	Embedder embed.Embedder
	Limiter  throttle.Limiter
	Chunker  parse.Chunker

	BatchSize   int
	MaxAttempts int
	// NewBackOff builds the delay schedule between attempts.
	NewBackOff func() backoff.BackOff

	Metrics *metrics.Metrics
	Log     logrus.FieldLogger

	group singleflight.Group
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

func (p *Pipeline) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.NewBackOff != nil {
		b = p.NewBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = time.Second
		eb.MaxInterval = 30 * time.Second
		b = eb
	}
	attempts := max(p.MaxAttempts, 1)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Ingest coalesces concurrent calls for the same document into one run.
func (p *Pipeline) Ingest(ctx context.Context, job Job) error {
	_, err, shared := p.group.Do(job.DocumentID, func() (any, error) {
		return nil, p.ingest(ctx, job)
	})
	if shared {
		p.logger().WithField("document_id", job.DocumentID).Debug("ingest: joined in-flight run")
	}
	return err
}

func (p *Pipeline) ingest(ctx context.Context, job Job) error {
	log := p.logger().WithFields(logrus.Fields{
		"document_id": job.DocumentID,
		"blob_key":    job.BlobKey,
	})

	if p.Limiter != nil {
		if err := p.Limiter.Acquire(ctx, job.DocumentID); err != nil {
			log.WithError(err).Warn("ingest: attempt throttled")
			p.Metrics.IngestResult("throttled")
			return err
		}
	}

	doc, err := p.Registry.Get(ctx, job.DocumentID)
	if err != nil {
		log.WithError(err).Warn("ingest: document lookup failed")
		return err
	}
	if doc.Status == models.StatusDeleting {
		log.Info("ingest: document is being deleted, skipping")
		return models.ErrDocumentDeleting
	}

	start := time.Now()
	var chunks int
	op := func() error {
		n, err := p.runOnce(ctx, job)
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		chunks = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("ingest: attempt failed, retrying")
	}
	if err := backoff.RetryNotify(op, p.backOff(ctx), notify); err != nil {
		log.WithError(err).Error("ingest: giving up, document stays pending")
		p.Metrics.IngestResult(resultLabel(err))
		return err
	}

	if err := p.markReady(ctx, job.DocumentID); err != nil {
		log.WithError(err).Warn("ingest: chunks written but document not marked ready")
		p.Metrics.IngestResult("superseded")
		return err
	}
	p.Metrics.IngestResult("ready")
	p.Metrics.IngestDone(start, chunks)
	log.WithField("chunks", chunks).Info("ingest: document ready")
	return nil
}

// runOnce is one full attempt. It returns the number of chunks written.
func (p *Pipeline) runOnce(ctx context.Context, job Job) (int, error) {
	data, err := p.Blobs.Get(ctx, job.BlobKey)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrBlobUnavailable, err)
	}

	frags, err := parse.Fragments(job.Filename, data)
	if err != nil {
		return 0, err
	}
	pieces := p.Chunker.Split(frags)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("%w: no chunks produced", models.ErrUnparseableDocument)
	}

	texts := make([]string, len(pieces))
	for i, pc := range pieces {
		texts[i] = pc.Text
	}
	vectors, err := embed.EmbedBatched(ctx, p.Embedder, texts, p.BatchSize)
	if err != nil {
		return 0, err
	}

	chunks := make([]models.Chunk, len(pieces))
	points := make([]models.VectorPoint, len(pieces))
	for i, pc := range pieces {
		id := models.ChunkID(job.DocumentID, pc.Index)
		chunks[i] = models.Chunk{
			ID:         id,
			DocumentID: job.DocumentID,
			ChunkIndex: pc.Index,
			PageNumber: pc.Page,
			Text:       pc.Text,
			Embedding:  vectors[i],
		}
		points[i] = models.VectorPoint{
			ChunkID:    id,
			DocumentID: job.DocumentID,
			ChunkIndex: pc.Index,
			PageNumber: pc.Page,
			Vector:     vectors[i],
		}
	}
	if err := p.Chunks.UpsertChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	if err := p.Index.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}
	return len(chunks), nil
}

// markReady flips pending to ready. A document that was removed or moved to
// deleting while the run was in progress is left alone.
func (p *Pipeline) markReady(ctx context.Context, id string) error {
	doc, err := p.Registry.Get(ctx, id)
	if err != nil {
		return err
	}
	switch doc.Status {
	case models.StatusReady:
		return nil
	case models.StatusDeleting:
		return models.ErrDocumentDeleting
	}
	return p.Registry.SetStatus(ctx, id, models.StatusReady)
}

func permanent(err error) bool {
	return errors.Is(err, models.ErrUnparseableDocument) ||
		errors.Is(err, models.ErrDimensionMismatch) ||
		errors.Is(err, models.ErrDocumentStillReferenced) ||
		errors.Is(err, models.ErrNotFound)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrUnparseableDocument):
		return "unparseable"
	case errors.Is(err, models.ErrBlobUnavailable):
		return "blob_unavailable"
	case errors.Is(err, models.ErrEmbeddingService):
		return "embedding_error"
	case errors.Is(err, models.ErrDimensionMismatch):
		return "dimension_mismatch"
	}
	return "failed"
}
