// Package sweep is the maintenance job that finishes interrupted deletions and
// removes data whose owning document is gone.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"docrag/internal/cascade"
	"docrag/internal/metrics"
	"docrag/internal/models"
	"docrag/internal/projects"
	"docrag/internal/quota"
	"docrag/internal/store"
	"docrag/services/blob"
	"docrag/services/ingest"
)

// Submitter queues a document for ingestion.
type Submitter interface {
	Submit(job ingest.Job) error
}

// Sweeper runs one cleanup pass per Run call. With DryRun set it only counts.
type Sweeper struct {
	Registry store.DocumentRegistry
	Links    store.ScopeLinks
	Chunks   store.ChunkStore
	Index    store.VectorIndex
	Blobs    blob.Store
	Cascade  *cascade.Orchestrator
	Ingest   Submitter

	// Directory and Ledger enable counter reconciliation; either nil skips it.
	Directory projects.Directory
	Ledger    quota.Ledger

	BlobGrace  time.Duration
	StuckAfter time.Duration
	DryRun     bool
	Now        func() time.Time

	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// Report counts what a pass found (DryRun) or removed.
type Report struct {
	Purged        int      `json:"purged"`
	LeftDeleting  int      `json:"left_deleting"`
	Reverted      int      `json:"reverted"`
	OrphanChunks  int      `json:"orphan_chunks"`
	OrphanVectors int      `json:"orphan_vectors"`
	OrphanBlobs   int      `json:"orphan_blobs"`
	StuckPending  []string `json:"stuck_pending"`
	CountsFixed   int      `json:"counts_fixed"`
}

func (s *Sweeper) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func (s *Sweeper) removed(kind string, n int) {
	if !s.DryRun {
		s.Metrics.SweepRemoved(kind, n)
	}
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// Run performs every cleanup step. A failing step is reported and the rest still run.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	log := s.logger().WithField("dry_run", s.DryRun)
	log.Info("sweep: starting pass")

	var (
		r    Report
		errs []error
	)
	steps := []struct {
		name string
		fn   func(context.Context, *Report) error
	}{
		{"deleting documents", s.retryDeleting},
		{"orphan chunks", s.orphanChunks},
		{"orphan vectors", s.orphanVectors},
		{"orphan blobs", s.orphanBlobs},
		{"stuck pending", s.stuckPending},
		{"reconcile counts", s.reconcileCounts},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		if err := step.fn(ctx, &r); err != nil {
			log.WithError(err).WithField("step", step.name).Error("sweep: step failed")
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	log.WithFields(logrus.Fields{
		"purged":         r.Purged,
		"left_deleting":  r.LeftDeleting,
		"reverted":       r.Reverted,
		"orphan_chunks":  r.OrphanChunks,
		"orphan_vectors": r.OrphanVectors,
		"orphan_blobs":   r.OrphanBlobs,
		"stuck_pending":  len(r.StuckPending),
		"counts_fixed":   r.CountsFixed,
	}).Info("sweep: pass finished")
	return r, errors.Join(errs...)
}

// Loop runs a pass every interval until ctx is done.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger().WithError(err).Warn("sweep: pass finished with errors")
			}
		case <-ctx.Done():
			return
		}
	}
}

// retryDeleting finishes purges left in status deleting. A document that gained
// a link again is returned to pending and re-ingested.
func (s *Sweeper) retryDeleting(ctx context.Context, r *Report) error {
	docs, err := s.Registry.ListByStatus(ctx, models.StatusDeleting, s.now())
	if err != nil {
		return err
	}
	for _, d := range docs {
		log := s.logger().WithField("document_id", d.ID)
		links, err := s.Links.CountRemainingLinks(ctx, d.ID)
		if err != nil {
			return err
		}
		if links > 0 {
			r.Reverted++
			if s.DryRun {
				continue
			}
			if err := s.Registry.SetStatus(ctx, d.ID, models.StatusPending); err != nil {
				return err
			}
			log.Info("sweep: document relinked during deletion, re-ingesting")
			if s.Ingest != nil {
				if err := s.Ingest.Submit(ingest.Job{DocumentID: d.ID, BlobKey: d.BlobKey, Filename: d.Filename}); err != nil {
					log.WithError(err).Warn("sweep: could not queue re-ingestion")
				}
			}
			continue
		}
		if s.DryRun {
			r.Purged++
			continue
		}
		if outcome := s.Cascade.Purge(ctx, d.ID); outcome.Purged() {
			r.Purged++
		} else {
			r.LeftDeleting++
		}
	}
	return nil
}

func (s *Sweeper) orphanChunks(ctx context.Context, r *Report) error {
	ids, err := s.Chunks.OrphanDocumentIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if s.DryRun {
			n, err := s.Chunks.CountByDocument(ctx, id)
			if err != nil {
				return err
			}
			r.OrphanChunks += n
			continue
		}
		n, err := s.Chunks.DeleteByDocument(ctx, id)
		if err != nil {
			return err
		}
		s.logger().WithFields(logrus.Fields{"document_id": id, "chunks": n}).Info("sweep: deleted chunks of missing document")
		r.OrphanChunks += n
	}
	s.removed("chunk", r.OrphanChunks)
	return nil
}

func (s *Sweeper) orphanVectors(ctx context.Context, r *Report) error {
	ids, err := s.Index.DocumentIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	docs, err := s.Registry.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := docs[id]; ok {
			continue
		}
		n, err := s.Index.CountByDocument(ctx, id)
		if err != nil {
			return err
		}
		r.OrphanVectors += n
		if s.DryRun {
			continue
		}
		if err := s.Index.DeleteByDocument(ctx, id); err != nil {
			return err
		}
		s.logger().WithFields(logrus.Fields{"document_id": id, "vectors": n}).Info("sweep: deleted vectors of missing document")
	}
	s.removed("vector", r.OrphanVectors)
	return nil
}

// orphanBlobs deletes stored files no document refers to. Files younger than
// BlobGrace may belong to an upload still in progress and are kept.
func (s *Sweeper) orphanBlobs(ctx context.Context, r *Report) error {
	objects, err := s.Blobs.List(ctx, blob.Prefix)
	if err != nil {
		return err
	}
	keys, err := s.Registry.BlobKeys(ctx)
	if err != nil {
		return err
	}
	cutoff := s.now().Add(-s.BlobGrace)
	for _, o := range objects {
		if _, ok := keys[o.Key]; ok || o.LastModified.After(cutoff) {
			continue
		}
		r.OrphanBlobs++
		if s.DryRun {
			continue
		}
		if err := s.Blobs.Delete(ctx, o.Key); err != nil {
			return err
		}
		s.logger().WithField("blob_key", o.Key).Info("sweep: deleted unreferenced blob")
	}
	s.removed("blob", r.OrphanBlobs)
	return nil
}

// stuckPending reports pending documents without chunks older than StuckAfter.
// They are never repaired here.
func (s *Sweeper) stuckPending(ctx context.Context, r *Report) error {
	docs, err := s.Registry.ListByStatus(ctx, models.StatusPending, s.now().Add(-s.StuckAfter))
	if err != nil {
		return err
	}
	for _, d := range docs {
		n, err := s.Chunks.CountByDocument(ctx, d.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			r.StuckPending = append(r.StuckPending, d.ID)
			s.logger().WithFields(logrus.Fields{
				"document_id": d.ID,
				"uploaded_at": d.UploadedAt,
			}).Warn("sweep: document stuck in pending")
		}
	}
	s.Metrics.SetStuckPending(len(r.StuckPending))
	return nil
}

// reconcileCounts recomputes each user's active document count as the number of
// distinct documents, not being deleted, linked to any scope the user owns.
func (s *Sweeper) reconcileCounts(ctx context.Context, r *Report) error {
	if s.Directory == nil || s.Ledger == nil {
		return nil
	}
	owners, err := s.Directory.Owners(ctx)
	if err != nil {
		return err
	}
	counted, err := s.Ledger.Users(ctx)
	if err != nil {
		return err
	}
	users := make(map[string]struct{}, len(owners)+len(counted))
	for _, id := range append(owners, counted...) {
		users[id] = struct{}{}
	}

	for userID := range users {
		actual, err := s.ownedDocuments(ctx, userID)
		if err != nil {
			return err
		}
		recorded, err := s.Ledger.Active(ctx, userID)
		if err != nil {
			return err
		}
		if recorded == actual {
			continue
		}
		r.CountsFixed++
		log := s.logger().WithFields(logrus.Fields{
			"user_id":  userID,
			"recorded": recorded,
			"actual":   actual,
		})
		if s.DryRun {
			log.Info("sweep: document counter out of date")
			continue
		}
		if err := s.Ledger.Set(ctx, userID, actual); err != nil {
			return err
		}
		log.Info("sweep: document counter corrected")
	}
	return nil
}

func (s *Sweeper) ownedDocuments(ctx context.Context, userID string) (int, error) {
	projectList, err := s.Directory.ListProjectsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	chatList, err := s.Directory.ListChatsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	scopes := make([]models.Scope, 0, len(projectList)+len(chatList))
	for _, p := range projectList {
		scopes = append(scopes, models.ProjectScope(p.ID))
	}
	for _, c := range chatList {
		scopes = append(scopes, models.ChatScope(c.ID))
	}

	ids := make(map[string]struct{})
	for _, sc := range scopes {
		linked, err := s.Links.DocumentIDsForScope(ctx, sc)
		if err != nil {
			return 0, err
		}
		for id := range linked {
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	docs, err := s.Registry.GetMany(ctx, list)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range docs {
		if d.Status != models.StatusDeleting {
			n++
		}
	}
	return n, nil
}
