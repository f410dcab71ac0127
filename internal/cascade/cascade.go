// Package cascade removes documents from scopes and purges orphaned documents
// in dependency order: vectors, chunks, blob, then the registry row.
package cascade

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"docrag/internal/metrics"
	"docrag/internal/models"
	"docrag/internal/store"
	"docrag/services/blob"
)

// Orchestrator owns the deletion order. The order is never changed, even when a
// step fails: a failure stops the purge and leaves the document in status deleting.
type Orchestrator struct {
	Registry store.DocumentRegistry
	Links    store.ScopeLinks
	Chunks   store.ChunkStore
	Index    store.VectorIndex
	Blobs    blob.Store

	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
}

// ScopeReport summarizes deleting every link of a scope.
type ScopeReport struct {
	Documents int
	Purged    int
	Outcomes  map[string]models.Outcome
}

func (o *Orchestrator) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// DeleteDocumentFromScope removes one link and purges the document if it was the last.
// An error means the link could not be removed or inspected; every purge failure
// is reported through the outcome instead.
func (o *Orchestrator) DeleteDocumentFromScope(ctx context.Context, documentID string, scope models.Scope) (models.Outcome, error) {
	log := o.logger().WithFields(logrus.Fields{
		"document_id": documentID,
		"scope":       scope.String(),
	})

	removed, err := o.Links.Unlink(ctx, documentID, scope)
	if err != nil {
		return models.Unlinked, fmt.Errorf("unlink: %w", err)
	}
	if !removed {
		log.Warn("cascade: no such link")
		return models.Unlinked, models.ErrNotFound
	}
	log.Info("cascade: link removed")
	return o.afterUnlink(ctx, documentID)
}

// DeleteAllForScope removes every link of scope and purges each document left orphaned.
func (o *Orchestrator) DeleteAllForScope(ctx context.Context, scope models.Scope) (ScopeReport, error) {
	log := o.logger().WithField("scope", scope.String())

	ids, err := o.Links.UnlinkAllForScope(ctx, scope)
	if err != nil {
		return ScopeReport{}, fmt.Errorf("unlink scope: %w", err)
	}
	report := ScopeReport{Documents: len(ids), Outcomes: make(map[string]models.Outcome, len(ids))}
	var errs []error
	for _, id := range ids {
		outcome, err := o.afterUnlink(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", id, err))
		}
		report.Outcomes[id] = outcome
		if outcome.Purged() {
			report.Purged++
		}
	}
	log.WithFields(logrus.Fields{
		"documents": report.Documents,
		"purged":    report.Purged,
	}).Info("cascade: scope links removed")
	return report, errors.Join(errs...)
}

func (o *Orchestrator) afterUnlink(ctx context.Context, documentID string) (models.Outcome, error) {
	remaining, err := o.Links.CountRemainingLinks(ctx, documentID)
	if err != nil {
		return models.Unlinked, fmt.Errorf("count links: %w", err)
	}
	if remaining > 0 {
		o.Metrics.Deletion(models.Unlinked.String())
		return models.Unlinked, nil
	}
	return o.Purge(ctx, documentID), nil
}

// Purge deletes an unlinked document and everything derived from it. The sweep
// calls it directly to retry documents left in status deleting.
func (o *Orchestrator) Purge(ctx context.Context, documentID string) models.Outcome {
	outcome := o.purge(ctx, documentID)
	o.Metrics.Deletion(outcome.String())
	return outcome
}

func (o *Orchestrator) purge(ctx context.Context, documentID string) models.Outcome {
	log := o.logger().WithField("document_id", documentID)

	var blobKey string
	doc, err := o.Registry.Get(ctx, documentID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		log.Info("cascade: registry row already gone, clearing derived data")
	case err != nil:
		log.WithError(err).Error("cascade: document lookup failed")
		return models.LeftForRetry
	default:
		blobKey = doc.BlobKey
		if err := o.Registry.SetStatus(ctx, documentID, models.StatusDeleting); err != nil {
			log.WithError(err).Error("cascade: could not mark document deleting")
			return models.LeftForRetry
		}
	}

	partial := func(step string, err error) models.Outcome {
		log.WithError(fmt.Errorf("%w: %s: %v", models.ErrPartialDeletion, step, err)).
			Error("cascade: purge stopped, document left for sweep")
		return models.LeftForRetry
	}

	if err := o.Index.DeleteByDocument(ctx, documentID); err != nil {
		return partial("delete vectors", err)
	}
	n, err := o.Chunks.DeleteByDocument(ctx, documentID)
	if err != nil {
		return partial("delete chunks", err)
	}
	log.WithField("chunks", n).Debug("cascade: chunks deleted")

	// A concurrent upload may have relinked the document; keep its blob so the
	// sweep can re-ingest it.
	if remaining, err := o.Links.CountRemainingLinks(ctx, documentID); err != nil || remaining > 0 {
		if err == nil {
			err = fmt.Errorf("%d links appeared during purge", remaining)
		}
		return partial("recheck links", err)
	}

	blobFailed := false
	if blobKey != "" {
		if err := o.Blobs.Delete(ctx, blobKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			blobFailed = true
			log.WithError(fmt.Errorf("%w: %v", models.ErrOrphanBlob, err)).
				WithField("blob_key", blobKey).Warn("cascade: blob delete failed, left for sweep")
		}
	}

	if doc == nil {
		// The row was already gone, so there is no purge to count.
		return models.Unlinked
	}
	if err := o.Registry.Delete(ctx, documentID); err != nil {
		return partial("delete registry row", err)
	}
	if blobFailed {
		return models.PurgedExceptBlob
	}
	log.Info("cascade: document purged")
	return models.FullyPurged
}
