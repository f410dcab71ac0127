package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both missing resources and resources the caller does not own.
	ErrNotFound = errors.New("not found or access denied")

	ErrDuplicateChecksum       = errors.New("document with this checksum already exists")
	ErrDocumentStillReferenced = errors.New("document still has scope links or chunks")
	ErrDocumentDeleting        = errors.New("document is being deleted")

	ErrBlobUnavailable     = errors.New("blob unavailable")
	ErrEmbeddingService    = errors.New("embedding service error")
	ErrUnparseableDocument = errors.New("could not process this file")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")

	ErrIngestionThrottled = errors.New("ingestion throttled")
	ErrIngestionInFlight  = errors.New("ingestion already in flight")

	ErrPartialDeletion = errors.New("partial deletion failure")
	ErrOrphanBlob      = errors.New("orphan blob left behind")

	ErrInvalidUpload = errors.New("invalid upload")
	ErrInvalidScope  = errors.New("invalid scope")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrLimitReached  = errors.New("limit reached")
)

// LimitError reports which plan limit an upload would exceed.
type LimitError struct {
	Resource string
	Limit    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached: %s (limit %d)", e.Resource, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrLimitReached }

// Retryable reports whether an ingestion error may succeed on a later attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrBlobUnavailable) || errors.Is(err, ErrEmbeddingService)
}
