package models

// Outcome describes what happened to a document when one of its scope links was removed.
type Outcome int

const (
	// Unlinked means other links remain; nothing was purged.
	Unlinked Outcome = iota
	// FullyPurged means vectors, chunks, blob and the registry row are gone.
	FullyPurged
	// PurgedExceptBlob means the registry row is gone but the blob delete failed and is left for the sweep.
	PurgedExceptBlob
	// LeftForRetry means vector or chunk deletion failed, or the document was relinked
	// mid-purge; it stays in status deleting.
	LeftForRetry
)

func (o Outcome) String() string {
	switch o {
	case Unlinked:
		return "unlinked"
	case FullyPurged:
		return "fully_purged"
	case PurgedExceptBlob:
		return "purged_except_blob"
	case LeftForRetry:
		return "left_for_retry"
	}
	return "unknown"
}

// Purged reports whether the document row is confirmed gone.
func (o Outcome) Purged() bool { return o == FullyPurged || o == PurgedExceptBlob }

// DeleteStatus is the caller-facing status of deleteDocument.
func (o Outcome) DeleteStatus() string {
	switch o {
	case FullyPurged, PurgedExceptBlob:
		return "deleted"
	case LeftForRetry:
		return "deleting"
	}
	return "unlinked"
}
