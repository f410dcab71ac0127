package models

import (
	"fmt"
	"time"
)

// DocumentStatus is the lifecycle state of a Document.
type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusReady    DocumentStatus = "ready"
	StatusDeleting DocumentStatus = "deleting"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusDeleting:
		return true
	}
	return false
}

// Document is one physically distinct uploaded file. Checksum is unique across all documents.
type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	BlobKey    string         `json:"blob_key"`
	Checksum   string         `json:"checksum"`
	SizeBytes  int64          `json:"size_bytes"`
	Status     DocumentStatus `json:"status"`
	UploadedAt time.Time      `json:"uploaded_at"`
}

// NewDocument holds the fields required to register a document.
type NewDocument struct {
	Filename  string
	BlobKey   string
	Checksum  string
	SizeBytes int64
}

func (n NewDocument) Validate() error {
	if n.Filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}
	if n.BlobKey == "" {
		return fmt.Errorf("%w: blob key is required", ErrInvalidUpload)
	}
	if n.Checksum == "" {
		return fmt.Errorf("%w: checksum is required", ErrInvalidUpload)
	}
	if n.SizeBytes < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidUpload)
	}
	return nil
}
