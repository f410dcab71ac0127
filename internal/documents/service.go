// Package documents is the entry point for uploading, listing, querying and
// deleting documents within chats and projects.
package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"docrag/internal/cascade"
	"docrag/internal/models"
	"docrag/internal/projects"
	"docrag/internal/quota"
	"docrag/internal/retrieval"
	"docrag/internal/store"
	"docrag/services/blob"
	"docrag/services/embed"
	"docrag/services/ingest"
	"docrag/services/parse"
)

// Submitter queues a document for asynchronous ingestion.
type Submitter interface {
	Submit(job ingest.Job) error
}

// Service handles the business logic for documents. Every operation first checks
// that the caller owns the scope; a scope the caller does not own is reported as
// models.ErrNotFound.
type Service struct {
	Registry  store.DocumentRegistry
	Links     store.ScopeLinks
	Chunks    store.ChunkStore
	Blobs     blob.Store
	Directory projects.Directory
	Resolver  *retrieval.Resolver
	Engine    *retrieval.Engine
	Cascade   *cascade.Orchestrator
	Ledger    quota.Ledger
	Ingest    Submitter
	Embedder  embed.Embedder

	MaxFileSize        int64
	MaxScopeSize       int64
	DefaultTopK        int
	RelevanceThreshold float64
}

// Caller is the authenticated user behind a request.
type Caller struct {
	UserID string
	Plan   quota.Plan
}

// UploadRequest defines the parameters for uploading a file into a scope.
type UploadRequest struct {
	Caller   Caller
	Scope    models.Scope
	Filename string
	Content  []byte
}

// UploadResult is the stored document and whether this upload created it.
type UploadResult struct {
	Document *models.Document `json:"document"`
	IsNew    bool             `json:"is_new"`
}

// Upload stores content once per checksum and links it to the scope. New
// documents are queued for ingestion and counted against the caller's plan.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"owner_id": req.Caller.UserID,
		"scope":    req.Scope.String(),
		"filename": req.Filename,
	})
	log.Info("service: uploading document")

	if err := s.Directory.Owns(ctx, req.Caller.UserID, req.Scope); err != nil {
		return nil, err
	}
	usage, err := s.checkLimits(ctx, req)
	if err != nil {
		log.WithError(err).Warn("service: upload rejected")
		return nil, err
	}
	if int64(len(req.Content)) > s.MaxFileSize {
		return nil, fmt.Errorf("%w: file too large, maximum size is %dMB per file", models.ErrInvalidUpload, s.MaxFileSize>>20)
	}
	if len(req.Content) == 0 {
		return nil, fmt.Errorf("%w: empty file", models.ErrInvalidUpload)
	}
	if usage.TotalBytes+int64(len(req.Content)) > s.MaxScopeSize {
		remaining := max(s.MaxScopeSize-usage.TotalBytes, 0) >> 20
		return nil, fmt.Errorf("%w: total size limit exceeded, only %dMB remaining for this %s", models.ErrInvalidUpload, remaining, req.Scope.Type)
	}
	filename := blob.SanitizeFilename(req.Filename)
	if _, err := parse.Detect(filename, req.Content); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(req.Content)
	checksum := "sha256:" + hex.EncodeToString(sum[:])
	log = log.WithField("checksum", checksum)

	existing, err := s.Registry.FindByChecksum(ctx, checksum)
	switch {
	case err == nil:
		return s.linkExisting(ctx, log, existing, req.Scope)
	case !errors.Is(err, models.ErrNotFound):
		log.WithError(err).Error("service: checksum lookup failed")
		return nil, err
	}

	key, err := s.Blobs.Put(ctx, blob.Key(req.Scope, filename), req.Content)
	if err != nil {
		log.WithError(err).Error("service: failed to store blob")
		return nil, fmt.Errorf("store upload: %w", err)
	}
	doc, err := s.Registry.Create(ctx, models.NewDocument{
		Filename:  filename,
		BlobKey:   key,
		Checksum:  checksum,
		SizeBytes: int64(len(req.Content)),
	})
	if errors.Is(err, models.ErrDuplicateChecksum) {
		// Lost the race to a concurrent identical upload: use its row.
		log.Info("service: concurrent upload won checksum race, linking instead")
		s.deleteBlob(ctx, log, key)
		existing, err := s.Registry.FindByChecksum(ctx, checksum)
		if err != nil {
			return nil, err
		}
		return s.linkExisting(ctx, log, existing, req.Scope)
	}
	if err != nil {
		log.WithError(err).Error("service: failed to register document")
		s.deleteBlob(ctx, log, key)
		return nil, err
	}

	if _, err := s.Links.Link(ctx, doc.ID, req.Scope); err != nil {
		log.WithError(err).Error("service: failed to link new document, purging it")
		s.Cascade.Purge(ctx, doc.ID)
		return nil, err
	}
	if err := s.Ledger.Increment(ctx, req.Caller.UserID, 1); err != nil {
		log.WithError(err).Error("service: failed to increment document counter")
	}
	s.submit(log, doc)

	log.WithField("document_id", doc.ID).Info("service: document uploaded successfully")
	return &UploadResult{Document: doc, IsNew: true}, nil
}

func (s *Service) checkLimits(ctx context.Context, req UploadRequest) (models.ScopeUsage, error) {
	limits := quota.LimitsFor(req.Caller.Plan)
	active, err := s.Ledger.Active(ctx, req.Caller.UserID)
	if err != nil {
		return models.ScopeUsage{}, err
	}
	if quota.Reached(active, limits.Documents) {
		return models.ScopeUsage{}, &models.LimitError{Resource: "documents", Limit: limits.Documents}
	}
	usage, err := s.Links.Usage(ctx, req.Scope)
	if err != nil {
		return models.ScopeUsage{}, err
	}
	if quota.Reached(usage.Count, limits.DocsPerScope) {
		return usage, &models.LimitError{Resource: "scope_documents", Limit: limits.DocsPerScope}
	}
	return usage, nil
}

func (s *Service) linkExisting(ctx context.Context, log logrus.FieldLogger, doc *models.Document, scope models.Scope) (*UploadResult, error) {
	log = log.WithField("document_id", doc.ID)
	if doc.Status == models.StatusDeleting {
		log.Warn("service: identical document is being deleted")
		return nil, models.ErrDocumentDeleting
	}
	if _, err := s.Links.Link(ctx, doc.ID, scope); err != nil {
		log.WithError(err).Error("service: failed to link existing document")
		return nil, err
	}
	if doc.Status == models.StatusPending {
		s.submit(log, doc)
	}
	log.Info("service: document already exists, linked to scope")
	return &UploadResult{Document: doc, IsNew: false}, nil
}

// validDocumentID reports whether id could name a registered document. Ids are
// UUIDs, and anything else cannot exist.
func validDocumentID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Service) submit(log logrus.FieldLogger, doc *models.Document) {
	if s.Ingest == nil {
		return
	}
	err := s.Ingest.Submit(ingest.Job{DocumentID: doc.ID, BlobKey: doc.BlobKey, Filename: doc.Filename})
	switch {
	case errors.Is(err, models.ErrIngestionInFlight):
		log.Debug("service: ingestion already queued")
	case err != nil:
		log.WithError(err).Warn("service: could not queue ingestion, document stays pending")
	}
}

func (s *Service) deleteBlob(ctx context.Context, log logrus.FieldLogger, key string) {
	if err := s.Blobs.Delete(ctx, key); err != nil {
		log.WithError(err).WithField("blob_key", key).Warn("service: failed to delete unused blob, left for sweep")
	}
}

// visible resolves the documents a scope can see, inheriting the parent
// project of a chat when includeParent is set.
func (s *Service) visible(ctx context.Context, scope models.Scope, includeParent bool) (map[string]struct{}, error) {
	var parent string
	if scope.Type == models.ScopeChat && includeParent {
		p, err := s.Directory.ParentProject(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		parent = p
	}
	return s.Resolver.ResolveVisibleDocuments(ctx, scope, includeParent, parent)
}

// GetVisibleDocuments lists the documents visible in scope, newest first.
// Documents being deleted are hidden.
func (s *Service) GetVisibleDocuments(ctx context.Context, caller Caller, scope models.Scope, includeParent bool) ([]*models.Document, error) {
	log := logrus.WithFields(logrus.Fields{
		"owner_id": caller.UserID,
		"scope":    scope.String(),
	})
	log.Info("service: listing documents for scope")

	if err := s.Directory.Owns(ctx, caller.UserID, scope); err != nil {
		return nil, err
	}
	ids, err := s.visible(ctx, scope, includeParent)
	if err != nil {
		log.WithError(err).Error("service: failed to resolve visible documents")
		return nil, err
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	docs, err := s.Registry.GetMany(ctx, list)
	if err != nil {
		log.WithError(err).Error("service: failed to load documents")
		return nil, err
	}

	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		if d.Status != models.StatusDeleting {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})

	log.WithField("count", len(out)).Info("service: documents listed successfully")
	return out, nil
}

// QueryRequest asks for the passages of a scope most similar to a question.
// Embedding may be supplied directly; otherwise Question is embedded.
type QueryRequest struct {
	Caller        Caller
	Scope         models.Scope
	Question      string
	Embedding     []float32
	TopK          int
	IncludeParent bool
}

// QueryResult holds the ranked passages for a question.
type QueryResult struct {
	models.RankedResult
	// Relevant is false when no passage reaches the relevance threshold.
	Relevant bool `json:"relevant"`
}

// Query embeds the question and searches the documents visible in the scope.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"owner_id": req.Caller.UserID,
		"scope":    req.Scope.String(),
	})
	log.Info("service: querying scope")

	if err := s.Directory.Owns(ctx, req.Caller.UserID, req.Scope); err != nil {
		return nil, err
	}
	ids, err := s.visible(ctx, req.Scope, req.IncludeParent)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		log.Info("service: no documents in scope")
		return &QueryResult{RankedResult: models.RankedResult{Passages: []models.Passage{}}}, nil
	}

	vec := req.Embedding
	if vec == nil {
		if req.Question == "" {
			return nil, fmt.Errorf("%w: question is required", models.ErrInvalidQuery)
		}
		vecs, err := s.Embedder.Embed(ctx, []string{req.Question})
		if err != nil {
			log.WithError(err).Error("service: failed to embed question")
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("%w: expected one query vector", models.ErrEmbeddingService)
		}
		vec = vecs[0]
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.DefaultTopK
	}
	res, err := s.Engine.Search(ctx, vec, ids, topK)
	if err != nil {
		log.WithError(err).Error("service: search failed")
		return nil, err
	}
	if res.Passages == nil {
		res.Passages = []models.Passage{}
	}
	out := &QueryResult{RankedResult: res, Relevant: res.Relevant(s.RelevanceThreshold)}
	log.WithFields(logrus.Fields{
		"passages": len(res.Passages),
		"relevant": out.Relevant,
	}).Info("service: query answered")
	return out, nil
}

// DeleteResult reports what removing one scope link did to the document.
type DeleteResult struct {
	Status  string         `json:"status"`
	Outcome models.Outcome `json:"-"`
}

// DeleteDocument removes a document from one scope. The caller's document
// counter only drops when the document was confirmed purged.
func (s *Service) DeleteDocument(ctx context.Context, caller Caller, documentID string, scope models.Scope) (*DeleteResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"document_id": documentID,
		"owner_id":    caller.UserID,
		"scope":       scope.String(),
	})
	log.Info("service: deleting document")

	if err := s.Directory.Owns(ctx, caller.UserID, scope); err != nil {
		return nil, err
	}
	if !validDocumentID(documentID) {
		return nil, models.ErrNotFound
	}
	outcome, err := s.Cascade.DeleteDocumentFromScope(ctx, documentID, scope)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.WithError(err).Error("service: failed to delete document")
		}
		return nil, err
	}
	if outcome.Purged() {
		if err := s.Ledger.Decrement(ctx, caller.UserID, 1); err != nil {
			log.WithError(err).Error("service: failed to decrement document counter")
		}
	}

	log.WithField("outcome", outcome.String()).Info("service: document deleted")
	return &DeleteResult{Status: outcome.DeleteStatus(), Outcome: outcome}, nil
}

// ScopeDeleteResult counts the documents a scope deletion unlinked and purged.
type ScopeDeleteResult struct {
	PurgedDocumentCount int `json:"purged_document_count"`
	UnlinkedDocuments   int `json:"unlinked_documents"`
}

// DeleteScope removes every link of a chat, or of a project and all its chats,
// then deletes the scope itself. The counter is decremented once by the total
// number of purged documents.
func (s *Service) DeleteScope(ctx context.Context, caller Caller, scope models.Scope) (*ScopeDeleteResult, error) {
	log := logrus.WithFields(logrus.Fields{
		"owner_id": caller.UserID,
		"scope":    scope.String(),
	})
	log.Info("service: deleting scope")

	if err := s.Directory.Owns(ctx, caller.UserID, scope); err != nil {
		return nil, err
	}
	scopes := []models.Scope{scope}
	if scope.Type == models.ScopeProject {
		chats, err := s.Directory.ChatsInProject(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range chats {
			scopes = append(scopes, models.ChatScope(id))
		}
	}

	result := &ScopeDeleteResult{}
	var errs []error
	for _, sc := range scopes {
		report, err := s.Cascade.DeleteAllForScope(ctx, sc)
		if err != nil {
			errs = append(errs, err)
		}
		result.PurgedDocumentCount += report.Purged
		result.UnlinkedDocuments += report.Documents
	}
	if err := s.Ledger.Decrement(ctx, caller.UserID, result.PurgedDocumentCount); err != nil {
		log.WithError(err).Error("service: failed to decrement document counter")
	}
	if err := errors.Join(errs...); err != nil {
		log.WithError(err).Error("service: scope links only partly removed, keeping scope")
		return result, err
	}
	if err := s.Directory.DeleteScope(ctx, scope); err != nil {
		log.WithError(err).Error("service: failed to delete scope record")
		return result, err
	}

	log.WithField("purged", result.PurgedDocumentCount).Info("service: scope deleted successfully")
	return result, nil
}

// StatusReport is a document's state as seen by one of its owners.
type StatusReport struct {
	Document *models.Document `json:"document"`
	Chunks   int              `json:"chunks"`
	Scopes   []models.Scope   `json:"scopes"`
}

// GetDocumentStatus reports a document's lifecycle state to a user who owns
// at least one scope it is linked to.
func (s *Service) GetDocumentStatus(ctx context.Context, caller Caller, documentID string) (*StatusReport, error) {
	log := logrus.WithFields(logrus.Fields{
		"document_id": documentID,
		"owner_id":    caller.UserID,
	})
	log.Debug("service: getting document status")

	if !validDocumentID(documentID) {
		return nil, models.ErrNotFound
	}
	scopes, err := s.Links.ScopesForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	var owned []models.Scope
	for _, sc := range scopes {
		err := s.Directory.Owns(ctx, caller.UserID, sc)
		switch {
		case err == nil:
			owned = append(owned, sc)
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}
	if len(owned) == 0 {
		log.Warn("service: document not found or access denied")
		return nil, models.ErrNotFound
	}

	doc, err := s.Registry.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	n, err := s.Chunks.CountByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return &StatusReport{Document: doc, Chunks: n, Scopes: owned}, nil
}

type UploadLimits struct {
	MaxFiles       int   `json:"max_files"`
	MaxFileSize    int64 `json:"max_file_size"`
	MaxTotalSize   int64 `json:"max_total_size"`
	CurrentCount   int   `json:"current_count"`
	CurrentSize    int64 `json:"current_size"`
	RemainingCount int   `json:"remaining_count"`
	RemainingSize  int64 `json:"remaining_size"`
}

// UploadLimits reports the caller's plan limits for scope and current usage.
func (s *Service) UploadLimits(ctx context.Context, caller Caller, scope models.Scope) (*UploadLimits, error) {
	if err := s.Directory.Owns(ctx, caller.UserID, scope); err != nil {
		return nil, err
	}
	usage, err := s.Links.Usage(ctx, scope)
	if err != nil {
		return nil, err
	}
	limits := quota.LimitsFor(caller.Plan)
	return &UploadLimits{
		MaxFiles:       limits.DocsPerScope,
		MaxFileSize:    s.MaxFileSize,
		MaxTotalSize:   s.MaxScopeSize,
		CurrentCount:   usage.Count,
		CurrentSize:    usage.TotalBytes,
		RemainingCount: max(limits.DocsPerScope-usage.Count, 0),
		RemainingSize:  max(s.MaxScopeSize-usage.TotalBytes, 0),
	}, nil
}
