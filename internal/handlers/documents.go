package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"docrag/internal/documents"
	"docrag/internal/models"
	"docrag/internal/retrieval"
)

const multipartMemory = 8 << 20

// DocumentHandler handles HTTP requests for documents within a scope.
type DocumentHandler struct {
	DocumentService *documents.Service
	MaxFileSize     int64
}

type queryRequest struct {
	Question      string `json:"question"`
	TopK          int    `json:"top_k"`
	IncludeParent bool   `json:"include_parent"`
}

func scopeFrom(r *http.Request) (models.Scope, error) {
	t, err := models.ParseScopeType(chi.URLParam(r, "scopeType"))
	if err != nil {
		return models.Scope{}, err
	}
	s := models.Scope{Type: t, ID: chi.URLParam(r, "scopeID")}
	return s, s.Validate()
}

func includeParent(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("include_parent"))
	return err == nil && v
}

// UploadDocument handles POST /scopes/{scopeType}/{scopeID}/documents
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scope, err := scopeFrom(r)
	if err != nil {
		respondServiceError(w, r, err, "upload document")
		return
	}

	// The service reports the precise size error; only guard against unbounded bodies here.
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.MaxFileSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	res, err := h.DocumentService.Upload(r.Context(), documents.UploadRequest{
		Caller:   caller,
		Scope:    scope,
		Filename: header.Filename,
		Content:  content,
	})
	if err != nil {
		respondServiceError(w, r, err, "upload document")
		return
	}

	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	respondJSON(w, status, res)
}

// ListDocuments handles GET /scopes/{scopeType}/{scopeID}/documents
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scope, err := scopeFrom(r)
	if err != nil {
		respondServiceError(w, r, err, "list documents")
		return
	}

	docs, err := h.DocumentService.GetVisibleDocuments(r.Context(), caller, scope, includeParent(r))
	if err != nil {
		respondServiceError(w, r, err, "list documents")
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

// UploadLimits handles GET /scopes/{scopeType}/{scopeID}/limits
func (h *DocumentHandler) UploadLimits(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scope, err := scopeFrom(r)
	if err != nil {
		respondServiceError(w, r, err, "read upload limits")
		return
	}

	limits, err := h.DocumentService.UploadLimits(r.Context(), caller, scope)
	if err != nil {
		respondServiceError(w, r, err, "read upload limits")
		return
	}
	respondJSON(w, http.StatusOK, limits)
}

// Query handles POST /scopes/{scopeType}/{scopeID}/query
func (h *DocumentHandler) Query(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scope, err := scopeFrom(r)
	if err != nil {
		respondServiceError(w, r, err, "query documents")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.TopK < 0 || req.TopK > retrieval.MaxTopK {
		respondError(w, http.StatusBadRequest, "Field 'top_k' must be between 0 and "+strconv.Itoa(retrieval.MaxTopK))
		return
	}

	res, err := h.DocumentService.Query(r.Context(), documents.QueryRequest{
		Caller:        caller,
		Scope:         scope,
		Question:      req.Question,
		TopK:          req.TopK,
		IncludeParent: req.IncludeParent,
	})
	if err != nil {
		respondServiceError(w, r, err, "query documents")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// DeleteDocument handles DELETE /scopes/{scopeType}/{scopeID}/documents/{documentID}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scope, err := scopeFrom(r)
	if err != nil {
		respondServiceError(w, r, err, "delete document")
		return
	}
	documentID := chi.URLParam(r, "documentID")

	res, err := h.DocumentService.DeleteDocument(r.Context(), caller, documentID, scope)
	if err != nil {
		respondServiceError(w, r, err, "delete document")
		return
	}
	logrus.WithFields(logrus.Fields{
		"document_id": documentID,
		"status":      res.Status,
	}).Info("handler: document removed from scope")
	respondJSON(w, http.StatusOK, res)
}

// DeleteScope handles DELETE /scopes/{scopeType}/{scopeID}
func (h *DocumentHandler) DeleteScope(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	scope, err := scopeFrom(r)
	if err != nil {
		respondServiceError(w, r, err, "delete scope")
		return
	}

	res, err := h.DocumentService.DeleteScope(r.Context(), caller, scope)
	if err != nil {
		respondServiceError(w, r, err, "delete scope")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// DocumentStatus handles GET /documents/{documentID}/status
func (h *DocumentHandler) DocumentStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	report, err := h.DocumentService.GetDocumentStatus(r.Context(), caller, chi.URLParam(r, "documentID"))
	if err != nil {
		respondServiceError(w, r, err, "read document status")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
