package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"docrag/internal/auth"
	"docrag/internal/documents"
	"docrag/internal/models"
)

type errorResponse struct {
	Error    string `json:"error"`
	Resource string `json:"resource,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("handler: failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps the service error taxonomy onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var limitErr *models.LimitError
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "Not found or access denied")
	case errors.As(err, &limitErr):
		limit := limitErr.Limit
		respondJSON(w, http.StatusForbidden, errorResponse{Error: limitErr.Error(), Resource: limitErr.Resource, Limit: &limit})
	case errors.Is(err, models.ErrInvalidUpload),
		errors.Is(err, models.ErrInvalidScope),
		errors.Is(err, models.ErrInvalidQuery),
		errors.Is(err, models.ErrUnparseableDocument):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrDocumentDeleting):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrIngestionThrottled):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, models.ErrEmbeddingService), errors.Is(err, models.ErrDimensionMismatch):
		logrus.WithError(err).WithField("path", r.URL.Path).Error("handler: upstream failure while trying to " + action)
		respondError(w, http.StatusBadGateway, "Embedding service unavailable")
	default:
		logrus.WithError(err).WithField("path", r.URL.Path).Error("handler: failed to " + action)
		respondError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

func callerFrom(r *http.Request) (documents.Caller, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return documents.Caller{}, false
	}
	return documents.Caller{UserID: id.UserID, Plan: id.Plan}, true
}
