package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"docrag/internal/models"
	"docrag/internal/projects"
	"docrag/internal/quota"
)

type ProjectHandler struct {
	Directory projects.Directory
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var input struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logrus.WithError(err).Warn("handler: invalid input for CreateProject")
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		respondError(w, http.StatusBadRequest, "Field 'name' is required")
		return
	}

	limit := quota.LimitsFor(caller.Plan).Projects
	existing, err := h.Directory.ListProjectsByUser(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, r, err, "create project")
		return
	}
	if quota.Reached(len(existing), limit) {
		respondServiceError(w, r, &models.LimitError{Resource: "projects", Limit: limit}, "create project")
		return
	}

	p, err := h.Directory.CreateProject(r.Context(), projects.CreateProjectRequest{Name: input.Name, OwnerID: caller.UserID})
	if err != nil {
		respondServiceError(w, r, err, "create project")
		return
	}
	logrus.WithFields(logrus.Fields{
		"user_id":    caller.UserID,
		"project_id": p.ID,
	}).Info("handler: project created")
	respondJSON(w, http.StatusCreated, p)
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	list, err := h.Directory.ListProjectsByUser(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, r, err, "list projects")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *ProjectHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var input struct {
		Title     string `json:"title"`
		ProjectID string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logrus.WithError(err).Warn("handler: invalid input for CreateChat")
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	limit := quota.LimitsFor(caller.Plan).Chats
	existing, err := h.Directory.ListChatsByUser(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, r, err, "create chat")
		return
	}
	if quota.Reached(len(existing), limit) {
		respondServiceError(w, r, &models.LimitError{Resource: "chats", Limit: limit}, "create chat")
		return
	}

	c, err := h.Directory.CreateChat(r.Context(), projects.CreateChatRequest{
		Title:     strings.TrimSpace(input.Title),
		OwnerID:   caller.UserID,
		ProjectID: input.ProjectID,
	})
	if err != nil {
		respondServiceError(w, r, err, "create chat")
		return
	}
	logrus.WithFields(logrus.Fields{
		"user_id":    caller.UserID,
		"chat_id":    c.ID,
		"project_id": c.ProjectID,
	}).Info("handler: chat created")
	respondJSON(w, http.StatusCreated, c)
}

func (h *ProjectHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	list, err := h.Directory.ListChatsByUser(r.Context(), caller.UserID)
	if err != nil {
		respondServiceError(w, r, err, "list chats")
		return
	}
	respondJSON(w, http.StatusOK, list)
}
