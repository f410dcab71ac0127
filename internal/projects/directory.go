// Package projects owns chats and projects: their existence, their owner, and
// which project a chat belongs to.
package projects

import (
	"context"

	"docrag/internal/models"
)

// Directory answers scope ownership and hierarchy questions. Every lookup for a
// scope the user does not own fails with models.ErrNotFound, exactly as for a
// scope that does not exist.
type Directory interface {
	CreateProject(ctx context.Context, req CreateProjectRequest) (*models.Project, error)
	CreateChat(ctx context.Context, req CreateChatRequest) (*models.Chat, error)
	ListProjectsByUser(ctx context.Context, ownerID string) ([]*models.Project, error)
	ListChatsByUser(ctx context.Context, ownerID string) ([]*models.Chat, error)
	// Owners lists every user owning at least one project or chat.
	Owners(ctx context.Context) ([]string, error)

	// Owns returns nil when ownerID owns scope.
	Owns(ctx context.Context, ownerID string, scope models.Scope) error
	// ParentProject returns the chat's project id, or "" for a standalone chat.
	ParentProject(ctx context.Context, chatID string) (string, error)
	ChatsInProject(ctx context.Context, projectID string) ([]string, error)
	// DeleteScope removes the chat, or the project together with its chats.
	DeleteScope(ctx context.Context, scope models.Scope) error
}

// CreateProjectRequest defines the parameters for creating a new project.
type CreateProjectRequest struct {
	Name    string
	OwnerID string
}

// CreateChatRequest defines the parameters for creating a chat, optionally inside a project.
type CreateChatRequest struct {
	Title     string
	OwnerID   string
	ProjectID string
}
