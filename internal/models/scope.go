package models

import (
	"fmt"
	"time"
)

// ScopeType names the kind of container a document is visible within.
type ScopeType string

const (
	ScopeChat    ScopeType = "chat"
	ScopeProject ScopeType = "project"
)

// ParseScopeType accepts "chat" or "project" (and their plural route forms).
func ParseScopeType(s string) (ScopeType, error) {
	switch s {
	case "chat", "chats":
		return ScopeChat, nil
	case "project", "projects":
		return ScopeProject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// Scope is an opaque (type, id) reference to a chat or a project.
type Scope struct {
	Type ScopeType `json:"scope_type"`
	ID   string    `json:"scope_id"`
}

func ChatScope(id string) Scope    { return Scope{Type: ScopeChat, ID: id} }
func ProjectScope(id string) Scope { return Scope{Type: ScopeProject, ID: id} }

func (s Scope) Validate() error {
	if s.Type != ScopeChat && s.Type != ScopeProject {
		return fmt.Errorf("%w: type %q", ErrInvalidScope, s.Type)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidScope)
	}
	return nil
}

func (s Scope) String() string { return string(s.Type) + ":" + s.ID }

// ScopeLink makes a document visible within one scope. (DocumentID, Scope) is unique.
type ScopeLink struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Scope      Scope     `json:"scope"`
	LinkedAt   time.Time `json:"linked_at"`
}

// ScopeUsage is the number and total size of documents linked to a scope.
type ScopeUsage struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}
