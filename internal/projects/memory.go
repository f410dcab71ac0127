package projects

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docrag/internal/models"
)

// Memory is an in-process Directory.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]*models.Project
	chats    map[string]*models.Chat
}

func NewMemory() *Memory {
	return &Memory{projects: make(map[string]*models.Project), chats: make(map[string]*models.Chat)}
}

func (m *Memory) CreateProject(_ context.Context, req CreateProjectRequest) (*models.Project, error) {
	p := &models.Project{ID: uuid.NewString(), OwnerID: req.OwnerID, Name: req.Name, CreatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.projects[p.ID] = p
	m.mu.Unlock()
	c := *p
	return &c, nil
}

func (m *Memory) CreateChat(ctx context.Context, req CreateChatRequest) (*models.Chat, error) {
	if req.ProjectID != "" {
		if err := m.Owns(ctx, req.OwnerID, models.ProjectScope(req.ProjectID)); err != nil {
			return nil, err
		}
	}
	c := &models.Chat{ID: uuid.NewString(), OwnerID: req.OwnerID, Title: req.Title, ProjectID: req.ProjectID, CreatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.chats[c.ID] = c
	m.mu.Unlock()
	out := *c
	return &out, nil
}

func (m *Memory) ListProjectsByUser(_ context.Context, ownerID string) ([]*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Project
	for _, p := range m.projects {
		if p.OwnerID == ownerID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListChatsByUser(_ context.Context, ownerID string) ([]*models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Chat
	for _, c := range m.chats {
		if c.OwnerID == ownerID {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Owners(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range m.projects {
		seen[p.OwnerID] = struct{}{}
	}
	for _, c := range m.chats {
		seen[c.OwnerID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Owns(_ context.Context, ownerID string, scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var owner string
	switch scope.Type {
	case models.ScopeProject:
		if p, ok := m.projects[scope.ID]; ok {
			owner = p.OwnerID
		}
	case models.ScopeChat:
		if c, ok := m.chats[scope.ID]; ok {
			owner = c.OwnerID
		}
	}
	if owner == "" || owner != ownerID {
		return models.ErrNotFound
	}
	return nil
}

func (m *Memory) ParentProject(_ context.Context, chatID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[chatID]
	if !ok {
		return "", models.ErrNotFound
	}
	return c.ProjectID, nil
}

func (m *Memory) ChatsInProject(_ context.Context, projectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, c := range m.chats {
		if c.ProjectID == projectID {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) DeleteScope(_ context.Context, scope models.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch scope.Type {
	case models.ScopeProject:
		if _, ok := m.projects[scope.ID]; !ok {
			return models.ErrNotFound
		}
		for id, c := range m.chats {
			if c.ProjectID == scope.ID {
				delete(m.chats, id)
			}
		}
		delete(m.projects, scope.ID)
	case models.ScopeChat:
		if _, ok := m.chats[scope.ID]; !ok {
			return models.ErrNotFound
		}
		delete(m.chats, scope.ID)
	}
	return nil
}
