package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"docrag/internal/models"
)

// Service is the Postgres-backed Directory.
type Service struct {
	DB *sql.DB
}

func builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.Postgres) }

// CreateProject creates a new project for a given user.
func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (*models.Project, error) {
	log := logrus.WithFields(logrus.Fields{
		"owner_id": req.OwnerID,
		"name":     req.Name,
	})
	log.Info("service: creating new project")

	p := &models.Project{ID: uuid.NewString(), OwnerID: req.OwnerID, Name: req.Name, CreatedAt: time.Now().UTC()}
	query, args := builder().Insert("projects").
		Columns("id", "owner_id", "name", "created_at").
		Values(p.ID, p.OwnerID, p.Name, p.CreatedAt).
		Query()
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("service: failed to create project in database")
		return nil, fmt.Errorf("could not create project: %w", err)
	}

	log.WithField("project_id", p.ID).Info("service: project created successfully")
	return p, nil
}

// CreateChat creates a chat. A parent project must be owned by the same user.
func (s *Service) CreateChat(ctx context.Context, req CreateChatRequest) (*models.Chat, error) {
	log := logrus.WithFields(logrus.Fields{
		"owner_id":   req.OwnerID,
		"project_id": req.ProjectID,
	})
	log.Info("service: creating new chat")

	if req.ProjectID != "" {
		if err := s.Owns(ctx, req.OwnerID, models.ProjectScope(req.ProjectID)); err != nil {
			log.Warn("service: attempt to create chat in a non-existent or unowned project")
			return nil, err
		}
	}

	c := &models.Chat{ID: uuid.NewString(), OwnerID: req.OwnerID, Title: req.Title, ProjectID: req.ProjectID, CreatedAt: time.Now().UTC()}
	var project any
	if c.ProjectID != "" {
		project = c.ProjectID
	}
	query, args := builder().Insert("chats").
		Columns("id", "owner_id", "title", "created_at", "project_id").
		Values(c.ID, c.OwnerID, c.Title, c.CreatedAt, project).
		Query()
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("service: failed to create chat in database")
		return nil, fmt.Errorf("could not create chat: %w", err)
	}

	log.WithField("chat_id", c.ID).Info("service: chat created successfully")
	return c, nil
}

// ListProjectsByUser retrieves all projects for a specific user.
func (s *Service) ListProjectsByUser(ctx context.Context, ownerID string) ([]*models.Project, error) {
	log := logrus.WithField("owner_id", ownerID)
	log.Info("service: listing projects for user")

	query, args := builder().Select("id", "owner_id", "name", "created_at").
		From(entsql.Table("projects")).
		Where(entsql.EQ("owner_id", ownerID)).
		OrderBy("created_at").
		Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("service: failed to list projects from database")
		return nil, err
	}
	defer rows.Close()
	var out []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.WithField("count", len(out)).Info("service: projects listed successfully")
	return out, nil
}

func (s *Service) ListChatsByUser(ctx context.Context, ownerID string) ([]*models.Chat, error) {
	query, args := builder().Select("id", "owner_id", "title", "created_at", "project_id").
		From(entsql.Table("chats")).
		Where(entsql.EQ("owner_id", ownerID)).
		OrderBy("created_at").
		Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Error("service: failed to list chats from database")
		return nil, err
	}
	defer rows.Close()
	var out []*models.Chat
	for rows.Next() {
		var (
			c       models.Chat
			project sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &project); err != nil {
			return nil, err
		}
		c.ProjectID = project.String
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Owners lists the distinct owners of projects and chats.
func (s *Service) Owners(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, table := range []string{"projects", "chats"} {
		query, args := builder().Select("owner_id").From(entsql.Table(table)).
			Distinct().
			Query()
		rows, err := s.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("list %s owners: %w", table, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

func scopeTable(scope models.Scope) string {
	if scope.Type == models.ScopeProject {
		return "projects"
	}
	return "chats"
}

// Owns verifies that ownerID owns scope.
func (s *Service) Owns(ctx context.Context, ownerID string, scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	query, args := builder().Select("id").From(entsql.Table(scopeTable(scope))).
		Where(entsql.And(entsql.EQ("id", scope.ID), entsql.EQ("owner_id", ownerID))).
		Query()
	var id string
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		logrus.WithFields(logrus.Fields{
			"owner_id": ownerID,
			"scope":    scope.String(),
		}).Warn("service: scope not found or access denied")
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check scope owner: %w", err)
	}
	return nil
}

func (s *Service) ParentProject(ctx context.Context, chatID string) (string, error) {
	query, args := builder().Select("project_id").From(entsql.Table("chats")).
		Where(entsql.EQ("id", chatID)).
		Query()
	var project sql.NullString
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&project)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read chat project: %w", err)
	}
	return project.String, nil
}

func (s *Service) ChatsInProject(ctx context.Context, projectID string) ([]string, error) {
	query, args := builder().Select("id").From(entsql.Table("chats")).
		Where(entsql.EQ("project_id", projectID)).
		OrderBy("id").
		Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list project chats: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteScope deletes a chat, or a project and its chats in one transaction.
func (s *Service) DeleteScope(ctx context.Context, scope models.Scope) error {
	log := logrus.WithField("scope", scope.String())
	log.Info("service: deleting scope")

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if scope.Type == models.ScopeProject {
		query, args := builder().Delete("chats").Where(entsql.EQ("project_id", scope.ID)).Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("service: failed to delete project chats")
			return err
		}
	}
	query, args := builder().Delete(scopeTable(scope)).Where(entsql.EQ("id", scope.ID)).Query()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("service: failed to delete scope from database")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Warn("service: scope not found for deletion")
		return models.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Info("service: scope deleted successfully")
	return nil
}
