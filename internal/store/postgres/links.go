package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"docrag/internal/models"
)

const (
	unlinkScopeQuery = `DELETE FROM "scope_links" WHERE "scope_type" = $1 AND "scope_id" = $2 RETURNING "document_id"`

	scopeUsageQuery = `SELECT COUNT(*), COALESCE(SUM(d."size_bytes"), 0)
FROM "scope_links" l JOIN "documents" d ON d."id" = l."document_id"
WHERE l."scope_type" = $1 AND l."scope_id" = $2`
)

// ScopeLinks is the Postgres-backed junction table. Uniqueness of
// (document_id, scope_type, scope_id) is a store-level index.
type ScopeLinks struct {
	DB *sql.DB
}

func scopeIs(scope models.Scope) *entsql.Predicate {
	return entsql.And(entsql.EQ("scope_type", string(scope.Type)), entsql.EQ("scope_id", scope.ID))
}

func (s *ScopeLinks) Link(ctx context.Context, documentID string, scope models.Scope) (*models.ScopeLink, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	query, args := builder().Insert("scope_links").
		Columns("id", "document_id", "scope_type", "scope_id", "linked_at").
		Values(uuid.NewString(), documentID, string(scope.Type), scope.ID, time.Now().UTC()).
		OnConflict(entsql.ConflictColumns("document_id", "scope_type", "scope_id"), entsql.DoNothing()).
		Query()
	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return nil, mapError("link document", err)
	}

	// Read back whichever row holds the triple, ours or a concurrent writer's.
	query, args = builder().Select("id", "linked_at").From(entsql.Table("scope_links")).
		Where(entsql.And(entsql.EQ("document_id", documentID), scopeIs(scope))).
		Query()
	link := &models.ScopeLink{DocumentID: documentID, Scope: scope}
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&link.ID, &link.LinkedAt); err != nil {
		return nil, mapError("read scope link", err)
	}
	return link, nil
}

func (s *ScopeLinks) Unlink(ctx context.Context, documentID string, scope models.Scope) (bool, error) {
	query, args := builder().Delete("scope_links").
		Where(entsql.And(entsql.EQ("document_id", documentID), scopeIs(scope))).
		Query()
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapError("unlink document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError("unlink document", err)
	}
	return n > 0, nil
}

func (s *ScopeLinks) UnlinkAllForScope(ctx context.Context, scope models.Scope) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, unlinkScopeQuery, string(scope.Type), scope.ID)
	if err != nil {
		return nil, mapError("unlink scope", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("scan document id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ScopeLinks) CountRemainingLinks(ctx context.Context, documentID string) (int, error) {
	query, args := builder().Select("COUNT(*)").From(entsql.Table("scope_links")).
		Where(entsql.EQ("document_id", documentID)).Query()
	var n int
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapError("count scope links", err)
	}
	return n, nil
}

func (s *ScopeLinks) DocumentIDsForScope(ctx context.Context, scope models.Scope) (map[string]struct{}, error) {
	query, args := builder().Select("document_id").From(entsql.Table("scope_links")).Where(scopeIs(scope)).Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list scope documents", err)
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError("scan document id", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *ScopeLinks) ScopesForDocument(ctx context.Context, documentID string) ([]models.Scope, error) {
	query, args := builder().Select("scope_type", "scope_id").From(entsql.Table("scope_links")).
		Where(entsql.EQ("document_id", documentID)).Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list document scopes", err)
	}
	defer rows.Close()
	var scopes []models.Scope
	for rows.Next() {
		var typ, id string
		if err := rows.Scan(&typ, &id); err != nil {
			return nil, mapError("scan scope", err)
		}
		scopes = append(scopes, models.Scope{Type: models.ScopeType(typ), ID: id})
	}
	return scopes, rows.Err()
}

func (s *ScopeLinks) Usage(ctx context.Context, scope models.Scope) (models.ScopeUsage, error) {
	var u models.ScopeUsage
	err := s.DB.QueryRowContext(ctx, scopeUsageQuery, string(scope.Type), scope.ID).Scan(&u.Count, &u.TotalBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return u, mapError("scope usage", err)
	}
	return u, nil
}
