// Package retrieval decides which documents a scope can see and searches their chunks.
package retrieval

import (
	"context"
	"fmt"

	"docrag/internal/models"
	"docrag/internal/store"
)

// Resolver computes the visible document set of a scope from current link state.
type Resolver struct {
	Links store.ScopeLinks
}

// ResolveVisibleDocuments returns the documents linked to scope. A chat with
// includeParent and a parent project also sees the project's documents. An
// empty set is a valid answer.
func (r *Resolver) ResolveVisibleDocuments(ctx context.Context, scope models.Scope, includeParent bool, parentProjectID string) (map[string]struct{}, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	ids, err := r.Links.DocumentIDsForScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", scope, err)
	}
	if scope.Type != models.ScopeChat || !includeParent || parentProjectID == "" {
		return ids, nil
	}

	parent := models.ProjectScope(parentProjectID)
	inherited, err := r.Links.DocumentIDsForScope(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", parent, err)
	}
	union := make(map[string]struct{}, len(ids)+len(inherited))
	for id := range ids {
		union[id] = struct{}{}
	}
	for id := range inherited {
		union[id] = struct{}{}
	}
	return union, nil
}
