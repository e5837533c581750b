package gatekit

import (
	"context"

	"github.com/uptrace/bun"
)

// VisibilityScope is what a user may see of one content kind, computed once
// per request and pushed into listing queries as a predicate.
type VisibilityScope struct {
	Kind ContentKind
	// CanView is true when the user holds "<kind>.view"; it opens unrestricted items.
	CanView bool
	// RoleIDs are the user's active roles; they open restricted items listing any of them.
	RoleIDs []string
	// UserID sees their own unpublished items.
	UserID string
	// SeeUnpublished opens DRAFT, IN_REVIEW and ARCHIVED items of other
	// authors. Editors, reviewers and direct publishers have it.
	SeeUnpublished bool
}

// Empty reports whether the scope can match nothing.
func (s VisibilityScope) Empty() bool {
	return !s.CanView && len(s.RoleIDs) == 0
}

// Allows reports whether item is visible under the scope.
// Restricted items depend on role overlap only; the view permission is
// neither required nor sufficient for them.
func (s VisibilityScope) Allows(item *ContentItem) bool {
	if s.Kind != "" && item.Kind != s.Kind {
		return false
	}
	if !s.SeeUnpublished && item.Status != StatusPublished && (s.UserID == "" || item.AuthorID != s.UserID) {
		return false
	}
	if !item.RestrictByRole {
		return s.CanView
	}
	for _, allowed := range item.AllowedRoles {
		for _, id := range s.RoleIDs {
			if allowed == id {
				return true
			}
		}
	}
	return false
}

// ApplyVisibility adds the scope to a select over content_items aliased "ci".
func ApplyVisibility(q *bun.SelectQuery, scope VisibilityScope) *bun.SelectQuery {
	if scope.Kind != "" {
		q = q.Where("ci.kind = ?", scope.Kind)
	}
	if scope.Empty() {
		return q.Where("FALSE")
	}
	if !scope.SeeUnpublished {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("ci.status = ?", StatusPublished)
			if scope.UserID != "" {
				q = q.WhereOr("ci.author_id = ?", scope.UserID)
			}
			return q
		})
	}
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		if scope.CanView {
			q = q.WhereOr("ci.restrict_by_role = FALSE")
		}
		if len(scope.RoleIDs) > 0 {
			q = q.WhereOr("ci.restrict_by_role = TRUE AND EXISTS (SELECT 1 FROM content_allowed_roles AS car WHERE car.item_id = ci.id AND car.role_id IN (?))",
				bun.In(scope.RoleIDs))
		}
		return q
	})
}

// AccessFilter decides content visibility.
type AccessFilter struct {
	resolver *Resolver
	store    ContentStore
}

// NewAccessFilter creates an AccessFilter.
func NewAccessFilter(resolver *Resolver, store ContentStore) *AccessFilter {
	return &AccessFilter{resolver: resolver, store: store}
}

// Scope resolves userID once and returns the visibility scope for kind.
func (f *AccessFilter) Scope(ctx context.Context, userID string, kind ContentKind) (VisibilityScope, error) {
	p, err := f.resolver.Principal(ctx, userID)
	if err != nil {
		return VisibilityScope{Kind: kind}, err
	}
	return ScopeFor(p, kind), nil
}

// ScopeFor builds a scope from an already-loaded principal.
func ScopeFor(p *Principal, kind ContentKind) VisibilityScope {
	unpublished := p.HasAnyPermission(
		kind.Permission(ActionEdit),
		kind.Permission(ActionReviewArticles),
		kind.Permission(ActionPublishDirectly),
	)
	return VisibilityScope{
		Kind:           kind,
		CanView:        p.HasPermission(kind.Permission(ActionView)),
		RoleIDs:        p.RoleIDs(),
		UserID:         p.UserID(),
		SeeUnpublished: unpublished,
	}
}

// IsVisible reports whether userID may see item.
func (f *AccessFilter) IsVisible(ctx context.Context, userID string, item *ContentItem) (bool, error) {
	scope, err := f.Scope(ctx, userID, item.Kind)
	if err != nil {
		return false, err
	}
	return scope.Allows(item), nil
}

// ListVisible lists the items of filter.Kind that userID may see.
func (f *AccessFilter) ListVisible(ctx context.Context, userID string, filter ContentFilter) ([]ContentItem, error) {
	scope, err := f.Scope(ctx, userID, filter.Kind)
	if err != nil {
		return nil, err
	}
	if scope.Empty() {
		return []ContentItem{}, nil
	}
	return f.store.ListItems(ctx, scope, filter)
}
