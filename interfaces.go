package gatekit

import (
	"context"
	"time"
)

// AuthzReader reads the authority sources a decision is made from.
// Implementations must not cache: every call reflects the current rows.
type AuthzReader interface {
	// GetUser returns ErrNotFound when the user does not exist.
	GetUser(ctx context.Context, userID string) (*User, error)
	// ActiveRoles returns the active role assignments of an active user.
	ActiveRoles(ctx context.Context, userID string) ([]RoleMembership, error)
	// RolePermissionIDs returns the ids granted by the roles whose permission is active.
	RolePermissionIDs(ctx context.Context, roleIDs []string) ([]string, error)
	// DirectGrants returns every user_permissions row of the user.
	DirectGrants(ctx context.Context, userID string) ([]DirectGrant, error)
}

// ContentStore persists content items and their reviews.
type ContentStore interface {
	GetItem(ctx context.Context, itemID string) (*ContentItem, error)
	GetReview(ctx context.Context, reviewID string) (*ArticleReview, error)
	// ApplyTransition performs a compare-and-swap on the item status.
	// It returns ErrStatusConflict when the item is no longer in w.From and
	// ErrReviewAlreadyClosed when w.CloseReview targets a review that is not open.
	// Nothing is written when an error is returned.
	ApplyTransition(ctx context.Context, w TransitionWrite) error
	// ClaimReview moves a PENDING review to IN_PROGRESS with the given assignee.
	// It returns ErrReviewAlreadyClaimed or ErrReviewAlreadyClosed when the
	// review is no longer pending.
	ClaimReview(ctx context.Context, reviewID, assigneeID string, at time.Time) (*ArticleReview, error)
	// ListItems returns the items matching filter that scope allows.
	// The scope must be applied as part of the query.
	ListItems(ctx context.Context, scope VisibilityScope, filter ContentFilter) ([]ContentItem, error)
}

// AdminStore persists administrative changes and their audit trail.
type AdminStore interface {
	// GetRole returns the role with its hierarchy level, or ErrNotFound.
	GetRole(ctx context.Context, roleID string) (*RoleMembership, error)
	// AssignRole activates the role for the user, returning ErrRoleAlreadyAssigned
	// when an active assignment exists.
	AssignRole(ctx context.Context, userID, roleID, assignedBy string) error
	// DeactivateRole returns ErrRoleNotAssigned when no active assignment exists.
	DeactivateRole(ctx context.Context, userID, roleID string) error
	// PutDirectGrant upserts the row for (UserID, PermissionID).
	PutDirectGrant(ctx context.Context, grant *UserPermission) error
	// DeleteDirectGrant returns ErrNotFound when no row exists.
	DeleteDirectGrant(ctx context.Context, userID, permissionID string) error
	// EnsurePermissions inserts catalog permissions that are not yet stored.
	EnsurePermissions(ctx context.Context, perms []Permission) error
	LogAudit(ctx context.Context, entry *AuditEntry) error
	GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error)
}

// Store is the full persistence contract of the engine.
type Store interface {
	AuthzReader
	ContentStore
	AdminStore
}

// HealthMonitor is implemented by stores that can report their health.
type HealthMonitor interface {
	IsHealthy(ctx context.Context) bool
}

// Notifier dispatches review outcomes to authors. Delivery is best effort.
type Notifier interface {
	NotifyApproval(ctx context.Context, item ContentRef, authorID, reviewerName string) error
	NotifyRejection(ctx context.Context, item ContentRef, authorID, reviewerName, feedback string) error
}

// TransitionWrite describes one conditional status update.
type TransitionWrite struct {
	ItemID  string
	From    ContentStatus
	To      ContentStatus
	ActorID string
	At      time.Time

	// OpenReview is inserted and linked to the item when entering IN_REVIEW.
	OpenReview *ArticleReview
	// CloseReview resolves the item's open review when leaving IN_REVIEW.
	CloseReview *ReviewClosure
}

// ReviewClosure resolves an open review.
type ReviewClosure struct {
	ReviewID     string
	Status       ReviewStatus // ReviewApproved or ReviewRejected
	ResolvedByID string
	Feedback     string
}
