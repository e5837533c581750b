package gatekit

import (
	"time"

	"github.com/uptrace/bun"
)

// ContentKind identifies the family of a content item. It also prefixes the
// permission ids that guard the item (e.g. "wiki.edit").
type ContentKind string

const (
	KindWiki   ContentKind = "wiki"
	KindCourse ContentKind = "course"
)

// Permission returns the kind-scoped permission id for an action.
func (k ContentKind) Permission(action string) string {
	return string(k) + "." + action
}

// ContentStatus is the lifecycle state of a content item.
type ContentStatus string

const (
	StatusDraft     ContentStatus = "DRAFT"
	StatusInReview  ContentStatus = "IN_REVIEW"
	StatusPublished ContentStatus = "PUBLISHED"
	StatusArchived  ContentStatus = "ARCHIVED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s ContentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusInReview, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// ReviewStatus is the state of an ArticleReview.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "PENDING"
	ReviewInProgress ReviewStatus = "IN_PROGRESS"
	ReviewApproved   ReviewStatus = "APPROVED"
	ReviewRejected   ReviewStatus = "REJECTED"
)

// Open reports whether the review still awaits a decision.
func (s ReviewStatus) Open() bool {
	return s == ReviewPending || s == ReviewInProgress
}

// User is a portal account. Inactive users hold no permissions.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	IsActive  bool      `bun:"is_active,notnull,default:true"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// UserType carries the hierarchy level shared by its roles.
// Lower levels mean more authority; 0 is the top.
type UserType struct {
	bun.BaseModel `bun:"table:user_types,alias:ut"`

	ID             string `bun:"id,pk"`
	Name           string `bun:"name,notnull"`
	HierarchyLevel int    `bun:"hierarchy_level,notnull"`
}

// Role belongs to a user type and grants a set of permissions.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID          string `bun:"id,pk"`
	Name        string `bun:"name,notnull"`
	UserTypeID  string `bun:"user_type_id,notnull"`
	Description string `bun:"description"`
}

// RolePermission links a role to a permission. Only granted links count.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	RoleID       string `bun:"role_id,pk"`
	PermissionID string `bun:"permission_id,pk"`
	Granted      bool   `bun:"granted,notnull,default:true"`
}

// UserRole assigns a role to a user.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	ID         string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID     string    `bun:"user_id,notnull"`
	RoleID     string    `bun:"role_id,notnull"`
	IsActive   bool      `bun:"is_active,notnull,default:true"`
	AssignedBy string    `bun:"assigned_by"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Permission is a catalog entry such as "wiki.edit".
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID          string `bun:"id,pk"`
	Category    string `bun:"category,notnull"`
	Description string `bun:"description"`
	IsActive    bool   `bun:"is_active,notnull,default:true"`
}

// UserPermission is a direct grant (Granted=true) or deny (Granted=false)
// of one permission for one user. Denies ignore ExpiresAt.
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:up"`

	ID           string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	UserID       string     `bun:"user_id,notnull"`
	PermissionID string     `bun:"permission_id,notnull"`
	Granted      bool       `bun:"granted,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at"`
	GrantedBy    string     `bun:"granted_by"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// ContentItem is a wiki article or course going through the review workflow.
type ContentItem struct {
	bun.BaseModel `bun:"table:content_items,alias:ci"`

	ID             string        `bun:"id,pk"`
	Kind           ContentKind   `bun:"kind,notnull"`
	Title          string        `bun:"title,notnull"`
	Slug           string        `bun:"slug,notnull"`
	AuthorID       string        `bun:"author_id,notnull"`
	Status         ContentStatus `bun:"status,notnull,default:'DRAFT'"`
	RestrictByRole bool          `bun:"restrict_by_role,notnull,default:false"`
	OpenReviewID   *string       `bun:"open_review_id"`
	CreatedAt      time.Time     `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull,default:current_timestamp"`

	// Loaded from content_allowed_roles.
	AllowedRoles []string `bun:"-"`
}

// Ref returns the notification-facing view of the item.
func (c *ContentItem) Ref() ContentRef {
	return ContentRef{ID: c.ID, Kind: c.Kind, Title: c.Title, Slug: c.Slug}
}

// ContentAllowedRole lists a role that may see a restricted item.
type ContentAllowedRole struct {
	bun.BaseModel `bun:"table:content_allowed_roles,alias:car"`

	ItemID string `bun:"item_id,pk"`
	RoleID string `bun:"role_id,pk"`
}

// ArticleReview tracks one review round of a content item.
type ArticleReview struct {
	bun.BaseModel `bun:"table:article_reviews,alias:ar"`

	ID           string       `bun:"id,pk,type:uuid"`
	ItemID       string       `bun:"item_id,notnull"`
	SubmitterID  string       `bun:"submitter_id,notnull"`
	AssigneeID   *string      `bun:"assignee_id"`
	ResolvedByID *string      `bun:"resolved_by_id"`
	Status       ReviewStatus `bun:"status,notnull"`
	Feedback     string       `bun:"feedback,notnull,default:''"`
	CreatedAt    time.Time    `bun:"created_at,notnull,default:current_timestamp"`
	ResolvedAt   *time.Time   `bun:"resolved_at"`
}

// ContentRef identifies an item to the notification dispatcher.
type ContentRef struct {
	ID    string      `json:"id"`
	Kind  ContentKind `json:"kind"`
	Title string      `json:"title"`
	Slug  string      `json:"slug"`
}

// RoleMembership is an active role of a user together with its hierarchy level.
type RoleMembership struct {
	RoleID         string `bun:"role_id"`
	RoleName       string `bun:"role_name"`
	HierarchyLevel int    `bun:"hierarchy_level"`
}

// DirectGrant is a user_permissions row joined with its permission's state.
type DirectGrant struct {
	PermissionID     string     `bun:"permission_id"`
	Granted          bool       `bun:"granted"`
	ExpiresAt        *time.Time `bun:"expires_at"`
	PermissionActive bool       `bun:"permission_active"`
}

// ActiveAt reports whether an allow is still in force at now.
func (g DirectGrant) ActiveAt(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// AuditLog records administrative changes to roles and direct grants.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_log,alias:al" json:"-"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp" json:"timestamp"`

	ActorID      string `bun:"actor_id,notnull" json:"actor_id"`
	Action       string `bun:"action,notnull" json:"action"`
	TargetUserID string `bun:"target_user_id,notnull" json:"target_user_id"`

	// Role id or permission id the action applied to
	Subject string `bun:"subject,notnull" json:"subject"`
	Detail  string `bun:"detail" json:"detail,omitempty"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent string `bun:"user_agent" json:"user_agent,omitempty"`
	RequestID string `bun:"request_id" json:"request_id,omitempty"`
}

// AuditAction represents the type of action in the audit log.
type AuditAction string

const (
	AuditActionRoleAssigned      AuditAction = "role_assigned"
	AuditActionRoleDeactivated   AuditAction = "role_deactivated"
	AuditActionPermissionGranted AuditAction = "permission_granted"
	AuditActionPermissionDenied  AuditAction = "permission_denied"
	AuditActionGrantRemoved      AuditAction = "grant_removed"
)

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	ActorID      string
	Action       AuditAction
	TargetUserID string
	Subject      string
	Detail       string
	IPAddress    string
	UserAgent    string
	RequestID    string
}

// ToModel converts an AuditEntry to an AuditLog model.
func (e *AuditEntry) ToModel(now time.Time) *AuditLog {
	return &AuditLog{
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		TargetUserID: e.TargetUserID,
		Subject:      e.Subject,
		Detail:       e.Detail,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		RequestID:    e.RequestID,
		Timestamp:    now,
	}
}
