package gatekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Migrations returns all database migrations required by BunStore.
// Run them with db.Migrate(ctx, store.Migrations()).
func (s *BunStore) Migrations() []dbkit.Migration {
	return Migrations()
}

// Migrate applies pending migrations and returns the ids it applied.
// It requires the store to wrap a *dbkit.DBKit.
func (s *BunStore) Migrate(ctx context.Context) ([]string, error) {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return nil, NewError(ErrTransitionFailed, "migrations require a dbkit.DBKit instance")
	}
	result, err := db.Migrate(ctx, Migrations())
	if err != nil {
		return nil, err
	}
	applied := make([]string, 0, len(result.Applied))
	for _, m := range result.Applied {
		applied = append(applied, m.ID)
	}
	return applied, nil
}

// Migrations returns the gatekit schema.
func Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "gatekit-001",
			Description: "Create users, user_types and roles tables",
			SQL: `
                CREATE TABLE IF NOT EXISTS users (
                    id TEXT PRIMARY KEY,
                    name TEXT NOT NULL,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                );
                CREATE TABLE IF NOT EXISTS user_types (
                    id TEXT PRIMARY KEY,
                    name TEXT NOT NULL,
                    hierarchy_level INTEGER NOT NULL CHECK (hierarchy_level >= 0)
                );
                CREATE TABLE IF NOT EXISTS roles (
                    id TEXT PRIMARY KEY,
                    name TEXT NOT NULL,
                    user_type_id TEXT NOT NULL REFERENCES user_types (id),
                    description TEXT
                )`,
		},
		{
			ID:          "gatekit-002",
			Description: "Create permissions, role_permissions and user_permissions tables",
			SQL: `
                CREATE TABLE IF NOT EXISTS permissions (
                    id TEXT PRIMARY KEY,
                    category TEXT NOT NULL,
                    description TEXT,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE
                );
                CREATE TABLE IF NOT EXISTS role_permissions (
                    role_id TEXT NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
                    permission_id TEXT NOT NULL REFERENCES permissions (id) ON DELETE CASCADE,
                    granted BOOLEAN NOT NULL DEFAULT TRUE,
                    PRIMARY KEY (role_id, permission_id)
                );
                CREATE TABLE IF NOT EXISTS user_permissions (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                    permission_id TEXT NOT NULL,
                    granted BOOLEAN NOT NULL,
                    expires_at TIMESTAMPTZ,
                    granted_by TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (user_id, permission_id)
                )`,
		},
		{
			ID:          "gatekit-003",
			Description: "Create user_roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS user_roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
                    role_id TEXT NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
                    is_active BOOLEAN NOT NULL DEFAULT TRUE,
                    assigned_by TEXT,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (user_id, role_id)
                );
                CREATE INDEX IF NOT EXISTS idx_user_roles_active ON user_roles (user_id) WHERE is_active`,
		},
		{
			ID:          "gatekit-004",
			Description: "Create content_items, content_allowed_roles and article_reviews tables",
			SQL: `
                CREATE TABLE IF NOT EXISTS content_items (
                    id TEXT PRIMARY KEY,
                    kind TEXT NOT NULL,
                    title TEXT NOT NULL,
                    slug TEXT NOT NULL,
                    author_id TEXT NOT NULL,
                    status TEXT NOT NULL DEFAULT 'DRAFT'
                        CHECK (status IN ('DRAFT', 'IN_REVIEW', 'PUBLISHED', 'ARCHIVED')),
                    restrict_by_role BOOLEAN NOT NULL DEFAULT FALSE,
                    open_review_id UUID,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (kind, slug)
                );
                CREATE TABLE IF NOT EXISTS content_allowed_roles (
                    item_id TEXT NOT NULL REFERENCES content_items (id) ON DELETE CASCADE,
                    role_id TEXT NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
                    PRIMARY KEY (item_id, role_id)
                );
                CREATE TABLE IF NOT EXISTS article_reviews (
                    id UUID PRIMARY KEY,
                    item_id TEXT NOT NULL REFERENCES content_items (id) ON DELETE CASCADE,
                    submitter_id TEXT NOT NULL,
                    assignee_id TEXT,
                    resolved_by_id TEXT,
                    status TEXT NOT NULL
                        CHECK (status IN ('PENDING', 'IN_PROGRESS', 'APPROVED', 'REJECTED')),
                    feedback TEXT NOT NULL DEFAULT '',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    resolved_at TIMESTAMPTZ
                );
                CREATE UNIQUE INDEX IF NOT EXISTS idx_article_reviews_one_open
                    ON article_reviews (item_id) WHERE status IN ('PENDING', 'IN_PROGRESS')`,
		},
		{
			ID:          "gatekit-005",
			Description: "Create audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    target_user_id TEXT NOT NULL,
                    subject TEXT NOT NULL,
                    detail TEXT,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT
                );
                CREATE INDEX IF NOT EXISTS idx_audit_log_target ON audit_log (target_user_id, timestamp DESC)`,
		},
	}
}
