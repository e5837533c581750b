package gatekit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// ===== ROLE ASSIGNMENT OPERATIONS =====

// GetRole implements AdminStore.
func (s *BunStore) GetRole(ctx context.Context, roleID string) (*RoleMembership, error) {
	role := new(RoleMembership)
	err := dbkit.WithErr1(s.db.NewRaw(`
        SELECT r.id AS role_id, r.name AS role_name, ut.hierarchy_level
        FROM roles AS r
        JOIN user_types AS ut ON ut.id = r.user_type_id
        WHERE r.id = ?`, roleID).Scan(ctx, role), "GetRole").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return role, nil
}

// AssignRole implements AdminStore. An inactive assignment is reactivated.
func (s *BunStore) AssignRole(ctx context.Context, userID, roleID, assignedBy string) error {
	return s.transaction(ctx, func(tx dbkit.IDB) error {
		userExists, err := dbkit.Exists[User](ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("u.id = ?", userID)
		})
		if err != nil {
			return err
		}
		roleExists, err := dbkit.Exists[Role](ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("r.id = ?", roleID)
		})
		if err != nil {
			return err
		}
		if !userExists || !roleExists {
			return ErrNotFound
		}

		result, err := tx.NewUpdate().
			Table("user_roles").
			Set("is_active = TRUE").
			Set("assigned_by = ?", assignedBy).
			Set("updated_at = current_timestamp").
			Where("user_id = ? AND role_id = ? AND NOT is_active", userID, roleID).
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "ReactivateUserRole").Err(); err != nil {
			return err
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			return nil
		}

		assignment := &UserRole{
			UserID:     userID,
			RoleID:     roleID,
			IsActive:   true,
			AssignedBy: assignedBy,
		}
		result, err = tx.NewInsert().Model(assignment).Exec(ctx)
		err = dbkit.WithErr(result, err, "CreateUserRole").Err()
		switch {
		case err == nil:
			return nil
		case dbkit.IsDuplicate(err):
			return ErrRoleAlreadyAssigned
		default:
			return err
		}
	})
}

// DeactivateRole implements AdminStore.
func (s *BunStore) DeactivateRole(ctx context.Context, userID, roleID string) error {
	result, err := s.db.NewUpdate().
		Table("user_roles").
		Set("is_active = FALSE").
		Set("updated_at = current_timestamp").
		Where("user_id = ? AND role_id = ? AND is_active", userID, roleID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "DeactivateUserRole").Err(); err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrRoleNotAssigned
	}
	return nil
}

// ===== DIRECT GRANTS =====

// PutDirectGrant implements AdminStore.
func (s *BunStore) PutDirectGrant(ctx context.Context, grant *UserPermission) error {
	result, err := s.db.NewInsert().
		Model(grant).
		On("CONFLICT (user_id, permission_id) DO UPDATE").
		Set("granted = EXCLUDED.granted").
		Set("expires_at = EXCLUDED.expires_at").
		Set("granted_by = EXCLUDED.granted_by").
		Exec(ctx)
	return dbkit.WithErr(result, err, "PutDirectGrant").Err()
}

// DeleteDirectGrant implements AdminStore.
func (s *BunStore) DeleteDirectGrant(ctx context.Context, userID, permissionID string) error {
	result, err := s.db.NewDelete().
		Table("user_permissions").
		Where("user_id = ? AND permission_id = ?", userID, permissionID).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "DeleteDirectGrant").Err(); err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsurePermissions implements AdminStore.
func (s *BunStore) EnsurePermissions(ctx context.Context, perms []Permission) error {
	if len(perms) == 0 {
		return nil
	}
	result, err := s.db.NewInsert().
		Model(&perms).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return dbkit.WithErr(result, err, "EnsurePermissions").Err()
}

// ===== AUDIT LOG =====

// LogAudit implements AdminStore.
func (s *BunStore) LogAudit(ctx context.Context, entry *AuditEntry) error {
	_, err := s.db.NewInsert().Model(entry.ToModel(time.Now())).Exec(ctx)
	return dbkit.WithErr1(err, "LogAudit").Err()
}

// GetAuditLog implements AdminStore.
func (s *BunStore) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	var logs []AuditLog
	q := s.db.NewSelect().Model(&logs)
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.TargetUserID != "" {
		q = q.Where("target_user_id = ?", filter.TargetUserID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("timestamp DESC")
	if err := dbkit.WithErr1(q.Scan(ctx), "GetAuditLog").Err(); err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return logs, nil
}
