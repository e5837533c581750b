package gatekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ===== ROLE ASSIGNMENT OPERATIONS =====

// AssignRole activates roleID for targetID.
// The actor is read from context (WithActorID) and must hold the manage
// permission, outrank the target, and, unless hierarchy-exempt, outrank the
// role itself.
//
// Example:
//
//	ctx = gatekit.WithActorID(ctx, adminID)
//	err := svc.AssignRole(ctx, nurseID, "wiki_editor")
func (s *Service) AssignRole(ctx context.Context, targetID, roleID string) error {
	actor, err := s.authorizeAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return notFoundOr(err, "The role could not be found.", "")
	}
	if err := s.checkRoleLevel(actor, role); err != nil {
		return err
	}

	if err := s.store.AssignRole(ctx, targetID, roleID, actor.UserID()); err != nil {
		switch {
		case errors.Is(err, ErrRoleAlreadyAssigned):
			return NewError(ErrRoleAlreadyAssigned, "The user already has this role.").WithUser(targetID)
		case errors.Is(err, ErrNotFound):
			return NewError(ErrNotFound, "The user or role could not be found.").WithUser(targetID)
		}
		return err
	}

	s.audit(ctx, actor.UserID(), AuditActionRoleAssigned, targetID, roleID, role.RoleName)
	return nil
}

// DeactivateRole deactivates roleID for targetID under the same guards as AssignRole.
func (s *Service) DeactivateRole(ctx context.Context, targetID, roleID string) error {
	actor, err := s.authorizeAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return notFoundOr(err, "The role could not be found.", "")
	}
	if err := s.checkRoleLevel(actor, role); err != nil {
		return err
	}

	if err := s.store.DeactivateRole(ctx, targetID, roleID); err != nil {
		if errors.Is(err, ErrRoleNotAssigned) {
			return NewError(ErrRoleNotAssigned, "The user doesn't have this role.").WithUser(targetID)
		}
		return err
	}

	s.audit(ctx, actor.UserID(), AuditActionRoleDeactivated, targetID, roleID, role.RoleName)
	return nil
}

// ===== DIRECT GRANTS =====

// GrantPermission gives targetID a direct allow of permissionID.
// A nil expiresAt never expires; a past one is rejected.
func (s *Service) GrantPermission(ctx context.Context, targetID, permissionID string, expiresAt *time.Time) error {
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return NewError(ErrValidation, "The expiry date must be in the future.").
			WithUser(targetID).WithPermission(permissionID)
	}
	return s.putDirectGrant(ctx, targetID, permissionID, true, expiresAt)
}

// DenyPermission gives targetID a direct deny of permissionID, which wins
// over any role grant or direct allow.
func (s *Service) DenyPermission(ctx context.Context, targetID, permissionID string) error {
	return s.putDirectGrant(ctx, targetID, permissionID, false, nil)
}

// RemoveDirectGrant deletes the direct allow or deny of permissionID.
func (s *Service) RemoveDirectGrant(ctx context.Context, targetID, permissionID string) error {
	if err := s.catalog.Validate(permissionID); err != nil {
		return err
	}
	actor, err := s.authorizeAdmin(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDirectGrant(ctx, targetID, permissionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return NewError(ErrNotFound, "The user has no direct grant for this permission.").
				WithUser(targetID).WithPermission(permissionID)
		}
		return err
	}
	s.audit(ctx, actor.UserID(), AuditActionGrantRemoved, targetID, permissionID, "")
	return nil
}

func (s *Service) putDirectGrant(ctx context.Context, targetID, permissionID string, granted bool, expiresAt *time.Time) error {
	if err := s.catalog.Validate(permissionID); err != nil {
		return err
	}
	actor, err := s.authorizeAdmin(ctx, targetID)
	if err != nil {
		return err
	}

	grant := &UserPermission{
		UserID:       targetID,
		PermissionID: permissionID,
		Granted:      granted,
		ExpiresAt:    expiresAt,
		GrantedBy:    actor.UserID(),
		CreatedAt:    s.now(),
	}
	if err := s.store.PutDirectGrant(ctx, grant); err != nil {
		return err
	}

	action, detail := AuditActionPermissionDenied, ""
	if granted {
		action = AuditActionPermissionGranted
		if expiresAt != nil {
			detail = "expires " + expiresAt.UTC().Format(time.RFC3339)
		}
	}
	s.audit(ctx, actor.UserID(), action, targetID, permissionID, detail)
	return nil
}

// ===== AUDIT LOG =====

// GetAuditLog retrieves audit log entries with optional filters, newest first.
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	return s.store.GetAuditLog(ctx, filter)
}

// audit records an admin action. A failure is logged and swallowed: the
// change itself is already committed.
func (s *Service) audit(ctx context.Context, actorID string, action AuditAction, targetID, subject, detail string) {
	ac := GetAuditContext(ctx)
	entry := &AuditEntry{
		ActorID:      actorID,
		Action:       action,
		TargetUserID: targetID,
		Subject:      subject,
		Detail:       detail,
		IPAddress:    ac.IPAddress,
		UserAgent:    ac.UserAgent,
		RequestID:    ac.RequestID,
	}
	if err := s.store.LogAudit(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("action", string(action)).
			Str("actor_id", actorID).
			Str("target_user_id", targetID).
			Msg("audit log write failed")
		return
	}
	s.log.Info().
		Str("action", string(action)).
		Str("actor_id", actorID).
		Str("target_user_id", targetID).
		Str("subject", subject).
		Msg("admin action")
}

// ===== GUARDS =====

// authorizeAdmin loads the actor from context and checks the manage
// permission and the hierarchy against targetID.
func (s *Service) authorizeAdmin(ctx context.Context, targetID string) (*Principal, error) {
	actorID := GetActorID(ctx)
	if actorID == "" {
		return nil, NewError(ErrNoActorID, "You need to sign in to manage users.")
	}

	var (
		actor       *Principal
		target      *User
		targetLevel int
		targetRoled bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		actor, err = s.resolver.Principal(gctx, actorID)
		return err
	})
	g.Go(func() error {
		var err error
		if target, err = s.store.GetUser(gctx, targetID); err != nil {
			return err
		}
		targetLevel, targetRoled, err = s.gate.EffectiveHierarchy(gctx, targetID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, notFoundOr(err, "The user could not be found.", "")
	}

	if !actor.HasPermission(s.manage) {
		return nil, NewError(ErrForbidden, "You don't have permission to manage users.").
			WithUser(actorID).WithPermission(s.manage)
	}
	if !s.gate.canManage(actor, targetLevel, targetRoled) {
		return nil, NewError(ErrForbidden, fmt.Sprintf("You can't manage %s.", target.Name)).
			WithUser(targetID)
	}
	return actor, nil
}

// checkRoleLevel refuses roles at or above the actor's own level.
func (s *Service) checkRoleLevel(actor *Principal, role *RoleMembership) error {
	if s.gate.IsExempt(actor) {
		return nil
	}
	level, ok := actor.Hierarchy()
	if !ok || role.HierarchyLevel <= level {
		return NewError(ErrForbidden, fmt.Sprintf("You can't manage the %s role.", role.RoleName)).
			WithUser(actor.UserID())
	}
	return nil
}
