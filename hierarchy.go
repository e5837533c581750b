package gatekit

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// HierarchyGate decides whether one user may manage another.
// Lower hierarchy numbers carry more authority.
type HierarchyGate struct {
	resolver *Resolver
	store    AuthzReader
	exempt   []string
}

// NewHierarchyGate creates a gate. Holders of any exempt permission may
// manage everyone; the check goes through the resolver so denies apply.
func NewHierarchyGate(resolver *Resolver, store AuthzReader, exempt ...string) *HierarchyGate {
	return &HierarchyGate{resolver: resolver, store: store, exempt: exempt}
}

// EffectiveHierarchy returns the minimum level across the user's active
// roles. ok is false when the user has no active role (least authority).
func (g *HierarchyGate) EffectiveHierarchy(ctx context.Context, userID string) (level int, ok bool, err error) {
	if userID == "" {
		return 0, false, nil
	}
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !user.IsActive {
		return 0, false, nil
	}
	roles, err := g.store.ActiveRoles(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	level, ok = effectiveHierarchy(roles)
	return level, ok, nil
}

// CanManage reports whether actorID may manage targetID.
// True when the actor holds an exempt permission, or the actor has an
// active role and outranks the target. A target without roles is
// manageable by anyone holding a role.
func (g *HierarchyGate) CanManage(ctx context.Context, actorID, targetID string) (bool, error) {
	var (
		actor       *Principal
		targetLevel int
		targetRoled bool
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		actor, err = g.resolver.Principal(egctx, actorID)
		return err
	})
	eg.Go(func() error {
		var err error
		targetLevel, targetRoled, err = g.EffectiveHierarchy(egctx, targetID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return false, err
	}
	return g.canManage(actor, targetLevel, targetRoled), nil
}

// IsExempt reports whether the principal bypasses hierarchy checks.
func (g *HierarchyGate) IsExempt(p *Principal) bool {
	return len(g.exempt) > 0 && p.HasAnyPermission(g.exempt...)
}

func (g *HierarchyGate) canManage(actor *Principal, targetLevel int, targetRoled bool) bool {
	if g.IsExempt(actor) {
		return true
	}
	actorLevel, ok := actor.Hierarchy()
	if !ok {
		return false
	}
	if !targetRoled {
		return true
	}
	return actorLevel < targetLevel
}
