package gatekit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// Resolver computes a user's effective permission set from role grants and
// direct grants:
//
//	effective = (roleGrants ∪ directAllow) − directDeny
//
// An explicit deny always wins. Expired allows are treated as absent.
// Nothing is cached; each call reads the current rows.
type Resolver struct {
	store AuthzReader
	now   Clock
}

// NewResolver creates a Resolver reading from store.
func NewResolver(store AuthzReader, now Clock) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, now: now}
}

// Resolve returns the effective permission set of userID.
// Unknown and inactive users get an empty set and no error.
func (r *Resolver) Resolve(ctx context.Context, userID string) (PermissionSet, error) {
	p, err := r.Principal(ctx, userID)
	if err != nil {
		return PermissionSet{}, err
	}
	return p.permissions, nil
}

// HasPermission reports whether userID effectively holds permission.
// The full set is resolved so a deny is never skipped.
func (r *Resolver) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(permission), nil
}

// Principal loads the request-scoped snapshot of userID: effective
// permissions and active roles. Role and direct-grant reads run in parallel.
func (r *Resolver) Principal(ctx context.Context, userID string) (*Principal, error) {
	p := &Principal{userID: userID}
	if userID == "" {
		return p, nil
	}

	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return p, nil
		}
		return nil, err
	}
	if !user.IsActive {
		return p, nil
	}
	p.name = user.Name

	var (
		roles      []RoleMembership
		roleGrants []string
		grants     []DirectGrant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roles, err = r.store.ActiveRoles(gctx, userID)
		if err != nil || len(roles) == 0 {
			return err
		}
		roleGrants, err = r.store.RolePermissionIDs(gctx, roleIDs(roles))
		return err
	})
	g.Go(func() error {
		var err error
		grants, err = r.store.DirectGrants(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.roles = roles
	p.permissions = effectivePermissions(roleGrants, grants, r.now())
	return p, nil
}

func effectivePermissions(roleGrants []string, grants []DirectGrant, now time.Time) PermissionSet {
	set := NewPermissionSet(roleGrants...)
	for _, g := range grants {
		if g.Granted && g.PermissionActive && g.ActiveAt(now) {
			set.add(g.PermissionID)
		}
	}
	for _, g := range grants {
		if !g.Granted {
			set.remove(g.PermissionID)
		}
	}
	return set
}

func roleIDs(roles []RoleMembership) []string {
	ids := make([]string, len(roles))
	for i, r := range roles {
		ids[i] = r.RoleID
	}
	return ids
}
