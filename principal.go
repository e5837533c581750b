package gatekit

// Principal is the resolved authority of one user for the duration of a
// request. It is typically loaded by the middleware and stored in context.
type Principal struct {
	userID      string
	name        string
	permissions PermissionSet
	roles       []RoleMembership
}

// NewPrincipal creates a Principal from already-resolved data.
func NewPrincipal(userID string, permissions PermissionSet, roles []RoleMembership) *Principal {
	return &Principal{userID: userID, permissions: permissions, roles: roles}
}

// UserID returns the user ID this principal is for.
func (p *Principal) UserID() string {
	return p.userID
}

// Name returns the user's display name, or the user ID when unknown.
func (p *Principal) Name() string {
	if p.name != "" {
		return p.name
	}
	return p.userID
}

// Authenticated reports whether the principal carries a user ID.
func (p *Principal) Authenticated() bool {
	return p != nil && p.userID != ""
}

// Permissions returns the effective permission set.
func (p *Principal) Permissions() PermissionSet {
	return p.permissions
}

// HasPermission checks if the user effectively holds a permission.
//
// Example:
//
//	if principal.HasPermission("wiki.review_articles") {
//	    // show the review queue
//	}
func (p *Principal) HasPermission(permission string) bool {
	return p.permissions.Has(permission)
}

// HasAnyPermission checks if the user holds any of the permissions.
func (p *Principal) HasAnyPermission(permissions ...string) bool {
	return p.permissions.HasAny(permissions...)
}

// Roles returns the active role memberships.
func (p *Principal) Roles() []RoleMembership {
	return p.roles
}

// RoleIDs returns the ids of the active roles.
func (p *Principal) RoleIDs() []string {
	return roleIDs(p.roles)
}

// HasAnyRole reports whether one of the active roles is in roleIDs.
func (p *Principal) HasAnyRole(ids []string) bool {
	for _, r := range p.roles {
		for _, id := range ids {
			if r.RoleID == id {
				return true
			}
		}
	}
	return false
}

// Hierarchy returns the effective hierarchy level: the minimum level across
// active roles. ok is false when the user has no active role.
func (p *Principal) Hierarchy() (level int, ok bool) {
	return effectiveHierarchy(p.roles)
}

// IsEmpty returns true if the user has no active role and no permission.
func (p *Principal) IsEmpty() bool {
	return len(p.roles) == 0 && p.permissions.Len() == 0
}

func effectiveHierarchy(roles []RoleMembership) (int, bool) {
	if len(roles) == 0 {
		return 0, false
	}
	level := roles[0].HierarchyLevel
	for _, r := range roles[1:] {
		level = min(level, r.HierarchyLevel)
	}
	return level, true
}
