package gatekit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. The conditional writes hold a single
// mutex, which gives the same compare-and-swap guarantees as BunStore.
// It suits tests, demos and single-instance deployments.
type MemoryStore struct {
	mu  sync.RWMutex
	now Clock

	users       map[string]User
	userTypes   map[string]UserType
	roles       map[string]Role
	rolePerms   map[string]map[string]bool // role -> permission -> granted
	userRoles   []*UserRole
	permissions map[string]Permission
	userPerms   map[string]map[string]*UserPermission // user -> permission -> row
	items       map[string]*ContentItem
	reviews     map[string]*ArticleReview
	audit       []AuditLog
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		users:       make(map[string]User),
		userTypes:   make(map[string]UserType),
		roles:       make(map[string]Role),
		rolePerms:   make(map[string]map[string]bool),
		permissions: make(map[string]Permission),
		userPerms:   make(map[string]map[string]*UserPermission),
		items:       make(map[string]*ContentItem),
		reviews:     make(map[string]*ArticleReview),
	}
}

// ===== SEEDING =====

// AddUser inserts or replaces a user.
func (m *MemoryStore) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddUserType inserts or replaces a user type. Negative hierarchy levels
// are rejected, as the SQL schema does.
func (m *MemoryStore) AddUserType(t UserType) error {
	if t.HierarchyLevel < 0 {
		return NewError(ErrValidation, fmt.Sprintf("Hierarchy level %d is below zero.", t.HierarchyLevel))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userTypes[t.ID] = t
	return nil
}

// AddRole inserts or replaces a role and sets its granted permissions.
func (m *MemoryStore) AddRole(r Role, permissionIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[r.ID] = r
	if m.rolePerms[r.ID] == nil {
		m.rolePerms[r.ID] = make(map[string]bool)
	}
	for _, p := range permissionIDs {
		m.rolePerms[r.ID][p] = true
	}
}

// SetRolePermission sets the granted flag of a role-permission link.
func (m *MemoryStore) SetRolePermission(roleID, permissionID string, granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rolePerms[roleID] == nil {
		m.rolePerms[roleID] = make(map[string]bool)
	}
	m.rolePerms[roleID][permissionID] = granted
}

// SetPermissionActive toggles a catalog permission.
func (m *MemoryStore) SetPermissionActive(permissionID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.permissions[permissionID]; ok {
		p.IsActive = active
		m.permissions[permissionID] = p
	}
}

// AddItem inserts or replaces a content item.
func (m *MemoryStore) AddItem(item ContentItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = cloneItem(&item)
}

// ===== AUTHZ READS =====

// GetUser implements AuthzReader.
func (m *MemoryStore) GetUser(_ context.Context, userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// ActiveRoles implements AuthzReader.
func (m *MemoryStore) ActiveRoles(_ context.Context, userID string) ([]RoleMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[userID]; !ok || !u.IsActive {
		return nil, nil
	}
	var out []RoleMembership
	for _, ur := range m.userRoles {
		if ur.UserID != userID || !ur.IsActive {
			continue
		}
		if rm, ok := m.membership(ur.RoleID); ok {
			out = append(out, rm)
		}
	}
	return out, nil
}

func (m *MemoryStore) membership(roleID string) (RoleMembership, bool) {
	r, ok := m.roles[roleID]
	if !ok {
		return RoleMembership{}, false
	}
	t, ok := m.userTypes[r.UserTypeID]
	if !ok {
		return RoleMembership{}, false
	}
	return RoleMembership{RoleID: r.ID, RoleName: r.Name, HierarchyLevel: t.HierarchyLevel}, true
}

// RolePermissionIDs implements AuthzReader.
func (m *MemoryStore) RolePermissionIDs(_ context.Context, roleIDs []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, roleID := range roleIDs {
		for permID, granted := range m.rolePerms[roleID] {
			if !granted || seen[permID] || !m.permissions[permID].IsActive {
				continue
			}
			seen[permID] = true
			out = append(out, permID)
		}
	}
	slices.Sort(out)
	return out, nil
}

// DirectGrants implements AuthzReader.
func (m *MemoryStore) DirectGrants(_ context.Context, userID string) ([]DirectGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DirectGrant
	for _, up := range m.userPerms[userID] {
		out = append(out, DirectGrant{
			PermissionID:     up.PermissionID,
			Granted:          up.Granted,
			ExpiresAt:        up.ExpiresAt,
			PermissionActive: m.permissions[up.PermissionID].IsActive,
		})
	}
	return out, nil
}

// ===== CONTENT =====

// GetItem implements ContentStore.
func (m *MemoryStore) GetItem(_ context.Context, itemID string) (*ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(item), nil
}

// GetReview implements ContentStore.
func (m *MemoryStore) GetReview(_ context.Context, reviewID string) (*ArticleReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[reviewID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ApplyTransition implements ContentStore.
func (m *MemoryStore) ApplyTransition(_ context.Context, w TransitionWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[w.ItemID]
	if !ok {
		return ErrNotFound
	}

	var closing *ArticleReview
	if w.CloseReview != nil {
		closing, ok = m.reviews[w.CloseReview.ReviewID]
		if !ok {
			return ErrNotFound
		}
		if !closing.Status.Open() || item.OpenReviewID == nil || *item.OpenReviewID != closing.ID {
			return ErrReviewAlreadyClosed
		}
	}
	if item.Status != w.From {
		return ErrStatusConflict
	}
	if w.OpenReview != nil && item.OpenReviewID != nil {
		if r, ok := m.reviews[*item.OpenReviewID]; ok && r.Status.Open() {
			return ErrStatusConflict
		}
	}

	// All checks passed; nothing below can fail.
	if closing != nil {
		at := w.At
		resolvedBy := w.CloseReview.ResolvedByID
		closing.Status = w.CloseReview.Status
		closing.Feedback = w.CloseReview.Feedback
		closing.ResolvedByID = &resolvedBy
		closing.ResolvedAt = &at
		item.OpenReviewID = nil
	}
	if w.OpenReview != nil {
		r := *w.OpenReview
		m.reviews[r.ID] = &r
		id := r.ID
		item.OpenReviewID = &id
	}
	item.Status = w.To
	item.UpdatedAt = w.At
	return nil
}

// ClaimReview implements ContentStore.
func (m *MemoryStore) ClaimReview(_ context.Context, reviewID, assigneeID string, _ time.Time) (*ArticleReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[reviewID]
	if !ok {
		return nil, ErrNotFound
	}
	switch r.Status {
	case ReviewPending:
	case ReviewInProgress:
		return nil, ErrReviewAlreadyClaimed
	default:
		return nil, ErrReviewAlreadyClosed
	}
	assignee := assigneeID
	r.AssigneeID = &assignee
	r.Status = ReviewInProgress
	cp := *r
	return &cp, nil
}

// ListItems implements ContentStore. The scope is evaluated while the
// items are read, so invisible rows never leave the store.
func (m *MemoryStore) ListItems(_ context.Context, scope VisibilityScope, filter ContentFilter) ([]ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []ContentItem{}
	for _, item := range m.items {
		if filter.Kind != "" && item.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.AuthorID != "" && item.AuthorID != filter.AuthorID {
			continue
		}
		if !scope.Allows(item) {
			continue
		}
		out = append(out, *cloneItem(item))
	}
	slices.SortFunc(out, func(a, b ContentItem) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return paginate(out, filter.Offset, filter.limit()), nil
}

// ===== ADMIN =====

// GetRole implements AdminStore.
func (m *MemoryStore) GetRole(_ context.Context, roleID string) (*RoleMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rm, ok := m.membership(roleID)
	if !ok {
		return nil, ErrNotFound
	}
	return &rm, nil
}

// AssignRole implements AdminStore.
func (m *MemoryStore) AssignRole(_ context.Context, userID, roleID, assignedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	now := m.now()
	for _, ur := range m.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			if ur.IsActive {
				return ErrRoleAlreadyAssigned
			}
			ur.IsActive = true
			ur.AssignedBy = assignedBy
			ur.UpdatedAt = now
			return nil
		}
	}
	m.userRoles = append(m.userRoles, &UserRole{
		ID:         uuid.NewString(),
		UserID:     userID,
		RoleID:     roleID,
		IsActive:   true,
		AssignedBy: assignedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return nil
}

// DeactivateRole implements AdminStore.
func (m *MemoryStore) DeactivateRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ur := range m.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID && ur.IsActive {
			ur.IsActive = false
			ur.UpdatedAt = m.now()
			return nil
		}
	}
	return ErrRoleNotAssigned
}

// PutDirectGrant implements AdminStore.
func (m *MemoryStore) PutDirectGrant(_ context.Context, grant *UserPermission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userPerms[grant.UserID] == nil {
		m.userPerms[grant.UserID] = make(map[string]*UserPermission)
	}
	row := *grant
	if existing, ok := m.userPerms[grant.UserID][grant.PermissionID]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = m.now()
	}
	m.userPerms[grant.UserID][grant.PermissionID] = &row
	return nil
}

// DeleteDirectGrant implements AdminStore.
func (m *MemoryStore) DeleteDirectGrant(_ context.Context, userID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.userPerms[userID][permissionID]; !ok {
		return ErrNotFound
	}
	delete(m.userPerms[userID], permissionID)
	return nil
}

// EnsurePermissions implements AdminStore.
func (m *MemoryStore) EnsurePermissions(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.permissions[p.ID]; !ok {
			m.permissions[p.ID] = p
		}
	}
	return nil
}

// LogAudit implements AdminStore.
func (m *MemoryStore) LogAudit(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := entry.ToModel(m.now())
	row.ID = uuid.NewString()
	m.audit = append(m.audit, *row)
	return nil
}

// GetAuditLog implements AdminStore.
func (m *MemoryStore) GetAuditLog(_ context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AuditLog
	for i := len(m.audit) - 1; i >= 0; i-- {
		if filter.Matches(&m.audit[i]) {
			out = append(out, m.audit[i])
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return paginate(out, filter.Offset, limit), nil
}

// IsHealthy implements HealthMonitor.
func (m *MemoryStore) IsHealthy(context.Context) bool {
	return true
}

func cloneItem(item *ContentItem) *ContentItem {
	cp := *item
	cp.AllowedRoles = slices.Clone(item.AllowedRoles)
	if item.OpenReviewID != nil {
		id := *item.OpenReviewID
		cp.OpenReviewID = &id
	}
	return &cp
}

func paginate[T any](rows []T, offset, limit int) []T {
	offset = max(offset, 0)
	if offset >= len(rows) {
		return rows[:0]
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
