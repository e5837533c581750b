package gatekit

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Well-known permission ids outside the per-kind content permissions.
const (
	PermissionManageUsers     = "users.manage"
	PermissionBypassHierarchy = "admin.bypass_hierarchy"
)

// Content actions. Combined with a ContentKind they form permission ids.
const (
	ActionView            = "view"
	ActionEdit            = "edit"
	ActionDelete          = "delete"
	ActionSubmitForReview = "submit_for_review"
	ActionPublishDirectly = "publish_directly"
	ActionReviewArticles  = "review_articles"
)

var contentActions = []struct{ action, description string }{
	{ActionView, "View published content"},
	{ActionEdit, "Edit and archive content"},
	{ActionDelete, "Delete content"},
	{ActionSubmitForReview, "Submit own drafts for review"},
	{ActionPublishDirectly, "Publish drafts without review"},
	{ActionReviewArticles, "Approve or reject submitted content"},
}

// Catalog holds every permission the portal knows about.
// It is created at startup and should be treated as immutable after initialization.
type Catalog struct {
	mu         sync.RWMutex
	categories map[string]*CategoryDefinition
}

// CategoryDefinition groups permissions sharing a prefix (e.g. "wiki").
type CategoryDefinition struct {
	name        string
	permissions map[string]string // id -> description
	catalog     *Catalog
}

// NewCatalog creates an empty permission catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		categories: make(map[string]*CategoryDefinition),
	}
}

// DefaultCatalog returns the portal's permission catalog: the content
// permissions for wiki and course plus user management and the hierarchy bypass.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	for _, kind := range []ContentKind{KindWiki, KindCourse} {
		cat := c.DefineCategory(string(kind))
		for _, a := range contentActions {
			cat.Permission(a.action, a.description)
		}
	}
	c.DefineCategory("users").Permission("manage", "Assign roles and direct grants to users")
	c.DefineCategory("admin").Permission("bypass_hierarchy", "Manage users regardless of hierarchy level")
	return c
}

// DefineCategory starts defining a permission category.
// Returns a CategoryDefinition builder for fluent configuration.
//
// Example:
//
//	catalog.DefineCategory("wiki").
//	    Permission("view", "View articles").
//	    Permission("edit", "Edit articles")
func (c *Catalog) DefineCategory(name string) *CategoryDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.categories[name]; ok {
		return existing
	}
	cat := &CategoryDefinition{
		name:        name,
		permissions: make(map[string]string),
		catalog:     c,
	}
	c.categories[name] = cat
	return cat
}

// Permission adds "<category>.<action>" to the catalog.
func (d *CategoryDefinition) Permission(action, description string) *CategoryDefinition {
	d.catalog.mu.Lock()
	defer d.catalog.mu.Unlock()
	d.permissions[d.name+"."+action] = description
	return d
}

// DefineCategory continues defining categories on the catalog (fluent API).
func (d *CategoryDefinition) DefineCategory(name string) *CategoryDefinition {
	return d.catalog.DefineCategory(name)
}

// Name returns the category name.
func (d *CategoryDefinition) Name() string {
	return d.name
}

// Contains reports whether the permission id is declared.
func (c *Catalog) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.categories {
		if _, ok := cat.permissions[id]; ok {
			return true
		}
	}
	return false
}

// Validate checks the permission id format and that it is declared.
func (c *Catalog) Validate(id string) error {
	if err := ValidatePermissionID(id); err != nil {
		return err
	}
	if !c.Contains(id) {
		return NewError(ErrInvalidPermission, fmt.Sprintf("permission %q is not defined", id)).
			WithPermission(id)
	}
	return nil
}

// Permissions returns every declared permission as a model ready to be
// persisted, sorted by id.
func (c *Catalog) Permissions() []Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Permission
	for _, cat := range c.categories {
		for id, desc := range cat.permissions {
			out = append(out, Permission{ID: id, Category: cat.name, Description: desc, IsActive: true})
		}
	}
	slices.SortFunc(out, func(a, b Permission) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Categories returns all category names in sorted order.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
