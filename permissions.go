package gatekit

import (
	"slices"
	"strings"
)

// PermissionSet is the effective set of permission ids held by a user.
// The zero value is an empty set and is safe to use.
type PermissionSet struct {
	ids map[string]struct{}
}

// NewPermissionSet creates a set holding the given ids.
func NewPermissionSet(ids ...string) PermissionSet {
	s := PermissionSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Has reports whether the set contains the permission id. Matching is exact.
func (s PermissionSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// HasAny reports whether the set contains at least one of ids.
func (s PermissionSet) HasAny(ids ...string) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set contains every one of ids.
func (s PermissionSet) HasAll(ids ...string) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int {
	return len(s.ids)
}

// Slice returns the permission ids in sorted order.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *PermissionSet) add(id string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
}

func (s *PermissionSet) remove(id string) {
	delete(s.ids, id)
}

// ValidatePermissionID checks that a permission id is a dot-separated string
// of identifiers such as "wiki.edit" or "admin.bypass_hierarchy".
func ValidatePermissionID(permission string) error {
	if permission == "" {
		return NewError(ErrInvalidPermission, "permission cannot be empty")
	}

	parts := strings.Split(permission, ".")
	if len(parts) < 2 {
		return NewError(ErrInvalidPermission, "permission must have at least two parts (category.action)").
			WithPermission(permission)
	}

	for _, part := range parts {
		if part == "" {
			return NewError(ErrInvalidPermission, "permission parts cannot be empty").WithPermission(permission)
		}
		for _, c := range part {
			if !isValidPermissionChar(c) {
				return NewError(ErrInvalidPermission, "permission contains invalid character").WithPermission(permission)
			}
		}
	}

	return nil
}

func isValidPermissionChar(c rune) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}
