package gatekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestResolveRoleGrants tests that role permissions form the base of the effective set
func TestResolveRoleGrants(t *testing.T) {
	f := newFixture(t)

	set, err := f.svc.ResolvePermissions(f.ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"course.submit_for_review",
		"course.view",
		"wiki.submit_for_review",
		"wiki.view",
	}, set.Slice())
}

// TestResolveUnionAcrossRoles tests that several active roles contribute
func TestResolveUnionAcrossRoles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.AssignRole(f.ctx, "nurse", "reviewer", "seed"))

	set, err := f.svc.ResolvePermissions(f.ctx, "nurse")
	require.NoError(t, err)
	assert.True(t, set.HasAll("wiki.view", "wiki.review_articles", "course.review_articles"))
}

// TestResolveExplicitDeny tests that a direct deny overrides a role grant
func TestResolveExplicitDeny(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.PutDirectGrant(f.ctx, &UserPermission{
		UserID: "reviewer", PermissionID: "wiki.review_articles", Granted: false,
	}))

	ok, err := f.svc.HasPermission(f.ctx, "reviewer", "wiki.review_articles")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.HasPermission(f.ctx, "reviewer", "course.review_articles")
	require.NoError(t, err)
	assert.True(t, ok, "deny is scoped to one permission id")
}

// TestResolveDirectAllow tests direct allows with and without expiry
func TestResolveDirectAllow(t *testing.T) {
	f := newFixture(t)
	future := f.now.Add(24 * time.Hour)
	past := f.now.Add(-time.Minute)

	require.NoError(t, f.store.PutDirectGrant(f.ctx, &UserPermission{
		UserID: "nurse", PermissionID: "wiki.submit_for_review", Granted: true,
	}))
	require.NoError(t, f.store.PutDirectGrant(f.ctx, &UserPermission{
		UserID: "nurse", PermissionID: "wiki.edit", Granted: true, ExpiresAt: &future,
	}))
	require.NoError(t, f.store.PutDirectGrant(f.ctx, &UserPermission{
		UserID: "nurse", PermissionID: "wiki.publish_directly", Granted: true, ExpiresAt: &past,
	}))

	set, err := f.svc.ResolvePermissions(f.ctx, "nurse")
	require.NoError(t, err)
	assert.True(t, set.Has("wiki.submit_for_review"), "allow without expiry")
	assert.True(t, set.Has("wiki.edit"), "allow expiring in the future")
	assert.False(t, set.Has("wiki.publish_directly"), "expired allow is absent")

	t.Run("expiry is exclusive", func(t *testing.T) {
		f.now = future
		ok, err := f.svc.HasPermission(f.ctx, "nurse", "wiki.edit")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// TestResolveExpiredDenyStillDenies tests that denies ignore ExpiresAt
func TestResolveExpiredDenyStillDenies(t *testing.T) {
	f := newFixture(t)
	past := f.now.Add(-time.Hour)
	require.NoError(t, f.store.PutDirectGrant(f.ctx, &UserPermission{
		UserID: "author", PermissionID: "wiki.view", Granted: false, ExpiresAt: &past,
	}))

	ok, err := f.svc.HasPermission(f.ctx, "author", "wiki.view")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestResolveInactiveSources tests that inactive rows contribute nothing
func TestResolveInactiveSources(t *testing.T) {
	t.Run("inactive permission", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetPermissionActive("wiki.view", false)
		require.NoError(t, f.store.PutDirectGrant(f.ctx, &UserPermission{
			UserID: "outsider", PermissionID: "wiki.view", Granted: true,
		}))

		for _, user := range []string{"author", "outsider"} {
			ok, err := f.svc.HasPermission(f.ctx, user, "wiki.view")
			require.NoError(t, err)
			assert.False(t, ok, user)
		}
	})

	t.Run("ungranted role link", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetRolePermission("staff_writer", "wiki.submit_for_review", false)

		ok, err := f.svc.HasPermission(f.ctx, "author", "wiki.submit_for_review")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("deactivated role assignment", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.DeactivateRole(f.ctx, "author", "staff_writer"))

		set, err := f.svc.ResolvePermissions(f.ctx, "author")
		require.NoError(t, err)
		assert.Zero(t, set.Len())
	})

	t.Run("inactive user", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.PutDirectGrant(f.ctx, &UserPermission{
			UserID: "inactive", PermissionID: "wiki.edit", Granted: true,
		}))

		p, err := f.svc.LoadPrincipal(f.ctx, "inactive")
		require.NoError(t, err)
		assert.True(t, p.IsEmpty())
		assert.Empty(t, p.Roles())
	})
}

// TestResolveUnknownUser tests that unknown and empty users fail closed
func TestResolveUnknownUser(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{"ghost", ""} {
		set, err := f.svc.ResolvePermissions(f.ctx, id)
		require.NoError(t, err)
		assert.Zero(t, set.Len())
	}
}

// TestResolveStoreError tests that read failures propagate instead of failing open
func TestResolveStoreError(t *testing.T) {
	f := newFixture(t)
	store := &failingStore{Store: f.store, failDirectGrants: true}
	r := NewResolver(store, f.clock)

	_, err := r.Resolve(f.ctx, "author")
	assert.ErrorIs(t, err, errStoreDown)

	ok, err := r.HasPermission(f.ctx, "author", "wiki.view")
	assert.Error(t, err)
	assert.False(t, ok)
}

// TestPrincipal tests the request-scoped snapshot
func TestPrincipal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.AssignRole(f.ctx, "author", "reviewer", "seed"))

	p, err := f.svc.LoadPrincipal(f.ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, "author", p.UserID())
	assert.Equal(t, "Sam Author", p.Name())
	assert.True(t, p.Authenticated())
	assert.ElementsMatch(t, []string{"staff_writer", "reviewer"}, p.RoleIDs())
	assert.True(t, p.HasAnyRole([]string{"reviewer"}))
	assert.False(t, p.HasAnyRole([]string{"nurse"}))

	level, ok := p.Hierarchy()
	assert.True(t, ok)
	assert.Equal(t, 2, level, "effective hierarchy is the minimum across roles")

	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.Authenticated())
	assert.Equal(t, "u1", NewPrincipal("u1", PermissionSet{}, nil).Name())
}

func TestEffectivePermissions(t *testing.T) {
	now := fixtureNow
	past, future := now.Add(-time.Second), now.Add(time.Second)

	tests := []struct {
		name   string
		roles  []string
		grants []DirectGrant
		want   []string
	}{
		{
			name:  "roles only",
			roles: []string{"a.x", "a.y"},
			want:  []string{"a.x", "a.y"},
		},
		{
			name:   "deny beats role and allow",
			roles:  []string{"a.x"},
			grants: []DirectGrant{{PermissionID: "a.x", Granted: true, PermissionActive: true}, {PermissionID: "a.x", Granted: false}},
			want:   []string{},
		},
		{
			name:   "deny listed before allow still wins",
			grants: []DirectGrant{{PermissionID: "a.z", Granted: false}, {PermissionID: "a.z", Granted: true, PermissionActive: true}},
			want:   []string{},
		},
		{
			name: "expiry",
			grants: []DirectGrant{
				{PermissionID: "a.old", Granted: true, PermissionActive: true, ExpiresAt: &past},
				{PermissionID: "a.new", Granted: true, PermissionActive: true, ExpiresAt: &future},
			},
			want: []string{"a.new"},
		},
		{
			name:   "inactive permission allow",
			grants: []DirectGrant{{PermissionID: "a.off", Granted: true, PermissionActive: false}},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := effectivePermissions(tt.roles, tt.grants, now)
			assert.Equal(t, tt.want, got.Slice())
		})
	}
}
