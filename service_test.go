package gatekit

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSeedCatalog tests that seeding adds missing permissions and keeps existing rows
func TestSeedCatalog(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.EnsurePermissions(ctx, []Permission{{ID: "wiki.view", Category: "wiki", IsActive: true}}))
	store.SetPermissionActive("wiki.view", false)

	var buf bytes.Buffer
	svc := NewService(store, WithLogger(zerolog.New(&buf)))
	defer svc.Close()

	require.NoError(t, svc.SeedCatalog(ctx))
	assert.Len(t, store.permissions, len(DefaultCatalog().Permissions()))
	assert.False(t, store.permissions["wiki.view"].IsActive, "existing rows are left untouched")
	assert.True(t, store.permissions["wiki.edit"].IsActive)
	assert.Contains(t, buf.String(), "permission catalog seeded")

	require.NoError(t, svc.SeedCatalog(ctx), "seeding twice is harmless")
}

// TestServiceDefaults tests the options applied when none are given
func TestServiceDefaults(t *testing.T) {
	svc := NewService(NewMemoryStore())
	defer svc.Close()

	assert.NotNil(t, svc.Catalog())
	assert.True(t, svc.Catalog().Contains(PermissionManageUsers))
	assert.Equal(t, PermissionManageUsers, svc.manage)
	assert.NotNil(t, svc.Resolver())
	assert.Nil(t, svc.metrics)
}

// TestServiceCustomCatalog tests that WithCatalog replaces the default one
func TestServiceCustomCatalog(t *testing.T) {
	c := NewCatalog()
	c.DefineCategory("wiki").Permission("view", "View wiki")

	store := NewMemoryStore()
	svc := NewService(store, WithCatalog(c))
	defer svc.Close()

	require.NoError(t, svc.SeedCatalog(context.Background()))
	assert.Len(t, store.permissions, 1)
	assert.Same(t, c, svc.Catalog())
}

type unhealthyStore struct {
	*MemoryStore
}

func (unhealthyStore) IsHealthy(context.Context) bool { return false }

// TestServiceHealthy tests health reporting through the store
func TestServiceHealthy(t *testing.T) {
	ctx := context.Background()

	assert.True(t, NewService(NewMemoryStore()).Healthy(ctx))
	assert.False(t, NewService(unhealthyStore{NewMemoryStore()}).Healthy(ctx))
	assert.True(t, NewService(&failingStore{Store: NewMemoryStore()}).Healthy(ctx), "stores without health reporting count as healthy")
}

// TestServiceHierarchyExemptOption tests replacing the exempt permission list
func TestServiceHierarchyExemptOption(t *testing.T) {
	f := newFixture(t, WithHierarchyExemptPermissions("wiki.publish_directly"))

	ok, err := f.svc.CanManage(f.ctx, "manager", "root")
	require.NoError(t, err)
	assert.True(t, ok, "manager holds the configured exempt permission")

	ok, err = f.svc.CanManage(f.ctx, "root", "root")
	require.NoError(t, err)
	assert.False(t, ok, "bypass_hierarchy is no longer exempt")
}
