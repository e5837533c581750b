package gatekit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestContextValues tests the user id setter and getter
func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserID(ctx))
	assert.Equal(t, "nurse", GetUserID(WithUserID(ctx, "nurse")))
}

// TestGetActorID tests the fallback from actor to user
func TestGetActorID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetActorID(ctx))

	ctx = WithUserID(ctx, "nurse")
	assert.Equal(t, "nurse", GetActorID(ctx), "falls back to the user id")

	ctx = WithActorID(ctx, "manager")
	assert.Equal(t, "manager", GetActorID(ctx))
	assert.Equal(t, "nurse", GetUserID(ctx))
}

// TestContextKeysDoNotCollide tests that foreign keys with the same underlying value are ignored
func TestContextKeysDoNotCollide(t *testing.T) {
	ctx := context.WithValue(context.Background(), 0, "intruder")
	assert.Empty(t, GetUserID(ctx))

	ctx = context.WithValue(context.Background(), userKey, 42)
	assert.Empty(t, GetUserID(ctx), "non-string values are ignored")
}

// TestAuditContext tests bulk audit metadata handling
func TestAuditContext(t *testing.T) {
	ac := AuditContext{
		ActorID:   "manager",
		IPAddress: "10.0.0.8",
		UserAgent: "portal/1.0",
		RequestID: "req-9",
	}
	ctx := WithAuditContext(context.Background(), ac)
	assert.Equal(t, ac, GetAuditContext(ctx))

	partial := WithAuditContext(
		WithAuditContext(context.Background(), AuditContext{RequestID: "kept"}),
		AuditContext{ActorID: "root"},
	)
	assert.Equal(t, AuditContext{ActorID: "root", RequestID: "kept"}, GetAuditContext(partial),
		"empty fields don't overwrite existing values")

	ctx = WithUserID(context.Background(), "nurse")
	assert.Equal(t, "nurse", GetAuditContext(ctx).ActorID, "actor falls back to the user")
}

// TestPrincipalContext tests storing the resolved principal
func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, PrincipalFromContext(ctx))

	p := NewPrincipal("nurse", NewPermissionSet("wiki.view"), nil)
	ctx = WithPrincipal(ctx, p)
	assert.Same(t, p, PrincipalFromContext(ctx))
}
