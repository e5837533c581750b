package gatekit

import (
	"context"
)

type ctxKey int

const (
	userKey ctxKey = iota
	actorKey
	requestMetaKey
	principalKey
)

// WithUserID adds the authenticated user ID to the context.
// The identity provider is expected to set this before gatekit runs.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// GetUserID returns the authenticated user ID, or "".
func GetUserID(ctx context.Context) string {
	s, _ := ctx.Value(userKey).(string)
	return s
}

// WithActorID sets the user performing an administrative action.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// GetActorID returns the actor ID, falling back to the authenticated user.
func GetActorID(ctx context.Context) string {
	if s, _ := ctx.Value(actorKey).(string); s != "" {
		return s
	}
	return GetUserID(ctx)
}

// WithPrincipal stores the request-scoped Principal.
// Set by middleware so handlers don't resolve permissions twice.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the Principal loaded for this request, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// AuditContext is the request metadata recorded with every audit entry.
type AuditContext struct {
	ActorID   string
	IPAddress string
	UserAgent string
	RequestID string
}

// GetAuditContext returns the audit metadata carried by ctx.
func GetAuditContext(ctx context.Context) AuditContext {
	ac, _ := ctx.Value(requestMetaKey).(AuditContext)
	ac.ActorID = GetActorID(ctx)
	return ac
}

// WithAuditContext merges ac into the metadata already in ctx. Empty fields
// leave existing values alone.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	if ac.ActorID != "" {
		ctx = WithActorID(ctx, ac.ActorID)
	}

	meta, _ := ctx.Value(requestMetaKey).(AuditContext)
	if ac.IPAddress != "" {
		meta.IPAddress = ac.IPAddress
	}
	if ac.UserAgent != "" {
		meta.UserAgent = ac.UserAgent
	}
	if ac.RequestID != "" {
		meta.RequestID = ac.RequestID
	}
	meta.ActorID = ""
	return context.WithValue(ctx, requestMetaKey, meta)
}
