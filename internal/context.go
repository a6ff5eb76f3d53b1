package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	contextActorKey  ctxKey = "actor"
	contextTenantKey ctxKey = "tenantID"
)

// Actor is the authenticated caller, threaded explicitly through every
// authorization and notification call. There is no ambient "current user"
// state anywhere; handlers resolve the actor once and pass it down.
type Actor struct {
	UserID  int64
	Email   string
	IsAdmin bool
	RoleIDs []int64
}

func ActorFromContext(ctx context.Context) (*Actor, bool) {
	if ctx == nil {
		return nil, false
	}
	actor, ok := ctx.Value(contextActorKey).(*Actor)
	if !ok || actor == nil {
		return nil, false
	}
	return actor, true
}

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, contextActorKey, actor)
}

// TenantIDFromContext returns the active farm scope for the request.
// Zero means the request is not tenant-scoped.
func TenantIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if id, ok := ctx.Value(contextTenantKey).(int64); ok {
		return id
	}
	return 0
}

func ContextWithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, contextTenantKey, tenantID)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
