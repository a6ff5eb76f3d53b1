package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/authz"
	"github.com/trufflehub/farm-management/internal/core/events"
	"github.com/trufflehub/farm-management/internal/permission"
	"github.com/trufflehub/farm-management/internal/transport"
)

// Authorizer is the decision function guarding routed actions.
type Authorizer interface {
	Authorize(ctx context.Context, actor *internal.Actor, namespace, controller, action string, tenantID int64) bool
}

// TenantNamer resolves a tenant's display name for denial messages.
type TenantNamer interface {
	Name(ctx context.Context, tenantID int64) (string, error)
}

// Guard builds per-route authorization middleware. Every guarded request also
// publishes a discovery event so executed routes register themselves.
type Guard struct {
	base    *transport.BaseHandler
	authz   Authorizer
	bus     *events.EventBus
	tenants TenantNamer
	logger  *slog.Logger
}

func NewGuard(authorizer Authorizer, bus *events.EventBus, tenants TenantNamer, logger *slog.Logger) *Guard {
	return &Guard{
		base:    transport.NewBaseHandler(logger),
		authz:   authorizer,
		bus:     bus,
		tenants: tenants,
		logger:  logger,
	}
}

// Require guards a route with the given triple. The discovery event fires
// before the decision so even denied routes get registered.
func (g *Guard) Require(namespace, controller, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			permission.RecordActionExecuted(r.Context(), g.bus, namespace, controller, action, "")

			actor, ok := internal.ActorFromContext(r.Context())
			if !ok || actor == nil {
				g.base.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			tenantID := internal.TenantIDFromContext(r.Context())
			if g.authz.Authorize(r.Context(), actor, namespace, controller, action, tenantID) {
				next.ServeHTTP(w, r)
				return
			}

			g.logger.Warn("access denied",
				"user_id", actor.UserID,
				"namespace", namespace,
				"controller", controller,
				"action", action,
				"tenant_id", tenantID)

			g.base.WriteError(w, http.StatusForbidden, g.denialMessage(r.Context(), action, tenantID))
		})
	}
}

func (g *Guard) denialMessage(ctx context.Context, action string, tenantID int64) string {
	tenantName := ""
	if tenantID != 0 && g.tenants != nil {
		name, err := g.tenants.Name(ctx, tenantID)
		if err != nil {
			g.logger.Error("failed to resolve farm name for denial message",
				"error", err, "tenant_id", tenantID)
		} else {
			tenantName = name
		}
	}
	return authz.DenialMessage(action, tenantName)
}
