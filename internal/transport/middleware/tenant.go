package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/trufflehub/farm-management/internal"
)

// HandleResolver maps a farm handle to its tenant ID.
type HandleResolver interface {
	IDByHandle(ctx context.Context, handle string) (int64, error)
}

// TenantContext resolves the X-Farm-Handle header into a tenant ID on the
// request context. Requests without the header stay unscoped; an unknown
// handle is a hard 404 so farm-scoped routes never fall back to unscoped.
func TenantContext(resolver HandleResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle := r.Header.Get("X-Farm-Handle")
			if handle == "" {
				next.ServeHTTP(w, r)
				return
			}

			tenantID, err := resolver.IDByHandle(r.Context(), handle)
			if err != nil {
				if errors.Is(err, internal.ErrTenantNotFound) {
					http.Error(w, "farm not found", http.StatusNotFound)
					return
				}
				logger.Error("failed to resolve farm handle", "error", err, "handle", handle)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := internal.ContextWithTenantID(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
