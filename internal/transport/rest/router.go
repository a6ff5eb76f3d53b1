package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/trufflehub/farm-management/internal/auth"
	"github.com/trufflehub/farm-management/internal/notification"
	"github.com/trufflehub/farm-management/internal/permission"
	"github.com/trufflehub/farm-management/internal/tenant"
	"github.com/trufflehub/farm-management/internal/transport/middleware"
	"github.com/trufflehub/farm-management/internal/transport/swagger"
	"github.com/trufflehub/farm-management/internal/user"
)

// RegisterAllRoutes wires the full HTTP surface. Route triples passed to the
// guard are what the discovery pipeline registers as permissions, so the
// naming here is the naming admins grant against.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	guard *middleware.Guard,
	tenantResolver middleware.HandleResolver,
	authHandler *auth.Handler,
	userHandler *user.Handler,
	tenantHandler *tenant.Handler,
	permissionHandler *permission.Handler,
	notificationHandler *notification.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve the OpenAPI contract at root (outside the API prefix)
	router.Get("/openapi.yml", serveOpenAPISpec("./api/openapi.yml"))
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", authHandler.Login)
			sr.Post("/refresh", authHandler.RefreshToken)
			sr.Post("/logout", authHandler.Logout)
		})

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)
			pr.Use(middleware.TenantContext(tenantResolver, logger))

			pr.Get("/users/me", userHandler.GetCurrentUser)

			// Notification routes belong to their owner; no permission grants
			// needed beyond authentication.
			pr.Route("/notifications", func(nr chi.Router) {
				nr.Get("/", notificationHandler.ListUnread)
				nr.Get("/unread_count", notificationHandler.UnreadCount)
				nr.Get("/stream", notificationHandler.Stream)
				nr.Post("/read_all", notificationHandler.MarkAllAsRead)
				nr.Post("/request_count", notificationHandler.RequestCount)
				nr.Post("/{id}/read", notificationHandler.MarkAsRead)
				nr.Post("/{id}/dismiss", notificationHandler.Dismiss)
				nr.Post("/{id}/displayed", notificationHandler.MarkAsDisplayed)

				// Creating notifications for other users is an admin surface.
				nr.Group(func(ar chi.Router) {
					ar.Use(guard.Require("admin", "notifications", "create"))
					ar.Post("/", notificationHandler.Create)
					ar.Post("/broadcast", notificationHandler.NotifyAll)
				})
			})

			// Farm management
			pr.Route("/farms", func(fr chi.Router) {
				fr.Get("/memberships", tenantHandler.MyMemberships)

				fr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "farms", "index"))
					gr.Get("/", tenantHandler.List)
				})
				fr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "farms", "create"))
					gr.Post("/", tenantHandler.Create)
				})
				fr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "farms", "show"))
					gr.Get("/{handle}", tenantHandler.GetByHandle)
				})
				fr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "farm_members", "create"))
					gr.Post("/{id}/members", tenantHandler.AddMember)
				})
				fr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "farm_members", "destroy"))
					gr.Delete("/{id}/members/{userID}", tenantHandler.RemoveMember)
				})

				fr.Post("/{id}/default", tenantHandler.SetDefault)
			})

			// Permission registry admin
			pr.Route("/permissions", func(mr chi.Router) {
				mr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "permissions", "index"))
					gr.Get("/", permissionHandler.List)
					gr.Get("/{id}", permissionHandler.Get)
					gr.Get("/{id}/audit", permissionHandler.AuditTrail)
				})
				mr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "permissions", "create"))
					gr.Post("/", permissionHandler.Register)
				})
				mr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "permissions", "update"))
					gr.Post("/{id}/archive", permissionHandler.Archive)
					gr.Post("/{id}/reactivate", permissionHandler.Reactivate)
				})
			})

			// Role admin
			pr.Route("/roles", func(rr chi.Router) {
				rr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "roles", "index"))
					gr.Get("/", permissionHandler.ListRoles)
				})
				rr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "roles", "create"))
					gr.Post("/", permissionHandler.CreateRole)
				})
				rr.Group(func(gr chi.Router) {
					gr.Use(guard.Require("admin", "roles", "update"))
					gr.Post("/{id}/permissions", permissionHandler.Grant)
					gr.Delete("/{id}/permissions/{permissionID}", permissionHandler.Revoke)
				})
			})

			pr.Group(func(gr chi.Router) {
				gr.Use(guard.Require("admin", "role_assignments", "create"))
				gr.Post("/role_assignments", permissionHandler.AssignRole)
			})
			pr.Group(func(gr chi.Router) {
				gr.Use(guard.Require("admin", "role_assignments", "destroy"))
				gr.Delete("/role_assignments", permissionHandler.RemoveRole)
			})
		})
	})
}
