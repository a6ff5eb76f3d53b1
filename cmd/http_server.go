package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/auth"
	"github.com/trufflehub/farm-management/internal/authz"
	"github.com/trufflehub/farm-management/internal/broadcast"
	"github.com/trufflehub/farm-management/internal/core/events"
	"github.com/trufflehub/farm-management/internal/notification"
	notificationPostgres "github.com/trufflehub/farm-management/internal/notification/postgres"
	"github.com/trufflehub/farm-management/internal/permission"
	permissionPostgres "github.com/trufflehub/farm-management/internal/permission/postgres"
	"github.com/trufflehub/farm-management/internal/tenant"
	tenantPostgres "github.com/trufflehub/farm-management/internal/tenant/postgres"
	"github.com/trufflehub/farm-management/internal/transport/middleware"
	"github.com/trufflehub/farm-management/internal/transport/rest"
	"github.com/trufflehub/farm-management/internal/user"
	userPostgres "github.com/trufflehub/farm-management/internal/user/postgres"
	"github.com/trufflehub/farm-management/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config      *internal.Config
	DB          *sqlx.DB
	Router      *chi.Mux
	Logger      *slog.Logger
	Broadcaster *broadcast.Broadcaster
	StopPing    func()
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		deps.StopPing()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	// Fail fast on a broken API contract.
	if _, err := rest.LoadOpenAPISpec("./api/openapi.yml"); err != nil {
		lg.Warn("openapi contract unavailable", "error", err)
	}

	bus := events.NewEventBus(lg)

	// Stores
	permRepo := permissionPostgres.NewPermissionRepository(gormDB)
	roleRepo := permissionPostgres.NewRoleRepository(gormDB)
	auditRepo := permissionPostgres.NewAuditRepository(gormDB)
	tenantRepo := tenantPostgres.NewTenantRepository(gormDB)
	userRepo := userPostgres.NewUserRepository(gormDB)
	notificationRepo := notificationPostgres.NewNotificationRepository(gormDB)

	// Authorization
	decisionCache := authz.NewCache(config.Authorization.CacheTTL)
	tenantService := tenant.NewService(tenantRepo, lg)
	authzService := authz.NewService(roleRepo, tenantService, decisionCache, lg)

	// Permission registry and discovery
	permissionService := permission.NewService(permRepo, roleRepo, auditRepo, decisionCache, bus, lg)
	discoveryJob := permission.NewDiscoveryJob(permRepo, auditRepo, decisionCache, lg)
	permission.RegisterDiscoveryHandler(bus, discoveryJob)

	// Users and auth
	userService := user.NewService(userRepo, roleRepo)
	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(userService, tokenGen)

	// Notifications
	broadcaster := broadcast.NewBroadcaster(lg)
	stopPing := broadcaster.StartPing(30 * time.Second)
	countCache := notification.NewCountCache(config.Notification.CountCacheTTL)
	notificationService := notification.NewService(notificationRepo, broadcaster, countCache, lg, config.Notification)

	// Handlers
	guard := middleware.NewGuard(authzService, bus, tenantService, lg)
	authHandler := auth.NewHandler(authService)
	userHandler := user.NewHandler(userService)
	tenantHandler := tenant.NewHandler(tenantService)
	permissionHandler := permission.NewHandler(permissionService)
	notificationHandler := notification.NewHandler(notificationService, broadcaster)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, guard, tenantService,
		authHandler, userHandler, tenantHandler, permissionHandler, notificationHandler, lg)

	return &Dependencies{
		Config:      config,
		DB:          db,
		Router:      router,
		Logger:      lg,
		Broadcaster: broadcaster,
		StopPing:    stopPing,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers the ORM over the already-open pgx connection pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
}
