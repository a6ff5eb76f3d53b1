package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trufflehub/farm-management/internal/authz"
	"github.com/trufflehub/farm-management/internal/broadcast"
	"github.com/trufflehub/farm-management/internal/core/events"
	"github.com/trufflehub/farm-management/internal/notification"
	notificationPostgres "github.com/trufflehub/farm-management/internal/notification/postgres"
	"github.com/trufflehub/farm-management/internal/permission"
	permissionPostgres "github.com/trufflehub/farm-management/internal/permission/postgres"
	"github.com/trufflehub/farm-management/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers: notification cleanup, event bus monitoring.`,
}

// Notification cleanup worker command
var cleanupWorkerCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Start notification cleanup worker",
	Long:  `Periodically auto-read stale notifications and purge those past retention`,
	Run: func(cmd *cobra.Command, args []string) {
		startCleanupWorker()
	},
}

// Discovery worker command
var discoveryWorkerCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Start permission discovery worker",
	Long:  `Consume action-executed events and register their routes as permissions`,
	Run: func(cmd *cobra.Command, args []string) {
		startDiscoveryWorker()
	},
}

// Event bus worker command
var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start event bus worker",
	Long:  `Start the event bus and log everything that flows through it`,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var cleanupInterval time.Duration

func startCleanupWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	interval := cleanupInterval
	if interval <= 0 {
		interval = config.Notification.CleanupInterval
	}

	repo := notificationPostgres.NewNotificationRepository(gormDB)
	broadcaster := broadcast.NewBroadcaster(lg)
	counts := notification.NewCountCache(config.Notification.CountCacheTTL)
	worker := notification.NewCleanupWorker(repo, broadcaster, counts, lg, config.Notification)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// First pass immediately on startup.
		runCleanupOnce(ctx, worker, lg)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runCleanupOnce(ctx, worker, lg)
			}
		}
	}()

	lg.Info("cleanup worker is running. Press Ctrl+C to stop.", "interval", interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	lg.Info("received signal, shutting down cleanup worker", "signal", sig)
	cancel()
	if err := db.Close(); err != nil {
		lg.Error("database close error", "error", err)
	}
	lg.Info("cleanup worker shutdown complete")
}

func runCleanupOnce(ctx context.Context, worker *notification.CleanupWorker, lg *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if _, err := worker.Run(runCtx); err != nil {
		lg.Error("cleanup run failed", "error", err)
	}
}

func startDiscoveryWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	gormDB, err := initGorm(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize orm: %v\n", err)
		os.Exit(1)
	}

	permRepo := permissionPostgres.NewPermissionRepository(gormDB)
	auditRepo := permissionPostgres.NewAuditRepository(gormDB)
	decisionCache := authz.NewCache(config.Authorization.CacheTTL)

	eventBus := events.NewEventBus(lg)
	job := permission.NewDiscoveryJob(permRepo, auditRepo, decisionCache, lg)
	permission.RegisterDiscoveryHandler(eventBus, job)

	lg.Info("discovery worker is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	lg.Info("received signal, shutting down discovery worker", "signal", sig)
	if err := db.Close(); err != nil {
		lg.Error("database close error", "error", err)
	}
	lg.Info("discovery worker shutdown complete")
}

func startEventWorker() {
	if _, err := loadConfig("."); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)

	eventBus.Subscribe(events.EventTypeActionExecuted, func(ctx context.Context, event events.Event) error {
		lg.Info("observed action execution",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	lg.Info("event bus is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	lg.Info("received signal, shutting down event bus", "signal", sig)
	lg.Info("event bus shutdown complete")
}

func init() {
	cleanupWorkerCmd.Flags().DurationVar(&cleanupInterval, "interval", 0, "Cleanup interval (overrides config)")

	workerCmd.AddCommand(cleanupWorkerCmd)
	workerCmd.AddCommand(discoveryWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
