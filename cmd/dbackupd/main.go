package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/skyfay/dbackup/internal/alertmonitor"
	"github.com/skyfay/dbackup/internal/api"
	"github.com/skyfay/dbackup/internal/apikey"
	"github.com/skyfay/dbackup/internal/apperr"
	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/notification"
	"github.com/skyfay/dbackup/internal/ratelimit"
	"github.com/skyfay/dbackup/internal/repositories"
	"github.com/skyfay/dbackup/internal/runner"
	"github.com/skyfay/dbackup/internal/scheduler"
	"github.com/skyfay/dbackup/internal/secret"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr          string
	dbDriver          string
	dbDSN             string
	secretKey         string
	logLevel          string
	globalConcurrency int
	alertInterval     time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "dbackupd",
		Short: "dbackupd is the self-hosted database backup orchestrator daemon",
		Long: `dbackupd schedules and runs database backup jobs on a single node:
cron evaluation, staged backup/restore pipelines, retention pruning,
notification dispatch, storage alerting, and a small HTTP API for
triggering runs and polling their outcome.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("DBACKUP_HTTP_ADDR", ":8080"), "Job Trigger API listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("DBACKUP_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("DBACKUP_DB_DSN", "./dbackup.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("DBACKUP_SECRET_KEY", ""), "Master key for encrypting credentials at rest (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("DBACKUP_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info")), "Log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&cfg.globalConcurrency, "max-concurrency", envIntOrDefault("DBACKUP_MAX_CONCURRENCY", scheduler.DefaultGlobalConcurrency), "Maximum concurrent executions across all jobs")
	root.PersistentFlags().DurationVar(&cfg.alertInterval, "alert-interval", envDurationOrDefault("DBACKUP_ALERT_INTERVAL", time.Hour), "How often the storage alert monitor sweeps destinations")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dbackupd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required — set --secret-key or DBACKUP_SECRET_KEY")
	}

	logger.Info("starting dbackupd",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// secret.Init must run before opening the database so EncryptedString
	// fields can seal/open transparently on write/read. secret.New gives the
	// runner its own handle to pass to database/storage credential adapters.
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))
	if err := secret.Init(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize secret store: %w", err)
	}
	secrets, err := secret.New(keyBytes)
	if err != nil {
		return fmt.Errorf("failed to build secret store: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Repositories ---
	sourceRepo := repositories.NewSourceRepository(gormDB)
	destinationRepo := repositories.NewDestinationRepository(gormDB)
	profileRepo := repositories.NewEncryptionProfileRepository(gormDB)
	jobRepo := repositories.NewJobRepository(gormDB)
	executionRepo := repositories.NewExecutionRepository(gormDB)
	channelRepo := repositories.NewChannelRepository(gormDB)
	notificationLogRepo := repositories.NewNotificationLogRepository(gormDB)
	snapshotRepo := repositories.NewStorageSnapshotRepository(gormDB)
	alertStateRepo := repositories.NewAlertStateRepository(gormDB)
	apiKeyRepo := repositories.NewAPIKeyRepository(gormDB)
	settingsRepo := repositories.NewSettingsRepository(gormDB)

	// --- 4. Notification dispatcher ---
	notifySvc := notification.NewService(notification.Config{
		Channels: channelRepo,
		Logs:     notificationLogRepo,
		Settings: settingsRepo,
		Logger:   logger,
	})

	// --- 5. Runner ---
	run := runner.New(
		sourceRepo,
		destinationRepo,
		jobRepo,
		executionRepo,
		profileRepo,
		secrets,
		logger,
		func(ctx context.Context, ev runner.Event) {
			notifyRunnerEvent(ctx, notifySvc, ev, logger)
		},
	)

	// --- 6. Scheduler ---
	tracker := runner.NewTracker()
	sched, err := scheduler.New(jobRepo, run, tracker, cfg.globalConcurrency, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- 7. Storage alert monitor ---
	// Runs on its own timer rather than chained off Runner.Finalize so a
	// destination shared by several jobs is still swept even if none of
	// them ran recently (spec §4.9 "triggered from... a background timer").
	monitor := alertmonitor.New(destinationRepo, snapshotRepo, alertStateRepo, notifySvc, 0, logger)
	alertTicker := time.NewTicker(cfg.alertInterval)
	defer alertTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-alertTicker.C:
				monitor.RunOnce(ctx)
			}
		}
	}()

	// --- 8. API keys and rate limiting ---
	keyMgr := apikey.New(apiKeyRepo)
	limiter := ratelimit.New(nil)

	// --- 9. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Keys:       keyMgr,
		Limiter:    limiter,
		Scheduler:  sched,
		Executions: executionRepo,
		Logger:     logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down dbackupd")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("dbackupd stopped")
	return nil
}

// notifyRunnerEvent adapts a runner.Event into the matching typed
// notification.Service call (spec §4.8's backup_success/backup_failure
// events), honoring the job's channel list and dispatch condition. A
// failure classified Integrity or Internal also raises a system_error
// notification unconditionally, regardless of that job's condition (spec §7
// propagation rule) — those kinds indicate a problem with the orchestrator
// or its data, not a routine job failure.
func notifyRunnerEvent(ctx context.Context, svc notification.Service, ev runner.Event, logger *zap.Logger) {
	channelIDs := parseChannelIDs(ev.NotificationChannelIDs, logger)

	var err error
	switch ev.Status {
	case "succeeded":
		err = svc.NotifyBackupSuccess(ctx, ev.JobID, ev.JobName, channelIDs, ev.NotificationCondition, nil)
	default:
		err = svc.NotifyBackupFailure(ctx, ev.JobID, ev.JobName, ev.Error, channelIDs, ev.NotificationCondition, nil)
	}
	if err != nil {
		logger.Warn("failed to dispatch run-completion notification", zap.Error(err))
	}

	if ev.Status != "succeeded" && (ev.ErrorKind == string(apperr.KindIntegrity) || ev.ErrorKind == string(apperr.KindInternal)) {
		if err := svc.NotifySystemError(ctx, fmt.Sprintf("job %q failed with a %s error: %s", ev.JobName, ev.ErrorKind, ev.Error)); err != nil {
			logger.Warn("failed to dispatch system error notification", zap.Error(err))
		}
	}
}

// parseChannelIDs parses a job's comma-separated NotificationChannelIDs
// column. Malformed entries are skipped; an empty value, or one with no
// valid IDs, yields nil, falling dispatch back to the global channel list.
func parseChannelIDs(raw string, logger *zap.Logger) []uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			logger.Warn("ignoring malformed channel id on job", zap.String("value", part))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
