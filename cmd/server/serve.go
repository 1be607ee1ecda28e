package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aman-churiwal/crm-gateway/internal/config"
	"github.com/aman-churiwal/crm-gateway/internal/healthcheck"
	"github.com/aman-churiwal/crm-gateway/internal/logging"
	"github.com/aman-churiwal/crm-gateway/internal/mail"
	"github.com/aman-churiwal/crm-gateway/internal/ratelimit"
	"github.com/aman-churiwal/crm-gateway/internal/repository"
	"github.com/aman-churiwal/crm-gateway/internal/scheduler"
	"github.com/aman-churiwal/crm-gateway/internal/server"
	"github.com/aman-churiwal/crm-gateway/internal/service"
	"github.com/aman-churiwal/crm-gateway/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, mail supervisor and maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := storage.NewPostgres(cfg.Database.URL, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.AutoMigrate(); err != nil {
		return errors.Wrap(err, "migrate")
	}
	log.Infow("Connected to database")

	quotaStore, closeStore, err := newQuotaStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	mailer := mail.NewSupervisor(mail.SettingsFromConfig(cfg), log)
	// The listener must not wait on SMTP probing.
	go func() {
		if err := mailer.Start(ctx); err != nil {
			log.Warnw("Mail transport unavailable at boot", "error", err)
		}
	}()

	leads := repository.NewLeadRepository(db)
	attendance := repository.NewAttendanceRepository(db)

	srv, err := server.New(cfg, logger, server.Dependencies{
		QuotaStore: quotaStore,
		Leads:      leads,
		Mail:       mailer,
		Auth:       service.NewAuthService(cfg.Auth.JWTSecret, 0),
	})
	if err != nil {
		return errors.Wrap(err, "build server")
	}

	jobs := scheduler.New(attendance, log, scheduler.Config{RunAtBoot: cfg.IsDevelopment()})
	jobs.Start()
	defer jobs.Stop()

	var keepAlive *healthcheck.KeepAlive
	if cfg.IsProduction() {
		keepAlive = healthcheck.NewKeepAlive(healthcheck.LocalConfig(cfg.Server.Port), log)
		keepAlive.Start()
		defer keepAlive.Stop()
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Run(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		return errors.Wrap(err, "server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}
	if err := mailer.Close(shutdownCtx); err != nil {
		log.Warnw("Mail supervisor did not drain", "error", err)
	}

	log.Infow("Server exited")
	return nil
}

// newQuotaStore shares counters through Redis when REDIS_URL is set and falls back
// to a process-local store otherwise.
func newQuotaStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (ratelimit.Store, func(), error) {
	if cfg.Redis.URL == "" {
		store := ratelimit.NewMemoryStore()
		store.StartCleanup(time.Minute)
		log.Infow("Using in-memory quota store")
		return store, store.Stop, nil
	}

	redis, err := storage.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	log.Infow("Connected to redis quota store")
	return ratelimit.NewRedisStore(redis), func() { _ = redis.Close() }, nil
}
