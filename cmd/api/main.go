package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcqkaramu/server/internal/auth"
	"github.com/mcqkaramu/server/internal/config"
	"github.com/mcqkaramu/server/internal/db"
	httphandler "github.com/mcqkaramu/server/internal/http"
	"github.com/mcqkaramu/server/internal/http/handlers"
	"github.com/mcqkaramu/server/internal/identity"
	"github.com/mcqkaramu/server/internal/logger"
	"github.com/mcqkaramu/server/internal/metrics"
	"github.com/mcqkaramu/server/internal/middleware"
	"github.com/mcqkaramu/server/internal/provider"
	"github.com/mcqkaramu/server/internal/repo"
	"github.com/mcqkaramu/server/internal/subscription"
	"github.com/mcqkaramu/server/internal/whitelist"
)

func main() {
	// env vars override .env
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.SlogLevel())

	if err := run(cfg, log); err != nil {
		log.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	host, name := cfg.DatabaseTarget()
	log.Info("database target", slog.String("host", host), slog.String("db", name))

	identityDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer identityDB.Close()
	if err := db.MigratePostgres(identityDB); err != nil {
		return err
	}

	sessionDB, err := db.OpenSQLite(ctx, cfg.SessionDBPath)
	if err != nil {
		return err
	}
	defer sessionDB.Close()
	if err := db.MigrateSQLite(sessionDB); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	sessionRepo := repo.NewSessionRepo(sessionDB)
	masker := identity.NewMasker(repo.NewIdentityRepo(identityDB))

	providers := cfg.Providers()
	for p, pc := range providers {
		if !pc.Configured() {
			log.Warn("service provider not configured", slog.String("provider", string(p)))
		}
	}
	client := provider.NewClient(provider.NewTable(providers), cfg.UpstreamTimeout, collector)

	bypass := whitelist.New(cfg.WhitelistEnabled, cfg.WhitelistedIDs)
	if cfg.WhitelistEnabled {
		log.Warn("subscriber whitelist enabled", slog.Int("subscribers", len(cfg.WhitelistedIDs)))
	}

	svc := subscription.NewService(client, masker, bypass, collector, cfg.IdentitySaveBackoff)

	limiter := middleware.NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitRequests)
	defer limiter.Stop()

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:         handlers.NewAuthHandler(sessionRepo, masker),
		Subscription: handlers.NewSubscriptionHandler(svc),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"identities": identityDB,
			"sessions":   sessionDB,
		}),
		Oracle:      auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		Sessions:    sessionRepo,
		RateLimiter: limiter,
		Metrics:     metrics.Handler(registry),
		Logger:      log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// a verify call may spend the full upstream timeout before persisting
		WriteTimeout: cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server exited")
	return nil
}
