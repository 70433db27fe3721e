// Command server runs the dealz HTTP API: it ingests game facts, evaluates
// deal trigger conditions, and manages idempotent deal activations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/j-hartley/dealz/internal/authz"
	"github.com/j-hartley/dealz/internal/condition"
	"github.com/j-hartley/dealz/internal/config"
	"github.com/j-hartley/dealz/internal/logging"
	"github.com/j-hartley/dealz/internal/metrics"
	"github.com/j-hartley/dealz/internal/middleware"
	"github.com/j-hartley/dealz/internal/repository"
	"github.com/j-hartley/dealz/internal/server"
	"github.com/j-hartley/dealz/internal/service"
	"github.com/j-hartley/dealz/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	repo := repository.NewPostgresRepository(pool)

	m := metrics.New()
	metrics.RegisterPoolMetrics(m.Registry, pool)

	conditions := condition.NewCache(cfg.ConditionCacheSize)
	svc := service.New(repo, conditions,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithActivationTTL(cfg.ActivationTTL),
	)
	go svc.RunSweeper(ctx, cfg.SweepInterval)

	rateLimiter := middleware.NewRateLimiter(ctx, cfg.AuthRateLimit)
	defer rateLimiter.Stop()

	api := server.New(svc, logger, cfg.MaxJSONBodySize).Routes()
	var handler http.Handler = api
	handler = middleware.BearerAuthMiddleware(&apiKeyValidator{repo: repo},
		middleware.WithOnAuthFailure(m.AuthFailuresTotal.Inc),
		middleware.WithRateLimiter(rateLimiter),
	)(handler)
	handler = middleware.HTTPRequestLogging(logger)(handler)
	handler = otelhttp.NewHandler(handler, "dealz")

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	root.Handle("GET /metrics", m.Handler())
	root.Handle("/", handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}

// apiKeyValidator resolves bearer tokens in keyID.secret form against the
// api_keys table.
type apiKeyValidator struct {
	repo *repository.PostgresRepository
}

func (v *apiKeyValidator) ValidateToken(ctx context.Context, token string) (authz.Principal, error) {
	keyID, secret, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || secret == "" {
		return authz.Principal{}, errors.New("malformed api key")
	}

	hash, principal, err := v.repo.ValidateAPIKey(ctx, keyID)
	if err != nil {
		return authz.Principal{}, err
	}
	if !middleware.APIKeyMatchesHash(hash, secret) {
		return authz.Principal{}, errors.New("invalid api key")
	}

	return principal, nil
}
