package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ahhttp "github.com/Strob0t/AppHub/internal/adapter/http"
	ahnats "github.com/Strob0t/AppHub/internal/adapter/nats"
	"github.com/Strob0t/AppHub/internal/adapter/natskv"
	ahotel "github.com/Strob0t/AppHub/internal/adapter/otel"
	"github.com/Strob0t/AppHub/internal/adapter/postgres"
	"github.com/Strob0t/AppHub/internal/adapter/ristretto"
	"github.com/Strob0t/AppHub/internal/adapter/tiered"
	"github.com/Strob0t/AppHub/internal/adapter/ws"
	"github.com/Strob0t/AppHub/internal/config"
	"github.com/Strob0t/AppHub/internal/logger"
	"github.com/Strob0t/AppHub/internal/middleware"
	"github.com/Strob0t/AppHub/internal/resilience"
	"github.com/Strob0t/AppHub/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := dispatch(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func dispatch(args []string) error {
	if len(args) == 0 {
		return runServe()
	}
	switch args[0] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate(args[1:])
	case "admin":
		return runAdmin(args[1:])
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: apphub [command]

Commands:
  serve                 Run the HTTP server (default)
  migrate [up|down N|version]
                        Manage the database schema
  admin <command>       Operator commands (see "apphub admin help")
`)
}

func runMigrate(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx := context.Background()

	action := "up"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		slog.Info("migrations applied")
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
			steps = n
		}
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, steps); err != nil {
			return err
		}
		slog.Info("migrations rolled back", "steps", steps)
	case "version":
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		fmt.Println(v)
	default:
		return fmt.Errorf("unknown migrate action: %s", action)
	}
	return nil
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTel, err := ahotel.Init(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := ahotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := ahnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Caches: ristretto L1 in front of NATS KV L2.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	cacheKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("l2 cache: %w", err)
	}
	appCache := tiered.New(l1, natskv.New(cacheKV), cfg.Cache.SubscriptionTTL)

	idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}

	// --- Services ---

	hub := ws.NewHub(cfg.Server.CORSOrigin)
	store := postgres.NewStore(pool)

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithStateChange(func(from, to resilience.State) {
			slog.Warn("event publisher breaker", "from", from, "to", to)
		}),
	)
	events := service.NewEventPublisher(queue, hub)
	events.SetBreaker(breaker)
	events.SetMetrics(metrics)

	reconciler := service.NewReconcileService(store, events)
	reconciler.SetMetrics(metrics)

	subscriptions := service.NewSubscriptionService(store, appCache, cfg.Cache.SubscriptionTTL)
	subscriptions.SetReconciler(reconciler)

	tenants := service.NewTenantService(store, appCache, cfg.Cache.TenantNameTTL, events)

	installedApps := service.NewInstalledAppService(store, events)
	installedApps.SetMetrics(metrics)

	listing := service.NewListingService(store, tenants, subscriptions, reconciler)

	cancelConsumer, err := subscriptions.StartConsumer(ctx, queue)
	if err != nil {
		return fmt.Errorf("subscriptions consumer: %w", err)
	}
	defer cancelConsumer()

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := &ahhttp.Handlers{
		Listing:       listing,
		InstalledApps: installedApps,
		Tenants:       tenants,
		Hub:           hub,
		Health:        ahhttp.HealthChecks{Store: store, Queue: queue},
	}
	r := ahhttp.NewRouter(handlers, ahhttp.RouterOptions{
		CORSOrigin:       cfg.Server.CORSOrigin,
		RequestTimeout:   cfg.Server.RequestTimeout,
		ServiceName:      cfg.Logging.Service,
		RateLimiter:      limiter,
		IdempotencyStore: natskv.New(idemKV),
		IdempotencyTTL:   cfg.Idempotency.TTL,
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	return nil
}
