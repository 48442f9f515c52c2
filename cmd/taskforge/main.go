package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/TaskForge/internal/adapter/githuboauth"
	cfhttp "github.com/Strob0t/TaskForge/internal/adapter/http"
	"github.com/Strob0t/TaskForge/internal/adapter/memkv"
	cfnats "github.com/Strob0t/TaskForge/internal/adapter/nats"
	"github.com/Strob0t/TaskForge/internal/adapter/natskv"
	cfotel "github.com/Strob0t/TaskForge/internal/adapter/otel"
	"github.com/Strob0t/TaskForge/internal/adapter/postgres"
	"github.com/Strob0t/TaskForge/internal/adapter/ristretto"
	"github.com/Strob0t/TaskForge/internal/adapter/tiered"
	"github.com/Strob0t/TaskForge/internal/config"
	"github.com/Strob0t/TaskForge/internal/logger"
	"github.com/Strob0t/TaskForge/internal/middleware"
	"github.com/Strob0t/TaskForge/internal/port/broadcast"
	"github.com/Strob0t/TaskForge/internal/port/cache"
	"github.com/Strob0t/TaskForge/internal/port/kv"
	"github.com/Strob0t/TaskForge/internal/resilience"
	"github.com/Strob0t/TaskForge/internal/secrets"
	"github.com/Strob0t/TaskForge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// sharedState is the backend chosen for OAuth state, delivery locks and the
// connection cache.
type sharedState struct {
	states kv.Store
	locks  kv.Store
	cache  cache.Cache
	hub    broadcast.Broadcaster
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"config_file", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"state_store", cfg.StateStore.Backend,
		"nats_enabled", cfg.NATS.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	version, err := postgres.RunMigrations(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied", "version", version)

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1.Close()

	shared, closeShared, err := openSharedState(ctx, cfg, l1)
	if err != nil {
		return err
	}
	defer closeShared()

	// --- Services ---

	store := postgres.NewStore(pool)
	health := service.NewHealthTracker(store)
	conns := service.NewConnectionCache(shared.cache, store, cfg.Cache.ConnectionTTL)

	propagator := service.NewStatusPropagator(store, shared.hub)
	propagator.SetMetrics(metrics)

	webhookSvc := service.NewWebhookService(
		store,
		conns,
		service.NewDeliveryLock(shared.locks, cfg.Webhook.LockTTL),
		health,
		propagator,
		cfg.Webhook,
		cfg.GitHub.DefaultBranch,
	)
	webhookSvc.SetMetrics(metrics)

	states := service.NewOAuthStateStore(shared.states, cfg.OAuth)
	states.StartCleanup(ctx, cfg.OAuth.CleanupInterval)

	provider, err := newGitHubProvider(ctx, cfg.GitHub)
	if err != nil {
		return err
	}
	oauthSvc := service.NewOAuthService(
		states,
		provider,
		resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout),
	)
	oauthSvc.SetMetrics(metrics)

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Webhooks:         webhookSvc,
		OAuth:            oauthSvc,
		Connections:      service.NewConnectionService(store, health, conns),
		WebhookBodyLimit: cfg.Webhook.MaxBodyBytes,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate)
	limiter.StartCleanup(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	cfhttp.MountRoutes(r, handlers, cfhttp.RouteMiddleware{
		RateLimit:   limiter.Handler,
		Idempotency: middleware.Idempotency(shared.states, cfg.OAuth.StateTTL),
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Webhook.ProcessTimeout + 30*time.Second,
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
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openSharedState connects the configured backends. With NATS the state lives
// in JetStream KV buckets and is shared by all instances; without it, state is
// held in process memory and only a single instance may run.
func openSharedState(ctx context.Context, cfg *config.Config, l1 cache.Cache) (*sharedState, func(), error) {
	if !cfg.NATS.Enabled {
		mem := memkv.New()
		mem.StartJanitor(ctx, cfg.StateStore.SweepInterval)
		slog.Warn("nats disabled: oauth state and delivery locks are process-local, run a single instance")
		return &sharedState{states: mem, locks: mem, cache: l1, hub: logBroadcaster{}}, mem.Close, nil
	}

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: %w", err)
	}
	closeQueue := func() { _ = queue.Close() }
	slog.Info("nats connected", "url", cfg.NATS.URL)

	l2Bucket, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		closeQueue()
		return nil, nil, err
	}
	shared := &sharedState{
		cache: tiered.New(l1, natskv.New(l2Bucket), cfg.Cache.ConnectionTTL),
		hub:   queue,
	}

	if cfg.StateStore.Backend != config.BackendNATS {
		mem := memkv.New()
		mem.StartJanitor(ctx, cfg.StateStore.SweepInterval)
		shared.states, shared.locks = mem, mem
		return shared, func() { mem.Close(); closeQueue() }, nil
	}

	stateBucket, err := queue.KeyValue(ctx, cfg.OAuth.Bucket, cfg.OAuth.StateTTL)
	if err != nil {
		closeQueue()
		return nil, nil, err
	}
	lockBucket, err := queue.KeyValue(ctx, cfg.Webhook.LockBucket, cfg.Webhook.LockTTL)
	if err != nil {
		closeQueue()
		return nil, nil, err
	}
	shared.states = natskv.NewStore(stateBucket)
	shared.locks = natskv.NewStore(lockBucket)
	return shared, closeQueue, nil
}

// newGitHubProvider builds the OAuth provider. With a secrets dir the client
// secret is read from it and re-read on SIGHUP.
func newGitHubProvider(ctx context.Context, cfg config.GitHub) (*githuboauth.Provider, error) {
	provider := githuboauth.New(cfg)
	if cfg.SecretsDir == "" {
		return provider, nil
	}
	vault, err := secrets.NewVault(secrets.DirLoader(cfg.SecretsDir))
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	slog.Info("github client secret loaded", "dir", cfg.SecretsDir, "secret", vault.Redacted(secrets.GitHubClientSecret))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := vault.Reload(); err != nil {
					slog.Error("secret reload failed", "error", err)
					continue
				}
				slog.Info("secrets reloaded", "keys", vault.Keys())
			}
		}
	}()
	return provider.WithClientSecret(vault.Lookup(secrets.GitHubClientSecret, cfg.ClientSecret)), nil
}

// logBroadcaster records activity events in the log when no queue is configured.
type logBroadcaster struct{}

func (logBroadcaster) BroadcastEvent(ctx context.Context, eventType string, _ any) {
	slog.DebugContext(ctx, "activity event", "event_type", eventType)
}
