package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"norskform_backend/internal/cache"
	"norskform_backend/internal/checkout"
	"norskform_backend/internal/directory"
	"norskform_backend/internal/email"
	"norskform_backend/internal/form"
	"norskform_backend/internal/geonorge"
	apphttp "norskform_backend/internal/http"
	"norskform_backend/internal/http/router"
	"norskform_backend/internal/postal"
	"norskform_backend/internal/scheduler"
	"norskform_backend/migrations"
	"norskform_backend/platform/config"
	"norskform_backend/platform/db"
	"norskform_backend/platform/logger"
	"norskform_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Lookup caches: redis when configured, per-process memory otherwise.
	// Phone-owner results are never cached in either mode.
	backends := buildLookupBackends(cfg, log)

	jobs, closeJobs := initEnrichmentScheduler(cfg, log)
	if closeJobs != nil {
		defer closeJobs()
	}

	var mailer email.Sender
	if cfg.GetEmailEnabled() {
		mailer = email.NewSMTPSender(cfg)
	} else {
		log.Warn("SMTP not configured; confirmation emails disabled")
		mailer = email.NewNoopSender(log)
	}

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	sessions := form.NewManager(backends, cfg.GetSessionTTL(), log)
	go sessions.Run(ctx)

	formModule := form.NewModule(sessions, cfg)
	checkoutModule := checkout.NewModule(pool, mailer, jobs, val, cfg, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			formModule,
			checkoutModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

// buildLookupBackends wires the upstream clients and per-kind caches for
// the field lookup engines.
func buildLookupBackends(cfg *config.Config, log *logger.Logger) *form.Backends {
	geocoder := geonorge.New(cfg.GetGeocoderBaseURL(), cfg.GetGeocoderClientName(), log)
	dir := directory.New(cfg.GetDirectoryBaseURL(), cfg.GetDirectoryAPIKey(), log)
	post := postal.New(cfg.GetPostalBaseURL(), cfg.GetPostalClientID(), log)

	ttl := cfg.GetReferenceCacheTTL()
	backends := &form.Backends{
		Geocoder:  geocoder,
		Directory: dir,
		Postal:    post,
		Owners:    cache.NewNull[directory.Owner](),
		Lookup:    cfg,
		Log:       log,
	}

	if cfg.GetRedisURL() != "" {
		opt, err := redis.ParseURL(cfg.GetRedisURL())
		if err == nil {
			client := redis.NewClient(opt)
			backends.Municipalities = cache.NewRedis[geonorge.Municipality](client, "municipality", ttl)
			backends.Streets = cache.NewRedis[geonorge.Street](client, "street", ttl)
			backends.Addresses = cache.NewRedis[geonorge.Address](client, "address", ttl)
			backends.Places = cache.NewRedis[postal.Place](client, "postal", ttl)
			log.Info("redis lookup cache enabled")
			return backends
		}
		log.Error("invalid REDIS_URL, falling back to memory cache", "error", err.Error())
	}

	backends.Municipalities = cache.NewMemory[geonorge.Municipality](ttl)
	backends.Streets = cache.NewMemory[geonorge.Street](ttl)
	backends.Addresses = cache.NewMemory[geonorge.Address](ttl)
	backends.Places = cache.NewMemory[postal.Place](ttl)
	return backends
}

func initEnrichmentScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.EnrichmentScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; order enrichment jobs disabled")
		return noopScheduler{}, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task scheduler client", "error", err)
		return noopScheduler{}, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

type noopScheduler struct{}

func (noopScheduler) EnqueueOrderEnrichment(context.Context, scheduler.OrderEnrichmentPayload) error {
	return nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
