// rinkd is the resident hockey-data engine. It ingests provider data
// into Postgres, archives raw payloads, and reconciles what the sources
// say about the same games. There is no HTTP surface: batches are
// started by the cron scheduler (or programmatically by embedders), and
// the auto-validation worker follows the coordinator's hand-offs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rinkdata/rink/internal/archive"
	"github.com/rinkdata/rink/internal/autovalidate"
	"github.com/rinkdata/rink/internal/batch"
	"github.com/rinkdata/rink/internal/cache"
	"github.com/rinkdata/rink/internal/config"
	"github.com/rinkdata/rink/internal/domain"
	"github.com/rinkdata/rink/internal/fetch"
	"github.com/rinkdata/rink/internal/leader"
	"github.com/rinkdata/rink/internal/logging"
	"github.com/rinkdata/rink/internal/postgres"
	"github.com/rinkdata/rink/internal/retention"
	"github.com/rinkdata/rink/internal/scheduler"
	"github.com/rinkdata/rink/internal/sources"
	"github.com/rinkdata/rink/internal/validation"
)

// validateEnv checks that critical environment variables have valid values.
// Returns a slice of validation errors (empty if all valid).
func validateEnv() []string {
	var errs []string

	// Validate DATABASE_URL is a parseable postgres URL.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if _, err := url.Parse(dbURL); err != nil {
			errs = append(errs, fmt.Sprintf("DATABASE_URL: invalid URL (%v)", err))
		}
	}

	// Validate numeric env vars.
	if v := os.Getenv("VALIDATION_DELAY_SECONDS"); v != "" {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			errs = append(errs, fmt.Sprintf("VALIDATION_DELAY_SECONDS=%q: must be a number (%v)", v, err))
		}
	}

	// S3_ENDPOINT may be host:port without scheme; allow that.
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		if _, _, err := net.SplitHostPort(v); err != nil {
			if _, err := url.Parse("http://" + v); err != nil {
				errs = append(errs, fmt.Sprintf("S3_ENDPOINT=%q: must be a valid endpoint", v))
			}
		}
	}

	return errs
}

// warnDefaultCredentials logs security warnings when S3 or Postgres
// credentials appear to be well-known defaults. These are safe for local
// development but dangerous in production deployments.
func warnDefaultCredentials(cfg *config.Config) {
	if cfg.Archive.AccessKey == "minioadmin" || cfg.Archive.SecretKey == "minioadmin" {
		slog.Warn("archive credentials are set to default values (minioadmin) — change these for production deployments")
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil && u.User != nil {
		user := u.User.Username()
		pass, _ := u.User.Password()
		if (user == "rink" && pass == "rink") || (user == "postgres" && pass == "postgres") {
			slog.Warn("database credentials appear to be defaults — change these for production deployments",
				"user", user)
		}
	}
}

// healthcheck pings Postgres with a short deadline. Used as the
// container liveness probe in scratch images (no wget/curl available).
// Usage: /rinkd healthcheck
func healthcheck() int {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		return 1
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return 1
	}
	return 0
}

// newClient builds one provider HTTP client from its config section.
func newClient(userAgent string, timeoutSeconds float64, cookies bool) (*fetch.Client, error) {
	cc := fetch.DefaultConfig(userAgent)
	if timeoutSeconds > 0 {
		cc.Timeout = config.Timeout(timeoutSeconds)
	}
	cc.EnableCookies = cookies
	return fetch.New(cc)
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck())
	}

	// Context-aware slog handler carries batch/source attrs into every
	// record logged under a batch context.
	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logging.NewContextHandler(baseHandler)))

	// Validate critical environment variables before wiring anything.
	if errs := validateEnv(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid environment variable", "error", e)
		}
		os.Exit(1)
	}

	// Config: RINK_CONFIG env > ./rink.yaml > defaults.
	configPath := config.ResolvePath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if configPath != "" {
		slog.Info("config loaded", "path", configPath)
	}
	if cfg.Database.URL == "" {
		slog.Error("DATABASE_URL is required (the engine is stateful)")
		os.Exit(1)
	}
	warnDefaultCredentials(cfg)

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Event bus (Postgres LISTEN/NOTIFY) for instant batch_completed
	// delivery to other replicas. Optional: a failed start degrades to
	// polling.
	eventBus := postgres.NewPgEventBus(pool)
	if err := eventBus.Start(ctx); err != nil {
		slog.Warn("event bus failed to start, continuing without instant events", "error", err)
		eventBus = nil
	}

	progressStore := postgres.NewProgressStore(pool)
	batchStore := postgres.NewBatchStore(pool)
	gameStore := postgres.NewGameStore(pool)
	validationStore := postgres.NewValidationStore(pool)
	if eventBus != nil {
		batchStore.EventBus = eventBus
	}
	slog.Info("postgres stores initialized")

	// One pooled client per upstream family, shared across batches.
	apiClient, err := newClient(cfg.NHLAPI.UserAgent, cfg.NHLAPI.TimeoutSeconds, false)
	if err != nil {
		slog.Error("failed to build api client", "error", err)
		os.Exit(1)
	}
	defer apiClient.Close()
	htmlClient, err := newClient(cfg.HTMLReports.UserAgent, cfg.HTMLReports.TimeoutSeconds, false)
	if err != nil {
		slog.Error("failed to build html client", "error", err)
		os.Exit(1)
	}
	defer htmlClient.Close()
	scrapeClient, err := newClient(cfg.Scrape.UserAgent, cfg.Scrape.TimeoutSeconds, true)
	if err != nil {
		slog.Error("failed to build scrape client", "error", err)
		os.Exit(1)
	}
	defer scrapeClient.Close()

	deps := sources.Deps{
		Config:       cfg,
		Store:        gameStore,
		APIClient:    apiClient,
		HTMLClient:   htmlClient,
		ScrapeClient: scrapeClient,
		Rosters: cache.New[string, *domain.TeamRoster](cache.Options{
			TTL:        15 * time.Minute,
			MaxEntries: 64, // one roster per team is plenty
		}),
	}

	// Raw-payload archive is optional: no endpoint, no archiving.
	if cfg.Archive.Endpoint != "" {
		store, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			slog.Error("failed to connect to archive", "error", err)
			os.Exit(1)
		}
		deps.Archive = store
		slog.Info("archive initialized",
			"endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	} else {
		slog.Info("archive not configured, raw payloads will not be kept")
	}

	engine := validation.NewEngine(validationStore, gameStore)

	// Auto-validation worker: receives landed games from the coordinator.
	var worker *autovalidate.Worker
	var coordinatorOpts batch.Options
	if cfg.Validation.AutoRun {
		worker = autovalidate.NewWorker(engine, gameStore, autovalidate.Options{
			Delay: config.Timeout(cfg.Validation.DelaySeconds),
		})
		worker.Start(ctx)
		coordinatorOpts.Validate = worker
		slog.Info("auto-validation enabled", "delay_seconds", cfg.Validation.DelaySeconds)
	}

	coordinator := batch.New(batchStore, progressStore, gameStore,
		batch.RegistryResolver{Deps: deps}, coordinatorOpts)

	// startBackgroundWorkers launches the cron scheduler and the
	// retention reaper. Called by the leader elector when this replica
	// wins the advisory lock, so multiple replicas never double-fire.
	startBackgroundWorkers := func(ctx context.Context) func() {
		var stops []func()

		if cfg.Scheduler.Enabled {
			sched, err := scheduler.New(cfg.Scheduler, coordinator, batchStore)
			if err != nil {
				slog.Error("scheduler disabled: invalid configuration", "error", err)
			} else {
				sched.Start(ctx)
				stops = append(stops, sched.Stop)
			}
		}

		reaper := retention.New(cfg.Retention, batchStore, validationStore)
		reaper.Start(ctx)
		stops = append(stops, reaper.Stop)

		return func() {
			for _, stop := range stops {
				stop()
			}
			slog.Info("background workers stopped")
		}
	}

	tryLock := func(ctx context.Context) (bool, error) {
		var acquired bool
		err := pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", leader.AdvisoryLockID).Scan(&acquired)
		return acquired, err
	}
	elector := leader.New(tryLock, leader.RetryInterval, startBackgroundWorkers)
	elector.Start(ctx)
	slog.Info("leader election started (advisory lock)")

	slog.Info("rinkd running", "sources", cfg.Scheduler.Sources,
		"scheduler_enabled", cfg.Scheduler.Enabled,
		"auto_validation", cfg.Validation.AutoRun)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	// Ordered cleanup: leader (stops scheduler/reaper) → in-flight
	// batches → validation worker → event bus → pool (deferred).
	elector.Stop()
	slog.Info("leader elector stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		slog.Error("batch coordinator shutdown timed out", "error", err)
	} else {
		slog.Info("batch coordinator drained")
	}

	if worker != nil {
		worker.Stop()
		slog.Info("auto-validation worker stopped")
	}
	if eventBus != nil {
		eventBus.Stop()
		slog.Info("event bus stopped")
	}

	slog.Info("rinkd shutdown complete")
}
