package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/gramo/internal/analysis/invoker"
	"github.com/vietddude/gramo/internal/analysis/pipeline"
	"github.com/vietddude/gramo/internal/analysis/stage"
	"github.com/vietddude/gramo/internal/api"
	"github.com/vietddude/gramo/internal/core/config"
	"github.com/vietddude/gramo/internal/core/worker"
	"github.com/vietddude/gramo/internal/infra/llm/budget"
	"github.com/vietddude/gramo/internal/infra/llm/provider"
	"github.com/vietddude/gramo/internal/infra/llm/routing"
	redisclient "github.com/vietddude/gramo/internal/infra/redis"
	"github.com/vietddude/gramo/internal/infra/storage"
	"github.com/vietddude/gramo/internal/infra/storage/memory"
	"github.com/vietddude/gramo/internal/infra/storage/postgres"
)

// App owns every long-lived component of the service.
type App struct {
	cfg          *config.AppConfig
	provider     provider.Provider
	limiter      *budget.Limiter
	orchestrator *pipeline.Orchestrator
	history      storage.AnalysisRepository
	server       *api.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// New builds the application from cfg. The returned App must be closed with Stop.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default().With("component", "app")}

	// 1. Upstream
	p, err := provider.New(ctx, provider.Settings{
		Provider: cfg.Upstream.Provider,
		Model:    cfg.Upstream.Model,
		APIKey:   cfg.Upstream.APIKey,
		BaseURL:  cfg.Upstream.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init provider: %w", err)
	}
	a.provider = p

	a.limiter = budget.NewLimiter(budget.Config{
		TokensPerMinute:   cfg.RateLimit.TokensPerMinute,
		Policy:            budget.Policy(cfg.RateLimit.Policy),
		FailFastThreshold: config.Seconds(cfg.RateLimit.FailFastThresholdSeconds),
	})
	retrier := routing.NewRetrier(routing.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		BaseDelay:      config.Seconds(cfg.Retry.BaseDelaySeconds),
		MaxDelay:       config.Seconds(cfg.Retry.MaxDelaySeconds),
		AttemptTimeout: cfg.Upstream.AttemptTimeout,
	})
	iv := invoker.New(a.limiter, retrier, p, invoker.Config{
		MaxTokens:           cfg.Upstream.MaxTokens,
		Temperature:         cfg.Upstream.Temperature,
		ResponseTokenBuffer: cfg.RateLimit.ResponseTokenBuffer,
	})

	// 2. Storage
	deps := make(map[string]api.Checker)
	cache, err := a.initStorage(ctx, deps)
	if err != nil {
		_ = a.Stop(ctx)
		return nil, err
	}

	// 3. Pipeline
	a.orchestrator = pipeline.New(stage.NewRunner(iv), pipeline.Config{
		MaxInputLength: cfg.Pipeline.MaxInputLength,
		DefaultStyle:   cfg.Pipeline.DefaultStyle,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
	}, pipeline.WithCache(cache), pipeline.WithHistory(a.history))

	// 4. HTTP
	monitor := api.NewMonitor(a.limiter, p, deps)
	a.server = api.NewServer(a.orchestrator, a.history, monitor, cfg.Server.Port, cfg.Server.CORSOrigins)

	a.log.Info("Application initialized",
		"provider", p.GetName(),
		"model", cfg.Upstream.Model,
		"tokens_per_minute", cfg.RateLimit.TokensPerMinute,
	)
	return a, nil
}

// initStorage picks Postgres, then Redis, then memory for history, and Redis
// or memory for the result cache.
func (a *App) initStorage(ctx context.Context, deps map[string]api.Checker) (storage.ResultCache, error) {
	store := memory.NewMemoryStorage(a.cfg.Redis.TTL)
	var cache storage.ResultCache = memory.NewResultCache(store)

	if a.cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		deps["redis"] = client
		cache = redisclient.NewResultCache(client)
		a.history = redisclient.NewAnalysisRepo(client)
		slog.Info("Using Redis result cache")
	}

	if a.cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		deps["postgres"] = db
		a.history = postgres.NewAnalysisRepo(db)
		slog.Info("Using PostgreSQL analysis history")
	}

	if a.history == nil {
		a.history = memory.NewAnalysisRepo(store)
		slog.Info("Using Memory storage")
	}
	return cache, nil
}

// Orchestrator returns the analysis pipeline.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// Limiter returns the shared token budget.
func (a *App) Limiter() *budget.Limiter {
	return a.limiter
}

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Start launches the background collectors, the history pruner and the HTTP
// server, then returns.
func (a *App) Start(ctx context.Context) error {
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}
	go worker.NewPruner(a.cfg.History.Retention, a.history).Start(ctx)

	go func() {
		a.log.Info("Starting HTTP server", "port", a.cfg.Server.Port)
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down and releases every connection.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.log.Warn("Failed to close provider", "error", err)
		}
	}
	return errors.Join(errs...)
}
