package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-wattwise/infrastructure/cache"
	"github.com/ahrav/go-wattwise/infrastructure/llm"
	"github.com/ahrav/go-wattwise/infrastructure/middleware"
	"github.com/ahrav/go-wattwise/internal/catalog"
	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/pipeline"
	"github.com/ahrav/go-wattwise/internal/ports"
)

const tracerName = "github.com/ahrav/go-wattwise"

// Deps are optional collaborators for Bootstrap. Zero values select
// production defaults.
type Deps struct {
	Logger *zap.Logger
	// Registerer receives the Prometheus metrics; nil uses the default
	// registry.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	// Core replaces the configured provider. The middleware chain still
	// applies, which lets tests drive the full stack without network calls.
	Core llm.CoreLLM
	// Catalog replaces loading Config.Catalog.Path.
	Catalog *catalog.Catalog
	// Catalogs loads catalog files; nil uses a fresh CatalogLoader.
	Catalogs *CatalogLoader
}

// App is a wired pipeline plus the resources it owns.
type App struct {
	Pipeline *pipeline.Pipeline
	Catalog  *catalog.Catalog
	Client   *llm.Client
	Metrics  *middleware.PrometheusMetrics

	closers []io.Closer
}

// Close releases connections held by the app.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Bootstrap validates cfg and builds the inference client, its middleware,
// the response cache, metrics and the pipeline.
func Bootstrap(ctx context.Context, cfg Config, deps Deps) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	cat := deps.Catalog
	if cat == nil {
		if cfg.Catalog.Path == "" {
			return nil, fmt.Errorf("%w: catalog.path is required", domain.ErrInvalidConfiguration)
		}
		loader := deps.Catalogs
		if loader == nil {
			loader = NewCatalogLoader()
		}
		var err error
		if cat, err = loader.Load(ctx, cfg.Catalog.Path); err != nil {
			return nil, err
		}
	}

	app := &App{Catalog: cat, Metrics: middleware.NewPrometheusMetrics(deps.Registerer)}

	store, err := newCacheStore(ctx, cfg.Cache, app)
	if err != nil {
		return nil, err
	}
	chain := middlewareChain(cfg, tracer, app.Metrics, store)

	if deps.Core != nil {
		app.Client = llm.NewClientFromCore(deps.Core, nil, chain...)
	} else {
		app.Client, err = llm.NewClient(cfg.LLM.Provider, llm.ClientConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			BaseURL:    cfg.LLM.BaseURL,
			Timeout:    time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
			Middleware: chain,
		})
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.LLM.Provider, err)
		}
	}
	if store != nil {
		app.Client.WithResponseCache(store)
	}

	app.Pipeline, err = pipeline.New(app.Client, cat,
		pipeline.WithConfig(cfg.PipelineConfig()),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(app.Metrics),
		pipeline.WithTracer(tracer),
	)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	logger.Info("application bootstrapped",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", app.Client.GetModel()),
		zap.String("cache", cfg.Cache.Backend),
		zap.Int("catalog_plans", cat.Len()))
	return app, nil
}

// middlewareChain orders middleware outermost first: tracing and metrics see
// every call, cache hits skip the breaker and limiter, and the timeout
// bounds only the provider request.
func middlewareChain(cfg Config, tracer trace.Tracer, metrics ports.MetricsCollector, store ports.CacheStore) []llm.Middleware {
	chain := []llm.Middleware{
		llm.TracingMiddleware(tracer),
		llm.MetricsMiddleware(metrics),
	}
	if store != nil {
		chain = append(chain, llm.CacheMiddleware(store, time.Duration(cfg.Cache.TTLSeconds)*time.Second))
	}
	if r := cfg.Resilience; r.BreakerFailures > 0 {
		cb := llm.NewCircuitBreaker(r.BreakerFailures, time.Duration(r.BreakerCooldownSeconds)*time.Second)
		chain = append(chain, llm.CircuitBreakerMiddlewareWithMetrics(cb, metrics))
	}
	if r := cfg.Resilience; r.RequestsPerSecond > 0 {
		chain = append(chain, llm.RateLimitMiddleware(rate.Limit(r.RequestsPerSecond), max(r.Burst, 1)))
	}
	return append(chain, llm.TimeoutMiddleware(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second))
}

// newCacheStore builds the configured store and registers it with app for
// closing. The none backend returns a nil store.
func newCacheStore(ctx context.Context, cfg CacheConfig, app *App) (ports.CacheStore, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(cfg.MaxEntries), nil
	case "redis":
		store := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis cache at %s: %w", cfg.RedisAddr, err)
		}
		app.closers = append(app.closers, store)
		return store, nil
	default:
		return nil, nil
	}
}
