package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsefeed/moment-search/internal/analytics"
	aggstore "github.com/pulsefeed/moment-search/internal/analytics/aggregator"
	"github.com/pulsefeed/moment-search/internal/search/cache"
	"github.com/pulsefeed/moment-search/internal/search/engine"
	"github.com/pulsefeed/moment-search/internal/search/handler"
	"github.com/pulsefeed/moment-search/internal/store"
	"github.com/pulsefeed/moment-search/pkg/config"
	"github.com/pulsefeed/moment-search/pkg/health"
	"github.com/pulsefeed/moment-search/pkg/kafka"
	"github.com/pulsefeed/moment-search/pkg/logger"
	"github.com/pulsefeed/moment-search/pkg/metrics"
	"github.com/pulsefeed/moment-search/pkg/middleware"
	"github.com/pulsefeed/moment-search/pkg/postgres"
	pkgredis "github.com/pulsefeed/moment-search/pkg/redis"
	"github.com/pulsefeed/moment-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting moment search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var db *postgres.Client
	var index store.Index
	err = resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		db, err = postgres.New(cfg.Postgres)
		return err
	})
	if err != nil {
		slog.Warn("postgres unavailable, using in-memory index", "error", err)
		db = nil
		index = store.NewMemoryIndex()
	} else {
		defer db.Close()
		index = store.NewPostgresIndex(db)
		slog.Info("postgres index ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	guarded := store.NewGuardedIndex(index, resilience.CircuitBreakerConfig{})

	var redisClient *pkgredis.Client
	var resultCache cache.Cache
	if cfg.Cache.Enabled {
		switch cfg.Cache.Backend {
		case "redis":
			redisClient, err = pkgredis.NewClient(cfg.Redis)
			if err != nil {
				slog.Warn("redis unavailable, falling back to memory cache", "error", err)
				resultCache = cache.NewMemoryCache(cfg.Cache.Capacity, cfg.Cache.TTL)
			} else {
				defer redisClient.Close()
				resultCache = cache.NewRedisCache(redisClient, cfg.Cache.TTL)
				slog.Info("redis result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
			}
		default:
			resultCache = cache.NewMemoryCache(cfg.Cache.Capacity, cfg.Cache.TTL)
			slog.Info("memory result cache enabled", "capacity", cfg.Cache.Capacity, "ttl", cfg.Cache.TTL)
		}
		go sweepCache(ctx, resultCache, cfg.Cache.SweepInterval, m)
	}

	var collector *analytics.Collector
	var aggregator *analytics.Aggregator
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents,
			func(ctx context.Context, key, value []byte) error {
				return analytics.HandleEvent(aggregator)(ctx, key, value)
			})
		aggregator = analytics.NewAggregator(consumer)
		go func() {
			if err := aggregator.Start(ctx); err != nil {
				slog.Error("analytics aggregator error", "error", err)
			}
		}()
		slog.Info("analytics pipeline started", "topic", cfg.Kafka.Topics.SearchEvents)

		if db != nil {
			aggstore.NewStore(db).StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
		}
	}

	opts := []engine.Option{engine.WithMetrics(m)}
	if resultCache != nil {
		opts = append(opts, engine.WithCache(resultCache))
	}
	if collector != nil {
		opts = append(opts, engine.WithCollector(collector))
	}
	eng := engine.New(guarded, cfg.Search, opts...)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		state := guarded.State()
		if state == resilience.StateOpen {
			return health.ComponentHealth{Status: health.StatusDown, Message: "circuit open"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: state.String()}
	})
	if db != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := handler.New(eng, resultCache, aggregator)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("moment search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Shutdown returns only after in-flight handlers finish; wait for it so
	// the deferred closes (collector, producer, clients) run after the last
	// request completed.
	<-shutdownDone
	slog.Info("moment search service stopped")
}

// sweepCache periodically purges expired entries and refreshes the cache
// gauges.
func sweepCache(ctx context.Context, c cache.Cache, interval time.Duration, m *metrics.Metrics) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed := c.Cleanup(ctx)
			if removed > 0 {
				m.CacheEvictionsTotal.Add(float64(removed))
			}
			m.CacheEntries.Set(float64(c.Stats(ctx).ActiveEntries))
		case <-ctx.Done():
			return
		}
	}
}
