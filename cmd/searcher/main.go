// Command searcher runs the TF-IDF search server.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petersspain/SearchServer/internal/analytics"
	"github.com/petersspain/SearchServer/internal/indexer/consumer"
	"github.com/petersspain/SearchServer/internal/requestqueue"
	"github.com/petersspain/SearchServer/internal/searcher"
	"github.com/petersspain/SearchServer/internal/searcher/cache"
	"github.com/petersspain/SearchServer/internal/searcher/handler"
	"github.com/petersspain/SearchServer/pkg/config"
	"github.com/petersspain/SearchServer/pkg/health"
	"github.com/petersspain/SearchServer/pkg/kafka"
	"github.com/petersspain/SearchServer/pkg/logger"
	"github.com/petersspain/SearchServer/pkg/metrics"
	"github.com/petersspain/SearchServer/pkg/middleware"
	"github.com/petersspain/SearchServer/pkg/postgres"
	pkgredis "github.com/petersspain/SearchServer/pkg/redis"
	"github.com/petersspain/SearchServer/pkg/resilience"
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

	if err := run(cfg); err != nil {
		slog.Error("search server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search server stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search server",
		"port", cfg.Server.Port,
		"default_policy", cfg.Search.DefaultPolicy,
		"cache", cfg.Cache.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"postgres", cfg.Postgres.Enabled,
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer shutdownMetrics(context.Background())
	}

	server, err := searcher.NewFromText(cfg.Search.StopWords, cfg.Search, searcher.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("creating search server: %w", err)
	}
	queue := requestqueue.New(server, cfg.RequestLog.Window)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, generation %d", server.DocumentCount(), server.Generation()),
		}
	})

	var queryCache *cache.QueryCache
	if cfg.Cache.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("stale cache entries not flushed", "error", err)
			}
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		collector  *analytics.Collector
		aggregator *analytics.Aggregator
	)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		breaker := resilience.NewBreaker("analytics-kafka", resilience.BreakerConfig{})
		collector = analytics.NewCollector(producer, 10000,
			analytics.WithBreaker(breaker),
			analytics.WithCollectorMetrics(m),
		)
		collector.Start(ctx)
		defer collector.Close()
		checker.Register("kafka", func(context.Context) health.ComponentHealth {
			if state := breaker.State(); state != resilience.BreakerClosed {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "publisher circuit " + state.String()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})

		// the ingest consumer tracks into collector, so both consumers are
		// joined before the deferred collector.Close runs
		var consumers sync.WaitGroup
		defer func() {
			stop()
			consumers.Wait()
		}()

		aggregator = analytics.NewAggregator()
		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		consumers.Go(func() {
			if err := analyticsConsumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		})

		ingest := consumer.New(server, collector, m)
		ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, ingest.Handler(), kafka.FromBeginning())
		consumers.Go(func() {
			if err := ingestConsumer.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		})
		slog.Info("kafka pipelines started",
			"ingest_topic", cfg.Kafka.Topics.DocumentIngest,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	var store *analytics.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, request log snapshots disabled", "error", err)
		} else {
			defer db.Close()
			store = analytics.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("preparing snapshot schema: %w", err)
			}
			store.StartPeriodicSave(ctx, cfg.RequestLog.SnapshotInterval, func() analytics.Snapshot {
				snap := analytics.Snapshot{RequestLog: queue.Stats(), CapturedAt: time.Now().UTC()}
				if aggregator != nil {
					stats := aggregator.Stats()
					snap.Analytics = &stats
				}
				return snap
			})
			checker.Register("postgres", health.PingCheck(db.Ping, true))
		}
	}

	mux := http.NewServeMux()
	handler.New(server, queue, queryCache, collector).Register(mux)
	analyticsHandler := analytics.NewHandler(aggregator, store)
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshot", analyticsHandler.LatestSnapshot)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var writeLimiter *middleware.Limiter
	if cfg.Server.WriteRateLimit > 0 {
		writeLimiter = middleware.NewLimiter(cfg.Server.WriteRateLimit, time.Minute)
		writeLimiter.StartCleanup(ctx, 5*time.Minute)
	}

	var chain http.Handler = mux
	chain = middleware.RateLimitWrites(writeLimiter)(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// handlers may still Track into the collector until Shutdown returns
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}
