package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/adapter/kafka"
	"github.com/user/listing-crawler/internal/adapter/postgres"
	redis_adapter "github.com/user/listing-crawler/internal/adapter/redis"
	"github.com/user/listing-crawler/internal/bootstrap"
	"github.com/user/listing-crawler/internal/delivery/http/handler"
	"github.com/user/listing-crawler/internal/delivery/http/router"
	"github.com/user/listing-crawler/internal/usecase"
	"github.com/user/listing-crawler/pkg/config"
	"github.com/user/listing-crawler/pkg/logger"
	"github.com/user/listing-crawler/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		panic("could not load config: " + err.Error())
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("could not build logger: " + err.Error())
	}
	defer log.Sync()
	log.Info("Logger initialized", zap.String("level", cfg.LogLevel))

	// --- Metrics ---
	metrics.Init()
	log.Info("Metrics initialized")

	// --- Database Connections ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("Unable to connect to database", zap.Error(err))
	}
	defer dbpool.Close()
	log.Info("PostgreSQL connection pool established")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Unable to connect to Redis", zap.Error(err))
	}
	log.Info("Redis connection established")

	// --- Repositories ---
	listingRepo := postgres.NewListingRepo(dbpool)
	if err := listingRepo.Migrate(ctx); err != nil {
		log.Fatal("Unable to migrate database", zap.Error(err))
	}
	dedupIndex := redis_adapter.NewDedupIndexRepo(rdb)
	queueRepo := redis_adapter.NewQueueRepo(rdb)
	jobStatusRepo := redis_adapter.NewJobStatusRepo(rdb, cfg.JobStatusTTL())
	notifier := kafka.NewNotifier(cfg.Brokers(), cfg.KafkaTopic)
	defer notifier.Close()

	// --- Sources ---
	sources, err := bootstrap.NewSources(ctx, cfg, log)
	if err != nil {
		log.Fatal("Unable to set up sources", zap.Error(err))
	}
	defer sources.Close()

	// --- Use Cases ---
	ingest := usecase.NewIngestUseCase(listingRepo, dedupIndex, log)
	crawler := usecase.NewCrawlerUseCase(ingest, listingRepo, dedupIndex,
		usecase.WithDetailWorkers(cfg.DetailWorkers),
		usecase.WithCrawlerLogger(log),
	)
	scrapeManager := usecase.NewScrapeManager(sources.Registry, queueRepo, jobStatusRepo, log)
	jobRunner := usecase.NewJobRunner(crawler, sources.Registry, queueRepo, jobStatusRepo, notifier, log)

	// --- Workers ---
	var workers sync.WaitGroup
	for i := 0; i < cfg.ScrapeWorkers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			runWorker(ctx, jobRunner, cfg.QueuePollDuration(), log.With(zap.Int("worker", id)))
		}(i)
	}
	log.Info("Scrape workers started", zap.Int("count", cfg.ScrapeWorkers))

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(scrapeManager, map[string]handler.HealthCheck{
		"postgres": dbpool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, log)
	httpRouter := router.New(apiHandler, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	workers.Wait()
	log.Info("Server exiting")
}

// runWorker drains the job queue until ctx is cancelled, sleeping between
// polls when the queue is empty.
func runWorker(ctx context.Context, runner usecase.JobRunner, poll time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for ctx.Err() == nil {
		processed, err := runner.ProcessJobFromQueue(ctx)
		if err != nil {
			log.Error("Failed to process job", zap.Error(err))
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
