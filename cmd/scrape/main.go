// Command scrape runs one crawl per source in the foreground and prints the
// outcome. It shares configuration with the API server; flags describe the search.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/adapter/memory"
	"github.com/user/listing-crawler/internal/adapter/postgres"
	"github.com/user/listing-crawler/internal/bootstrap"
	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/internal/usecase"
	"github.com/user/listing-crawler/pkg/config"
	"github.com/user/listing-crawler/pkg/logger"
	"github.com/user/listing-crawler/pkg/metrics"
)

type rangeFlags struct {
	min, max float64
}

// bounds maps unset (zero) flags to open bounds.
func (r rangeFlags) bounds() (*float64, *float64) {
	var lo, hi *float64
	if r.min > 0 {
		v := r.min
		lo = &v
	}
	if r.max > 0 {
		v := r.max
		hi = &v
	}
	return lo, hi
}

func main() {
	var (
		sources       []string
		criteria      entity.SearchCriteria
		price, size   rangeFlags
		rooms, beds   rangeFlags
		store         string
		detailWorkers int
	)

	flag.StringSliceVar(&sources, "source", nil, "sources to crawl (default: all)")
	flag.StringVar(&criteria.Transaction, "transaction", "", "rent or buy")
	flag.StringSliceVar(&criteria.PostCodes, "post-code", nil, "post codes to search")
	flag.StringSliceVar(&criteria.PropertyTypes, "property-type", nil, "property types (default: apartment,house)")
	flag.Float64Var(&price.min, "min-price", 0, "minimum price")
	flag.Float64Var(&price.max, "max-price", 0, "maximum price")
	flag.Float64Var(&size.min, "min-size", 0, "minimum surface in square meters")
	flag.Float64Var(&size.max, "max-size", 0, "maximum surface in square meters")
	flag.Float64Var(&rooms.min, "min-rooms", 0, "minimum number of rooms")
	flag.Float64Var(&rooms.max, "max-rooms", 0, "maximum number of rooms")
	flag.Float64Var(&beds.min, "min-beds", 0, "minimum number of bedrooms")
	flag.Float64Var(&beds.max, "max-beds", 0, "maximum number of bedrooms")
	flag.IntVar(&criteria.NumResults, "num-results", entity.DefaultNumResults, "stop after this many processed listings")
	flag.IntVar(&criteria.MaxDuplicates, "max-duplicates", entity.DefaultMaxDuplicates, "stop after this many consecutive known listings")
	flag.IntVar(&criteria.Timeout, "timeout", entity.DefaultTimeout, "per-request timeout in seconds")
	flag.StringVar(&store, "store", "memory", "listing store: memory or postgres")
	flag.IntVar(&detailWorkers, "detail-workers", 0, "detail prefetch workers (default: DETAIL_WORKERS)")
	flag.Parse()

	criteria.MinPrice, criteria.MaxPrice = price.bounds()
	criteria.MinSize, criteria.MaxSize = size.bounds()
	criteria.MinRooms, criteria.MaxRooms = rooms.bounds()
	criteria.MinBeds, criteria.MaxBeds = beds.bounds()

	if err := run(sources, criteria, store, detailWorkers); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(names []string, criteria entity.SearchCriteria, store string, detailWorkers int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var listings repository.ListingRepository
	switch store {
	case "memory":
		listings = memory.NewListingRepo()
	case "postgres":
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer dbpool.Close()
		repo := postgres.NewListingRepo(dbpool)
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		listings = repo
	default:
		return fmt.Errorf("unknown store %q. Expected one of memory, postgres", store)
	}

	srcs, err := bootstrap.NewSources(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer srcs.Close()

	if len(names) == 0 {
		names = srcs.Registry.Names()
	}
	if detailWorkers <= 0 {
		detailWorkers = cfg.DetailWorkers
	}

	// the crawler warms this index from the listing store
	index := memory.NewDedupIndex()
	crawler := usecase.NewCrawlerUseCase(
		usecase.NewIngestUseCase(listings, index, log),
		listings, index,
		usecase.WithDetailWorkers(detailWorkers),
		usecase.WithCrawlerLogger(log),
	)

	var failed bool
	for _, name := range names {
		src, err := srcs.Registry.Lookup(name)
		if err != nil {
			return err
		}
		result, err := crawler.Crawl(ctx, src, criteria)
		if result != nil {
			fmt.Printf("%s: %s\n", src.Name(), result.Summary())
		}
		if err != nil {
			log.Error("Crawl failed", zap.String("source", src.Name()), zap.Error(err))
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("at least one crawl failed")
	}
	return nil
}
