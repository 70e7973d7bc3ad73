package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/internal/source"
	"github.com/user/listing-crawler/pkg/metrics"
)

// Crawler defines the interface for the pagination crawl of one source.
type Crawler interface {
	Crawl(ctx context.Context, src source.Source, criteria entity.SearchCriteria) (*entity.CrawlResult, error)
}

type CrawlerUseCase struct {
	gate     Ingestor
	listings repository.ListingRepository
	index    repository.DedupIndexRepository
	workers  int
	logger   *zap.Logger
}

type CrawlerOption func(*CrawlerUseCase)

// WithDetailWorkers prefetches detail payloads of a page with up to n workers.
func WithDetailWorkers(n int) CrawlerOption { return func(uc *CrawlerUseCase) { uc.workers = n } }

func WithCrawlerLogger(l *zap.Logger) CrawlerOption {
	return func(uc *CrawlerUseCase) { uc.logger = l }
}

// NewCrawlerUseCase creates a new instance of the crawler use case.
func NewCrawlerUseCase(
	gate Ingestor,
	listings repository.ListingRepository,
	index repository.DedupIndexRepository,
	opts ...CrawlerOption,
) *CrawlerUseCase {
	uc := &CrawlerUseCase{
		gate:     gate,
		listings: listings,
		index:    index,
		workers:  1,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// crawlState carries the stopping counters of one crawl.
type crawlState struct {
	criteria    entity.SearchCriteria
	result      *entity.CrawlResult
	consecutive int
}

func (st *crawlState) saturated() bool {
	return st.consecutive >= st.criteria.MaxDuplicates
}

func (st *crawlState) proceed() bool {
	return st.result.Processed() < st.criteria.NumResults && !st.saturated()
}

type prefetched struct {
	listing *entity.ExtractedListing
	err     error
	ok      bool
}

// Crawl walks the result pages of src in order and classifies every candidate
// as added, seen or failed. Criteria are validated before any network call. A
// failed result page ends the crawl: the partial result is returned with the error.
func (uc *CrawlerUseCase) Crawl(ctx context.Context, src source.Source, criteria entity.SearchCriteria) (*entity.CrawlResult, error) {
	criteria, search, err := source.Prepare(src, criteria)
	if err != nil {
		return nil, err
	}

	name := src.Name()
	result := entity.NewCrawlResult(name)
	start := time.Now()
	defer func() {
		metrics.CrawlDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if err := uc.warmIndex(ctx, name); err != nil {
		return result, err
	}

	st := &crawlState{criteria: criteria, result: result}
	pages := 0
	for st.proceed() {
		page, err := search.NextPage(ctx)
		if err != nil {
			return result, fmt.Errorf("fetch %s result page %d: %w", name, pages+1, err)
		}
		pages++
		if len(page.Candidates) == 0 {
			uc.logger.Info("source exhausted", zap.String("source", name), zap.Int("page", pages))
			break
		}
		uc.logger.Info("starting the scrape of result page",
			zap.String("source", name), zap.String("url", page.URL), zap.Int("listings", len(page.Candidates)))

		details := uc.prefetch(ctx, search, name, page.Candidates)
		for i, cand := range page.Candidates {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			var pre prefetched
			if details != nil {
				pre = details[i]
			}
			if err := uc.process(ctx, search, cand, pre, st); err != nil {
				return result, err
			}
			if !st.proceed() {
				break
			}
		}
		if !page.HasNext {
			break
		}
	}

	uc.logger.Info(result.Summary(), zap.String("source", name), zap.Int("pages", pages))
	if len(result.Failed) > 0 {
		uc.logger.Debug("failed listings", zap.String("source", name), zap.Strings("urls", result.Failed))
	}
	return result, nil
}

// process classifies one candidate. Only errors that end the crawl are returned.
func (uc *CrawlerUseCase) process(ctx context.Context, search source.Search, cand entity.ListingCandidate, pre prefetched, st *crawlState) error {
	name := st.result.Source
	key := cand.Key()

	if uc.isKnown(ctx, name, cand) {
		uc.logger.Debug("skipping listing already in store", zap.String("source", name), zap.String("url", key))
		uc.seen(st, key)
		return nil
	}

	listing, err := pre.listing, pre.err
	if !pre.ok {
		listing, err = search.Listing(ctx, cand)
	}
	if err != nil {
		if isFatal(ctx, err) {
			return err
		}
		uc.logger.Debug("failed to scrape listing", zap.String("source", name), zap.String("url", key), zap.Error(err))
		uc.failed(st, key)
		return nil
	}

	stored, isNew, err := uc.gate.Ingest(ctx, listing)
	if err != nil {
		if isFatal(ctx, err) {
			return err
		}
		uc.logger.Error("failed to ingest listing", zap.String("source", name), zap.String("url", key), zap.Error(err))
		uc.failed(st, key)
		return nil
	}

	if isNew {
		st.consecutive = 0
		st.result.Added = append(st.result.Added, stored)
		metrics.ListingsTotal.WithLabelValues(name, "added").Inc()
		uc.logger.Debug("scrape succeeded", zap.String("source", name), zap.String("url", key))
		return nil
	}
	// the same listing published under another URL
	uc.seen(st, key)
	return nil
}

func (uc *CrawlerUseCase) seen(st *crawlState, key string) {
	st.consecutive++
	st.result.Seen = append(st.result.Seen, key)
	metrics.ListingsTotal.WithLabelValues(st.result.Source, "seen").Inc()
}

func (uc *CrawlerUseCase) failed(st *crawlState, key string) {
	st.result.Failed = append(st.result.Failed, key)
	metrics.ListingsTotal.WithLabelValues(st.result.Source, "failed").Inc()
}

func (uc *CrawlerUseCase) isKnown(ctx context.Context, name string, cand entity.ListingCandidate) bool {
	if uc.index == nil {
		return false
	}
	for _, k := range []string{cand.URL, cand.ExternalID} {
		if k == "" {
			continue
		}
		known, err := uc.index.IsKnown(ctx, name, k)
		if err != nil {
			// the ingestion gate still catches the duplicate
			uc.logger.Warn("dedup index lookup failed", zap.String("source", name), zap.Error(err))
			return false
		}
		if known {
			return true
		}
	}
	return false
}

// warmIndex loads the keys of every stored listing of the source into the index.
func (uc *CrawlerUseCase) warmIndex(ctx context.Context, name string) error {
	if uc.index == nil || uc.listings == nil {
		return nil
	}
	keys, err := uc.listings.ListKeys(ctx, name)
	if err != nil {
		return fmt.Errorf("load known %s listings: %w", name, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := uc.index.MarkKnown(ctx, name, keys...); err != nil {
		return fmt.Errorf("warm %s dedup index: %w", name, err)
	}
	return nil
}

// prefetch fetches the detail payloads of unknown candidates concurrently. The
// results are reconciled by process in discovery order. It returns nil when
// details are fetched inline.
func (uc *CrawlerUseCase) prefetch(ctx context.Context, search source.Search, name string, cands []entity.ListingCandidate) []prefetched {
	if uc.workers <= 1 || len(cands) < 2 {
		return nil
	}
	out := make([]prefetched, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.workers)
	for i, cand := range cands {
		i, cand := i, cand
		if uc.isKnown(ctx, name, cand) {
			continue
		}
		g.Go(func() error {
			l, err := search.Listing(gctx, cand)
			out[i] = prefetched{listing: l, err: err, ok: true}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// isFatal reports errors that abort the whole crawl rather than one candidate:
// no egress left, or the caller gave up.
func isFatal(ctx context.Context, err error) bool {
	var perr *entity.ProxyExhaustedError
	return errors.As(err, &perr) || ctx.Err() != nil
}
