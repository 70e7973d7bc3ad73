package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/internal/source"
	"github.com/user/listing-crawler/pkg/metrics"
)

// JobRunner defines the worker side of the scrape job queue.
type JobRunner interface {
	// ProcessJobFromQueue runs the next queued job. It reports false when the
	// queue was empty.
	ProcessJobFromQueue(ctx context.Context) (bool, error)
}

type JobRunnerUseCase struct {
	crawler  Crawler
	registry source.Registry
	queue    repository.QueueRepository
	statuses repository.JobStatusRepository
	notifier repository.ListingNotifier
	logger   *zap.Logger
}

// NewJobRunner creates the queue worker. notifier may be nil.
func NewJobRunner(
	crawler Crawler,
	registry source.Registry,
	queue repository.QueueRepository,
	statuses repository.JobStatusRepository,
	notifier repository.ListingNotifier,
	logger *zap.Logger,
) *JobRunnerUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRunnerUseCase{
		crawler:  crawler,
		registry: registry,
		queue:    queue,
		statuses: statuses,
		notifier: notifier,
		logger:   logger,
	}
}

func (uc *JobRunnerUseCase) ProcessJobFromQueue(ctx context.Context) (bool, error) {
	job, err := uc.queue.Pop(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrQueueEmpty) {
			return false, nil
		}
		return false, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if size, err := uc.queue.Size(ctx); err == nil {
		metrics.JobsInQueue.Set(float64(size))
	}

	uc.logger.Info("processing scrape job", zap.String("job_id", job.ID), zap.Strings("sources", job.Sources))
	return true, uc.Run(ctx, job)
}

// Run crawls every source of job in turn and stores the resulting state. A
// source that fails does not prevent the next one from running.
func (uc *JobRunnerUseCase) Run(ctx context.Context, job *entity.ScrapeJob) error {
	state := &entity.JobState{JobID: job.ID, Status: entity.JobRunning}
	uc.saveState(ctx, state)

	var failures []string
	for _, name := range job.Sources {
		if ctx.Err() != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, ctx.Err()))
			break
		}

		src, err := uc.registry.Lookup(name)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}

		start := time.Now()
		result, crawlErr := uc.crawler.Crawl(ctx, src, job.Criteria)
		if result == nil {
			result = entity.NewCrawlResult(src.Name())
		}
		state.Reports = append(state.Reports, result.Report(crawlErr))

		if crawlErr != nil {
			uc.logger.Error("crawl failed", zap.String("job_id", job.ID), zap.String("source", name), zap.Error(crawlErr))
			failures = append(failures, fmt.Sprintf("%s: %v", name, crawlErr))
		} else {
			uc.logger.Info(result.Summary(),
				zap.String("job_id", job.ID), zap.String("source", name), zap.Duration("duration", time.Since(start)))
		}

		uc.notify(ctx, job, result)
		uc.saveState(ctx, state)
	}

	finished := time.Now().UTC()
	state.FinishedAt = &finished
	state.UpdatedAt = finished
	state.Status = entity.JobCompleted
	if len(failures) > 0 {
		state.Status = entity.JobFailed
		state.Error = strings.Join(failures, "; ")
	}
	// the caller's context may be gone; the final state must still land
	if err := uc.statuses.SetState(context.WithoutCancel(ctx), state); err != nil {
		return fmt.Errorf("failed to store final status of job %s: %w", job.ID, err)
	}
	return nil
}

func (uc *JobRunnerUseCase) notify(ctx context.Context, job *entity.ScrapeJob, result *entity.CrawlResult) {
	if uc.notifier == nil || len(result.Added) == 0 {
		return
	}
	if err := uc.notifier.NotifyAdded(ctx, result); err != nil {
		uc.logger.Warn("failed to publish added listings",
			zap.String("job_id", job.ID), zap.String("source", result.Source), zap.Error(err))
	}
}

func (uc *JobRunnerUseCase) saveState(ctx context.Context, state *entity.JobState) {
	state.UpdatedAt = time.Now().UTC()
	if err := uc.statuses.SetState(ctx, state); err != nil {
		uc.logger.Warn("failed to store job status", zap.String("job_id", state.JobID), zap.Error(err))
	}
}
