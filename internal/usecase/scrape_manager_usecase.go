package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/internal/source"
	"github.com/user/listing-crawler/pkg/metrics"
)

// ScrapeManager defines the interface for submitting and tracking scrape jobs.
type ScrapeManager interface {
	Submit(ctx context.Context, sources []string, criteria entity.SearchCriteria) (*entity.ScrapeJob, error)
	GetStatus(ctx context.Context, jobID string) (*entity.JobState, error)
}

type ScrapeManagerUseCase struct {
	registry source.Registry
	queue    repository.QueueRepository
	statuses repository.JobStatusRepository
	logger   *zap.Logger
}

// NewScrapeManager creates a new ScrapeManager use case.
func NewScrapeManager(
	registry source.Registry,
	queue repository.QueueRepository,
	statuses repository.JobStatusRepository,
	logger *zap.Logger,
) *ScrapeManagerUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScrapeManagerUseCase{registry: registry, queue: queue, statuses: statuses, logger: logger}
}

// Submit validates criteria against every requested source and queues the job.
// No source is contacted. An empty source list selects every registered source.
func (uc *ScrapeManagerUseCase) Submit(ctx context.Context, sources []string, criteria entity.SearchCriteria) (*entity.ScrapeJob, error) {
	if len(sources) == 0 {
		sources = uc.registry.Names()
	}

	names := make([]string, 0, len(sources))
	seen := map[string]bool{}
	normalized := criteria.Normalize()
	for _, name := range sources {
		src, err := uc.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		if seen[src.Name()] {
			continue
		}
		seen[src.Name()] = true
		if normalized, _, err = source.Prepare(src, criteria); err != nil {
			return nil, err
		}
		names = append(names, src.Name())
	}

	job := &entity.ScrapeJob{
		ID:        uuid.NewString(),
		Sources:   names,
		Criteria:  normalized,
		CreatedAt: time.Now().UTC(),
	}

	if err := uc.statuses.SetState(ctx, &entity.JobState{JobID: job.ID, Status: entity.JobQueued}); err != nil {
		return nil, fmt.Errorf("failed to store status of job %s: %w", job.ID, err)
	}
	if err := uc.queue.Push(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to queue job %s: %w", job.ID, err)
	}

	if size, err := uc.queue.Size(ctx); err == nil {
		metrics.JobsInQueue.Set(float64(size))
	}
	uc.logger.Info("scrape job queued", zap.String("job_id", job.ID), zap.Strings("sources", names))
	return job, nil
}

func (uc *ScrapeManagerUseCase) GetStatus(ctx context.Context, jobID string) (*entity.JobState, error) {
	return uc.statuses.GetState(ctx, jobID)
}
