package repository

import (
	"context"

	"github.com/user/listing-crawler/internal/entity"
)

// JobStatusRepository defines the interface for tracking scrape job progress.
type JobStatusRepository interface {
	// SetState stores the latest state of a job.
	SetState(ctx context.Context, state *entity.JobState) error
	// GetState retrieves the state of a job, or ErrNotFound.
	GetState(ctx context.Context, jobID string) (*entity.JobState, error)
}
