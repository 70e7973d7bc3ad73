package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
)

// JobStatusRepo keeps job states without expiry.
type JobStatusRepo struct {
	mu     sync.RWMutex
	states map[string]entity.JobState
}

func NewJobStatusRepo() *JobStatusRepo {
	return &JobStatusRepo{states: map[string]entity.JobState{}}
}

func (r *JobStatusRepo) SetState(ctx context.Context, state *entity.JobState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *state
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	r.states[s.JobID] = s
	return nil
}

func (r *JobStatusRepo) GetState(ctx context.Context, jobID string) (*entity.JobState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}
