package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
)

const jobStatusPrefix = "scrape:job:"

// JobStatusRepoImpl stores job states in Redis. Every write refreshes the TTL.
type JobStatusRepoImpl struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJobStatusRepo creates a new instance of JobStatusRepoImpl.
func NewJobStatusRepo(client *redis.Client, ttl time.Duration) *JobStatusRepoImpl {
	return &JobStatusRepoImpl{client: client, ttl: ttl}
}

func (r *JobStatusRepoImpl) SetState(ctx context.Context, state *entity.JobState) error {
	s := *state
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, jobStatusPrefix+s.JobID, payload, r.ttl).Err()
}

func (r *JobStatusRepoImpl) GetState(ctx context.Context, jobID string) (*entity.JobState, error) {
	val, err := r.client.Get(ctx, jobStatusPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	var state entity.JobState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
