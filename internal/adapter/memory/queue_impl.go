package memory

import (
	"context"
	"sync"

	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
)

// Queue is a FIFO of scrape jobs.
type Queue struct {
	mu   sync.Mutex
	jobs []*entity.ScrapeJob
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(ctx context.Context, job *entity.ScrapeJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *Queue) Pop(ctx context.Context) (*entity.ScrapeJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, repository.ErrQueueEmpty
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *Queue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}
