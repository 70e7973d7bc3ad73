package entity

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ScrapeJob is a queued crawl request covering one or more sources.
type ScrapeJob struct {
	ID        string         `json:"id"`
	Sources   []string       `json:"sources"`
	Criteria  SearchCriteria `json:"criteria"`
	CreatedAt time.Time      `json:"created_at"`
}

// SourceReport is the per-source outcome stored with a job.
type SourceReport struct {
	Source  string   `json:"source"`
	Added   []string `json:"added"`
	Seen    []string `json:"seen"`
	Failed  []string `json:"failed"`
	Summary string   `json:"summary"`
	Error   string   `json:"error,omitempty"`
}

// JobState is the tracked lifecycle of a ScrapeJob.
type JobState struct {
	JobID      string         `json:"job_id"`
	Status     JobStatus      `json:"status"`
	Reports    []SourceReport `json:"reports,omitempty"`
	Error      string         `json:"error,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
