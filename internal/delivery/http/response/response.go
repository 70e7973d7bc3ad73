package response

import (
	"time"

	"github.com/user/listing-crawler/internal/entity"
)

type SubmitScrapeResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	JobID   string   `json:"job_id"`
	Sources []string `json:"sources"`
}

// SourceReportResponse is a DTO for the outcome of one source, mirroring entity.SourceReport
// with the bucket sizes spelled out.
type SourceReportResponse struct {
	Source      string   `json:"source"`
	AddedCount  int      `json:"added_count"`
	SeenCount   int      `json:"seen_count"`
	FailedCount int      `json:"failed_count"`
	Added       []string `json:"added"`
	Seen        []string `json:"seen"`
	Failed      []string `json:"failed"`
	Summary     string   `json:"summary"`
	Error       string   `json:"error,omitempty"`
}

type JobStatusResponse struct {
	JobID      string                 `json:"job_id"`
	Status     string                 `json:"status"` // "queued", "running", "completed", "failed"
	Reports    []SourceReportResponse `json:"reports"`
	Error      string                 `json:"error,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

func NewJobStatusResponse(state *entity.JobState) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:      state.JobID,
		Status:     string(state.Status),
		Reports:    make([]SourceReportResponse, 0, len(state.Reports)),
		Error:      state.Error,
		UpdatedAt:  state.UpdatedAt,
		FinishedAt: state.FinishedAt,
	}
	for _, rep := range state.Reports {
		resp.Reports = append(resp.Reports, SourceReportResponse{
			Source:      rep.Source,
			AddedCount:  len(rep.Added),
			SeenCount:   len(rep.Seen),
			FailedCount: len(rep.Failed),
			Added:       rep.Added,
			Seen:        rep.Seen,
			Failed:      rep.Failed,
			Summary:     rep.Summary,
			Error:       rep.Error,
		})
	}
	return resp
}
