package request

import "github.com/user/listing-crawler/internal/entity"

// SubmitScrapeRequest is the body of POST /api/scrapes. Criteria fields sit at
// the top level next to the source list.
type SubmitScrapeRequest struct {
	// Sources restricts the job to the named sites; empty means all of them.
	Sources []string `json:"sources"`
	entity.SearchCriteria
}
