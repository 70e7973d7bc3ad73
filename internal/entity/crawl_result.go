package entity

import "fmt"

// ListingCandidate is a discovered, not yet processed listing. Sources that return
// listings inline with the search response attach the raw payload.
type ListingCandidate struct {
	URL        string
	ExternalID string
	Payload    []byte
}

// Key is the identifier checked against the dedup index.
func (c ListingCandidate) Key() string {
	if c.URL != "" {
		return c.URL
	}
	return c.ExternalID
}

// CrawlResult accumulates the classification of every candidate of one crawl.
type CrawlResult struct {
	Source string
	Added  []*StoredListing
	Seen   []string
	Failed []string
}

func NewCrawlResult(source string) *CrawlResult {
	return &CrawlResult{Source: source}
}

// Processed counts added and seen candidates.
func (r *CrawlResult) Processed() int {
	return len(r.Added) + len(r.Seen)
}

func (r *CrawlResult) Visited() int {
	return len(r.Added) + len(r.Seen) + len(r.Failed)
}

// Summary renders the crawl outcome as a one line message.
func (r *CrawlResult) Summary() string {
	return fmt.Sprintf(
		"Of the %d listings visited, we added %d, had already seen %d and choked on %d.",
		r.Visited(), len(r.Added), len(r.Seen), len(r.Failed),
	)
}

// Report flattens the result into identifiers for status storage and API output.
func (r *CrawlResult) Report(crawlErr error) SourceReport {
	rep := SourceReport{
		Source:  r.Source,
		Added:   make([]string, 0, len(r.Added)),
		Seen:    append([]string{}, r.Seen...),
		Failed:  append([]string{}, r.Failed...),
		Summary: r.Summary(),
	}
	for _, l := range r.Added {
		rep.Added = append(rep.Added, l.URL)
	}
	if crawlErr != nil {
		rep.Error = crawlErr.Error()
	}
	return rep
}
