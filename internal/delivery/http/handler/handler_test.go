package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/delivery/http/handler"
	"github.com/user/listing-crawler/internal/delivery/http/response"
	"github.com/user/listing-crawler/internal/delivery/http/router"
	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type stubManager struct {
	sources  []string
	criteria entity.SearchCriteria
	err      error
	states   map[string]*entity.JobState
}

func (s *stubManager) Submit(ctx context.Context, sources []string, criteria entity.SearchCriteria) (*entity.ScrapeJob, error) {
	s.sources, s.criteria = sources, criteria
	if s.err != nil {
		return nil, s.err
	}
	return &entity.ScrapeJob{ID: "job-1", Sources: []string{"seloger"}, Criteria: criteria}, nil
}

func (s *stubManager) GetStatus(ctx context.Context, jobID string) (*entity.JobState, error) {
	if st, ok := s.states[jobID]; ok {
		return st, nil
	}
	return nil, repository.ErrNotFound
}

func newServer(t *testing.T, m *stubManager, checks map[string]handler.HealthCheck) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(router.New(handler.NewHandler(m, checks, nil), zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitScrape(t *testing.T) {
	m := &stubManager{}
	srv := newServer(t, m, nil)

	body := `{"sources":["seloger"],"transaction":"rent","post_codes":["75011"],"max_price":1500,"max_duplicates":10}`
	resp, err := http.Post(srv.URL+"/api/scrapes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var got response.SubmitScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.JobID != "job-1" {
		t.Fatalf("unexpected job id: %q", got.JobID)
	}
	if m.criteria.Transaction != "rent" || m.criteria.MaxPrice == nil || *m.criteria.MaxPrice != 1500 || m.criteria.MaxDuplicates != 10 {
		t.Fatalf("criteria not decoded: %+v", m.criteria)
	}
	if len(m.sources) != 1 || m.sources[0] != "seloger" {
		t.Fatalf("unexpected sources: %v", m.sources)
	}
}

func TestSubmitScrapeValidationError(t *testing.T) {
	m := &stubManager{err: &entity.ValidationError{Field: "transaction", Message: "unknown transaction 'lease'. Expected one of rent, buy"}}
	srv := newServer(t, m, nil)

	resp, err := http.Post(srv.URL+"/api/scrapes", "application/json", strings.NewReader(`{"transaction":"lease","post_codes":["75011"]}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var got map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if !strings.Contains(got["error"], "lease") {
		t.Fatalf("expected the validation message, got %q", got["error"])
	}
}

func TestSubmitScrapeBadBodyAndFailure(t *testing.T) {
	srv := newServer(t, &stubManager{err: errors.New("redis down")}, nil)

	resp, err := http.Post(srv.URL+"/api/scrapes", "application/json", strings.NewReader(`{`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed body, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/scrapes", "application/json", strings.NewReader(`{"transaction":"rent","post_codes":["75011"]}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestGetScrapeStatus(t *testing.T) {
	finished := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	m := &stubManager{states: map[string]*entity.JobState{
		"job-1": {
			JobID:  "job-1",
			Status: entity.JobCompleted,
			Reports: []entity.SourceReport{{
				Source:  "seloger",
				Added:   []string{"https://www.seloger.com/a.htm", "https://www.seloger.com/b.htm"},
				Seen:    []string{"https://www.seloger.com/c.htm"},
				Failed:  []string{},
				Summary: "Of the 3 listings visited, we added 2, had already seen 1 and choked on 0.",
			}},
			UpdatedAt:  finished,
			FinishedAt: &finished,
		},
	}}
	srv := newServer(t, m, nil)

	resp, err := http.Get(srv.URL + "/api/scrapes/job-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got response.JobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Status != "completed" || len(got.Reports) != 1 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if r := got.Reports[0]; r.AddedCount != 2 || r.SeenCount != 1 || r.FailedCount != 0 {
		t.Fatalf("unexpected counts: %+v", r)
	}

	resp, err = http.Get(srv.URL + "/api/scrapes/unknown")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthCheck(t *testing.T) {
	checks := map[string]handler.HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}
	srv := newServer(t, &stubManager{}, checks)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var got map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got["postgres"] != "healthy" || got["redis"] != "unhealthy" {
		t.Fatalf("unexpected health report: %v", got)
	}
}
