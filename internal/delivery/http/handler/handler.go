package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/listing-crawler/internal/delivery/http/request"
	"github.com/user/listing-crawler/internal/delivery/http/response"
	"github.com/user/listing-crawler/internal/entity"
	"github.com/user/listing-crawler/internal/repository"
	"github.com/user/listing-crawler/internal/usecase"
)

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	manager usecase.ScrapeManager
	checks  map[string]HealthCheck
	logger  *zap.Logger
}

func NewHandler(manager usecase.ScrapeManager, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager: manager,
		checks:  checks,
		logger:  logger,
	}
}

func (h *Handler) HandleSubmitScrape(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.manager.Submit(r.Context(), req.Sources, req.SearchCriteria)
	if err != nil {
		var verr *entity.ValidationError
		if errors.As(err, &verr) {
			h.writeJSONError(w, verr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to submit scrape job", zap.Strings("sources", req.Sources), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.SubmitScrapeResponse{
		Status:  "success",
		Message: "Scrape job queued",
		JobID:   job.ID,
		Sources: job.Sources,
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) HandleGetScrapeStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	state, err := h.manager.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeJSONError(w, "Scrape job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get scrape job status", zap.String("job_id", jobID), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, response.NewJobStatusResponse(state))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthStatus["status"] = "degraded"
			code = http.StatusServiceUnavailable
			h.logger.Error("health check failed", zap.String("service", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	h.writeJSON(w, code, healthStatus)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
