package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/jobs"
	"github.com/maltedev/shelf-price-scraper/internal/models"
	"github.com/maltedev/shelf-price-scraper/internal/sources"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
)

// RecordLister reads stored records.
type RecordLister interface {
	Latest(ctx context.Context, source string, limit int) ([]models.Record, error)
}

// OutboxCounter reports outbox backlog for the health check.
type OutboxCounter interface {
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type Handlers struct {
	jobs    *jobs.Manager
	records RecordLister
	outbox  OutboxCounter
	logger  *slog.Logger
}

// NewHandlers wires the HTTP handlers. records and outbox may be nil when no
// database is configured.
func NewHandlers(jobs *jobs.Manager, records RecordLister, outbox OutboxCounter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		jobs:    jobs,
		records: records,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

type CreateJobRequest struct {
	Source      string `json:"source"`
	Target      int    `json:"target"`
	StartOffset int    `json:"start_offset"`
	Resume      bool   `json:"resume"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type SourceInfo struct {
	Name string `json:"name"`
	Mode string `json:"mode"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, err := h.outbox.CountByStatus(r.Context(), database.OutboxStatusPending, database.OutboxStatusFailed)
		if err != nil {
			h.logger.Error("failed to count outbox events", "error", err)
		}
		deadLetter, err := h.outbox.CountByStatus(r.Context(), database.OutboxStatusDeadLetter)
		if err != nil {
			h.logger.Error("failed to count dead letter events", "error", err)
		}

		health["outbox"] = map[string]any{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	names := sources.Names()
	out := make([]SourceInfo, 0, len(names))
	for _, name := range names {
		site, err := sources.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, SourceInfo{Name: site.Name, Mode: string(site.Mode)})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		h.respondError(w, http.StatusBadRequest, "source is required")
		return
	}

	job, err := h.jobs.CreateJob(req.Source, req.Target, req.StartOffset, req.Resume)
	switch {
	case errors.Is(err, sources.ErrUnknownSource):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobs.ErrSourceBusy):
		h.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	err := h.jobs.CancelJob(jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobs.ErrNotRunning):
		h.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancelling"})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.GetStats())
}

// ListRecords returns the latest stored records of a source.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		h.respondError(w, http.StatusNotImplemented, "record storage is not configured")
		return
	}

	site, err := sources.Lookup(chi.URLParam(r, "source"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	limit := defaultRecordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecordLimit)
	}

	records, err := h.records.Latest(r.Context(), site.Name, limit)
	if err != nil {
		h.logger.Error("failed to list records", "error", err, "source", site.Name)
		h.respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
