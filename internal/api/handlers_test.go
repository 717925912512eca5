package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/shelf-price-scraper/internal/database"
	"github.com/maltedev/shelf-price-scraper/internal/jobs"
	"github.com/maltedev/shelf-price-scraper/internal/models"
	"github.com/maltedev/shelf-price-scraper/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// waitingRunner blocks every run until it is cancelled.
type waitingRunner struct{}

func (waitingRunner) Run(ctx context.Context, _ uuid.UUID, _ runner.Request) (models.RunResult, error) {
	<-ctx.Done()
	return models.RunResult{Cancelled: true, StopReason: models.StopCancelled}, nil
}

type MockRecordLister struct {
	mock.Mock
}

func (m *MockRecordLister) Latest(ctx context.Context, source string, limit int) ([]models.Record, error) {
	args := m.Called(ctx, source, limit)
	records, _ := args.Get(0).([]models.Record)
	return records, args.Error(1)
}

type MockOutboxCounter struct {
	mock.Mock
}

func (m *MockOutboxCounter) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).(int64), args.Error(1)
}

func newTestServer(t *testing.T, records RecordLister, outbox OutboxCounter) (http.Handler, *jobs.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := jobs.NewManager(ctx, waitingRunner{}, nil)
	t.Cleanup(func() {
		cancel()
		m.Wait()
	})
	h := NewHandlers(m, records, outbox, nil)
	return NewRouter(h, RouterConfig{}), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("without database", func(t *testing.T) {
		h, _ := newTestServer(t, nil, nil)
		rec := do(t, h, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("dead letters make it unavailable", func(t *testing.T) {
		outbox := new(MockOutboxCounter)
		outbox.On("CountByStatus", mock.Anything, []string{database.OutboxStatusPending, database.OutboxStatusFailed}).Return(int64(4), nil)
		outbox.On("CountByStatus", mock.Anything, []string{database.OutboxStatusDeadLetter}).Return(int64(101), nil)

		h, _ := newTestServer(t, nil, outbox)
		rec := do(t, h, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "error", body["status"])
		outbox.AssertExpectations(t)
	})
}

func TestListSources(t *testing.T) {
	h, _ := newTestServer(t, nil, nil)
	rec := do(t, h, http.MethodGet, "/api/v1/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"ah","mode":"rendered"},{"name":"jumbo","mode":"feed"}]`, rec.Body.String())
}

func TestJobLifecycle(t *testing.T) {
	h, m := newTestServer(t, nil, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/jobs", `{"source":"jumbo","target":50}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.JobID)

	rec = do(t, h, http.MethodPost, "/api/v1/jobs", `{"source":"jumbo"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/"+created.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "jumbo", job.Source)
	assert.Equal(t, 50, job.Target)

	rec = do(t, h, http.MethodGet, "/api/v1/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	require.Eventually(t, func() bool {
		j, err := m.GetJob(created.JobID)
		return err == nil && j.Status == jobs.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, h, http.MethodDelete, "/api/v1/jobs/"+created.JobID, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		j, err := m.GetJob(created.JobID)
		return err == nil && j.Status == jobs.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, h, http.MethodDelete, "/api/v1/jobs/"+created.JobID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats jobs.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.CancelledJobs)
}

func TestCreateJobValidation(t *testing.T) {
	h, _ := newTestServer(t, nil, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed body", body: `{`, want: http.StatusBadRequest},
		{name: "missing source", body: `{}`, want: http.StatusBadRequest},
		{name: "unknown source", body: `{"source":"dirk"}`, want: http.StatusBadRequest},
		{name: "negative target", body: `{"source":"ah","target":-1}`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestUnknownJob(t *testing.T) {
	h, _ := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/jobs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/v1/jobs/missing", "").Code)
}

func TestListRecords(t *testing.T) {
	price := 1.09
	records := []models.Record{{Source: "jumbo", ExternalID: "67649PAK", Name: "Halfvolle Melk", CurrentPrice: 2.18, UnitPrice: &price, UnitBase: "l"}}

	t.Run("default limit", func(t *testing.T) {
		lister := new(MockRecordLister)
		lister.On("Latest", mock.Anything, "jumbo", defaultRecordLimit).Return(records, nil)

		h, _ := newTestServer(t, lister, nil)
		rec := do(t, h, http.MethodGet, "/api/v1/sources/jumbo/records", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got []models.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "67649PAK", got[0].ExternalID)
		lister.AssertExpectations(t)
	})

	t.Run("limit is capped", func(t *testing.T) {
		lister := new(MockRecordLister)
		lister.On("Latest", mock.Anything, "ah", maxRecordLimit).Return(nil, nil)

		h, _ := newTestServer(t, lister, nil)
		rec := do(t, h, http.MethodGet, "/api/v1/sources/ah/records?limit=9999", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("invalid limit", func(t *testing.T) {
		h, _ := newTestServer(t, new(MockRecordLister), nil)
		rec := do(t, h, http.MethodGet, "/api/v1/sources/ah/records?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown source", func(t *testing.T) {
		h, _ := newTestServer(t, new(MockRecordLister), nil)
		rec := do(t, h, http.MethodGet, "/api/v1/sources/dirk/records", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("storage error", func(t *testing.T) {
		lister := new(MockRecordLister)
		lister.On("Latest", mock.Anything, "ah", defaultRecordLimit).Return(nil, errors.New("connection refused"))

		h, _ := newTestServer(t, lister, nil)
		rec := do(t, h, http.MethodGet, "/api/v1/sources/ah/records", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("no storage", func(t *testing.T) {
		h, _ := newTestServer(t, nil, nil)
		rec := do(t, h, http.MethodGet, "/api/v1/sources/ah/records", "")
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	limited := RateLimit(rate.NewLimiter(rate.Every(time.Hour), 2))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
