package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/shelf-price-scraper/internal/models"
	"github.com/maltedev/shelf-price-scraper/internal/runner"
	"github.com/maltedev/shelf-price-scraper/internal/sources"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNotRunning  = errors.New("job is not running")
	ErrSourceBusy  = errors.New("source already has an active job")
)

// Runner executes one extraction run.
type Runner interface {
	Run(ctx context.Context, runID uuid.UUID, req runner.Request) (models.RunResult, error)
}

// Job is a snapshot of one run started through the manager.
type Job struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Target      int               `json:"target"`
	StartOffset int               `json:"start_offset"`
	Resume      bool              `json:"resume"`
	Status      string            `json:"status"`
	Progress    models.Progress   `json:"progress"`
	Result      *models.RunResult `json:"result,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	CancelledJobs int     `json:"cancelled_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	RecordsKept   int     `json:"records_kept"`
	SuccessRate   float64 `json:"success_rate"`
}

type entry struct {
	job    Job
	cancel context.CancelFunc
}

// Manager runs extraction jobs in the background and tracks them in memory.
type Manager struct {
	runner Runner
	ctx    context.Context
	jobs   map[string]*entry
	mu     sync.RWMutex
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewManager creates a manager whose jobs are all cancelled when ctx is done.
func NewManager(ctx context.Context, r Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner: r,
		ctx:    ctx,
		jobs:   make(map[string]*entry),
		logger: logger.With("component", "job_manager"),
	}
}

// CreateJob registers a job and starts it.
func (m *Manager) CreateJob(source string, target, startOffset int, resume bool) (*Job, error) {
	site, err := sources.Lookup(source)
	if err != nil {
		return nil, err
	}
	if target < 0 || startOffset < 0 {
		return nil, fmt.Errorf("target and start offset must not be negative")
	}

	m.mu.Lock()
	for _, e := range m.jobs {
		if e.job.Source == site.Name && (e.job.Status == StatusPending || e.job.Status == StatusRunning) {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrSourceBusy, site.Name)
		}
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(m.ctx)
	e := &entry{
		job: Job{
			ID:          id.String(),
			Source:      site.Name,
			Target:      target,
			StartOffset: startOffset,
			Resume:      resume,
			Status:      StatusPending,
			CreatedAt:   time.Now(),
		},
		cancel: cancel,
	}
	m.jobs[e.job.ID] = e
	job := e.job
	m.mu.Unlock()

	m.logger.Info("job created", "id", job.ID, "source", job.Source, "target", target)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.process(ctx, id, e)
	}()

	return &job, nil
}

func (m *Manager) process(ctx context.Context, id uuid.UUID, e *entry) {
	m.update(e, func(j *Job) {
		now := time.Now()
		j.Status = StatusRunning
		j.StartedAt = &now
	})

	req := runner.Request{
		Source:      e.job.Source,
		Target:      e.job.Target,
		StartOffset: e.job.StartOffset,
		Resume:      e.job.Resume,
		OnProgress: func(p models.Progress) {
			m.update(e, func(j *Job) { j.Progress = p })
		},
	}

	result, err := m.runner.Run(ctx, id, req)
	result.Records = nil

	m.update(e, func(j *Job) {
		now := time.Now()
		j.CompletedAt = &now
		j.Result = &result
		j.Progress = result.Progress()

		switch {
		case err != nil:
			j.Status = StatusFailed
			j.Error = err.Error()
		case result.StopReason == models.StopFailed:
			j.Status = StatusFailed
			j.Error = "source failed"
		case result.Cancelled:
			j.Status = StatusCancelled
		default:
			j.Status = StatusCompleted
		}
	})

	if err != nil {
		m.logger.Error("job failed", "id", id, "error", err)
		return
	}
	m.logger.Info("job finished", "id", id, "stop_reason", result.StopReason, "kept", result.Kept)
}

func (m *Manager) update(e *entry, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&e.job)
}

func (m *Manager) GetJob(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	job := e.job
	return &job, nil
}

// ListJobs returns all jobs, newest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		job := e.job
		jobs = append(jobs, &job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// CancelJob asks a pending or running job to stop. The job keeps the records
// gathered so far and ends with status cancelled.
func (m *Manager) CancelJob(id string) error {
	m.mu.RLock()
	e, ok := m.jobs[id]
	var status string
	if ok {
		status = e.job.Status
	}
	m.mu.RUnlock()

	if !ok {
		return ErrJobNotFound
	}
	if status != StatusPending && status != StatusRunning {
		return fmt.Errorf("%w: status %s", ErrNotRunning, status)
	}

	m.logger.Info("cancelling job", "id", id)
	e.cancel()
	return nil
}

func (m *Manager) GetStats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalJobs: len(m.jobs)}
	for _, e := range m.jobs {
		switch e.job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusCancelled:
			stats.CancelledJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.RecordsKept += e.job.Progress.Kept
	}

	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}
	return stats
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
