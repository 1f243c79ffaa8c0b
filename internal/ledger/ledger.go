// Package ledger tracks background sync jobs in process memory. Jobs live
// for the lifetime of one process instance and are lost on restart; callers
// that need durability can put a persistent store behind the same methods.
package ledger

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when a job id is not in the ledger.
var ErrJobNotFound = errors.New("job not found")

// Status is a job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a job in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ResultStatus classifies one per-record outcome.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultWarning ResultStatus = "warning"
	ResultError   ResultStatus = "error"
)

// Result is one per-record outcome entry.
type Result struct {
	Title   string       `json:"title"`
	Status  ResultStatus `json:"status"`
	Message string       `json:"message"`
}

// Job is one tracked unit of background batch work.
type Job struct {
	ID               string    `json:"id"`
	Status           Status    `json:"status"`
	EntityType       string    `json:"entity_type"`
	TotalRecords     int       `json:"total_records"`
	ProcessedRecords int       `json:"processed_records"`
	SuccessCount     int       `json:"success_count"`
	ErrorCount       int       `json:"error_count"`
	GroupCount       int       `json:"group_count,omitempty"`
	Results          []Result  `json:"results"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Progress returns completion as a 0-100 percentage.
func (j *Job) Progress() int {
	if j.TotalRecords == 0 {
		return 0
	}
	p := j.ProcessedRecords * 100 / j.TotalRecords
	if p > 100 {
		p = 100
	}
	return p
}

// Ledger is the in-memory job registry. All methods are safe for concurrent
// use: the orchestrator's record tasks write progress while pollers read.
type Ledger struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	logger *slog.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(logger *slog.Logger) *Ledger {
	return &Ledger{
		jobs:   make(map[string]*Job),
		logger: logger,
	}
}

// CreateJob allocates a pending job with zeroed counters and returns its id.
func (l *Ledger) CreateJob(entityType string, totalRecords int) string {
	now := time.Now()
	job := &Job{
		ID:           uuid.New().String(),
		Status:       StatusPending,
		EntityType:   entityType,
		TotalRecords: totalRecords,
		Results:      []Result{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	l.mu.Lock()
	l.jobs[job.ID] = job
	l.mu.Unlock()

	l.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("entity_type", entityType),
		slog.Int("total_records", totalRecords),
	)

	return job.ID
}

// GetJob returns a snapshot copy of the job so pollers never race writers.
func (l *Ledger) GetJob(jobID string) (*Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return snapshot(job), nil
}

// ListJobs returns snapshots of the most recent jobs, newest first.
func (l *Ledger) ListJobs(limit int) []*Job {
	l.mu.RLock()
	jobs := make([]*Job, 0, len(l.jobs))
	for _, job := range l.jobs {
		jobs = append(jobs, snapshot(job))
	}
	l.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// UpdateProgress sets the counters to the given absolute values and appends
// new result entries. The first call moves a pending job to processing;
// reaching the total completes it. Terminal statuses never change here, but
// counters from in-flight work still land so the final snapshot is accurate.
func (l *Ledger) UpdateProgress(jobID string, processed, success, errCount int, newResults []Result, groupCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	job.ProcessedRecords = processed
	job.SuccessCount = success
	job.ErrorCount = errCount
	if groupCount > 0 {
		job.GroupCount = groupCount
	}
	job.Results = append(job.Results, newResults...)
	job.UpdatedAt = time.Now()

	if !job.Status.Terminal() {
		if job.Status == StatusPending {
			job.Status = StatusProcessing
		}
		if job.ProcessedRecords >= job.TotalRecords {
			job.Status = StatusCompleted
		}
	}

	return nil
}

// CompleteJob force-completes a job. Cancellation is sticky and wins.
func (l *Ledger) CompleteJob(jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if job.Status == StatusCancelled {
		return nil
	}
	job.Status = StatusCompleted
	job.UpdatedAt = time.Now()
	return nil
}

// FailJob marks the job failed and appends a single system-error entry.
// Used only for orchestration-level failures, never for record errors.
func (l *Ledger) FailJob(jobID, errorMessage string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	job.Status = StatusFailed
	job.Results = append(job.Results, Result{
		Title:   "System error",
		Status:  ResultError,
		Message: errorMessage,
	})
	job.UpdatedAt = time.Now()

	l.logger.Error("Job failed",
		slog.String("job_id", jobID),
		slog.String("error", errorMessage),
	)
	return nil
}

// CancelJob requests cooperative cancellation. Cancelling a job that already
// reached a terminal status is a no-op; otherwise cancelled is terminal and
// no later completion can override it.
func (l *Ledger) CancelJob(jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if job.Status.Terminal() {
		return nil
	}
	job.Status = StatusCancelled
	job.UpdatedAt = time.Now()

	l.logger.Info("Job cancelled", slog.String("job_id", jobID))
	return nil
}

// IsCancelled is the orchestrator's cheap cooperative cancellation check.
func (l *Ledger) IsCancelled(jobID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	job, ok := l.jobs[jobID]
	return ok && job.Status == StatusCancelled
}

func snapshot(job *Job) *Job {
	copied := *job
	copied.Results = make([]Result, len(job.Results))
	copy(copied.Results, job.Results)
	return &copied
}
