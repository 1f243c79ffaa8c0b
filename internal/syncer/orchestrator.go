// Package syncer drives batches of domain records through the entity sync
// adapters: bounded concurrency, cooperative cancellation, and incremental
// progress reporting into the job ledger. Execution is fire-and-forget; the
// caller gets a job id back immediately and polls the ledger for progress.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/bulk-sync/internal/adapter"
	"github.com/cuongbtq/bulk-sync/internal/ledger"
	"github.com/cuongbtq/bulk-sync/internal/remote"
)

// Options tunes the orchestrator.
type Options struct {
	// Concurrency bounds how many groups are in flight at once.
	Concurrency int
	// MaxResultDetail caps how many verbose success entries a job stores.
	// Errors and warnings are always recorded.
	MaxResultDetail int
}

// Orchestrator runs sync jobs against registered entity adapters.
type Orchestrator struct {
	api      remote.API
	ledger   *ledger.Ledger
	logger   *slog.Logger
	opts     Options
	adapters map[string]adapter.Syncer
}

// New creates an orchestrator. The api should already carry the retry
// policy so every adapter call shares it.
func New(api remote.API, led *ledger.Ledger, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.MaxResultDetail <= 0 {
		opts.MaxResultDetail = 50
	}
	return &Orchestrator{
		api:      api,
		ledger:   led,
		logger:   logger,
		opts:     opts,
		adapters: make(map[string]adapter.Syncer),
	}
}

// Register adds an entity sync adapter.
func (o *Orchestrator) Register(s adapter.Syncer) {
	o.adapters[s.EntityType()] = s
}

// Adapters returns the registered adapters, for schema bootstrapping.
func (o *Orchestrator) Adapters() []adapter.Syncer {
	out := make([]adapter.Syncer, 0, len(o.adapters))
	for _, s := range o.adapters {
		out = append(out, s)
	}
	return out
}

// Start validates the input shape, creates a job, and launches detached
// execution. It returns the job id immediately; completion is communicated
// only through the ledger.
func (o *Orchestrator) Start(entityType string, records []adapter.Record) (string, error) {
	sync, ok := o.adapters[entityType]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}

	if err := ValidateShape(entityType, records); err != nil {
		return "", err
	}

	jobID := o.ledger.CreateJob(entityType, len(records))

	go o.run(jobID, sync, records)

	return jobID, nil
}

// recordGroup is an ordered sub-sequence that must run serially: the first
// record is the parent step, the rest are dependents.
type recordGroup struct {
	key     string
	records []adapter.Record
}

func groupRecords(sync adapter.Syncer, records []adapter.Record) []recordGroup {
	var groups []recordGroup
	index := make(map[string]int)

	for _, rec := range records {
		key := sync.GroupKey(rec)
		if key == "" {
			groups = append(groups, recordGroup{records: []adapter.Record{rec}})
			continue
		}
		if i, ok := index[key]; ok {
			groups[i].records = append(groups[i].records, rec)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, recordGroup{key: key, records: []adapter.Record{rec}})
	}

	return groups
}

// progress accumulates cumulative counters across concurrent record tasks.
// The ledger call happens under the same lock so absolute counter updates
// and result appends stay consistent with each other.
type progress struct {
	mu            sync.Mutex
	processed     int
	success       int
	errs          int
	successDetail int
}

func (o *Orchestrator) report(jobID string, p *progress, groupCount int, res *ledger.Result, isSuccess bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	if isSuccess {
		p.success++
	} else {
		p.errs++
	}

	var toAppend []ledger.Result
	if res != nil {
		if isSuccess && res.Status == ledger.ResultSuccess {
			// Verbose success detail is capped; counters still move
			if p.successDetail < o.opts.MaxResultDetail {
				p.successDetail++
				toAppend = append(toAppend, *res)
			}
		} else {
			toAppend = append(toAppend, *res)
		}
	}

	if err := o.ledger.UpdateProgress(jobID, p.processed, p.success, p.errs, toAppend, groupCount); err != nil {
		o.logger.Error("Failed to update job progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) run(jobID string, sync adapter.Syncer, records []adapter.Record) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Sync job panicked",
				slog.String("job_id", jobID),
				slog.Any("panic", r),
			)
			_ = o.ledger.FailJob(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// Precondition: bad credentials fail the whole job before any record
	if err := remote.CheckAccess(ctx, o.api); err != nil {
		_ = o.ledger.FailJob(jobID, err.Error())
		return
	}

	groups := groupRecords(sync, records)

	// groupCount is only meaningful when rows collapse into fewer entities
	groupCount := 0
	if len(groups) < len(records) {
		groupCount = len(groups)
	}

	o.logger.Info("Sync job started",
		slog.String("job_id", jobID),
		slog.String("entity_type", sync.EntityType()),
		slog.Int("records", len(records)),
		slog.Int("groups", len(groups)),
	)

	prog := &progress{}

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)

	for _, group := range groups {
		// Cooperative cancellation: stop launching new work, let
		// already-started groups finish
		if o.ledger.IsCancelled(jobID) {
			break
		}

		group := group
		g.Go(func() error {
			o.processGroup(ctx, jobID, sync, group, prog, groupCount)
			return nil
		})
	}

	_ = g.Wait()

	if !o.ledger.IsCancelled(jobID) {
		if err := o.ledger.CompleteJob(jobID); err != nil {
			o.logger.Error("Failed to complete job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	job, err := o.ledger.GetJob(jobID)
	if err == nil {
		o.logger.Info("Sync job finished",
			slog.String("job_id", jobID),
			slog.String("status", string(job.Status)),
			slog.Int("success", job.SuccessCount),
			slog.Int("errors", job.ErrorCount),
		)
	}
}

// processGroup runs one group's records strictly in order. A failure of the
// parent (first) record marks the remaining dependents skipped without
// attempting them.
func (o *Orchestrator) processGroup(ctx context.Context, jobID string, sync adapter.Syncer, group recordGroup, prog *progress, groupCount int) {
	parentFailed := false

	for i, rec := range group.records {
		// Each dependent is a new unit of work; respect cancellation
		// between records too
		if i > 0 && o.ledger.IsCancelled(jobID) {
			return
		}

		title := recordTitle(sync.EntityType(), rec, group, i)

		if parentFailed {
			o.report(jobID, prog, groupCount, &ledger.Result{
				Title:   title,
				Status:  ledger.ResultWarning,
				Message: "skipped: parent entity could not be synced",
			}, false)
			continue
		}

		outcome, err := sync.Sync(ctx, rec)
		if err != nil {
			if i == 0 && len(group.records) > 1 {
				parentFailed = true
			}
			o.report(jobID, prog, groupCount, &ledger.Result{
				Title:   title,
				Status:  ledger.ResultError,
				Message: err.Error(),
			}, false)
			continue
		}

		o.report(jobID, prog, groupCount, successResult(title, outcome), true)
	}
}

func successResult(title string, outcome *adapter.Outcome) *ledger.Result {
	if outcome.Title != "" {
		title = outcome.Title
	}

	message := "updated existing entity"
	if outcome.Created {
		message = "created"
	}
	if outcome.Detail != "" {
		message += "; " + outcome.Detail
	}

	status := ledger.ResultSuccess
	if len(outcome.Warnings) > 0 {
		status = ledger.ResultWarning
		message += " (" + strings.Join(outcome.Warnings, "; ") + ")"
	}

	return &ledger.Result{Title: title, Status: status, Message: message}
}

func recordTitle(entityType string, rec adapter.Record, group recordGroup, i int) string {
	if title := rec.Get("company_name", "collection_title", "discount_title", "title", "name", "discount_code"); title != "" {
		return title
	}
	if group.key != "" {
		return fmt.Sprintf("%s %s (row %d)", entityType, group.key, i+1)
	}
	return fmt.Sprintf("%s row %d", entityType, i+1)
}
