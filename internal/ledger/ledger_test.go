package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() *Ledger {
	return NewLedger(slog.Default())
}

func TestCreateAndGetJob(t *testing.T) {
	l := newTestLedger()

	jobID := l.CreateJob("companies", 10)
	require.NotEmpty(t, jobID)

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "companies", job.EntityType)
	assert.Equal(t, 10, job.TotalRecords)
	assert.Zero(t, job.ProcessedRecords)
	assert.Empty(t, job.Results)

	_, err = l.GetJob("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestUpdateProgress_StateTransitions(t *testing.T) {
	l := newTestLedger()
	jobID := l.CreateJob("companies", 2)

	// First progress call moves pending to processing
	require.NoError(t, l.UpdateProgress(jobID, 1, 1, 0, []Result{
		{Title: "ACME", Status: ResultSuccess, Message: "created"},
	}, 0))

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, job.Status)
	assert.Equal(t, 1, job.ProcessedRecords)
	assert.Len(t, job.Results, 1)

	// Reaching the total completes the job
	require.NoError(t, l.UpdateProgress(jobID, 2, 1, 1, []Result{
		{Title: "Globex", Status: ResultError, Message: "rejected"},
	}, 0))

	job, err = l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 2, job.ProcessedRecords)
	assert.Equal(t, 1, job.SuccessCount)
	assert.Equal(t, 1, job.ErrorCount)
	assert.Len(t, job.Results, 2)
}

func TestUpdateProgress_GroupCount(t *testing.T) {
	l := newTestLedger()
	jobID := l.CreateJob("companies", 5)

	require.NoError(t, l.UpdateProgress(jobID, 1, 1, 0, nil, 2))

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.GroupCount)
}

func TestCancelIsSticky(t *testing.T) {
	l := newTestLedger()
	jobID := l.CreateJob("discounts", 3)

	require.NoError(t, l.UpdateProgress(jobID, 1, 1, 0, nil, 0))
	require.NoError(t, l.CancelJob(jobID))
	assert.True(t, l.IsCancelled(jobID))

	// Neither late progress nor an explicit complete may revive it
	require.NoError(t, l.UpdateProgress(jobID, 3, 3, 0, nil, 0))
	require.NoError(t, l.CompleteJob(jobID))

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, job.Status)
	// Counters from in-flight work still land
	assert.Equal(t, 3, job.ProcessedRecords)
}

func TestCancelCompletedIsNoOp(t *testing.T) {
	l := newTestLedger()
	jobID := l.CreateJob("collections", 1)

	require.NoError(t, l.UpdateProgress(jobID, 1, 1, 0, nil, 0))
	require.NoError(t, l.CancelJob(jobID))

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.False(t, l.IsCancelled(jobID))
}

func TestFailJob(t *testing.T) {
	l := newTestLedger()
	jobID := l.CreateJob("companies", 4)

	require.NoError(t, l.FailJob(jobID, "access check failed: unauthorized"))

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	require.Len(t, job.Results, 1)
	assert.Equal(t, ResultError, job.Results[0].Status)
	assert.Contains(t, job.Results[0].Message, "unauthorized")
}

func TestJobProgress(t *testing.T) {
	job := &Job{TotalRecords: 4, ProcessedRecords: 1}
	assert.Equal(t, 25, job.Progress())

	job.ProcessedRecords = 4
	assert.Equal(t, 100, job.Progress())

	empty := &Job{}
	assert.Equal(t, 0, empty.Progress())
}

func TestSnapshotIsolation(t *testing.T) {
	l := newTestLedger()
	jobID := l.CreateJob("companies", 2)
	require.NoError(t, l.UpdateProgress(jobID, 1, 1, 0, []Result{
		{Title: "ACME", Status: ResultSuccess},
	}, 0))

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	job.Results[0].Title = "mutated"
	job.ProcessedRecords = 99

	fresh, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, "ACME", fresh.Results[0].Title)
	assert.Equal(t, 1, fresh.ProcessedRecords)
}

func TestConcurrentUpdates(t *testing.T) {
	l := newTestLedger()
	const total = 100
	jobID := l.CreateJob("companies", total)

	// Simulate many in-flight record tasks reporting progress while a
	// poller reads. The race detector is the real assertion here.
	var wg sync.WaitGroup
	for i := 1; i <= total; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = l.UpdateProgress(jobID, n, n, 0, []Result{
				{Title: fmt.Sprintf("record-%d", n), Status: ResultSuccess},
			}, 0)
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.GetJob(jobID)
			_ = l.IsCancelled(jobID)
		}()
	}
	wg.Wait()

	job, err := l.GetJob(jobID)
	require.NoError(t, err)
	assert.Len(t, job.Results, total)
	assert.LessOrEqual(t, job.ProcessedRecords, total)
	assert.Equal(t, StatusCompleted, job.Status)
}
