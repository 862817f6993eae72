package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glance/internal/models"
	"glance/internal/pkg/errors"
	"glance/internal/queue/jobstore"
)

// trackingExecutor observes interleaving and marks variants terminal so
// status reads can detect completion.
type trackingExecutor struct {
	store jobstore.Store
	delay time.Duration
	// failFirst, keyed by document id, fails the first attempt of a job
	// with the given error. Set before Enqueue.
	failFirst  map[string]error
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
	executions atomic.Int32

	mu       sync.Mutex
	attempts map[string]int
}

func newTrackingExecutor(store jobstore.Store) *trackingExecutor {
	return &trackingExecutor{
		store:     store,
		failFirst: map[string]error{},
		attempts:  map[string]int{},
	}
}

func (e *trackingExecutor) Execute(ctx context.Context, job models.Job) error {
	cur := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		peak := e.maxFlight.Load()
		if cur <= peak || e.maxFlight.CompareAndSwap(peak, cur) {
			break
		}
	}
	e.executions.Add(1)

	e.mu.Lock()
	e.attempts[job.ID]++
	attempt := e.attempts[job.ID]
	e.mu.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}

	_ = e.store.MarkProcessing(ctx, job.ID)

	e.mu.Lock()
	failErr, shouldFail := e.failFirst[job.Request.DocumentID]
	e.mu.Unlock()
	if shouldFail && attempt == 1 {
		for _, w := range job.Request.NormalizedWidths() {
			_ = e.store.MarkVariant(ctx, job.ID, w, models.StatusFailed, false, string(errors.GetCode(failErr)))
		}
		return failErr
	}

	for _, w := range job.Request.NormalizedWidths() {
		_ = e.store.MarkVariant(ctx, job.ID, w, models.StatusSuccess, false, "")
	}
	return nil
}

func inprocRequest(doc string) models.RenderRequest {
	return models.RenderRequest{
		DocumentID:     doc,
		ContentHash:    "hash-" + doc,
		Widths:         []int{96, 240},
		MimeType:       "image/png",
		OwnerID:        "user-1",
		SourceLocation: "fake://" + doc,
	}
}

func waitTerminal(t *testing.T, b *InProcBackend, jobID string) []models.JobStatus {
	t.Helper()
	var statuses []models.JobStatus
	require.Eventually(t, func() bool {
		var err error
		statuses, err = b.GetStatus(context.Background(), jobID, 0)
		if err != nil {
			return false
		}
		return models.Complete(statuses)
	}, 5*time.Second, 5*time.Millisecond)
	return statuses
}

func TestInProcProcessesOneAtATime(t *testing.T) {
	store := jobstore.NewMemory()
	exec := newTrackingExecutor(store)
	exec.delay = 10 * time.Millisecond
	b := NewInProcBackend(InProcDeps{Store: store, Exec: exec})

	var jobIDs []string
	for i := 0; i < 10; i++ {
		res, err := b.Enqueue(context.Background(), inprocRequest(fmt.Sprintf("doc-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, models.StatusQueued, res.Status)
		jobIDs = append(jobIDs, res.JobID)
	}

	for _, id := range jobIDs {
		statuses := waitTerminal(t, b, id)
		for _, st := range statuses {
			assert.Equal(t, models.StatusSuccess, st.Status)
		}
	}

	assert.Equal(t, int32(1), exec.maxFlight.Load(), "in-process mode must never overlap jobs")
	assert.Equal(t, int32(10), exec.executions.Load())
}

func TestInProcRetriesRetryableFailure(t *testing.T) {
	store := jobstore.NewMemory()
	exec := newTrackingExecutor(store)
	b := NewInProcBackend(InProcDeps{Store: store, Exec: exec, MaxAttempts: 2})

	exec.failFirst["flaky"] = errors.New(errors.CodeStorageReadFailure, "transient read failure")
	res, err := b.Enqueue(context.Background(), inprocRequest("flaky"))
	require.NoError(t, err)

	statuses := waitTerminal(t, b, res.JobID)
	for _, st := range statuses {
		assert.Equal(t, models.StatusSuccess, st.Status)
	}
	assert.Equal(t, int32(2), exec.executions.Load())
}

func TestInProcDoesNotRetryTerminalFailure(t *testing.T) {
	store := jobstore.NewMemory()
	exec := newTrackingExecutor(store)
	b := NewInProcBackend(InProcDeps{Store: store, Exec: exec, MaxAttempts: 3})

	exec.failFirst["poisoned"] = errors.New(errors.CodeUnsupportedType, "no conversion strategy")
	res, err := b.Enqueue(context.Background(), inprocRequest("poisoned"))
	require.NoError(t, err)

	statuses := waitTerminal(t, b, res.JobID)
	for _, st := range statuses {
		assert.Equal(t, models.StatusFailed, st.Status)
		assert.Equal(t, string(errors.CodeUnsupportedType), st.ErrorCode)
	}
	assert.Equal(t, int32(1), exec.executions.Load())
}

func TestInProcEnqueueRejectsInvalidRequest(t *testing.T) {
	b := NewInProcBackend(InProcDeps{Store: jobstore.NewMemory(), Exec: newTrackingExecutor(jobstore.NewMemory())})

	req := inprocRequest("doc")
	req.Widths = nil
	_, err := b.Enqueue(context.Background(), req)
	require.Error(t, err)
}
