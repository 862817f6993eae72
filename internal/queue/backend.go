// Package queue accepts render jobs, tracks their status and drives
// execution through one of two interchangeable backends: a Redis broker
// with external worker processes, or an in-process fallback used when the
// broker is unreachable at startup. The backend is chosen once and passed
// explicitly to callers; there is no global mode state.
package queue

import (
	"context"
	"time"

	"glance/internal/models"
)

// EnqueueResult is returned to the caller immediately after the job is
// durably queued (or accepted in memory). It never waits on rendering.
type EnqueueResult struct {
	JobID string
	// Status is always queued at this point.
	Status models.VariantStatus
	// RetryAfter hints when a first status poll is worthwhile.
	RetryAfter time.Duration
}

// Backend is the strategy interface for job scheduling. Both
// implementations expose the same status vocabulary and both accept
// re-submission of already-cached work, which resolves near-instantly
// through the pipeline's own existence check.
type Backend interface {
	// Enqueue accepts a render request, assigns a job id and schedules
	// execution.
	Enqueue(ctx context.Context, req models.RenderRequest) (EnqueueResult, error)
	// GetStatus returns per-variant status records. width 0 returns all
	// variants.
	GetStatus(ctx context.Context, jobID string, width int) ([]models.JobStatus, error)
	// Mode names the active backend for health reporting.
	Mode() string
}

// Executor runs one job attempt. Implemented by the worker processor. The
// returned error carries the taxonomy classification of the attempt's last
// failure; nil means no variant needs another attempt.
type Executor interface {
	Execute(ctx context.Context, job models.Job) error
}

func filterWidth(statuses []models.JobStatus, width int) []models.JobStatus {
	if width <= 0 {
		return statuses
	}
	out := statuses[:0:0]
	for _, st := range statuses {
		if st.Width == width {
			out = append(out, st)
		}
	}
	return out
}
