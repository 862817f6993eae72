// Package jobstore tracks per-variant job status records. The distributed
// backend keeps them in Postgres so every worker process sees the same
// state; the in-process fallback keeps them in memory.
package jobstore

import (
	"context"
	"errors"

	"glance/internal/models"
)

// ErrJobNotFound is returned by GetStatuses for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Store persists the per-variant status fan-out of a job.
type Store interface {
	// CreateJob inserts one queued status row per requested width.
	CreateJob(ctx context.Context, job models.Job) error
	// MarkProcessing moves every still-queued variant of the job to
	// processing. Terminal rows are left untouched so re-runs of a
	// partially complete job do not resurrect finished variants.
	MarkProcessing(ctx context.Context, jobID string) error
	// MarkVariant records a terminal (or intermediate) outcome for one width.
	MarkVariant(ctx context.Context, jobID string, width int, status models.VariantStatus, skipped bool, errorCode string) error
	// RequeueRetryable reverts variants that failed with a retryable code
	// back to queued, ahead of another attempt. Terminal-coded failures
	// stay failed.
	RequeueRetryable(ctx context.Context, jobID string) error
	// GetStatuses returns all variant records of a job.
	GetStatuses(ctx context.Context, jobID string) ([]models.JobStatus, error)
}
