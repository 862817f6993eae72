package models

import "time"

// VariantStatus is the lifecycle of one requested width within a job.
type VariantStatus string

const (
	StatusQueued     VariantStatus = "queued"
	StatusProcessing VariantStatus = "processing"
	StatusSuccess    VariantStatus = "success"
	StatusFailed     VariantStatus = "failed"
)

// Terminal reports whether the status will not change again.
func (s VariantStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Job is one queued unit of work wrapping a RenderRequest. The attempt
// counter travels inside the payload so the broker stays a plain list.
type Job struct {
	ID      string        `json:"id"`
	Request RenderRequest `json:"request"`
	Attempt int           `json:"attempt"`
}

// JobStatus is the per-variant status record a job fans out into. Variants
// succeed or fail independently; the job is complete once every record is
// terminal.
type JobStatus struct {
	JobID      string        `json:"job_id"`
	DocumentID string        `json:"document_id"`
	Width      int           `json:"width"`
	Status     VariantStatus `json:"status"`
	// Skipped marks a variant that was already cached: terminal success
	// that produced no new work.
	Skipped   bool      `json:"skipped"`
	ErrorCode string    `json:"error_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Complete reports whether every variant of the job reached a terminal state.
func Complete(statuses []JobStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}
