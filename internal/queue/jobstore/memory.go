package jobstore

import (
	"context"
	"sync"
	"time"

	"glance/internal/models"
	"glance/internal/pkg/errors"
)

// Memory is the job store for in-process fallback mode. Nothing survives a
// restart, matching the fallback queue's own durability.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string][]models.JobStatus
}

func NewMemory() *Memory {
	return &Memory{jobs: map[string][]models.JobStatus{}}
}

func (s *Memory) CreateJob(ctx context.Context, job models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return nil
	}

	now := time.Now().UTC()
	statuses := make([]models.JobStatus, 0, len(job.Request.Widths))
	for _, width := range job.Request.NormalizedWidths() {
		statuses = append(statuses, models.JobStatus{
			JobID:      job.ID,
			DocumentID: job.Request.DocumentID,
			Width:      width,
			Status:     models.StatusQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	s.jobs[job.ID] = statuses
	return nil
}

func (s *Memory) MarkProcessing(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs[jobID] {
		if s.jobs[jobID][i].Status == models.StatusQueued {
			s.jobs[jobID][i].Status = models.StatusProcessing
			s.jobs[jobID][i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *Memory) MarkVariant(ctx context.Context, jobID string, width int, status models.VariantStatus, skipped bool, errorCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs[jobID] {
		if s.jobs[jobID][i].Width == width {
			s.jobs[jobID][i].Status = status
			s.jobs[jobID][i].Skipped = skipped
			s.jobs[jobID][i].ErrorCode = errorCode
			s.jobs[jobID][i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *Memory) RequeueRetryable(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs[jobID] {
		st := &s.jobs[jobID][i]
		if st.Status == models.StatusFailed && errors.Code(st.ErrorCode).Retryable() && st.ErrorCode != "" {
			st.Status = models.StatusQueued
			st.ErrorCode = ""
			st.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *Memory) GetStatuses(ctx context.Context, jobID string) ([]models.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := make([]models.JobStatus, len(statuses))
	copy(out, statuses)
	return out, nil
}
