package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"glance/internal/models"
	"glance/internal/pkg/errors"
	"glance/internal/pkg/logger"
	"glance/internal/ports"
	"glance/internal/queue/jobstore"
)

// InProcBackend is the degraded-mode strategy used when the broker is
// unreachable at startup: an in-memory FIFO drained by a self-scheduling
// loop that processes exactly one job at a time. No durability across
// restarts; it exists to keep the system functional without Redis.
type InProcBackend struct {
	store       jobstore.Store
	exec        Executor
	audit       ports.AuditEmitter
	log         *logger.Logger
	maxAttempts int
	retryAfter  time.Duration

	mu      sync.Mutex
	fifo    []models.Job
	running bool
}

// InProcDeps wires an InProcBackend.
type InProcDeps struct {
	Store       jobstore.Store
	Exec        Executor
	Audit       ports.AuditEmitter
	Log         *logger.Logger
	MaxAttempts int
	RetryAfter  time.Duration
}

func NewInProcBackend(d InProcDeps) *InProcBackend {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 2
	}
	retryAfter := d.RetryAfter
	if retryAfter == 0 {
		retryAfter = time.Second
	}
	return &InProcBackend{
		store:       d.Store,
		exec:        d.Exec,
		audit:       d.Audit,
		log:         log.WithComponent("queue"),
		maxAttempts: maxAttempts,
		retryAfter:  retryAfter,
	}
}

func (b *InProcBackend) Mode() string { return "inproc" }

func (b *InProcBackend) Enqueue(ctx context.Context, req models.RenderRequest) (EnqueueResult, error) {
	if err := req.Validate(); err != nil {
		return EnqueueResult{}, err
	}

	job := models.Job{
		ID:      "job_" + uuid.NewString(),
		Request: req,
		Attempt: 1,
	}

	if err := b.store.CreateJob(ctx, job); err != nil {
		return EnqueueResult{}, err
	}

	if b.audit != nil {
		b.audit.Emit(ctx, ports.AuditEvent{
			Name:       ports.EventGenerationRequested,
			DocumentID: req.DocumentID,
			UserID:     req.OwnerID,
			TenantID:   req.TenantID,
			Metadata: map[string]string{
				"job_id":    job.ID,
				"mime_type": req.MimeType,
			},
		})
	}

	b.mu.Lock()
	b.fifo = append(b.fifo, job)
	b.mu.Unlock()
	b.kick()

	return EnqueueResult{
		JobID:      job.ID,
		Status:     models.StatusQueued,
		RetryAfter: b.retryAfter,
	}, nil
}

func (b *InProcBackend) GetStatus(ctx context.Context, jobID string, width int) ([]models.JobStatus, error) {
	statuses, err := b.store.GetStatuses(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return filterWidth(statuses, width), nil
}

// kick starts the drain loop unless one is already running. Completion of
// each job immediately checks for the next queued one, so at most one job
// is ever in processing.
func (b *InProcBackend) kick() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.drain()
}

func (b *InProcBackend) drain() {
	for {
		b.mu.Lock()
		if len(b.fifo) == 0 {
			b.running = false
			b.mu.Unlock()
			return
		}
		job := b.fifo[0]
		b.fifo = b.fifo[1:]
		b.mu.Unlock()

		b.process(job)
	}
}

func (b *InProcBackend) process(job models.Job) {
	log := b.log.WithJobID(job.ID)
	ctx := logger.ContextWithJobID(context.Background(), job.ID)

	log.Info("processing job", "attempt", job.Attempt)
	start := time.Now()

	err := b.exec.Execute(ctx, job)
	if err == nil {
		log.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
		return
	}

	log.Warn("job attempt failed",
		"attempt", job.Attempt,
		"code", string(errors.GetCode(err)),
		"error", err.Error(),
	)

	if errors.IsRetryable(err) && job.Attempt < b.maxAttempts {
		if rqErr := b.store.RequeueRetryable(ctx, job.ID); rqErr != nil {
			log.Error("requeue reset failed", "error", rqErr.Error())
		}
		next := job
		next.Attempt++
		b.mu.Lock()
		b.fifo = append(b.fifo, next)
		b.mu.Unlock()
	}
}
