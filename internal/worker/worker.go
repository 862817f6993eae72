// Package worker consumes render jobs from the distributed queue and
// drives the processor. Each pool slot blocks on the queue independently;
// retryable failures are re-enqueued with a growing delay until the
// attempt budget runs out.
package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"glance/internal/models"
	"glance/internal/pkg/errors"
	"glance/internal/pkg/logger"
	"glance/internal/queue"
	"glance/internal/queue/jobstore"
)

const (
	DefaultConcurrency = 2
	DefaultMaxAttempts = 2
	defaultRetryBase   = 2 * time.Second
)

// Deps wires a Pool.
type Deps struct {
	Queue       *queue.RedisQueue
	Jobs        jobstore.Store
	Exec        queue.Executor
	Concurrency int
	MaxAttempts int
	RetryBase   time.Duration
	Log         *logger.Logger
}

// Pool runs N consumers against one queue.
type Pool struct {
	queue       *queue.RedisQueue
	jobs        jobstore.Store
	exec        queue.Executor
	concurrency int
	maxAttempts int
	retryBase   time.Duration
	log         *logger.Logger
}

func NewPool(d Deps) *Pool {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Concurrency <= 0 {
		d.Concurrency = DefaultConcurrency
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = DefaultMaxAttempts
	}
	if d.RetryBase <= 0 {
		d.RetryBase = defaultRetryBase
	}
	return &Pool{
		queue:       d.Queue,
		jobs:        d.Jobs,
		exec:        d.Exec,
		concurrency: d.Concurrency,
		maxAttempts: d.MaxAttempts,
		retryBase:   d.RetryBase,
		log:         log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled. It returns nil on clean shutdown.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker pool starting", "concurrency", p.concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		slot := i
		g.Go(func() error {
			return p.consume(ctx, slot)
		})
	}

	err := g.Wait()
	if err != nil && !stdErrIsCancel(err) {
		return err
	}
	p.log.Info("worker pool stopped")
	return nil
}

func (p *Pool) consume(ctx context.Context, slot int) error {
	log := &logger.Logger{Logger: p.log.Logger.With(slog.Int("slot", slot))}
	for {
		if _, err := p.queue.PromoteDue(ctx); err != nil && ctx.Err() == nil {
			log.Warn("retry promotion failed", "error", err.Error())
		}

		job, ok, err := p.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("queue pop failed", "error", err.Error())
			// Back off briefly so a dead broker does not spin the loop.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if !ok {
			continue
		}
		p.handle(ctx, job, log)
	}
}

func (p *Pool) handle(ctx context.Context, job models.Job, log *logger.Logger) {
	jobCtx := logger.ContextWithJobID(ctx, job.ID)
	log = log.WithJobID(job.ID)
	log.Info("job received", "document_id", job.Request.DocumentID, "attempt", job.Attempt)

	err := p.exec.Execute(jobCtx, job)
	if err == nil {
		return
	}
	if !errors.IsRetryable(err) || job.Attempt >= p.maxAttempts {
		log.Warn("job exhausted",
			"attempt", job.Attempt,
			"code", string(errors.GetCode(err)),
			"error", err.Error(),
		)
		return
	}

	// Park the payload broker-side first: if scheduling fails the status
	// rows keep their failure codes instead of pointing at a retry that
	// will never arrive.
	delay := p.backoff(job.Attempt)
	retry := job
	retry.Attempt++
	if schErr := p.queue.ScheduleRetry(jobCtx, delay, retry); schErr != nil {
		log.Error("failed to schedule retry, keeping failure state",
			"attempt", job.Attempt,
			"error", schErr.Error(),
		)
		return
	}

	// Revert the retryable failures to queued so status reads during the
	// backoff window do not report a failure that is still being worked.
	if rqErr := p.jobs.RequeueRetryable(jobCtx, job.ID); rqErr != nil {
		log.Warn("failed to reset retryable variants", "error", rqErr.Error())
	}

	log.Info("retry scheduled",
		"attempt", job.Attempt,
		"delay_ms", delay.Milliseconds(),
		"code", string(errors.GetCode(err)),
	)
}

// backoff doubles per attempt: base, 2*base, 4*base, ...
func (p *Pool) backoff(attempt int) time.Duration {
	d := p.retryBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func stdErrIsCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
