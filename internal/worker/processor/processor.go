// Package processor executes one render job: size gate, idempotency
// preflight, canonical rasterization, then sequential variant generation
// with per-variant status. A failed variant never blocks its siblings.
package processor

import (
	"context"
	"fmt"
	"image"
	"time"

	"glance/internal/cache"
	"glance/internal/models"
	"glance/internal/pkg/errors"
	"glance/internal/pkg/logger"
	"glance/internal/ports"
	"glance/internal/queue/jobstore"
	"glance/internal/render"
)

// DefaultMaxSourceBytes caps source reads at 10 MiB.
const DefaultMaxSourceBytes = 10 << 20

// Deps wires a Processor.
type Deps struct {
	Pipeline       *render.Pipeline
	Store          ports.ObjectStore
	Cache          *cache.Writer
	Jobs           jobstore.Store
	Audit          ports.AuditEmitter
	MaxSourceBytes int64
	Log            *logger.Logger
}

// Processor implements queue.Executor.
type Processor struct {
	pipeline       *render.Pipeline
	store          ports.ObjectStore
	cache          *cache.Writer
	jobs           jobstore.Store
	audit          ports.AuditEmitter
	maxSourceBytes int64
	log            *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	maxBytes := d.MaxSourceBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxSourceBytes
	}
	return &Processor{
		pipeline:       d.Pipeline,
		store:          d.Store,
		cache:          d.Cache,
		jobs:           d.Jobs,
		audit:          d.Audit,
		maxSourceBytes: maxBytes,
		log:            log.WithComponent("processor"),
	}
}

// Execute runs one attempt of a job. A whole-job failure (source read,
// size gate, canonical render) is returned as-is; otherwise the return is
// the attempt's last retryable per-variant failure, or nil. Callers decide
// on retry via errors.IsRetryable.
func (p *Processor) Execute(ctx context.Context, job models.Job) error {
	log := p.log.FromContext(ctx).WithJobID(job.ID)
	req := job.Request

	if err := p.jobs.MarkProcessing(ctx, job.ID); err != nil {
		log.Warn("failed to mark job processing", "error", err.Error())
	}

	// Idempotency preflight: fully-cached widths resolve without touching
	// the source or spawning anything. A re-submitted completed job falls
	// through here near-instantly.
	var pending []int
	var lastRetryable error
	for _, width := range req.RequestedWidths() {
		exists, err := p.cache.ExistsAnyFormat(ctx, req.DocumentID, req.ContentHash, width)
		if err != nil {
			p.markFailed(ctx, job, width, err, log)
			lastRetryable = err
			continue
		}
		if exists {
			p.markSkipped(ctx, job, width, log)
			continue
		}
		pending = append(pending, width)
	}
	if len(pending) == 0 {
		log.Info("job resolved by cache preflight")
		return lastRetryable
	}

	src, err := p.store.ReadObject(ctx, req.SourceLocation)
	if err != nil {
		classified := errors.WrapWithCode(err, errors.CodeStorageReadFailure,
			"processor.read", "source read failed")
		p.failAll(ctx, job, pending, classified, log)
		return classified
	}

	if int64(len(src)) > p.maxSourceBytes {
		classified := errors.Newf(errors.CodeSizeOverLimit,
			"source is %d bytes, limit is %d", len(src), p.maxSourceBytes)
		p.failAll(ctx, job, pending, classified, log)
		return classified
	}

	start := time.Now()
	base, format, err := p.pipeline.Canonical(ctx, src, req.MimeType)
	if err != nil {
		p.failAll(ctx, job, pending, err, log)
		return err
	}
	log.Debug("canonical image ready",
		"width", base.Bounds().Dx(),
		"height", base.Bounds().Dy(),
		"format", string(format),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// The canonical image is shared read-only across the variant loop;
	// nothing below mutates it.
	generated := 0
	for _, width := range pending {
		if err := p.renderVariant(ctx, job, base, format, width, log); err != nil {
			if errors.IsRetryable(err) {
				lastRetryable = err
			}
			continue
		}
		generated++
	}

	log.Info("job attempt finished",
		"attempt", job.Attempt,
		"generated", generated,
		"requested", len(req.RequestedWidths()),
	)
	return lastRetryable
}

// renderVariant generates, uploads and records a single width.
func (p *Processor) renderVariant(ctx context.Context, job models.Job, base image.Image, format models.OutputFormat, width int, log *logger.Logger) error {
	req := job.Request

	// Per-variant existence check with the now-known format. Covers
	// variants written by a concurrent duplicate job since preflight.
	exists, err := p.cache.Exists(ctx, req.DocumentID, req.ContentHash, width, format)
	if err != nil {
		p.markFailed(ctx, job, width, err, log)
		return err
	}
	if exists {
		p.markSkipped(ctx, job, width, log)
		return nil
	}

	v, err := p.pipeline.Variant(base, width, format)
	if err != nil {
		p.markFailed(ctx, job, width, err, log)
		return err
	}

	written, err := p.cache.Write(ctx, req, width, v)
	if err != nil {
		p.markFailed(ctx, job, width, err, log)
		return err
	}

	if markErr := p.jobs.MarkVariant(ctx, job.ID, width, models.StatusSuccess, false, ""); markErr != nil {
		log.Warn("failed to record variant success", "width", width, "error", markErr.Error())
	}

	p.emit(ctx, ports.AuditEvent{
		Name:       ports.EventWriteCompleted,
		DocumentID: req.DocumentID,
		UserID:     req.OwnerID,
		TenantID:   req.TenantID,
		Metadata: map[string]string{
			"job_id":       job.ID,
			"width":        fmt.Sprintf("%d", written.Width),
			"pixel_width":  fmt.Sprintf("%d", v.Width),
			"pixel_height": fmt.Sprintf("%d", v.Height),
			"bytes":        fmt.Sprintf("%d", written.Bytes),
			"format":       string(written.Format),
			"location":     written.Location,
		},
	})

	log.Debug("variant written",
		"width", written.Width,
		"height", written.Height,
		"bytes", written.Bytes,
	)
	return nil
}

func (p *Processor) markSkipped(ctx context.Context, job models.Job, width int, log *logger.Logger) {
	if err := p.jobs.MarkVariant(ctx, job.ID, width, models.StatusSuccess, true, ""); err != nil {
		log.Warn("failed to record variant skip", "width", width, "error", err.Error())
	}
	log.Debug("variant already cached, skipping", "width", width)
}

func (p *Processor) markFailed(ctx context.Context, job models.Job, width int, cause error, log *logger.Logger) {
	code := errors.GetCode(cause)
	if err := p.jobs.MarkVariant(ctx, job.ID, width, models.StatusFailed, false, string(code)); err != nil {
		log.Warn("failed to record variant failure", "width", width, "error", err.Error())
	}
	log.Warn("variant failed",
		"width", width,
		"code", string(code),
		"retryable", code.Retryable(),
		"error", cause.Error(),
	)
}

func (p *Processor) failAll(ctx context.Context, job models.Job, widths []int, cause error, log *logger.Logger) {
	for _, width := range widths {
		p.markFailed(ctx, job, width, cause, log)
	}
}

// emit sends an audit event, never letting emission affect job outcome.
func (p *Processor) emit(ctx context.Context, ev ports.AuditEvent) {
	if p.audit == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Warn("audit emitter panicked", "event", ev.Name, "panic", rec)
		}
	}()
	p.audit.Emit(ctx, ev)
}
