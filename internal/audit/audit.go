// Package audit provides fire-and-forget emitters for lifecycle events.
// Emission failures never affect job outcome; they are logged locally and
// dropped.
package audit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"glance/internal/pkg/logger"
	"glance/internal/ports"
)

// LogEmitter writes audit events to the structured log. It is the default
// emitter when no stream is configured.
type LogEmitter struct {
	log *logger.Logger
}

func NewLogEmitter(log *logger.Logger) *LogEmitter {
	return &LogEmitter{log: log.WithComponent("audit")}
}

func (e *LogEmitter) Emit(ctx context.Context, ev ports.AuditEvent) {
	args := []any{
		"event", ev.Name,
		"document_id", ev.DocumentID,
		"user_id", ev.UserID,
	}
	if ev.TenantID != "" {
		args = append(args, "tenant_id", ev.TenantID)
	}
	for k, v := range ev.Metadata {
		args = append(args, "meta_"+k, v)
	}
	e.log.FromContext(ctx).Info("audit event", args...)
}

// StreamEmitter appends audit events to a Redis stream for the external
// audit consumer. Failures are swallowed and logged.
type StreamEmitter struct {
	rdb    *redis.Client
	stream string
	log    *logger.Logger
}

func NewStreamEmitter(rdb *redis.Client, stream string, log *logger.Logger) *StreamEmitter {
	return &StreamEmitter{
		rdb:    rdb,
		stream: stream,
		log:    log.WithComponent("audit"),
	}
}

func (e *StreamEmitter) Emit(ctx context.Context, ev ports.AuditEvent) {
	values := map[string]any{
		"event":       ev.Name,
		"document_id": ev.DocumentID,
		"user_id":     ev.UserID,
		"emitted_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if ev.TenantID != "" {
		values["tenant_id"] = ev.TenantID
	}
	for k, v := range ev.Metadata {
		values["meta_"+k] = v
	}

	// Emission must not block a worker on a slow broker.
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	err := e.rdb.XAdd(emitCtx, &redis.XAddArgs{
		Stream: e.stream,
		Values: values,
	}).Err()
	if err != nil {
		e.log.Warn("audit emit failed",
			"event", ev.Name,
			"document_id", ev.DocumentID,
			"error", err.Error(),
		)
	}
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, ev ports.AuditEvent) {}
