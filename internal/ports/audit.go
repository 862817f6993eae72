package ports

import "context"

// Audit event names emitted by the pipeline.
const (
	EventAccessRequested     = "access-requested"
	EventWriteCompleted      = "write-completed"
	EventGenerationRequested = "generation-requested"
)

// AuditEvent is one structured lifecycle event.
type AuditEvent struct {
	Name       string            `json:"name"`
	DocumentID string            `json:"document_id"`
	UserID     string            `json:"user_id"`
	TenantID   string            `json:"tenant_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditEmitter is the audit collaborator contract. Emission is strictly
// fire-and-forget: implementations must never let a failure escape to the
// caller, and callers never let emission affect job outcome.
type AuditEmitter interface {
	Emit(ctx context.Context, ev AuditEvent)
}
