// Package worker holds the audit worker that drains the AMQP queue
// into the durable audit log.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"clubledger/internal/core"
)

// AuditStore is the slice of the persistence layer the worker needs.
type AuditStore interface {
	InsertAuditEvent(ctx context.Context, e *core.AuditEvent) error
}

// AuditWorker persists audit events delivered over AMQP. The API
// process publishes fire-and-forget; this worker is what makes the
// trail durable.
type AuditWorker struct {
	store AuditStore
}

func NewAuditWorker(store AuditStore) *AuditWorker {
	return &AuditWorker{store: store}
}

// HandleEvent stores one delivered audit event. Returning an error
// requeues the delivery.
func (w *AuditWorker) HandleEvent(ctx context.Context, event core.AuditEvent) error {
	if event.ClubID == "" || event.Action == "" {
		slog.WarnContext(ctx, "dropping malformed audit event",
			"club_id", event.ClubID,
			"action", event.Action)
		return nil
	}

	if err := w.store.InsertAuditEvent(ctx, &event); err != nil {
		return fmt.Errorf("persist audit event: %w", err)
	}

	slog.InfoContext(ctx, "audit event stored",
		"club_id", event.ClubID,
		"action", event.Action,
		"target", event.Target)
	return nil
}
