package ledger

import (
	"context"
	"time"

	"clubledger/internal/core"
	"clubledger/internal/log"
)

// Auditor fans financial mutations out to the audit sink. Delivery is
// best effort: a publish failure is logged and swallowed so it can
// never abort the mutation that produced the event.
type Auditor struct {
	sink   AuditSink
	logger *log.Logger
}

func NewAuditor(sink AuditSink, logger *log.Logger) *Auditor {
	return &Auditor{sink: sink, logger: logger.WithComponent(log.ComponentAudit)}
}

// Record publishes one audit event for the actor's action.
func (a *Auditor) Record(ctx context.Context, actor core.Actor, action, target, details string) {
	if a == nil || a.sink == nil {
		return
	}
	event := core.AuditEvent{
		ClubID:    actor.ClubID,
		ActorID:   actor.UserID,
		Action:    action,
		Target:    target,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if err := a.sink.Publish(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "audit publish failed",
			log.FieldAction, action,
			log.FieldClub, actor.ClubID,
			log.FieldError, err)
	}
}
