package storage

import (
	"context"
	"fmt"

	"clubledger/internal/core"
)

// InsertAuditEvent appends one event to the audit log.
func (r *Repository) InsertAuditEvent(ctx context.Context, e *core.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (club_id, actor_id, action, target, details, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ClubID, e.ActorID, e.Action, e.Target, e.Details, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns a club's most recent audit entries, newest
// first, capped at limit.
func (r *Repository) ListAuditEvents(ctx context.Context, clubID string, limit int) ([]core.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT club_id, actor_id, action, target, details, occurred_at
		FROM audit_log WHERE club_id = ?
		ORDER BY id DESC LIMIT ?`, clubID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var events []core.AuditEvent
	for rows.Next() {
		var (
			e          core.AuditEvent
			occurredAt string
		)
		if err := rows.Scan(&e.ClubID, &e.ActorID, &e.Action, &e.Target, &e.Details, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Timestamp = parseTime(occurredAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
