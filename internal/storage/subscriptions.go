package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clubledger/internal/core"
)

const subscriptionColumns = `id, club_id, year_id, member_id, total_paid,
	total_due, version, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*core.Subscription, error) {
	var (
		s                    core.Subscription
		totalPaid, totalDue  int64
		createdAt, updatedAt string
	)
	err := row.Scan(&s.ID, &s.ClubID, &s.YearID, &s.MemberID,
		&totalPaid, &totalDue, &s.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.TotalPaid = core.Money{Paise: totalPaid}
	s.TotalDue = core.Money{Paise: totalDue}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func (r *Repository) loadInstallments(ctx context.Context, subscriptionID int64) ([]core.Installment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT number, amount_expected, is_paid, paid_date, collected_by
		FROM installments WHERE subscription_id = ? ORDER BY number`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("query installments: %w", err)
	}
	defer rows.Close()

	var ins []core.Installment
	for rows.Next() {
		var (
			i        core.Installment
			isPaid   int
			paidDate sql.NullString
		)
		if err := rows.Scan(&i.Number, &i.AmountExpected.Paise, &isPaid, &paidDate, &i.CollectedBy); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		i.IsPaid = isPaid == 1
		i.PaidDate = timePtr(paidDate)
		ins = append(ins, i)
	}
	return ins, rows.Err()
}

// SubscriptionByID returns a subscription with its installments.
func (r *Repository) SubscriptionByID(ctx context.Context, clubID string, id int64) (*core.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE club_id = ? AND id = ?`, clubID, id)
	return r.finishSubscription(ctx, row, fmt.Sprintf("subscription %d", id))
}

// SubscriptionFor returns the member's subscription in a year, with
// installments, or core.ErrNotFound.
func (r *Repository) SubscriptionFor(ctx context.Context, clubID string, yearID int64, memberID string) (*core.Subscription, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE club_id = ? AND year_id = ? AND member_id = ?`, clubID, yearID, memberID)
	return r.finishSubscription(ctx, row, fmt.Sprintf("subscription for member %s", memberID))
}

func (r *Repository) finishSubscription(ctx context.Context, row *sql.Row, what string) (*core.Subscription, error) {
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	s.Installments, err = r.loadInstallments(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSubscriptions returns every subscription in a year, installments
// included, ordered by member.
func (r *Repository) ListSubscriptions(ctx context.Context, clubID string, yearID int64) ([]core.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE club_id = ? AND year_id = ? ORDER BY member_id`, clubID, yearID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []core.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i].Installments, err = r.loadInstallments(ctx, subs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// InsertSubscription stores a subscription and its installment rows in
// one transaction. A duplicate (year, member) pair returns
// core.ErrConflict.
func (r *Repository) InsertSubscription(ctx context.Context, s *core.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert subscription: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (club_id, year_id, member_id, total_paid,
			total_due, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ClubID, s.YearID, s.MemberID, s.TotalPaid.Paise, s.TotalDue.Paise,
		s.Version, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert subscription: %w", core.ErrConflict)
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert subscription id: %w", err)
	}
	s.ID = id

	if err := insertInstallments(ctx, tx, id, s.Installments); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert subscription: %w", err)
	}
	return nil
}

// UpdateSubscription rewrites a subscription and its installments,
// guarded by the version the caller read. A stale version returns
// core.ErrConflict and the update bumps the version on success.
func (r *Repository) UpdateSubscription(ctx context.Context, s *core.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update subscription: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE subscriptions SET total_paid = ?, total_due = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		s.TotalPaid.Paise, s.TotalDue.Paise, formatTime(s.UpdatedAt),
		s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("subscription %d version %d: %w", s.ID, s.Version, core.ErrConflict)
	}
	s.Version++

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM installments WHERE subscription_id = ?`, s.ID); err != nil {
		return fmt.Errorf("clear installments: %w", err)
	}
	if err := insertInstallments(ctx, tx, s.ID, s.Installments); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update subscription: %w", err)
	}
	return nil
}

func insertInstallments(ctx context.Context, tx *sql.Tx, subscriptionID int64, ins []core.Installment) error {
	for _, i := range ins {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO installments (subscription_id, number, amount_expected,
				is_paid, paid_date, collected_by)
			VALUES (?, ?, ?, ?, ?, ?)`,
			subscriptionID, i.Number, i.AmountExpected.Paise,
			boolToInt(i.IsPaid), nullTime(i.PaidDate), i.CollectedBy)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", i.Number, err)
		}
	}
	return nil
}

// SumSubscriptionsPaid totals the paid installment amounts across a
// year, in paise.
func (r *Repository) SumSubscriptionsPaid(ctx context.Context, clubID string, yearID int64) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(i.amount_expected), 0)
		FROM installments i
		JOIN subscriptions s ON s.id = i.subscription_id
		WHERE s.club_id = ? AND s.year_id = ? AND i.is_paid = 1`,
		clubID, yearID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum subscriptions paid: %w", err)
	}
	return total, nil
}
