package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clubledger/internal/core"
)

const yearColumns = `id, club_id, name, start_date, end_date, frequency,
	total_installments, amount_per_installment, opening_balance,
	closing_balance, is_active, is_closed, closed_at, created_by, created_at`

func scanYear(row interface{ Scan(...any) error }) (*core.Year, error) {
	var (
		y                          core.Year
		startDate, endDate         string
		frequency                  string
		closedAt                   sql.NullString
		createdAt                  string
		isActive, isClosed         int
		openingPaise, closingPaise int64
	)
	err := row.Scan(&y.ID, &y.ClubID, &y.Name, &startDate, &endDate, &frequency,
		&y.TotalInstallments, &y.AmountPerInstallment.Paise, &openingPaise,
		&closingPaise, &isActive, &isClosed, &closedAt, &y.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	y.StartDate = parseTime(startDate)
	y.EndDate = parseTime(endDate)
	y.Frequency = core.Frequency(frequency)
	y.OpeningBalance = core.Money{Paise: openingPaise}
	y.ClosingBalance = core.Money{Paise: closingPaise}
	y.IsActive = isActive == 1
	y.IsClosed = isClosed == 1
	y.ClosedAt = timePtr(closedAt)
	y.CreatedAt = parseTime(createdAt)
	return &y, nil
}

// InsertYear stores a new year and fills in its generated ID.
// Inserting a second active year for the same club returns
// core.ErrConflict.
func (r *Repository) InsertYear(ctx context.Context, y *core.Year) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO years (club_id, name, start_date, end_date, frequency,
			total_installments, amount_per_installment, opening_balance,
			closing_balance, is_active, is_closed, closed_at, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		y.ClubID, y.Name, formatTime(y.StartDate), formatTime(y.EndDate),
		string(y.Frequency), y.TotalInstallments, y.AmountPerInstallment.Paise,
		y.OpeningBalance.Paise, y.ClosingBalance.Paise,
		boolToInt(y.IsActive), boolToInt(y.IsClosed), nullTime(y.ClosedAt),
		y.CreatedBy, formatTime(y.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert year: %w", core.ErrConflict)
		}
		return fmt.Errorf("insert year: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert year id: %w", err)
	}
	y.ID = id
	return nil
}

// YearByID returns the year with the given ID scoped to a club.
func (r *Repository) YearByID(ctx context.Context, clubID string, id int64) (*core.Year, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+yearColumns+` FROM years WHERE club_id = ? AND id = ?`, clubID, id)
	y, err := scanYear(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("year %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query year: %w", err)
	}
	return y, nil
}

// ActiveYear returns the club's single active year, or core.ErrNotFound.
func (r *Repository) ActiveYear(ctx context.Context, clubID string) (*core.Year, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+yearColumns+` FROM years WHERE club_id = ? AND is_active = 1`, clubID)
	y, err := scanYear(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active year: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query active year: %w", err)
	}
	return y, nil
}

// LatestYear returns the most recently created year for a club,
// active or not, or core.ErrNotFound when the club has none.
func (r *Repository) LatestYear(ctx context.Context, clubID string) (*core.Year, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+yearColumns+` FROM years WHERE club_id = ? ORDER BY id DESC LIMIT 1`, clubID)
	y, err := scanYear(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest year: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest year: %w", err)
	}
	return y, nil
}

// ListYears returns all of a club's years, newest first.
func (r *Repository) ListYears(ctx context.Context, clubID string) ([]core.Year, error) {
	return r.listYears(ctx,
		`SELECT `+yearColumns+` FROM years WHERE club_id = ? ORDER BY id DESC`, clubID)
}

// ListClosedYears returns a club's closed years, newest first.
func (r *Repository) ListClosedYears(ctx context.Context, clubID string) ([]core.Year, error) {
	return r.listYears(ctx,
		`SELECT `+yearColumns+` FROM years WHERE club_id = ? AND is_closed = 1 ORDER BY id DESC`, clubID)
}

func (r *Repository) listYears(ctx context.Context, query string, args ...any) ([]core.Year, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query years: %w", err)
	}
	defer rows.Close()

	var years []core.Year
	for rows.Next() {
		y, err := scanYear(rows)
		if err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		years = append(years, *y)
	}
	return years, rows.Err()
}

// UpdateYear persists rule and balance changes on an existing year.
func (r *Repository) UpdateYear(ctx context.Context, y *core.Year) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE years SET name = ?, start_date = ?, end_date = ?, frequency = ?,
			total_installments = ?, amount_per_installment = ?,
			opening_balance = ?, closing_balance = ?,
			is_active = ?, is_closed = ?, closed_at = ?
		WHERE club_id = ? AND id = ?`,
		y.Name, formatTime(y.StartDate), formatTime(y.EndDate), string(y.Frequency),
		y.TotalInstallments, y.AmountPerInstallment.Paise,
		y.OpeningBalance.Paise, y.ClosingBalance.Paise,
		boolToInt(y.IsActive), boolToInt(y.IsClosed), nullTime(y.ClosedAt),
		y.ClubID, y.ID)
	if err != nil {
		return fmt.Errorf("update year: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update year: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("year %d: %w", y.ID, core.ErrNotFound)
	}
	return nil
}

// CloseYear marks a year closed, deactivates it and freezes its
// closing balance.
func (r *Repository) CloseYear(ctx context.Context, clubID string, id int64, closingPaise int64, closedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE years SET is_closed = 1, is_active = 0,
			closing_balance = ?, closed_at = ?
		WHERE club_id = ? AND id = ?`,
		closingPaise, formatTime(closedAt), clubID, id)
	if err != nil {
		return fmt.Errorf("close year: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close year: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("year %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// SwapActiveYear closes prev and inserts next as the new active year in
// a single transaction, so a crash cannot leave the club with zero or
// two active years.
func (r *Repository) SwapActiveYear(ctx context.Context, prev *core.Year, next *core.Year) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE years SET is_closed = 1, is_active = 0,
			closing_balance = ?, closed_at = ?
		WHERE club_id = ? AND id = ?`,
		prev.ClosingBalance.Paise, nullTime(prev.ClosedAt), prev.ClubID, prev.ID)
	if err != nil {
		return fmt.Errorf("swap close year: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("year %d: %w", prev.ID, core.ErrNotFound)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO years (club_id, name, start_date, end_date, frequency,
			total_installments, amount_per_installment, opening_balance,
			closing_balance, is_active, is_closed, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		next.ClubID, next.Name, formatTime(next.StartDate), formatTime(next.EndDate),
		string(next.Frequency), next.TotalInstallments, next.AmountPerInstallment.Paise,
		next.OpeningBalance.Paise, next.ClosingBalance.Paise,
		next.CreatedBy, formatTime(next.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("swap insert year: %w", core.ErrConflict)
		}
		return fmt.Errorf("swap insert year: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("swap insert year id: %w", err)
	}
	next.ID = id
	next.IsActive = true

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit swap: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
