package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clubledger/internal/core"
)

// InsertExpense stores a new expense row and fills in its ID.
func (r *Repository) InsertExpense(ctx context.Context, e *core.Expense) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (club_id, year_id, title, category, amount,
			status, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ClubID, e.YearID, e.Title, e.Category, e.Amount.Paise,
		string(e.Status), e.RecordedBy, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert expense id: %w", err)
	}
	return nil
}

// ExpenseByID returns one expense or core.ErrNotFound.
func (r *Repository) ExpenseByID(ctx context.Context, clubID string, id int64) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, club_id, year_id, title, category, amount, status, recorded_by, created_at
		FROM expenses WHERE club_id = ? AND id = ?`, clubID, id)

	var (
		e         core.Expense
		status    string
		createdAt string
	)
	err := row.Scan(&e.ID, &e.ClubID, &e.YearID, &e.Title, &e.Category,
		&e.Amount.Paise, &status, &e.RecordedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query expense: %w", err)
	}
	e.Status = core.ExpenseStatus(status)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

// ListExpenses returns a year's expenses, newest first. An empty
// status lists all of them.
func (r *Repository) ListExpenses(ctx context.Context, clubID string, yearID int64, status core.ExpenseStatus) ([]core.Expense, error) {
	query := `
		SELECT id, club_id, year_id, title, category, amount, status, recorded_by, created_at
		FROM expenses WHERE club_id = ? AND year_id = ?`
	args := []any{clubID, yearID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e             core.Expense
			st, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ClubID, &e.YearID, &e.Title, &e.Category,
			&e.Amount.Paise, &st, &e.RecordedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Status = core.ExpenseStatus(st)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateExpenseStatus moves an expense to a new status.
func (r *Repository) UpdateExpenseStatus(ctx context.Context, clubID string, id int64, status core.ExpenseStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET status = ? WHERE club_id = ? AND id = ?`,
		string(status), clubID, id)
	if err != nil {
		return fmt.Errorf("update expense status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// DeleteExpense removes an expense row.
func (r *Repository) DeleteExpense(ctx context.Context, clubID string, id int64) error {
	return r.deleteRow(ctx, "expenses", clubID, id)
}

// SumApprovedExpenses totals a year's approved expenses in paise.
func (r *Repository) SumApprovedExpenses(ctx context.Context, clubID string, yearID int64) (int64, error) {
	return r.sumColumn(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE club_id = ? AND year_id = ? AND status = 'approved'`, clubID, yearID)
}

// InsertDonation stores a donation row and fills in its ID.
func (r *Repository) InsertDonation(ctx context.Context, d *core.Donation) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO donations (club_id, year_id, donor_name, amount, collected_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ClubID, d.YearID, d.DonorName, d.Amount.Paise, d.CollectedBy, formatTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert donation id: %w", err)
	}
	return nil
}

// ListDonations returns a year's donations, newest first.
func (r *Repository) ListDonations(ctx context.Context, clubID string, yearID int64) ([]core.Donation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, club_id, year_id, donor_name, amount, collected_by, created_at
		FROM donations WHERE club_id = ? AND year_id = ? ORDER BY id DESC`, clubID, yearID)
	if err != nil {
		return nil, fmt.Errorf("query donations: %w", err)
	}
	defer rows.Close()

	var out []core.Donation
	for rows.Next() {
		var (
			d         core.Donation
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.ClubID, &d.YearID, &d.DonorName,
			&d.Amount.Paise, &d.CollectedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DonationByID returns one donation or core.ErrNotFound.
func (r *Repository) DonationByID(ctx context.Context, clubID string, id int64) (*core.Donation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, club_id, year_id, donor_name, amount, collected_by, created_at
		FROM donations WHERE club_id = ? AND id = ?`, clubID, id)

	var (
		d         core.Donation
		createdAt string
	)
	err := row.Scan(&d.ID, &d.ClubID, &d.YearID, &d.DonorName,
		&d.Amount.Paise, &d.CollectedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("donation %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query donation: %w", err)
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// DeleteDonation removes a donation row.
func (r *Repository) DeleteDonation(ctx context.Context, clubID string, id int64) error {
	return r.deleteRow(ctx, "donations", clubID, id)
}

// SumDonations totals a year's donations in paise.
func (r *Repository) SumDonations(ctx context.Context, clubID string, yearID int64) (int64, error) {
	return r.sumColumn(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM donations
		WHERE club_id = ? AND year_id = ?`, clubID, yearID)
}

// InsertMemberFee stores a member fee row and fills in its ID.
func (r *Repository) InsertMemberFee(ctx context.Context, f *core.MemberFee) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO member_fees (club_id, year_id, member_id, amount, collected_by, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ClubID, f.YearID, f.MemberID, f.Amount.Paise, f.CollectedBy, f.Notes, formatTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert member fee: %w", err)
	}
	f.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert member fee id: %w", err)
	}
	return nil
}

// ListMemberFees returns a year's member fees, newest first.
func (r *Repository) ListMemberFees(ctx context.Context, clubID string, yearID int64) ([]core.MemberFee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, club_id, year_id, member_id, amount, collected_by, notes, created_at
		FROM member_fees WHERE club_id = ? AND year_id = ? ORDER BY id DESC`, clubID, yearID)
	if err != nil {
		return nil, fmt.Errorf("query member fees: %w", err)
	}
	defer rows.Close()

	var out []core.MemberFee
	for rows.Next() {
		var (
			f         core.MemberFee
			createdAt string
		)
		if err := rows.Scan(&f.ID, &f.ClubID, &f.YearID, &f.MemberID,
			&f.Amount.Paise, &f.CollectedBy, &f.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan member fee: %w", err)
		}
		f.CreatedAt = parseTime(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// MemberFeeByID returns one fee record or core.ErrNotFound.
func (r *Repository) MemberFeeByID(ctx context.Context, clubID string, id int64) (*core.MemberFee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, club_id, year_id, member_id, amount, collected_by, notes, created_at
		FROM member_fees WHERE club_id = ? AND id = ?`, clubID, id)

	var (
		f         core.MemberFee
		createdAt string
	)
	err := row.Scan(&f.ID, &f.ClubID, &f.YearID, &f.MemberID,
		&f.Amount.Paise, &f.CollectedBy, &f.Notes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member fee %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query member fee: %w", err)
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// DeleteMemberFee removes a member fee row.
func (r *Repository) DeleteMemberFee(ctx context.Context, clubID string, id int64) error {
	return r.deleteRow(ctx, "member_fees", clubID, id)
}

// SumMemberFees totals a year's member fees in paise.
func (r *Repository) SumMemberFees(ctx context.Context, clubID string, yearID int64) (int64, error) {
	return r.sumColumn(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM member_fees
		WHERE club_id = ? AND year_id = ?`, clubID, yearID)
}

// FeeTotalsByMember returns the total fees paid per member in a year.
func (r *Repository) FeeTotalsByMember(ctx context.Context, clubID string, yearID int64) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT member_id, COALESCE(SUM(amount), 0)
		FROM member_fees WHERE club_id = ? AND year_id = ?
		GROUP BY member_id`, clubID, yearID)
	if err != nil {
		return nil, fmt.Errorf("query fee totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var (
			memberID string
			paise    int64
		)
		if err := rows.Scan(&memberID, &paise); err != nil {
			return nil, fmt.Errorf("scan fee total: %w", err)
		}
		totals[memberID] = paise
	}
	return totals, rows.Err()
}

func (r *Repository) deleteRow(ctx context.Context, table, clubID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE club_id = ? AND id = ?`, clubID, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s row %d: %w", table, id, core.ErrNotFound)
	}
	return nil
}

func (r *Repository) sumColumn(ctx context.Context, query, clubID string, yearID int64) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, query, clubID, yearID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum query: %w", err)
	}
	return total, nil
}
