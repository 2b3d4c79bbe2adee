package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	None    Frequency = "none"
)

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

// Roles supplied by the identity collaborator. The core trusts them as-is.
const (
	RoleAdmin     = "admin"
	RoleCollector = "collector"
	RoleMember    = "member"
)

type (
	// Frequency is a year's subscription cadence.
	Frequency string

	// ExpenseStatus tracks the expense approval lifecycle.
	ExpenseStatus string

	// Actor is the authenticated caller context for every core operation.
	Actor struct {
		UserID string
		ClubID string
		Role   string
	}

	// Year is one financial year of a club. At most one year per club is
	// active at any time; a closed year is frozen and never reopened.
	Year struct {
		ID                   int64      `json:"id"`
		ClubID               string     `json:"club_id"`
		Name                 string     `json:"name"`
		StartDate            time.Time  `json:"start_date"`
		EndDate              time.Time  `json:"end_date"`
		Frequency            Frequency  `json:"frequency"`
		TotalInstallments    int        `json:"total_installments"`
		AmountPerInstallment Money      `json:"amount_per_installment"`
		OpeningBalance       Money      `json:"opening_balance"`
		ClosingBalance       Money      `json:"closing_balance"`
		IsActive             bool       `json:"is_active"`
		IsClosed             bool       `json:"is_closed"`
		ClosedAt             *time.Time `json:"closed_at,omitempty"`
		CreatedBy            string     `json:"created_by"`
		CreatedAt            time.Time  `json:"created_at"`
	}

	// Installment is one scheduled payment slot inside a subscription.
	// Installments have no identity outside their owning subscription.
	Installment struct {
		Number         int        `json:"number"`
		AmountExpected Money      `json:"amount_expected"`
		IsPaid         bool       `json:"is_paid"`
		PaidDate       *time.Time `json:"paid_date,omitempty"`
		CollectedBy    string     `json:"collected_by,omitempty"`
	}

	// Subscription is a member's installment schedule for one year, with
	// denormalized totals that are always re-derived from the installment
	// list, never incrementally patched. Version backs optimistic
	// concurrency on writes.
	Subscription struct {
		ID           int64         `json:"id"`
		ClubID       string        `json:"club_id"`
		YearID       int64         `json:"year_id"`
		MemberID     string        `json:"member_id"`
		Installments []Installment `json:"installments"`
		TotalPaid    Money         `json:"total_paid"`
		TotalDue     Money         `json:"total_due"`
		Version      int64         `json:"version"`
		CreatedAt    time.Time     `json:"created_at"`
		UpdatedAt    time.Time     `json:"updated_at"`
	}

	// Expense counts toward the year balance only once approved.
	Expense struct {
		ID         int64         `json:"id"`
		ClubID     string        `json:"club_id"`
		YearID     int64         `json:"year_id"`
		Title      string        `json:"title"`
		Category   string        `json:"category,omitempty"`
		Amount     Money         `json:"amount"`
		Status     ExpenseStatus `json:"status"`
		RecordedBy string        `json:"recorded_by"`
		CreatedAt  time.Time     `json:"created_at"`
	}

	// Donation is immutable once recorded, except for deletion.
	Donation struct {
		ID          int64     `json:"id"`
		ClubID      string    `json:"club_id"`
		YearID      int64     `json:"year_id"`
		DonorName   string    `json:"donor_name"`
		Amount      Money     `json:"amount"`
		CollectedBy string    `json:"collected_by"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// MemberFee is a one-off payment record for a member.
	MemberFee struct {
		ID          int64     `json:"id"`
		ClubID      string    `json:"club_id"`
		YearID      int64     `json:"year_id"`
		MemberID    string    `json:"member_id"`
		Amount      Money     `json:"amount"`
		CollectedBy string    `json:"collected_by"`
		Notes       string    `json:"notes,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// AuditEvent records a financial mutation for the audit trail.
	AuditEvent struct {
		ClubID    string    `json:"club_id"`
		ActorID   string    `json:"actor_id"`
		Action    string    `json:"action"`
		Target    string    `json:"target"`
		Details   string    `json:"details,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrValidation          = errors.New("validation failed")
	ErrConflictingPayments = errors.New("change conflicts with paid installments")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrDisabled            = errors.New("subscriptions are disabled for this year")
	ErrAlreadyClosed       = errors.New("year is already closed")
	ErrConflict            = errors.New("concurrent modification detected")
)

// IsValid reports whether the frequency is one of weekly, monthly, none.
func (f Frequency) IsValid() bool {
	switch f {
	case Weekly, Monthly, None:
		return true
	default:
		return false
	}
}

// CanCollect reports whether the actor may record or revoke payments.
func (a Actor) CanCollect() bool {
	return a.Role == RoleAdmin || a.Role == RoleCollector
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) Validate() error {
	if strings.TrimSpace(a.ClubID) == "" {
		return errors.Join(ErrValidation, errors.New("actor club id is required"))
	}
	if strings.TrimSpace(a.UserID) == "" {
		return errors.Join(ErrValidation, errors.New("actor user id is required"))
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return errors.Join(ErrValidation, errors.New("expense title is required"))
	}
	if e.Amount.Paise <= 0 {
		return ErrInvalidAmount
	}
	switch e.Status {
	case ExpensePending, ExpenseApproved, ExpenseRejected:
	default:
		return errors.Join(ErrValidation, errors.New("invalid expense status"))
	}
	return nil
}

func (d Donation) Validate() error {
	if strings.TrimSpace(d.DonorName) == "" {
		return errors.Join(ErrValidation, errors.New("donor name is required"))
	}
	if d.Amount.Paise <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (f MemberFee) Validate() error {
	if strings.TrimSpace(f.MemberID) == "" {
		return errors.Join(ErrValidation, errors.New("member id is required"))
	}
	if f.Amount.Paise <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Installment looks up an installment by its 1-based number.
func (s *Subscription) Installment(number int) *Installment {
	for i := range s.Installments {
		if s.Installments[i].Number == number {
			return &s.Installments[i]
		}
	}
	return nil
}

// PaidCount returns how many installments are marked paid.
func (s *Subscription) PaidCount() int {
	n := 0
	for _, ins := range s.Installments {
		if ins.IsPaid {
			n++
		}
	}
	return n
}
