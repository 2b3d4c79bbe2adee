// Package ledger holds the application services that drive year
// lifecycle, subscriptions, transaction records and reporting.
package ledger

import (
	"context"
	"time"

	"clubledger/internal/core"
)

// YearStore persists financial years.
type YearStore interface {
	InsertYear(ctx context.Context, y *core.Year) error
	YearByID(ctx context.Context, clubID string, id int64) (*core.Year, error)
	ActiveYear(ctx context.Context, clubID string) (*core.Year, error)
	LatestYear(ctx context.Context, clubID string) (*core.Year, error)
	ListYears(ctx context.Context, clubID string) ([]core.Year, error)
	ListClosedYears(ctx context.Context, clubID string) ([]core.Year, error)
	UpdateYear(ctx context.Context, y *core.Year) error
	CloseYear(ctx context.Context, clubID string, id int64, closingPaise int64, closedAt time.Time) error
	SwapActiveYear(ctx context.Context, prev, next *core.Year) error
}

// SubscriptionStore persists member subscriptions and their
// installment schedules.
type SubscriptionStore interface {
	SubscriptionByID(ctx context.Context, clubID string, id int64) (*core.Subscription, error)
	SubscriptionFor(ctx context.Context, clubID string, yearID int64, memberID string) (*core.Subscription, error)
	ListSubscriptions(ctx context.Context, clubID string, yearID int64) ([]core.Subscription, error)
	InsertSubscription(ctx context.Context, s *core.Subscription) error
	UpdateSubscription(ctx context.Context, s *core.Subscription) error
	SumSubscriptionsPaid(ctx context.Context, clubID string, yearID int64) (int64, error)
}

// RecordStore persists expenses, donations and member fees.
type RecordStore interface {
	InsertExpense(ctx context.Context, e *core.Expense) error
	ExpenseByID(ctx context.Context, clubID string, id int64) (*core.Expense, error)
	ListExpenses(ctx context.Context, clubID string, yearID int64, status core.ExpenseStatus) ([]core.Expense, error)
	UpdateExpenseStatus(ctx context.Context, clubID string, id int64, status core.ExpenseStatus) error
	DeleteExpense(ctx context.Context, clubID string, id int64) error
	SumApprovedExpenses(ctx context.Context, clubID string, yearID int64) (int64, error)

	InsertDonation(ctx context.Context, d *core.Donation) error
	DonationByID(ctx context.Context, clubID string, id int64) (*core.Donation, error)
	ListDonations(ctx context.Context, clubID string, yearID int64) ([]core.Donation, error)
	DeleteDonation(ctx context.Context, clubID string, id int64) error
	SumDonations(ctx context.Context, clubID string, yearID int64) (int64, error)

	InsertMemberFee(ctx context.Context, f *core.MemberFee) error
	MemberFeeByID(ctx context.Context, clubID string, id int64) (*core.MemberFee, error)
	ListMemberFees(ctx context.Context, clubID string, yearID int64) ([]core.MemberFee, error)
	DeleteMemberFee(ctx context.Context, clubID string, id int64) error
	SumMemberFees(ctx context.Context, clubID string, yearID int64) (int64, error)
	FeeTotalsByMember(ctx context.Context, clubID string, yearID int64) (map[string]int64, error)
}

// AuditStore persists the audit trail.
type AuditStore interface {
	InsertAuditEvent(ctx context.Context, e *core.AuditEvent) error
	ListAuditEvents(ctx context.Context, clubID string, limit int) ([]core.AuditEvent, error)
}

// Store is the full persistence surface the services need.
type Store interface {
	YearStore
	SubscriptionStore
	RecordStore
	AuditStore
	Ping(ctx context.Context) error
	Close() error
}

// AuditSink receives audit events asynchronously, typically over
// AMQP. Publish failures are logged by callers but never abort the
// mutation that produced the event.
type AuditSink interface {
	Publish(ctx context.Context, event core.AuditEvent) error
}
