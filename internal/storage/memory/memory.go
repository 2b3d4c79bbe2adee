// Package memory holds an in-memory store used by tests and by the
// memory backend. It mirrors the SQLite repository's behavior,
// including the one-active-year constraint and optimistic versioning.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clubledger/internal/core"
)

// Store keeps all ledger state in process memory.
type Store struct {
	mu sync.RWMutex

	nextID        int64
	years         map[int64]*core.Year
	subscriptions map[int64]*core.Subscription
	expenses      map[int64]*core.Expense
	donations     map[int64]*core.Donation
	memberFees    map[int64]*core.MemberFee
	auditLog      []core.AuditEvent
}

func New() *Store {
	return &Store{
		years:         make(map[int64]*core.Year),
		subscriptions: make(map[int64]*core.Subscription),
		expenses:      make(map[int64]*core.Expense),
		donations:     make(map[int64]*core.Donation),
		memberFees:    make(map[int64]*core.MemberFee),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func copyYear(y *core.Year) *core.Year {
	c := *y
	if y.ClosedAt != nil {
		t := *y.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func copySubscription(sub *core.Subscription) *core.Subscription {
	c := *sub
	c.Installments = make([]core.Installment, len(sub.Installments))
	copy(c.Installments, sub.Installments)
	for i := range c.Installments {
		if c.Installments[i].PaidDate != nil {
			t := *c.Installments[i].PaidDate
			c.Installments[i].PaidDate = &t
		}
	}
	return &c
}

func (s *Store) InsertYear(_ context.Context, y *core.Year) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if y.IsActive {
		for _, other := range s.years {
			if other.ClubID == y.ClubID && other.IsActive {
				return fmt.Errorf("insert year: %w", core.ErrConflict)
			}
		}
	}
	y.ID = s.id()
	s.years[y.ID] = copyYear(y)
	return nil
}

func (s *Store) YearByID(_ context.Context, clubID string, id int64) (*core.Year, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, ok := s.years[id]
	if !ok || y.ClubID != clubID {
		return nil, fmt.Errorf("year %d: %w", id, core.ErrNotFound)
	}
	return copyYear(y), nil
}

func (s *Store) ActiveYear(_ context.Context, clubID string) (*core.Year, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, y := range s.years {
		if y.ClubID == clubID && y.IsActive {
			return copyYear(y), nil
		}
	}
	return nil, fmt.Errorf("active year: %w", core.ErrNotFound)
}

func (s *Store) LatestYear(_ context.Context, clubID string) (*core.Year, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *core.Year
	for _, y := range s.years {
		if y.ClubID == clubID && (latest == nil || y.ID > latest.ID) {
			latest = y
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest year: %w", core.ErrNotFound)
	}
	return copyYear(latest), nil
}

func (s *Store) ListYears(_ context.Context, clubID string) ([]core.Year, error) {
	return s.listYears(clubID, false)
}

func (s *Store) ListClosedYears(_ context.Context, clubID string) ([]core.Year, error) {
	return s.listYears(clubID, true)
}

func (s *Store) listYears(clubID string, closedOnly bool) ([]core.Year, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Year
	for _, y := range s.years {
		if y.ClubID != clubID {
			continue
		}
		if closedOnly && !y.IsClosed {
			continue
		}
		out = append(out, *copyYear(y))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) UpdateYear(_ context.Context, y *core.Year) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.years[y.ID]
	if !ok || stored.ClubID != y.ClubID {
		return fmt.Errorf("year %d: %w", y.ID, core.ErrNotFound)
	}
	s.years[y.ID] = copyYear(y)
	return nil
}

func (s *Store) CloseYear(_ context.Context, clubID string, id int64, closingPaise int64, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	y, ok := s.years[id]
	if !ok || y.ClubID != clubID {
		return fmt.Errorf("year %d: %w", id, core.ErrNotFound)
	}
	y.IsClosed = true
	y.IsActive = false
	y.ClosingBalance = core.Money{Paise: closingPaise}
	t := closedAt
	y.ClosedAt = &t
	return nil
}

func (s *Store) SwapActiveYear(_ context.Context, prev, next *core.Year) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.years[prev.ID]
	if !ok || stored.ClubID != prev.ClubID {
		return fmt.Errorf("year %d: %w", prev.ID, core.ErrNotFound)
	}
	s.years[prev.ID] = copyYear(prev)
	next.ID = s.id()
	next.IsActive = true
	s.years[next.ID] = copyYear(next)
	return nil
}

func (s *Store) SubscriptionByID(_ context.Context, clubID string, id int64) (*core.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[id]
	if !ok || sub.ClubID != clubID {
		return nil, fmt.Errorf("subscription %d: %w", id, core.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *Store) SubscriptionFor(_ context.Context, clubID string, yearID int64, memberID string) (*core.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscriptions {
		if sub.ClubID == clubID && sub.YearID == yearID && sub.MemberID == memberID {
			return copySubscription(sub), nil
		}
	}
	return nil, fmt.Errorf("subscription for member %s: %w", memberID, core.ErrNotFound)
}

func (s *Store) ListSubscriptions(_ context.Context, clubID string, yearID int64) ([]core.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Subscription
	for _, sub := range s.subscriptions {
		if sub.ClubID == clubID && sub.YearID == yearID {
			out = append(out, *copySubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (s *Store) InsertSubscription(_ context.Context, sub *core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.subscriptions {
		if other.YearID == sub.YearID && other.MemberID == sub.MemberID {
			return fmt.Errorf("insert subscription: %w", core.ErrConflict)
		}
	}
	sub.ID = s.id()
	s.subscriptions[sub.ID] = copySubscription(sub)
	return nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *core.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.subscriptions[sub.ID]
	if !ok {
		return fmt.Errorf("subscription %d: %w", sub.ID, core.ErrNotFound)
	}
	if stored.Version != sub.Version {
		return fmt.Errorf("subscription %d version %d: %w", sub.ID, sub.Version, core.ErrConflict)
	}
	sub.Version++
	s.subscriptions[sub.ID] = copySubscription(sub)
	return nil
}

func (s *Store) SumSubscriptionsPaid(_ context.Context, clubID string, yearID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, sub := range s.subscriptions {
		if sub.ClubID != clubID || sub.YearID != yearID {
			continue
		}
		for _, ins := range sub.Installments {
			if ins.IsPaid {
				total += ins.AmountExpected.Paise
			}
		}
	}
	return total, nil
}

func (s *Store) InsertExpense(_ context.Context, e *core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	c := *e
	s.expenses[e.ID] = &c
	return nil
}

func (s *Store) ExpenseByID(_ context.Context, clubID string, id int64) (*core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok || e.ClubID != clubID {
		return nil, fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (s *Store) ListExpenses(_ context.Context, clubID string, yearID int64, status core.ExpenseStatus) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.ClubID != clubID || e.YearID != yearID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) UpdateExpenseStatus(_ context.Context, clubID string, id int64, status core.ExpenseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.ClubID != clubID {
		return fmt.Errorf("expense %d: %w", id, core.ErrNotFound)
	}
	e.Status = status
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, clubID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.ClubID != clubID {
		return fmt.Errorf("expenses row %d: %w", id, core.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) SumApprovedExpenses(_ context.Context, clubID string, yearID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, e := range s.expenses {
		if e.ClubID == clubID && e.YearID == yearID && e.Status == core.ExpenseApproved {
			total += e.Amount.Paise
		}
	}
	return total, nil
}

func (s *Store) InsertDonation(_ context.Context, d *core.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	c := *d
	s.donations[d.ID] = &c
	return nil
}

func (s *Store) ListDonations(_ context.Context, clubID string, yearID int64) ([]core.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Donation
	for _, d := range s.donations {
		if d.ClubID == clubID && d.YearID == yearID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) DonationByID(_ context.Context, clubID string, id int64) (*core.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donations[id]
	if !ok || d.ClubID != clubID {
		return nil, fmt.Errorf("donation %d: %w", id, core.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (s *Store) DeleteDonation(_ context.Context, clubID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok || d.ClubID != clubID {
		return fmt.Errorf("donations row %d: %w", id, core.ErrNotFound)
	}
	delete(s.donations, id)
	return nil
}

func (s *Store) SumDonations(_ context.Context, clubID string, yearID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, d := range s.donations {
		if d.ClubID == clubID && d.YearID == yearID {
			total += d.Amount.Paise
		}
	}
	return total, nil
}

func (s *Store) InsertMemberFee(_ context.Context, f *core.MemberFee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.id()
	c := *f
	s.memberFees[f.ID] = &c
	return nil
}

func (s *Store) ListMemberFees(_ context.Context, clubID string, yearID int64) ([]core.MemberFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.MemberFee
	for _, f := range s.memberFees {
		if f.ClubID == clubID && f.YearID == yearID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) MemberFeeByID(_ context.Context, clubID string, id int64) (*core.MemberFee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.memberFees[id]
	if !ok || f.ClubID != clubID {
		return nil, fmt.Errorf("member fee %d: %w", id, core.ErrNotFound)
	}
	c := *f
	return &c, nil
}

func (s *Store) DeleteMemberFee(_ context.Context, clubID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.memberFees[id]
	if !ok || f.ClubID != clubID {
		return fmt.Errorf("member_fees row %d: %w", id, core.ErrNotFound)
	}
	delete(s.memberFees, id)
	return nil
}

func (s *Store) SumMemberFees(_ context.Context, clubID string, yearID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, f := range s.memberFees {
		if f.ClubID == clubID && f.YearID == yearID {
			total += f.Amount.Paise
		}
	}
	return total, nil
}

func (s *Store) FeeTotalsByMember(_ context.Context, clubID string, yearID int64) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	totals := make(map[string]int64)
	for _, f := range s.memberFees {
		if f.ClubID == clubID && f.YearID == yearID {
			totals[f.MemberID] += f.Amount.Paise
		}
	}
	return totals, nil
}

func (s *Store) InsertAuditEvent(_ context.Context, e *core.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog = append(s.auditLog, *e)
	return nil
}

func (s *Store) ListAuditEvents(_ context.Context, clubID string, limit int) ([]core.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []core.AuditEvent
	for i := len(s.auditLog) - 1; i >= 0 && len(out) < limit; i-- {
		if s.auditLog[i].ClubID == clubID {
			out = append(out, s.auditLog[i])
		}
	}
	return out, nil
}
