package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"clubledger/internal/core"
	"clubledger/internal/log"
)

// RecordService manages the three flat transaction books: expenses,
// donations and member fees.
type RecordService struct {
	store   Store
	auditor *Auditor
	logger  *log.Logger
}

func NewRecordService(store Store, auditor *Auditor, logger *log.Logger) *RecordService {
	return &RecordService{
		store:   store,
		auditor: auditor,
		logger:  logger.WithComponent(log.ComponentLedger),
	}
}

func (s *RecordService) openYear(ctx context.Context, clubID string, yearID int64) (*core.Year, error) {
	year, err := s.store.YearByID(ctx, clubID, yearID)
	if err != nil {
		return nil, err
	}
	if year.IsClosed {
		return nil, fmt.Errorf("year %d: %w", yearID, core.ErrAlreadyClosed)
	}
	return year, nil
}

// RecordExpense files a new expense. It enters the book as pending and
// does not affect the balance until approved.
func (s *RecordService) RecordExpense(ctx context.Context, actor core.Actor, yearID int64, title, category string, amount core.Money) (*core.Expense, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.openYear(ctx, actor.ClubID, yearID); err != nil {
		return nil, err
	}

	e := &core.Expense{
		ClubID:     actor.ClubID,
		YearID:     yearID,
		Title:      strings.TrimSpace(title),
		Category:   strings.TrimSpace(category),
		Amount:     amount,
		Status:     core.ExpensePending,
		RecordedBy: actor.UserID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.InsertExpense(ctx, e); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, actor, "expense.record", fmt.Sprintf("expense:%d", e.ID), e.Amount.String())
	return e, nil
}

// ApproveExpense moves a pending expense to approved, after which it
// counts against the year balance. Approving a non-pending expense
// fails with core.ErrConflict; a closed year's expenses are frozen
// and fail with core.ErrAlreadyClosed.
func (s *RecordService) ApproveExpense(ctx context.Context, actor core.Actor, id int64) (*core.Expense, error) {
	return s.resolveExpense(ctx, actor, id, core.ExpenseApproved)
}

// RejectExpense moves a pending expense to rejected.
func (s *RecordService) RejectExpense(ctx context.Context, actor core.Actor, id int64) (*core.Expense, error) {
	return s.resolveExpense(ctx, actor, id, core.ExpenseRejected)
}

func (s *RecordService) resolveExpense(ctx context.Context, actor core.Actor, id int64, status core.ExpenseStatus) (*core.Expense, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("resolve expense: %w", core.ErrForbidden)
	}

	e, err := s.store.ExpenseByID(ctx, actor.ClubID, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.openYear(ctx, actor.ClubID, e.YearID); err != nil {
		return nil, err
	}
	if e.Status != core.ExpensePending {
		return nil, fmt.Errorf("expense %d is already %s: %w", id, e.Status, core.ErrConflict)
	}
	if err := s.store.UpdateExpenseStatus(ctx, actor.ClubID, id, status); err != nil {
		return nil, err
	}
	e.Status = status

	s.logger.InfoContext(ctx, "expense resolved",
		log.FieldClub, actor.ClubID,
		"expense_id", id,
		"status", string(status),
		log.FieldAmountPaise, e.Amount.Paise)
	s.auditor.Record(ctx, actor, "expense."+string(status), fmt.Sprintf("expense:%d", id), e.Amount.String())
	return e, nil
}

// ListExpenses returns a year's expenses, optionally filtered by
// status.
func (s *RecordService) ListExpenses(ctx context.Context, actor core.Actor, yearID int64, status core.ExpenseStatus) ([]core.Expense, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, actor.ClubID, yearID, status)
}

// DeleteExpense removes an expense record entirely. Records of a
// closed year are frozen and cannot be deleted.
func (s *RecordService) DeleteExpense(ctx context.Context, actor core.Actor, id int64) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("delete expense: %w", core.ErrForbidden)
	}
	e, err := s.store.ExpenseByID(ctx, actor.ClubID, id)
	if err != nil {
		return err
	}
	if _, err := s.openYear(ctx, actor.ClubID, e.YearID); err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, actor.ClubID, id); err != nil {
		return err
	}
	s.auditor.Record(ctx, actor, "expense.delete", fmt.Sprintf("expense:%d", id), "")
	return nil
}

// RecordDonation books a donation against an open year.
func (s *RecordService) RecordDonation(ctx context.Context, actor core.Actor, yearID int64, donorName string, amount core.Money) (*core.Donation, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanCollect() {
		return nil, fmt.Errorf("record donation: %w", core.ErrForbidden)
	}
	if _, err := s.openYear(ctx, actor.ClubID, yearID); err != nil {
		return nil, err
	}

	d := &core.Donation{
		ClubID:      actor.ClubID,
		YearID:      yearID,
		DonorName:   strings.TrimSpace(donorName),
		Amount:      amount,
		CollectedBy: actor.UserID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.InsertDonation(ctx, d); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, actor, "donation.record", fmt.Sprintf("donation:%d", d.ID), d.Amount.String())
	return d, nil
}

// ListDonations returns a year's donations.
func (s *RecordService) ListDonations(ctx context.Context, actor core.Actor, yearID int64) ([]core.Donation, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListDonations(ctx, actor.ClubID, yearID)
}

// DeleteDonation removes a donation record. Records of a closed year
// are frozen and cannot be deleted.
func (s *RecordService) DeleteDonation(ctx context.Context, actor core.Actor, id int64) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("delete donation: %w", core.ErrForbidden)
	}
	d, err := s.store.DonationByID(ctx, actor.ClubID, id)
	if err != nil {
		return err
	}
	if _, err := s.openYear(ctx, actor.ClubID, d.YearID); err != nil {
		return err
	}
	if err := s.store.DeleteDonation(ctx, actor.ClubID, id); err != nil {
		return err
	}
	s.auditor.Record(ctx, actor, "donation.delete", fmt.Sprintf("donation:%d", id), "")
	return nil
}

// RecordMemberFee books a one-off fee payment for a member.
func (s *RecordService) RecordMemberFee(ctx context.Context, actor core.Actor, yearID int64, memberID string, amount core.Money, notes string) (*core.MemberFee, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanCollect() {
		return nil, fmt.Errorf("record member fee: %w", core.ErrForbidden)
	}
	if _, err := s.openYear(ctx, actor.ClubID, yearID); err != nil {
		return nil, err
	}

	f := &core.MemberFee{
		ClubID:      actor.ClubID,
		YearID:      yearID,
		MemberID:    strings.TrimSpace(memberID),
		Amount:      amount,
		CollectedBy: actor.UserID,
		Notes:       notes,
		CreatedAt:   time.Now().UTC(),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.InsertMemberFee(ctx, f); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, actor, "fee.record", fmt.Sprintf("fee:%d", f.ID), f.Amount.String())
	return f, nil
}

// ListMemberFees returns a year's fee records.
func (s *RecordService) ListMemberFees(ctx context.Context, actor core.Actor, yearID int64) ([]core.MemberFee, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListMemberFees(ctx, actor.ClubID, yearID)
}

// DeleteMemberFee removes a fee record. Records of a closed year are
// frozen and cannot be deleted.
func (s *RecordService) DeleteMemberFee(ctx context.Context, actor core.Actor, id int64) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("delete member fee: %w", core.ErrForbidden)
	}
	f, err := s.store.MemberFeeByID(ctx, actor.ClubID, id)
	if err != nil {
		return err
	}
	if _, err := s.openYear(ctx, actor.ClubID, f.YearID); err != nil {
		return err
	}
	if err := s.store.DeleteMemberFee(ctx, actor.ClubID, id); err != nil {
		return err
	}
	s.auditor.Record(ctx, actor, "fee.delete", fmt.Sprintf("fee:%d", id), "")
	return nil
}

// MemberFeeStatus is one member's fee standing for the year.
type MemberFeeStatus struct {
	MemberID string     `json:"member_id"`
	Total    core.Money `json:"total"`
}

// FeeSummary lists each known member's cumulative fees, members who
// have paid nothing first. The member roster is derived from the
// year's subscriptions merged with the fee book itself.
func (s *RecordService) FeeSummary(ctx context.Context, actor core.Actor, yearID int64) ([]MemberFeeStatus, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	totals, err := s.store.FeeTotalsByMember(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubscriptions(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}

	members := make(map[string]int64, len(totals))
	for _, sub := range subs {
		members[sub.MemberID] = 0
	}
	for memberID, paise := range totals {
		members[memberID] = paise
	}

	summary := make([]MemberFeeStatus, 0, len(members))
	for memberID, paise := range members {
		summary = append(summary, MemberFeeStatus{
			MemberID: memberID,
			Total:    core.Money{Paise: paise},
		})
	}
	sort.Slice(summary, func(i, j int) bool {
		if (summary[i].Total.Paise == 0) != (summary[j].Total.Paise == 0) {
			return summary[i].Total.Paise == 0
		}
		return summary[i].MemberID < summary[j].MemberID
	})
	return summary, nil
}
