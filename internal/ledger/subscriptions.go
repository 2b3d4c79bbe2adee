package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"clubledger/internal/core"
	"clubledger/internal/log"
)

// toggleRetries bounds the optimistic-concurrency retry loop on
// installment toggles.
const toggleRetries = 3

// SubscriptionService manages member subscriptions: lazy creation from
// the year's rules, installment payment toggles and schedule
// migration.
type SubscriptionService struct {
	store   Store
	auditor *Auditor
	logger  *log.Logger
}

func NewSubscriptionService(store Store, auditor *Auditor, logger *log.Logger) *SubscriptionService {
	return &SubscriptionService{
		store:   store,
		auditor: auditor,
		logger:  logger.WithComponent(log.ComponentLedger),
	}
}

// GetOrCreate returns the member's subscription for a year, creating
// it from the year's current rules on first access. Years with a
// "none" frequency do not take subscriptions.
func (s *SubscriptionService) GetOrCreate(ctx context.Context, actor core.Actor, yearID int64, memberID string) (*core.Subscription, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	year, err := s.store.YearByID(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}

	sub, err := s.store.SubscriptionFor(ctx, actor.ClubID, yearID, memberID)
	if err == nil {
		return s.heal(ctx, sub, year)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	if year.Frequency == core.None {
		return nil, fmt.Errorf("year %d: %w", yearID, core.ErrDisabled)
	}

	now := time.Now().UTC()
	sub = &core.Subscription{
		ClubID:       actor.ClubID,
		YearID:       yearID,
		MemberID:     memberID,
		Installments: core.NewSchedule(core.RulesOf(year)),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sub.TotalPaid, sub.TotalDue = core.SumInstallments(sub.Installments)

	if err := s.store.InsertSubscription(ctx, sub); err != nil {
		// Another request created it first; read theirs back.
		if errors.Is(err, core.ErrConflict) {
			return s.store.SubscriptionFor(ctx, actor.ClubID, yearID, memberID)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription created",
		log.FieldClub, actor.ClubID,
		log.FieldYear, yearID,
		log.FieldMember, memberID,
		log.FieldOperation, log.OpCreate)
	return sub, nil
}

// heal repairs a schedule whose unpaid amounts drifted from the year's
// current per-installment amount, which can happen when a rule change
// raced a read. Paid slots must keep their recorded amounts here no
// matter how the reconciler's freeze-paid-amounts flag is set: an
// amount-only rule change already rewrote paid slots at reconcile time
// when the flag is off, so healing only ever touches unpaid slots.
func (s *SubscriptionService) heal(ctx context.Context, sub *core.Subscription, year *core.Year) (*core.Subscription, error) {
	changed := false
	for i := range sub.Installments {
		ins := &sub.Installments[i]
		if !ins.IsPaid && ins.AmountExpected != year.AmountPerInstallment {
			ins.AmountExpected = year.AmountPerInstallment
			changed = true
		}
	}
	if !changed {
		return sub, nil
	}
	sub.TotalPaid, sub.TotalDue = core.SumInstallments(sub.Installments)
	sub.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return s.store.SubscriptionByID(ctx, sub.ClubID, sub.ID)
		}
		return nil, err
	}
	return sub, nil
}

// List returns every subscription of a year with its installments.
func (s *SubscriptionService) List(ctx context.Context, actor core.Actor, yearID int64) ([]core.Subscription, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListSubscriptions(ctx, actor.ClubID, yearID)
}

// ToggleInstallment flips one installment between paid and unpaid.
// Only admins and collectors may do this, and only inside an open
// year. Concurrent toggles are resolved by optimistic retry; the same
// toggle applied twice restores the original state.
func (s *SubscriptionService) ToggleInstallment(ctx context.Context, actor core.Actor, yearID int64, memberID string, number int) (*core.Subscription, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanCollect() {
		return nil, fmt.Errorf("toggle installment: %w", core.ErrForbidden)
	}

	year, err := s.store.YearByID(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}
	if year.IsClosed {
		return nil, fmt.Errorf("year %d: %w", yearID, core.ErrAlreadyClosed)
	}
	if year.Frequency == core.None {
		return nil, fmt.Errorf("year %d: %w", yearID, core.ErrDisabled)
	}

	var lastErr error
	for attempt := 0; attempt < toggleRetries; attempt++ {
		sub, err := s.GetOrCreate(ctx, actor, yearID, memberID)
		if err != nil {
			return nil, err
		}

		ins, err := sub.Toggle(number, actor.UserID, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		sub.UpdatedAt = time.Now().UTC()

		if err := s.store.UpdateSubscription(ctx, sub); err != nil {
			if errors.Is(err, core.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		state := "unpaid"
		if ins.IsPaid {
			state = "paid"
		}
		s.logger.InfoContext(ctx, "installment toggled",
			log.FieldClub, actor.ClubID,
			log.FieldYear, yearID,
			log.FieldMember, memberID,
			log.FieldInstallment, number,
			log.FieldAmountPaise, ins.AmountExpected.Paise,
			"state", state,
			log.FieldOperation, log.OpToggle)
		s.auditor.Record(ctx, actor, "installment."+state,
			fmt.Sprintf("subscription:%d#%d", sub.ID, number),
			ins.AmountExpected.String())
		return sub, nil
	}
	return nil, fmt.Errorf("toggle installment after %d attempts: %w", toggleRetries, lastErr)
}

// Migrate rebuilds every subscription of a year from the year's
// current rules, reapplying each member's paid credit from the first
// installment forward. Total paid credit is conserved exactly per
// member.
func (s *SubscriptionService) Migrate(ctx context.Context, actor core.Actor, yearID int64) (int, error) {
	if err := actor.Validate(); err != nil {
		return 0, err
	}
	if !actor.IsAdmin() {
		return 0, fmt.Errorf("migrate subscriptions: %w", core.ErrForbidden)
	}

	year, err := s.store.YearByID(ctx, actor.ClubID, yearID)
	if err != nil {
		return 0, err
	}
	if year.IsClosed {
		return 0, fmt.Errorf("year %d: %w", yearID, core.ErrAlreadyClosed)
	}

	subs, err := s.store.ListSubscriptions(ctx, actor.ClubID, yearID)
	if err != nil {
		return 0, err
	}

	rules := core.RulesOf(year)
	now := time.Now().UTC()
	migrated := 0
	for i := range subs {
		if err := core.Reallocate(&subs[i], rules, now); err != nil {
			return migrated, err
		}
		subs[i].UpdatedAt = now
		if err := s.store.UpdateSubscription(ctx, &subs[i]); err != nil {
			return migrated, err
		}
		migrated++
	}

	s.logger.InfoContext(ctx, "subscriptions migrated",
		log.FieldClub, actor.ClubID,
		log.FieldYear, yearID,
		"migrated", migrated,
		log.FieldOperation, log.OpReconcile)
	s.auditor.Record(ctx, actor, "subscription.migrate",
		fmt.Sprintf("year:%d", yearID), fmt.Sprintf("%d subscriptions", migrated))
	return migrated, nil
}

// PaidInstallment is one paid slot in the year-wide payments report.
type PaidInstallment struct {
	MemberID    string     `json:"member_id"`
	Number      int        `json:"number"`
	Amount      core.Money `json:"amount"`
	PaidDate    *time.Time `json:"paid_date,omitempty"`
	CollectedBy string     `json:"collected_by,omitempty"`
}

// PaidInstallments flattens every paid installment of a year into one
// list, newest payment first.
func (s *SubscriptionService) PaidInstallments(ctx context.Context, actor core.Actor, yearID int64) ([]PaidInstallment, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubscriptions(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}

	var payments []PaidInstallment
	for _, sub := range subs {
		for _, ins := range sub.Installments {
			if !ins.IsPaid {
				continue
			}
			payments = append(payments, PaidInstallment{
				MemberID:    sub.MemberID,
				Number:      ins.Number,
				Amount:      ins.AmountExpected,
				PaidDate:    ins.PaidDate,
				CollectedBy: ins.CollectedBy,
			})
		}
	}

	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i].PaidDate, payments[j].PaidDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return payments, nil
}
