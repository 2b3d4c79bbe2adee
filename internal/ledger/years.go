package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"clubledger/internal/core"
	"clubledger/internal/log"
)

// YearService owns the year lifecycle: creation with carry-forward,
// rule updates with schedule reconciliation, closing and balance
// reporting.
type YearService struct {
	store         Store
	auditor       *Auditor
	logger        *log.Logger
	defaultWeekly int
	freezePaid    bool
}

func NewYearService(store Store, auditor *Auditor, logger *log.Logger, defaultWeekly int, freezePaid bool) *YearService {
	if defaultWeekly <= 0 {
		defaultWeekly = 52
	}
	return &YearService{
		store:         store,
		auditor:       auditor,
		logger:        logger.WithComponent(log.ComponentLedger),
		defaultWeekly: defaultWeekly,
		freezePaid:    freezePaid,
	}
}

// CreateYearInput carries the fields of a new financial year. A nil
// OpeningBalance (or an explicit zero) asks for carry-forward from the
// most recent closed year. TotalInstallments zero picks the frequency
// default.
type CreateYearInput struct {
	Name                 string
	StartDate            time.Time
	EndDate              time.Time
	Frequency            core.Frequency
	TotalInstallments    int
	AmountPerInstallment core.Money
	OpeningBalance       *core.Money
}

func (in *CreateYearInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.Join(core.ErrValidation, errors.New("year name is required"))
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.Join(core.ErrValidation, errors.New("start and end dates are required"))
	}
	if !in.EndDate.After(in.StartDate) {
		return errors.Join(core.ErrValidation, errors.New("end date must be after start date"))
	}
	if in.Frequency == "" {
		in.Frequency = core.Weekly
	}
	if !in.Frequency.IsValid() {
		return errors.Join(core.ErrValidation, fmt.Errorf("unknown frequency %q", in.Frequency))
	}
	if in.TotalInstallments < 0 {
		return errors.Join(core.ErrValidation, errors.New("total installments must not be negative"))
	}
	if in.Frequency != core.None && in.AmountPerInstallment.Paise <= 0 {
		return core.ErrInvalidAmount
	}
	return nil
}

// resolveInstallments picks the schedule length: the explicit value
// when given, otherwise 12 for monthly, the configured weekly default
// for weekly, and always 0 for none.
func (s *YearService) resolveInstallments(freq core.Frequency, requested int) int {
	if freq == core.None {
		return 0
	}
	if requested > 0 {
		return requested
	}
	if freq == core.Monthly {
		return 12
	}
	return s.defaultWeekly
}

func (s *YearService) buildYear(ctx context.Context, actor core.Actor, in CreateYearInput) (*core.Year, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	opening := core.Money{}
	switch {
	case in.OpeningBalance != nil && !in.OpeningBalance.IsZero():
		opening = *in.OpeningBalance
	default:
		// A zero opening balance means the field was left at its
		// default, so prefer carrying the last closed year forward.
		prev, err := s.store.LatestYear(ctx, actor.ClubID)
		if err == nil && prev.IsClosed {
			opening = prev.ClosingBalance
		} else if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}

	amount := in.AmountPerInstallment
	if in.Frequency == core.None {
		amount = core.Money{}
	}

	return &core.Year{
		ClubID:               actor.ClubID,
		Name:                 in.Name,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		Frequency:            in.Frequency,
		TotalInstallments:    s.resolveInstallments(in.Frequency, in.TotalInstallments),
		AmountPerInstallment: amount,
		OpeningBalance:       opening,
		IsActive:             true,
		CreatedBy:            actor.UserID,
		CreatedAt:            time.Now().UTC(),
	}, nil
}

// CreateYear opens a new active year for the actor's club. A still
// active prior year is closed first, in the same transaction, and its
// final balance becomes the new year's opening balance unless an
// explicit non-zero opening balance is given.
func (s *YearService) CreateYear(ctx context.Context, actor core.Actor, in CreateYearInput) (*core.Year, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("create year: %w", core.ErrForbidden)
	}

	active, err := s.store.ActiveYear(ctx, actor.ClubID)
	if err == nil {
		return s.rotateFrom(ctx, actor, active, in)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	year, err := s.buildYear(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertYear(ctx, year); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "year created",
		log.FieldClub, year.ClubID,
		log.FieldYear, year.ID,
		log.FieldOperation, log.OpCreate)
	s.auditor.Record(ctx, actor, "year.create", fmt.Sprintf("year:%d", year.ID), year.Name)
	return year, nil
}

// ActiveYear returns the club's active year.
func (s *YearService) ActiveYear(ctx context.Context, actor core.Actor) (*core.Year, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.store.ActiveYear(ctx, actor.ClubID)
}

// Year returns one year by ID within the actor's club.
func (s *YearService) Year(ctx context.Context, actor core.Actor, id int64) (*core.Year, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.store.YearByID(ctx, actor.ClubID, id)
}

// ListYears returns every year of the club, newest first.
func (s *YearService) ListYears(ctx context.Context, actor core.Actor) ([]core.Year, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListYears(ctx, actor.ClubID)
}

// UpdateYearInput carries mutable year fields. Nil pointers leave the
// field untouched.
type UpdateYearInput struct {
	Name                 *string
	StartDate            *time.Time
	EndDate              *time.Time
	Frequency            *core.Frequency
	TotalInstallments    *int
	AmountPerInstallment *core.Money
}

// UpdateYear changes a year's descriptive fields and schedule rules.
// A rule change is validated against every subscription's paid history
// before any schedule is touched; a conflict rejects the whole update
// and leaves both the year and all subscriptions unchanged.
func (s *YearService) UpdateYear(ctx context.Context, actor core.Actor, id int64, in UpdateYearInput) (*core.Year, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("update year: %w", core.ErrForbidden)
	}

	year, err := s.store.YearByID(ctx, actor.ClubID, id)
	if err != nil {
		return nil, err
	}
	if year.IsClosed {
		return nil, fmt.Errorf("update year %d: %w", id, core.ErrAlreadyClosed)
	}

	oldRules := core.RulesOf(year)

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, errors.Join(core.ErrValidation, errors.New("year name is required"))
		}
		year.Name = *in.Name
	}
	if in.StartDate != nil {
		year.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		year.EndDate = *in.EndDate
	}
	if !year.EndDate.After(year.StartDate) {
		return nil, errors.Join(core.ErrValidation, errors.New("end date must be after start date"))
	}
	if in.Frequency != nil {
		if !in.Frequency.IsValid() {
			return nil, errors.Join(core.ErrValidation, fmt.Errorf("unknown frequency %q", *in.Frequency))
		}
		year.Frequency = *in.Frequency
	}
	if in.TotalInstallments != nil {
		if *in.TotalInstallments < 0 {
			return nil, errors.Join(core.ErrValidation, errors.New("total installments must not be negative"))
		}
		year.TotalInstallments = *in.TotalInstallments
	}
	if in.AmountPerInstallment != nil {
		if year.Frequency != core.None && in.AmountPerInstallment.Paise <= 0 {
			return nil, core.ErrInvalidAmount
		}
		year.AmountPerInstallment = *in.AmountPerInstallment
	}
	if year.Frequency == core.None {
		year.TotalInstallments = 0
		year.AmountPerInstallment = core.Money{}
	} else if in.Frequency != nil && oldRules.Frequency != year.Frequency && in.TotalInstallments == nil {
		year.TotalInstallments = s.resolveInstallments(year.Frequency, 0)
	}

	newRules := core.RulesOf(year)
	if !oldRules.Equal(newRules) {
		if err := s.reconcileSchedules(ctx, actor.ClubID, id, oldRules, newRules); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateYear(ctx, year); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "year updated",
		log.FieldClub, year.ClubID,
		log.FieldYear, year.ID,
		log.FieldOperation, log.OpUpdate)
	s.auditor.Record(ctx, actor, "year.update", fmt.Sprintf("year:%d", year.ID), year.Name)
	return year, nil
}

// reconcileSchedules rewrites every subscription of the year for the
// new rules. All subscriptions are checked before any is written, so
// one member's conflicting payment history blocks the change for
// everyone with nothing mutated.
func (s *YearService) reconcileSchedules(ctx context.Context, clubID string, yearID int64, old, next core.ScheduleRules) error {
	subs, err := s.store.ListSubscriptions(ctx, clubID, yearID)
	if err != nil {
		return err
	}
	for i := range subs {
		if err := core.CheckRuleChange(&subs[i], old, next); err != nil {
			return err
		}
	}
	for i := range subs {
		core.ApplyRuleChange(&subs[i], old, next, s.freezePaid)
		subs[i].UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateSubscription(ctx, &subs[i]); err != nil {
			return err
		}
	}
	s.logger.InfoContext(ctx, "schedules reconciled",
		log.FieldClub, clubID,
		log.FieldYear, yearID,
		log.FieldOperation, log.OpReconcile,
		"subscriptions", len(subs))
	return nil
}

// CloseYear freezes a year: its closing balance is computed once, the
// year is deactivated, and it can never be reopened. Closing an
// already closed year fails with core.ErrAlreadyClosed.
func (s *YearService) CloseYear(ctx context.Context, actor core.Actor, id int64) (*core.Year, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("close year: %w", core.ErrForbidden)
	}

	year, err := s.store.YearByID(ctx, actor.ClubID, id)
	if err != nil {
		return nil, err
	}
	if year.IsClosed {
		return nil, fmt.Errorf("close year %d: %w", id, core.ErrAlreadyClosed)
	}

	report, err := s.Balance(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.store.CloseYear(ctx, actor.ClubID, id, report.Balance.Paise, now); err != nil {
		return nil, err
	}
	year.IsClosed = true
	year.IsActive = false
	year.ClosingBalance = report.Balance
	year.ClosedAt = &now

	s.logger.InfoContext(ctx, "year closed",
		log.FieldClub, year.ClubID,
		log.FieldYear, year.ID,
		log.FieldBalancePaise, report.Balance.Paise,
		log.FieldOperation, log.OpClose)
	s.auditor.Record(ctx, actor, "year.close", fmt.Sprintf("year:%d", year.ID), report.Balance.String())
	return year, nil
}

// RotateYear closes the given year and opens its successor in one
// atomic step. The successor's opening balance defaults to the closed
// year's final balance.
func (s *YearService) RotateYear(ctx context.Context, actor core.Actor, id int64, in CreateYearInput) (*core.Year, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("rotate year: %w", core.ErrForbidden)
	}

	prev, err := s.store.YearByID(ctx, actor.ClubID, id)
	if err != nil {
		return nil, err
	}
	if prev.IsClosed {
		return nil, fmt.Errorf("rotate year %d: %w", id, core.ErrAlreadyClosed)
	}
	return s.rotateFrom(ctx, actor, prev, in)
}

// rotateFrom closes prev and opens its successor in one atomic swap.
// The successor's opening balance defaults to prev's final balance.
func (s *YearService) rotateFrom(ctx context.Context, actor core.Actor, prev *core.Year, in CreateYearInput) (*core.Year, error) {
	report, err := s.Balance(ctx, actor, prev.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	prev.IsClosed = true
	prev.IsActive = false
	prev.ClosingBalance = report.Balance
	prev.ClosedAt = &now

	if in.OpeningBalance == nil || in.OpeningBalance.IsZero() {
		in.OpeningBalance = &report.Balance
	}
	next, err := s.buildYear(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	next.OpeningBalance = *in.OpeningBalance

	if err := s.store.SwapActiveYear(ctx, prev, next); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "year rotated",
		log.FieldClub, actor.ClubID,
		"closed_year_id", prev.ID,
		"new_year_id", next.ID,
		log.FieldOperation, log.OpClose)
	s.auditor.Record(ctx, actor, "year.rotate",
		fmt.Sprintf("year:%d->year:%d", prev.ID, next.ID), report.Balance.String())
	return next, nil
}

// BalanceTotals is the per-book breakdown behind a balance figure.
type BalanceTotals struct {
	SubscriptionsPaid core.Money `json:"subscriptions_paid"`
	MemberFees        core.Money `json:"member_fees"`
	Donations         core.Money `json:"donations"`
	ApprovedExpenses  core.Money `json:"approved_expenses"`
}

// BalanceReport is a year's balance with the totals it was derived from.
type BalanceReport struct {
	Year    *core.Year    `json:"year"`
	Totals  BalanceTotals `json:"totals"`
	Balance core.Money    `json:"balance"`
}

// Balance computes a year's current balance from its stored
// transactions. The four sums run concurrently.
func (s *YearService) Balance(ctx context.Context, actor core.Actor, yearID int64) (*BalanceReport, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	year, err := s.store.YearByID(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}

	var totals core.YearTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals.SubscriptionsPaid, err = s.store.SumSubscriptionsPaid(gctx, actor.ClubID, yearID)
		return err
	})
	g.Go(func() error {
		var err error
		totals.MemberFees, err = s.store.SumMemberFees(gctx, actor.ClubID, yearID)
		return err
	})
	g.Go(func() error {
		var err error
		totals.Donations, err = s.store.SumDonations(gctx, actor.ClubID, yearID)
		return err
	})
	g.Go(func() error {
		var err error
		totals.ApprovedExpenses, err = s.store.SumApprovedExpenses(gctx, actor.ClubID, yearID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BalanceReport{
		Year: year,
		Totals: BalanceTotals{
			SubscriptionsPaid: core.Money{Paise: totals.SubscriptionsPaid},
			MemberFees:        core.Money{Paise: totals.MemberFees},
			Donations:         core.Money{Paise: totals.Donations},
			ApprovedExpenses:  core.Money{Paise: totals.ApprovedExpenses},
		},
		Balance: core.ComputeBalance(year.OpeningBalance, totals),
	}, nil
}
