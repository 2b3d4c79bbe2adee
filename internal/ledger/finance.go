package ledger

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"clubledger/internal/core"
	"clubledger/internal/log"
)

// ArchiveExporter pushes a closed year's report to an external
// destination, such as a spreadsheet.
type ArchiveExporter interface {
	ExportYear(ctx context.Context, details *ArchiveDetails) error
}

// FinanceService produces the read-only reports: the live summary,
// the archive of closed years and archive export.
type FinanceService struct {
	store    Store
	exporter ArchiveExporter
	auditor  *Auditor
	logger   *log.Logger
}

func NewFinanceService(store Store, exporter ArchiveExporter, auditor *Auditor, logger *log.Logger) *FinanceService {
	return &FinanceService{
		store:    store,
		exporter: exporter,
		auditor:  auditor,
		logger:   logger.WithComponent(log.ComponentLedger),
	}
}

// FinanceSummary is the full financial picture of one year. Every
// figure is derived from stored transactions at read time.
type FinanceSummary struct {
	Year              *core.Year `json:"year"`
	Members           int        `json:"members"`
	SubscriptionsPaid core.Money `json:"subscriptions_paid"`
	SubscriptionsDue  core.Money `json:"subscriptions_due"`
	MemberFees        core.Money `json:"member_fees"`
	Donations         core.Money `json:"donations"`
	ApprovedExpenses  core.Money `json:"approved_expenses"`
	PendingExpenses   core.Money `json:"pending_expenses"`
	Balance           core.Money `json:"balance"`
}

// Summary aggregates a year's books into one report. The independent
// reads run concurrently.
func (s *FinanceService) Summary(ctx context.Context, actor core.Actor, yearID int64) (*FinanceSummary, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	year, err := s.store.YearByID(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}

	summary := &FinanceSummary{Year: year}
	var totals core.YearTotals

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		subs, err := s.store.ListSubscriptions(gctx, actor.ClubID, yearID)
		if err != nil {
			return err
		}
		summary.Members = len(subs)
		for _, sub := range subs {
			summary.SubscriptionsPaid.Paise += sub.TotalPaid.Paise
			summary.SubscriptionsDue.Paise += sub.TotalDue.Paise
		}
		totals.SubscriptionsPaid = summary.SubscriptionsPaid.Paise
		return nil
	})
	g.Go(func() error {
		paise, err := s.store.SumMemberFees(gctx, actor.ClubID, yearID)
		if err != nil {
			return err
		}
		summary.MemberFees = core.Money{Paise: paise}
		totals.MemberFees = paise
		return nil
	})
	g.Go(func() error {
		paise, err := s.store.SumDonations(gctx, actor.ClubID, yearID)
		if err != nil {
			return err
		}
		summary.Donations = core.Money{Paise: paise}
		totals.Donations = paise
		return nil
	})
	g.Go(func() error {
		paise, err := s.store.SumApprovedExpenses(gctx, actor.ClubID, yearID)
		if err != nil {
			return err
		}
		summary.ApprovedExpenses = core.Money{Paise: paise}
		totals.ApprovedExpenses = paise
		return nil
	})
	g.Go(func() error {
		pending, err := s.store.ListExpenses(gctx, actor.ClubID, yearID, core.ExpensePending)
		if err != nil {
			return err
		}
		for _, e := range pending {
			summary.PendingExpenses.Paise += e.Amount.Paise
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary.Balance = core.ComputeBalance(year.OpeningBalance, totals)
	return summary, nil
}

// ArchiveEntry is one closed year in the archive listing.
type ArchiveEntry struct {
	Year           *core.Year `json:"year"`
	ClosingBalance core.Money `json:"closing_balance"`
}

// Archive lists the club's closed years, newest first. Closed years
// report their frozen closing balance, never a recomputation.
func (s *FinanceService) Archive(ctx context.Context, actor core.Actor) ([]ArchiveEntry, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	years, err := s.store.ListClosedYears(ctx, actor.ClubID)
	if err != nil {
		return nil, err
	}

	entries := make([]ArchiveEntry, 0, len(years))
	for i := range years {
		entries = append(entries, ArchiveEntry{
			Year:           &years[i],
			ClosingBalance: years[i].ClosingBalance,
		})
	}
	return entries, nil
}

// ArchiveDetails is the full record of one closed year.
type ArchiveDetails struct {
	Summary       *FinanceSummary     `json:"summary"`
	Subscriptions []core.Subscription `json:"subscriptions"`
	Expenses      []core.Expense      `json:"expenses"`
	Donations     []core.Donation     `json:"donations"`
	MemberFees    []core.MemberFee    `json:"member_fees"`
}

// ArchiveDetails assembles everything recorded in a closed year.
func (s *FinanceService) ArchiveDetails(ctx context.Context, actor core.Actor, yearID int64) (*ArchiveDetails, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	year, err := s.store.YearByID(ctx, actor.ClubID, yearID)
	if err != nil {
		return nil, err
	}
	if !year.IsClosed {
		return nil, fmt.Errorf("year %d is not archived: %w", yearID, core.ErrNotFound)
	}

	details := &ArchiveDetails{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		details.Summary, err = s.Summary(gctx, actor, yearID)
		return err
	})
	g.Go(func() error {
		var err error
		details.Subscriptions, err = s.store.ListSubscriptions(gctx, actor.ClubID, yearID)
		return err
	})
	g.Go(func() error {
		var err error
		details.Expenses, err = s.store.ListExpenses(gctx, actor.ClubID, yearID, "")
		return err
	})
	g.Go(func() error {
		var err error
		details.Donations, err = s.store.ListDonations(gctx, actor.ClubID, yearID)
		return err
	})
	g.Go(func() error {
		var err error
		details.MemberFees, err = s.store.ListMemberFees(gctx, actor.ClubID, yearID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

// ExportArchive pushes a closed year's details to the configured
// exporter.
func (s *FinanceService) ExportArchive(ctx context.Context, actor core.Actor, yearID int64) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("export archive: %w", core.ErrForbidden)
	}
	if s.exporter == nil {
		return fmt.Errorf("no exporter configured: %w", core.ErrDisabled)
	}

	details, err := s.ArchiveDetails(ctx, actor, yearID)
	if err != nil {
		return err
	}
	if err := s.exporter.ExportYear(ctx, details); err != nil {
		return fmt.Errorf("export year %d: %w", yearID, err)
	}

	s.logger.InfoContext(ctx, "archive exported",
		log.FieldClub, actor.ClubID,
		log.FieldYear, yearID,
		log.FieldOperation, log.OpExport)
	s.auditor.Record(ctx, actor, "archive.export", fmt.Sprintf("year:%d", yearID), "")
	return nil
}

// AuditTrail returns the club's recent audit entries.
func (s *FinanceService) AuditTrail(ctx context.Context, actor core.Actor, limit int) ([]core.AuditEvent, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("audit trail: %w", core.ErrForbidden)
	}
	return s.store.ListAuditEvents(ctx, actor.ClubID, limit)
}
