package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"clubledger/internal/core"
	"clubledger/internal/log"
	"clubledger/internal/storage/memory"
)

func testLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

func adminActor() core.Actor {
	return core.Actor{UserID: "admin-1", ClubID: "club-1", Role: core.RoleAdmin}
}

func collectorActor() core.Actor {
	return core.Actor{UserID: "collector-1", ClubID: "club-1", Role: core.RoleCollector}
}

func memberActor() core.Actor {
	return core.Actor{UserID: "member-1", ClubID: "club-1", Role: core.RoleMember}
}

func newTestServices(t *testing.T) (*YearService, *SubscriptionService, *RecordService, *FinanceService, *memory.Store) {
	t.Helper()
	store := memory.New()
	logger := testLogger()
	auditor := NewAuditor(nil, logger)
	years := NewYearService(store, auditor, logger, 52, false)
	subs := NewSubscriptionService(store, auditor, logger)
	records := NewRecordService(store, auditor, logger)
	finance := NewFinanceService(store, nil, auditor, logger)
	return years, subs, records, finance, store
}

func weeklyInput(name string) CreateYearInput {
	return CreateYearInput{
		Name:                 name,
		StartDate:            time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:              time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		Frequency:            core.Weekly,
		TotalInstallments:    52,
		AmountPerInstallment: core.Money{Paise: 5000},
	}
}

func TestCreateYear_RequiresAdmin(t *testing.T) {
	years, _, _, _, _ := newTestServices(t)

	_, err := years.CreateYear(context.Background(), collectorActor(), weeklyInput("2026-27"))
	if !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("CreateYear() error = %v, want ErrForbidden", err)
	}
}

func TestCreateYear_ClosesActivePriorYear(t *testing.T) {
	years, _, records, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	in := weeklyInput("2026-27")
	opening := core.Money{Paise: 10000}
	in.OpeningBalance = &opening
	first, err := years.CreateYear(ctx, admin, in)
	if err != nil {
		t.Fatalf("first CreateYear() error = %v", err)
	}
	if _, err := records.RecordDonation(ctx, admin, first.ID, "Anonymous", core.Money{Paise: 5000}); err != nil {
		t.Fatalf("RecordDonation() error = %v", err)
	}

	next, err := years.CreateYear(ctx, admin, weeklyInput("2027-28"))
	if err != nil {
		t.Fatalf("second CreateYear() error = %v", err)
	}
	if !next.IsActive {
		t.Error("new year should be active")
	}
	if next.OpeningBalance.Paise != 15000 {
		t.Errorf("OpeningBalance = %d paise, want carried-forward 15000", next.OpeningBalance.Paise)
	}

	prev, err := years.Year(ctx, admin, first.ID)
	if err != nil {
		t.Fatalf("Year() error = %v", err)
	}
	if !prev.IsClosed || prev.IsActive {
		t.Errorf("prior year state = closed:%v active:%v, want closed and inactive", prev.IsClosed, prev.IsActive)
	}
	if prev.ClosingBalance.Paise != 15000 {
		t.Errorf("prior ClosingBalance = %d paise, want 15000", prev.ClosingBalance.Paise)
	}
}

func TestCreateYear_FrequencyDefaults(t *testing.T) {
	tests := []struct {
		name         string
		frequency    core.Frequency
		requested    int
		installments int
	}{
		{"weekly default", core.Weekly, 0, 52},
		{"weekly explicit", core.Weekly, 40, 40},
		{"monthly default", core.Monthly, 0, 12},
		{"none forces zero", core.None, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			years, _, _, _, _ := newTestServices(t)
			in := weeklyInput("year")
			in.Frequency = tt.frequency
			in.TotalInstallments = tt.requested

			year, err := years.CreateYear(context.Background(), adminActor(), in)
			if err != nil {
				t.Fatalf("CreateYear() error = %v", err)
			}
			if year.TotalInstallments != tt.installments {
				t.Errorf("TotalInstallments = %d, want %d", year.TotalInstallments, tt.installments)
			}
		})
	}
}

func TestCloseYear_FreezesBalanceAndCarriesForward(t *testing.T) {
	years, _, records, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	in := weeklyInput("2026-27")
	opening := core.Money{Paise: 10000}
	in.OpeningBalance = &opening
	year, err := years.CreateYear(ctx, admin, in)
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	if _, err := records.RecordDonation(ctx, admin, year.ID, "Anonymous", core.Money{Paise: 5000}); err != nil {
		t.Fatalf("RecordDonation() error = %v", err)
	}

	closed, err := years.CloseYear(ctx, admin, year.ID)
	if err != nil {
		t.Fatalf("CloseYear() error = %v", err)
	}
	if closed.ClosingBalance.Paise != 15000 {
		t.Errorf("ClosingBalance = %d paise, want 15000", closed.ClosingBalance.Paise)
	}
	if !closed.IsClosed || closed.IsActive {
		t.Errorf("closed year state = closed:%v active:%v, want closed and inactive", closed.IsClosed, closed.IsActive)
	}

	// Re-closing is rejected.
	if _, err := years.CloseYear(ctx, admin, year.ID); !errors.Is(err, core.ErrAlreadyClosed) {
		t.Fatalf("second CloseYear() error = %v, want ErrAlreadyClosed", err)
	}

	// A new year with no explicit opening balance carries the closing
	// balance forward.
	next, err := years.CreateYear(ctx, admin, weeklyInput("2027-28"))
	if err != nil {
		t.Fatalf("CreateYear() after close error = %v", err)
	}
	if next.OpeningBalance.Paise != 15000 {
		t.Errorf("carried-forward OpeningBalance = %d paise, want 15000", next.OpeningBalance.Paise)
	}
}

func TestCreateYear_ExplicitZeroPrefersCarryForward(t *testing.T) {
	years, _, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	in := weeklyInput("2026-27")
	opening := core.Money{Paise: 7700}
	in.OpeningBalance = &opening
	year, err := years.CreateYear(ctx, admin, in)
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}
	if _, err := years.CloseYear(ctx, admin, year.ID); err != nil {
		t.Fatalf("CloseYear() error = %v", err)
	}

	next := weeklyInput("2027-28")
	zero := core.Money{}
	next.OpeningBalance = &zero
	created, err := years.CreateYear(ctx, admin, next)
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}
	if created.OpeningBalance.Paise != 7700 {
		t.Errorf("OpeningBalance = %d paise, want carry-forward 7700", created.OpeningBalance.Paise)
	}
}

func TestRotateYear_AtomicSwap(t *testing.T) {
	years, _, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	next, err := years.RotateYear(ctx, admin, year.ID, weeklyInput("2027-28"))
	if err != nil {
		t.Fatalf("RotateYear() error = %v", err)
	}
	if !next.IsActive {
		t.Error("rotated-in year should be active")
	}

	prev, err := years.Year(ctx, admin, year.ID)
	if err != nil {
		t.Fatalf("Year() error = %v", err)
	}
	if !prev.IsClosed || prev.IsActive {
		t.Errorf("rotated-out year state = closed:%v active:%v", prev.IsClosed, prev.IsActive)
	}

	active, err := years.ActiveYear(ctx, admin)
	if err != nil {
		t.Fatalf("ActiveYear() error = %v", err)
	}
	if active.ID != next.ID {
		t.Errorf("active year = %d, want %d", active.ID, next.ID)
	}
}

func TestUpdateYear_FrequencyLockWithPayments(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}
	if _, err := subs.ToggleInstallment(ctx, admin, year.ID, "member-1", 1); err != nil {
		t.Fatalf("ToggleInstallment() error = %v", err)
	}

	monthly := core.Monthly
	_, err = years.UpdateYear(ctx, admin, year.ID, UpdateYearInput{Frequency: &monthly})
	if !errors.Is(err, core.ErrConflictingPayments) {
		t.Fatalf("UpdateYear() error = %v, want ErrConflictingPayments", err)
	}

	// The failed change left the subscription untouched.
	sub, err := subs.GetOrCreate(ctx, admin, year.ID, "member-1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if len(sub.Installments) != 52 {
		t.Errorf("installments = %d, want 52", len(sub.Installments))
	}
	if sub.PaidCount() != 1 {
		t.Errorf("paid count = %d, want 1", sub.PaidCount())
	}
}

func TestUpdateYear_ExtensionAppendsAtNewAmount(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}
	if _, err := subs.GetOrCreate(ctx, admin, year.ID, "member-1"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	total := 60
	amount := core.Money{Paise: 6000}
	if _, err := years.UpdateYear(ctx, admin, year.ID, UpdateYearInput{
		TotalInstallments:    &total,
		AmountPerInstallment: &amount,
	}); err != nil {
		t.Fatalf("UpdateYear() error = %v", err)
	}

	sub, err := subs.GetOrCreate(ctx, admin, year.ID, "member-1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if len(sub.Installments) != 60 {
		t.Fatalf("installments = %d, want 60", len(sub.Installments))
	}
	if sub.Installments[59].Number != 60 {
		t.Errorf("last installment number = %d, want 60", sub.Installments[59].Number)
	}
	for _, ins := range sub.Installments {
		if ins.AmountExpected.Paise != 6000 {
			t.Fatalf("installment #%d amount = %d paise, want 6000", ins.Number, ins.AmountExpected.Paise)
		}
	}
	if sub.TotalDue.Paise != 60*6000 {
		t.Errorf("TotalDue = %d paise, want %d", sub.TotalDue.Paise, 60*6000)
	}
}

func TestBalance_SumsAllBooks(t *testing.T) {
	years, subs, records, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	in := weeklyInput("2026-27")
	opening := core.Money{Paise: 100_00}
	in.OpeningBalance = &opening
	year, err := years.CreateYear(ctx, admin, in)
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	// 50.00 subscription payment.
	if _, err := subs.ToggleInstallment(ctx, admin, year.ID, "member-1", 1); err != nil {
		t.Fatalf("ToggleInstallment() error = %v", err)
	}
	// 30.00 donation.
	if _, err := records.RecordDonation(ctx, admin, year.ID, "Friends of the club", core.Money{Paise: 30_00}); err != nil {
		t.Fatalf("RecordDonation() error = %v", err)
	}
	// 20.00 member fee.
	if _, err := records.RecordMemberFee(ctx, admin, year.ID, "member-2", core.Money{Paise: 20_00}, ""); err != nil {
		t.Fatalf("RecordMemberFee() error = %v", err)
	}
	// 40.00 approved expense, 99.00 pending one that must not count.
	approved, err := records.RecordExpense(ctx, admin, year.ID, "Hall rental", "venue", core.Money{Paise: 40_00})
	if err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}
	if _, err := records.ApproveExpense(ctx, admin, approved.ID); err != nil {
		t.Fatalf("ApproveExpense() error = %v", err)
	}
	if _, err := records.RecordExpense(ctx, admin, year.ID, "Pending decorations", "decor", core.Money{Paise: 99_00}); err != nil {
		t.Fatalf("RecordExpense() error = %v", err)
	}

	report, err := years.Balance(ctx, admin, year.ID)
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}

	// 100 + 50 + 30 + 20 - 40 = 160.00
	if report.Balance.Paise != 160_00 {
		t.Errorf("Balance = %d paise, want 16000", report.Balance.Paise)
	}
	if report.Totals.ApprovedExpenses.Paise != 40_00 {
		t.Errorf("ApprovedExpenses = %d paise, want 4000", report.Totals.ApprovedExpenses.Paise)
	}
}
