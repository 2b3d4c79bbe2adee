package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"clubledger/internal/core"
)

func TestGetOrCreate_IsIdempotent(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	first, err := subs.GetOrCreate(ctx, admin, year.ID, "member-1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if len(first.Installments) != 52 {
		t.Fatalf("installments = %d, want 52", len(first.Installments))
	}
	if first.TotalDue.Paise != 52*5000 {
		t.Errorf("TotalDue = %d paise, want %d", first.TotalDue.Paise, 52*5000)
	}

	second, err := subs.GetOrCreate(ctx, admin, year.ID, "member-1")
	if err != nil {
		t.Fatalf("second GetOrCreate() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created a new subscription: %d != %d", second.ID, first.ID)
	}
}

func TestGetOrCreate_DisabledYear(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	in := weeklyInput("donation-only")
	in.Frequency = core.None
	in.TotalInstallments = 0
	in.AmountPerInstallment = core.Money{}
	year, err := years.CreateYear(ctx, admin, in)
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	_, err = subs.GetOrCreate(ctx, admin, year.ID, "member-1")
	if !errors.Is(err, core.ErrDisabled) {
		t.Fatalf("GetOrCreate() error = %v, want ErrDisabled", err)
	}
}

func TestToggleInstallment_PairRestoresState(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	paid, err := subs.ToggleInstallment(ctx, collectorActor(), year.ID, "member-1", 3)
	if err != nil {
		t.Fatalf("first toggle error = %v", err)
	}
	ins := paid.Installment(3)
	if ins == nil || !ins.IsPaid {
		t.Fatal("installment #3 should be paid after first toggle")
	}
	if ins.PaidDate == nil || ins.CollectedBy != "collector-1" {
		t.Errorf("payment metadata = date:%v collector:%q", ins.PaidDate, ins.CollectedBy)
	}
	if paid.TotalPaid.Paise != 5000 {
		t.Errorf("TotalPaid = %d paise, want 5000", paid.TotalPaid.Paise)
	}

	unpaid, err := subs.ToggleInstallment(ctx, collectorActor(), year.ID, "member-1", 3)
	if err != nil {
		t.Fatalf("second toggle error = %v", err)
	}
	ins = unpaid.Installment(3)
	if ins == nil || ins.IsPaid {
		t.Fatal("installment #3 should be unpaid after second toggle")
	}
	if ins.PaidDate != nil || ins.CollectedBy != "" {
		t.Errorf("payment metadata not cleared: date:%v collector:%q", ins.PaidDate, ins.CollectedBy)
	}
	if unpaid.TotalPaid.Paise != 0 {
		t.Errorf("TotalPaid = %d paise, want 0", unpaid.TotalPaid.Paise)
	}
	if unpaid.TotalDue.Paise != 52*5000 {
		t.Errorf("TotalDue = %d paise, want %d", unpaid.TotalDue.Paise, 52*5000)
	}
}

func TestToggleInstallment_MemberForbidden(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()

	year, err := years.CreateYear(ctx, adminActor(), weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	_, err = subs.ToggleInstallment(ctx, memberActor(), year.ID, "member-1", 1)
	if !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("ToggleInstallment() error = %v, want ErrForbidden", err)
	}
}

func TestToggleInstallment_ClosedYear(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}
	if _, err := years.CloseYear(ctx, admin, year.ID); err != nil {
		t.Fatalf("CloseYear() error = %v", err)
	}

	_, err = subs.ToggleInstallment(ctx, admin, year.ID, "member-1", 1)
	if !errors.Is(err, core.ErrAlreadyClosed) {
		t.Fatalf("ToggleInstallment() error = %v, want ErrAlreadyClosed", err)
	}
}

func TestToggleInstallment_UnknownNumber(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	_, err = subs.ToggleInstallment(ctx, admin, year.ID, "member-1", 99)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("ToggleInstallment() error = %v, want ErrNotFound", err)
	}
}

func TestMigrate_ConservesPaidCredit(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()
	admin := adminActor()

	year, err := years.CreateYear(ctx, admin, weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	// Pay two non-contiguous installments.
	for _, n := range []int{5, 10} {
		if _, err := subs.ToggleInstallment(ctx, admin, year.ID, "member-1", n); err != nil {
			t.Fatalf("ToggleInstallment(%d) error = %v", n, err)
		}
	}

	migrated, err := subs.Migrate(ctx, admin, year.ID)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if migrated != 1 {
		t.Errorf("migrated = %d, want 1", migrated)
	}

	sub, err := subs.GetOrCreate(ctx, admin, year.ID, "member-1")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if sub.TotalPaid.Paise != 2*5000 {
		t.Errorf("TotalPaid = %d paise, want 10000", sub.TotalPaid.Paise)
	}
	// Credit is packed from installment 1 forward.
	for _, ins := range sub.Installments {
		wantPaid := ins.Number <= 2
		if ins.IsPaid != wantPaid {
			t.Errorf("installment #%d paid = %v, want %v", ins.Number, ins.IsPaid, wantPaid)
		}
	}
}

func TestMigrate_RequiresAdmin(t *testing.T) {
	years, subs, _, _, _ := newTestServices(t)
	ctx := context.Background()

	year, err := years.CreateYear(ctx, adminActor(), weeklyInput("2026-27"))
	if err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}

	_, err = subs.Migrate(ctx, collectorActor(), year.ID)
	if !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("Migrate() error = %v, want ErrForbidden", err)
	}
}

func TestPaidInstallments_ListsOnlyPaid(t *testing.T) {
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
	if _, err := subs.ToggleInstallment(ctx, admin, year.ID, "member-2", 2); err != nil {
		t.Fatalf("ToggleInstallment() error = %v", err)
	}
	if _, err := subs.GetOrCreate(ctx, admin, year.ID, "member-3"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	payments, err := subs.PaidInstallments(ctx, admin, year.ID)
	if err != nil {
		t.Fatalf("PaidInstallments() error = %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2", len(payments))
	}
	for _, p := range payments {
		if p.Amount.Paise != 5000 {
			t.Errorf("payment amount = %d paise, want 5000", p.Amount.Paise)
		}
	}
}

func TestPaidInstallments_NewestFirst(t *testing.T) {
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
	time.Sleep(2 * time.Millisecond)
	if _, err := subs.ToggleInstallment(ctx, admin, year.ID, "member-2", 1); err != nil {
		t.Fatalf("ToggleInstallment() error = %v", err)
	}

	payments, err := subs.PaidInstallments(ctx, admin, year.ID)
	if err != nil {
		t.Fatalf("PaidInstallments() error = %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2", len(payments))
	}
	if payments[0].MemberID != "member-2" || payments[1].MemberID != "member-1" {
		t.Errorf("payment order = [%s, %s], want newest first",
			payments[0].MemberID, payments[1].MemberID)
	}
}
