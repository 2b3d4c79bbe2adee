package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"clubledger/internal/core"
)

func testYear(clubID string, active bool) *core.Year {
	return &core.Year{
		ClubID:               clubID,
		Name:                 "2026-27",
		StartDate:            time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:              time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC),
		Frequency:            core.Weekly,
		TotalInstallments:    52,
		AmountPerInstallment: core.Money{Paise: 5000},
		IsActive:             active,
	}
}

func TestInsertYear_SecondActiveRejected(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.InsertYear(ctx, testYear("club-1", true)); err != nil {
		t.Fatalf("InsertYear() error = %v", err)
	}
	err := store.InsertYear(ctx, testYear("club-1", true))
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("second InsertYear() error = %v, want ErrConflict", err)
	}

	// A different club is unaffected.
	if err := store.InsertYear(ctx, testYear("club-2", true)); err != nil {
		t.Fatalf("other club InsertYear() error = %v", err)
	}
}

func TestUpdateSubscription_VersionConflict(t *testing.T) {
	store := New()
	ctx := context.Background()

	year := testYear("club-1", true)
	if err := store.InsertYear(ctx, year); err != nil {
		t.Fatalf("InsertYear() error = %v", err)
	}
	sub := &core.Subscription{
		ClubID:       "club-1",
		YearID:       year.ID,
		MemberID:     "member-1",
		Installments: core.NewSchedule(core.RulesOf(year)),
		Version:      1,
	}
	if err := store.InsertSubscription(ctx, sub); err != nil {
		t.Fatalf("InsertSubscription() error = %v", err)
	}

	fresh := *sub
	if err := store.UpdateSubscription(ctx, &fresh); err != nil {
		t.Fatalf("UpdateSubscription() error = %v", err)
	}
	if fresh.Version != 2 {
		t.Errorf("Version after update = %d, want 2", fresh.Version)
	}

	// The original copy still carries the old version.
	stale := *sub
	err := store.UpdateSubscription(ctx, &stale)
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("stale UpdateSubscription() error = %v, want ErrConflict", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	store := New()
	ctx := context.Background()

	year := testYear("club-1", true)
	if err := store.InsertYear(ctx, year); err != nil {
		t.Fatalf("InsertYear() error = %v", err)
	}

	got, err := store.YearByID(ctx, "club-1", year.ID)
	if err != nil {
		t.Fatalf("YearByID() error = %v", err)
	}
	got.Name = "mutated"

	again, err := store.YearByID(ctx, "club-1", year.ID)
	if err != nil {
		t.Fatalf("YearByID() error = %v", err)
	}
	if again.Name != "2026-27" {
		t.Errorf("stored year was mutated through a read copy: %q", again.Name)
	}
}

func TestSwapActiveYear(t *testing.T) {
	store := New()
	ctx := context.Background()

	prev := testYear("club-1", true)
	if err := store.InsertYear(ctx, prev); err != nil {
		t.Fatalf("InsertYear() error = %v", err)
	}

	closedAt := time.Now().UTC()
	prev.IsActive = false
	prev.IsClosed = true
	prev.ClosingBalance = core.Money{Paise: 12345}
	prev.ClosedAt = &closedAt

	next := testYear("club-1", true)
	next.Name = "2027-28"
	if err := store.SwapActiveYear(ctx, prev, next); err != nil {
		t.Fatalf("SwapActiveYear() error = %v", err)
	}
	if next.ID == 0 {
		t.Fatal("next year was not assigned an ID")
	}

	active, err := store.ActiveYear(ctx, "club-1")
	if err != nil {
		t.Fatalf("ActiveYear() error = %v", err)
	}
	if active.ID != next.ID {
		t.Errorf("active year = %d, want %d", active.ID, next.ID)
	}

	old, err := store.YearByID(ctx, "club-1", prev.ID)
	if err != nil {
		t.Fatalf("YearByID() error = %v", err)
	}
	if !old.IsClosed || old.ClosingBalance.Paise != 12345 {
		t.Errorf("previous year state = closed:%v closing:%d", old.IsClosed, old.ClosingBalance.Paise)
	}
}
