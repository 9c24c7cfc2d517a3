package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"spesen/internal/core"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "spesen.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTripRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)
	id, err := repo.CreateTrip(ctx, core.TripEntry{
		Start:               start,
		End:                 &end,
		MealAllowance:       core.Money{Cents: 5600},
		TransportAllowances: core.Money{Cents: 3000},
	}, []core.TransportAllowance{
		{Kind: core.TransportCar, DistanceKm: 100, Amount: core.Money{Cents: 3000}},
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}

	got, err := repo.GetTrip(ctx, id)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if !got.Start.Equal(start) || got.End == nil || !got.End.Equal(end) {
		t.Errorf("trip times = %v / %v", got.Start, got.End)
	}
	if got.MealAllowance.Cents != 5600 || got.TransportAllowances.Cents != 3000 {
		t.Errorf("trip amounts = %+v", got)
	}

	allowances, err := repo.ListTransportAllowances(ctx, id)
	if err != nil {
		t.Fatalf("list allowances: %v", err)
	}
	if len(allowances) != 1 || allowances[0].Kind != core.TransportCar {
		t.Fatalf("allowances = %+v", allowances)
	}
}

func TestDeleteTripCascades(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	end := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	id, err := repo.CreateTrip(ctx, core.TripEntry{
		Start: end.Add(-10 * time.Hour),
		End:   &end,
	}, []core.TransportAllowance{
		{Kind: core.TransportBike, DistanceKm: 10, Amount: core.Money{Cents: 50}},
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}

	if err := repo.DeleteTrip(ctx, id); err != nil {
		t.Fatalf("delete trip: %v", err)
	}
	if _, err := repo.GetTrip(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	allowances, err := repo.ListTransportAllowances(ctx, id)
	if err != nil {
		t.Fatalf("list allowances: %v", err)
	}
	if len(allowances) != 0 {
		t.Errorf("allowances must cascade on delete, got %d rows", len(allowances))
	}

	if err := repo.DeleteTrip(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting a missing trip: got %v", err)
	}
}

func TestOngoingTripAndFinish(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	ongoing, err := repo.OngoingTrip(ctx)
	if err != nil {
		t.Fatalf("ongoing: %v", err)
	}
	if ongoing != nil {
		t.Fatalf("expected no ongoing trip, got %+v", ongoing)
	}

	start := time.Date(2024, 8, 2, 5, 0, 0, 0, time.UTC)
	id, err := repo.CreateTrip(ctx, core.TripEntry{Start: start}, nil)
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}

	ongoing, err = repo.OngoingTrip(ctx)
	if err != nil {
		t.Fatalf("ongoing: %v", err)
	}
	if ongoing == nil || ongoing.ID != id || !ongoing.Ongoing() {
		t.Fatalf("ongoing = %+v", ongoing)
	}

	end := start.Add(9 * time.Hour)
	if err := repo.FinishTrip(ctx, id, end, core.Money{Cents: 1400}); err != nil {
		t.Fatalf("finish trip: %v", err)
	}
	got, err := repo.GetTrip(ctx, id)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.Ongoing() || got.MealAllowance.Cents != 1400 {
		t.Errorf("finished trip = %+v", got)
	}

	// Finishing an already completed trip must not match.
	if err := repo.FinishTrip(ctx, id, end, core.Money{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("finish completed trip: got %v", err)
	}
}

func TestReimbursementUniqueMonth(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	m := core.MonthlyReimbursement{Year: 2024, Month: 3, Amount: core.Money{Cents: 10000}, Note: "März"}
	if _, err := repo.CreateReimbursement(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateReimbursement(ctx, m); !errors.Is(err, ErrDuplicateMonth) {
		t.Fatalf("duplicate month: got %v, want ErrDuplicateMonth", err)
	}
	// Same month in a different year is fine.
	m.Year = 2025
	if _, err := repo.CreateReimbursement(ctx, m); err != nil {
		t.Fatalf("create other year: %v", err)
	}
}

func TestTaxRatesRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	rates, err := repo.GetTaxRates(ctx)
	if err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if rates != core.DefaultTaxRates() {
		t.Errorf("seeded rates = %+v, want defaults", rates)
	}

	rates.GWGLimit = 800
	rates.MealRate8h = 15
	if err := repo.UpdateTaxRates(ctx, rates); err != nil {
		t.Fatalf("update rates: %v", err)
	}
	got, err := repo.GetTaxRates(ctx)
	if err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if got != rates {
		t.Errorf("rates = %+v, want %+v", got, rates)
	}

	bad := rates
	bad.MealRate24h = -3
	if err := repo.UpdateTaxRates(ctx, bad); err == nil {
		t.Errorf("expected validation error for negative rate")
	}
}

func TestSnapshot(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	end := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	if _, err := repo.CreateTrip(ctx, core.TripEntry{Start: end.Add(-10 * time.Hour), End: &end, MealAllowance: core.Money{Cents: 1400}}, nil); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	if _, err := repo.CreateEquipment(ctx, core.EquipmentEntry{
		Date:        time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		Price:       core.Money{Cents: 180000},
		Description: "Navigationsgerät",
	}); err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	if _, err := repo.CreateReimbursement(ctx, core.MonthlyReimbursement{Year: 2024, Month: 3, Amount: core.Money{Cents: 5000}}); err != nil {
		t.Fatalf("create reimbursement: %v", err)
	}
	if _, err := repo.CreateExpense(ctx, core.ExpenseEntry{
		Date:        time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Amount:      core.Money{Cents: 2000},
		Description: "privat",
	}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	snap, err := repo.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Trips) != 1 || len(snap.Equipment) != 1 || len(snap.Reimbursements) != 1 || len(snap.Expenses) != 1 {
		t.Errorf("snapshot sizes: %d %d %d %d",
			len(snap.Trips), len(snap.Equipment), len(snap.Reimbursements), len(snap.Expenses))
	}
}
