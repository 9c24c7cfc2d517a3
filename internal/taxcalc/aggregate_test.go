package taxcalc

import (
	"math"
	"testing"
	"time"

	"spesen/internal/core"
)

func completedTrip(id int64, start time.Time, hours float64, mealCents, transportCents int64) core.TripEntry {
	end := start.Add(time.Duration(hours * float64(time.Hour)))
	return core.TripEntry{
		ID:                  id,
		Start:               start,
		End:                 &end,
		MealAllowance:       core.Money{Cents: mealCents},
		TransportAllowances: core.Money{Cents: transportCents},
	}
}

func TestYearlyKpis(t *testing.T) {
	rates := testRates()
	snap := Snapshot{
		Trips: []core.TripEntry{
			completedTrip(1, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), 57, 5600, 3000),
			completedTrip(2, time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC), 10, 1400, 1500),
			completedTrip(3, time.Date(2023, 7, 1, 6, 0, 0, 0, time.UTC), 10, 1400, 0), // other year
			{ID: 4, Start: time.Date(2024, 8, 2, 5, 0, 0, 0, time.UTC)},                // ongoing
		},
		Equipment: []core.EquipmentEntry{
			equipment(2024, 6, 15, 180000), // 300 in 2024
			equipment(2024, 2, 1, 50000),   // GWG, 500 in 2024
		},
		Reimbursements: []core.MonthlyReimbursement{
			{Year: 2024, Month: 3, Amount: core.Money{Cents: 10000}},
			{Year: 2024, Month: 7, Amount: core.Money{Cents: 5000}},
			{Year: 2023, Month: 3, Amount: core.Money{Cents: 99900}},
		},
		Expenses: []core.ExpenseEntry{
			{Date: time.Date(2024, 4, 4, 0, 0, 0, 0, time.UTC), Amount: core.Money{Cents: 2500}, Description: "privat"},
		},
	}

	k := YearlyKpis(2024, snap, rates)

	if !almostEqual(k.TotalTrips, 56+30+14+15) {
		t.Errorf("TotalTrips = %v, want 115", k.TotalTrips)
	}
	if !almostEqual(k.TotalEquipment, 800) {
		t.Errorf("TotalEquipment = %v, want 800", k.TotalEquipment)
	}
	if !almostEqual(k.TotalReimbursed, 150) {
		t.Errorf("TotalReimbursed = %v, want 150", k.TotalReimbursed)
	}
	if !almostEqual(k.GrandTotal, 115+800-150) {
		t.Errorf("GrandTotal = %v, want 765", k.GrandTotal)
	}
	if !almostEqual(k.TotalExpenses, 25) {
		t.Errorf("TotalExpenses = %v, want 25", k.TotalExpenses)
	}
	if !almostEqual(k.NetTotal, 765-25) {
		t.Errorf("NetTotal = %v, want 740", k.NetTotal)
	}
}

func TestYearlyKpisEmptySnapshot(t *testing.T) {
	k := YearlyKpis(2024, Snapshot{}, testRates())
	if k.GrandTotal != 0 || k.NetTotal != 0 {
		t.Errorf("empty snapshot must produce zero totals, got %+v", k)
	}
}

func TestMonthlySeriesNetFloor(t *testing.T) {
	rates := testRates()
	snap := Snapshot{
		Trips: []core.TripEntry{
			// Gross 100 in March.
			completedTrip(1, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), 57, 7000, 3000),
		},
		Reimbursements: []core.MonthlyReimbursement{
			// Reimbursed 150 in March: net floors at 0, the 50 excess
			// must not surface in any other month.
			{Year: 2024, Month: 3, Amount: core.Money{Cents: 15000}},
		},
	}

	series := MonthlySeries(2024, snap, rates)

	march := series[2]
	if !almostEqual(march.Gross, 100) || !almostEqual(march.Reimbursed, 150) {
		t.Fatalf("march = %+v", march)
	}
	if march.Net != 0 {
		t.Errorf("net must floor at zero, got %v", march.Net)
	}
	for i, p := range series {
		if i == 2 {
			continue
		}
		if p.Gross != 0 || p.Net != 0 || p.Reimbursed != 0 {
			t.Errorf("month %d must be untouched by the march shortfall: %+v", i+1, p)
		}
	}
}

func TestMonthlySeriesCrossChecksYearKpis(t *testing.T) {
	rates := testRates()
	snap := Snapshot{
		Trips: []core.TripEntry{
			completedTrip(1, time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC), 30, 2800, 1200),
			completedTrip(2, time.Date(2024, 6, 20, 8, 0, 0, 0, time.UTC), 9, 1400, 900),
		},
		Equipment: []core.EquipmentEntry{
			equipment(2024, 6, 15, 180000),
			equipment(2023, 2, 1, 144000),
		},
	}

	series := MonthlySeries(2024, snap, rates)
	var grossSum float64
	for _, p := range series {
		grossSum += p.Gross
	}

	k := YearlyKpis(2024, snap, rates)
	if math.Abs(grossSum-(k.TotalTrips+k.TotalEquipment)) > 1e-9 {
		t.Errorf("series gross sum %v != KPI deductible %v", grossSum, k.TotalTrips+k.TotalEquipment)
	}
}

func TestRecentActivity(t *testing.T) {
	trips := []core.TripEntry{
		completedTrip(1, time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC), 30, 2800, 0),
		completedTrip(2, time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC), 30, 2800, 0),
		completedTrip(3, time.Date(2024, 8, 9, 8, 0, 0, 0, time.UTC), 30, 2800, 0),
	}
	equip := []core.EquipmentEntry{
		equipment(2024, 6, 15, 180000),
		equipment(2022, 3, 3, 50000),
		equipment(2024, 9, 1, 30000),
	}

	items := RecentActivity(trips, equip, 5)
	if len(items) != 5 {
		t.Fatalf("len = %d, want 5", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].Date.After(items[i-1].Date) {
			t.Errorf("items not sorted by date descending at %d", i)
		}
	}
	// The feed is not year-filtered: the oldest surviving item is from 2023.
	if items[0].Date.Year() != 2024 || items[len(items)-1].Date.Year() != 2023 {
		t.Errorf("unexpected feed window: first %v last %v", items[0].Date, items[len(items)-1].Date)
	}
	if items[0].Kind != ActivityEquipment || items[0].ID != 3 {
		t.Errorf("newest item should be equipment id 3, got %+v", items[0])
	}
}

func TestRecentActivityNoLimit(t *testing.T) {
	items := RecentActivity(nil, []core.EquipmentEntry{equipment(2024, 6, 15, 100)}, 0)
	if len(items) != 1 {
		t.Fatalf("limit 0 must mean unlimited, got %d items", len(items))
	}
}
