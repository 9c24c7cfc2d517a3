package core

import (
	"testing"
	"time"
)

func TestTripEntryValidate(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	cases := []struct {
		name string
		trip TripEntry
		ok   bool
	}{
		{"completed", TripEntry{Start: start, End: &end}, true},
		{"ongoing", TripEntry{Start: start}, true},
		{"zero start", TripEntry{}, false},
		{"end before start", TripEntry{Start: start, End: &before}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.trip.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected ok, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTripEntryOngoing(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	if !(TripEntry{Start: start}).Ongoing() {
		t.Fatalf("trip without end should be ongoing")
	}
	end := start.Add(8 * time.Hour)
	if (TripEntry{Start: start, End: &end}).Ongoing() {
		t.Fatalf("trip with end should not be ongoing")
	}
}

func TestEquipmentEntryValidate(t *testing.T) {
	good := EquipmentEntry{
		Date:        time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		Price:       Money{Cents: 180000},
		Description: "Navigationsgerät",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []EquipmentEntry{
		{Price: Money{Cents: 1}, Description: "a"}, // zero date
		{Date: good.Date, Price: Money{Cents: 1}, Description: "  "},
		{Date: good.Date, Price: Money{Cents: 0}, Description: "a"},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMonthlyReimbursementValidate(t *testing.T) {
	good := MonthlyReimbursement{Year: 2024, Month: 6, Amount: Money{Cents: 15000}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []MonthlyReimbursement{
		{Year: 2024, Month: 0, Amount: Money{Cents: 1}},
		{Year: 2024, Month: 13, Amount: Money{Cents: 1}},
		{Year: 12, Month: 6, Amount: Money{Cents: 1}},
		{Year: 2024, Month: 6, Amount: Money{Cents: -1}},
	}
	for i, m := range bads {
		if err := m.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
	// Zero amount is allowed: a month with no reimbursement can be recorded.
	if err := (MonthlyReimbursement{Year: 2024, Month: 6}).Validate(); err != nil {
		t.Fatalf("zero amount should validate, got %v", err)
	}
}

func TestTaxRateConfigValidate(t *testing.T) {
	if err := DefaultTaxRates().Validate(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
	bad := DefaultTaxRates()
	bad.MealRate24h = -1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for negative rate")
	}
}

func TestMileageRate(t *testing.T) {
	rates := DefaultTaxRates()
	cases := []struct {
		kind TransportKind
		want float64
	}{
		{TransportCar, 0.30},
		{TransportMotorcycle, 0.20},
		{TransportBike, 0.05},
		{TransportTicket, 0},
	}
	for _, tc := range cases {
		if got := rates.MileageRate(tc.kind); got != tc.want {
			t.Errorf("MileageRate(%s) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}
