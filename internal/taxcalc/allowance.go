// Package taxcalc implements the pure tax deduction calculation engine:
// per-diem meal allowances, equipment depreciation and the yearly/monthly
// aggregation built on top of them.
//
// All functions are deterministic and free of I/O. They take an immutable
// snapshot of entries plus the current TaxRateConfig and return fresh
// results, so they are safe to call concurrently. Invalid numeric input
// (NaN, non-positive prices) contributes zero instead of raising, so one
// bad entry cannot break an aggregate.
package taxcalc

import (
	"math"
	"time"

	"spesen/internal/core"
)

// Allowance is the result of a per-diem calculation.
type Allowance struct {
	DurationHours float64
	Rate          float64
}

// MealAllowance computes the statutory per-diem for a trip.
//
// Same-day trips pay MealRate8h only when the duration exceeds eight hours.
// Multi-day trips pay MealRate8h for the arrival day and the departure day
// unconditionally, plus MealRate24h per full intermediate day. The
// asymmetry between the two rules follows the German per-diem convention
// and is deliberate.
//
// Eligibility policies beyond the split itself (minimum duration, overlap
// checks) are the caller's responsibility.
func MealAllowance(start, end time.Time, rates core.TaxRateConfig) Allowance {
	hours := end.Sub(start).Hours()
	if hours < 0 || math.IsNaN(hours) {
		hours = 0
	}

	rate8 := sanitize(rates.MealRate8h)
	rate24 := sanitize(rates.MealRate24h)

	if sameDay(start, end) {
		rate := 0.0
		if hours > 8 {
			rate = rate8
		}
		return Allowance{DurationHours: hours, Rate: rate}
	}

	intermediate := daysBetween(start, end) - 1
	if intermediate < 0 {
		intermediate = 0
	}
	rate := 2*rate8 + float64(intermediate)*rate24
	return Allowance{DurationHours: hours, Rate: rate}
}

// TransportAmount computes the allowance for a single mileage/ticket record
// using the current rates. Ticket records keep their entered amount.
func TransportAmount(kind core.TransportKind, distanceKm float64, ticketAmount float64, rates core.TaxRateConfig) float64 {
	if kind == core.TransportTicket {
		return sanitize(ticketAmount)
	}
	km := sanitize(distanceKm)
	return km * sanitize(rates.MileageRate(kind))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween counts calendar days from the start date to the end date,
// ignoring the time of day.
func daysBetween(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

// sanitize maps NaN, infinities and negatives to 0 so malformed rates or
// amounts never propagate into totals.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
