package taxcalc

import (
	"spesen/internal/core"
)

// UsefulLifeMonths is the fixed straight-line useful life for equipment
// above the GWG limit.
const UsefulLifeMonths = 36

const (
	ScheduleGWG    ScheduleType = "gwg"
	ScheduleLinear ScheduleType = "linear"
)

type (
	ScheduleType string

	// ScheduleYear is one row of a depreciation schedule.
	ScheduleYear struct {
		Year          int
		Months        int
		MonthlyRate   float64
		Deduction     float64
		IsCurrentYear bool
	}

	// Schedule is the full year-by-year depreciation view of one equipment
	// entry, relative to a selected year.
	Schedule struct {
		Type        ScheduleType
		Years       []ScheduleYear
		Total       float64
		BookValue   float64
		MonthlyRate float64
	}
)

// DeductibleForMonth returns the deductible amount of an equipment entry in
// a specific calendar month. This is the canonical depreciation formula;
// the year bucket is derived from it by summation so the two views cannot
// drift apart.
//
// GWG entries (price at or below the limit) pay the full price in the exact
// purchase month. Depreciating entries pay price/36 for each of the 36
// calendar months following the purchase month: a June purchase pays
// July through December (6 months) in the purchase year and January through
// June (6 months) three years later, telescoping to exactly the price.
// A December purchase therefore has no deduction in the purchase year.
func DeductibleForMonth(e core.EquipmentEntry, year int, month int, rates core.TaxRateConfig) float64 {
	price := sanitize(e.Price.Euros())
	if price == 0 || e.Date.IsZero() || month < 1 || month > 12 {
		return 0
	}

	purchaseYear := e.Date.Year()
	purchaseMonth := int(e.Date.Month())

	if price <= sanitize(rates.GWGLimit) {
		if year == purchaseYear && month == purchaseMonth {
			return price
		}
		return 0
	}

	p := purchaseYear*12 + (purchaseMonth - 1)
	m := year*12 + (month - 1)
	if m <= p || m > p+UsefulLifeMonths {
		return 0
	}
	return price / UsefulLifeMonths
}

// DeductibleForYear returns the deductible amount of an equipment entry in
// a tax year. Years outside the depreciation window return 0, so callers
// may iterate arbitrary year ranges without pre-filtering.
func DeductibleForYear(e core.EquipmentEntry, year int, rates core.TaxRateConfig) float64 {
	var sum float64
	for month := 1; month <= 12; month++ {
		sum += DeductibleForMonth(e, year, month, rates)
	}
	return sum
}

// BuildSchedule returns the full depreciation schedule for display, with
// the book value computed through selectedYear.
func BuildSchedule(e core.EquipmentEntry, selectedYear int, rates core.TaxRateConfig) Schedule {
	price := sanitize(e.Price.Euros())
	if price == 0 || e.Date.IsZero() {
		return Schedule{Type: ScheduleGWG}
	}

	purchaseYear := e.Date.Year()

	if price <= sanitize(rates.GWGLimit) {
		book := price
		if selectedYear >= purchaseYear {
			book = 0
		}
		return Schedule{
			Type: ScheduleGWG,
			Years: []ScheduleYear{{
				Year:          purchaseYear,
				Months:        1,
				MonthlyRate:   price,
				Deduction:     price,
				IsCurrentYear: purchaseYear == selectedYear,
			}},
			Total:       price,
			BookValue:   book,
			MonthlyRate: price,
		}
	}

	monthlyRate := price / UsefulLifeMonths
	s := Schedule{Type: ScheduleLinear, MonthlyRate: monthlyRate, BookValue: price}
	for year := purchaseYear; year <= purchaseYear+3; year++ {
		deduction := DeductibleForYear(e, year, rates)
		if deduction == 0 {
			// December purchases have no months in the purchase year.
			continue
		}
		months := monthsInYear(e, year, rates)
		s.Years = append(s.Years, ScheduleYear{
			Year:          year,
			Months:        months,
			MonthlyRate:   monthlyRate,
			Deduction:     deduction,
			IsCurrentYear: year == selectedYear,
		})
		s.Total += deduction
		if year <= selectedYear {
			s.BookValue -= deduction
		}
	}
	if s.BookValue < 0 {
		s.BookValue = 0
	}
	return s
}

func monthsInYear(e core.EquipmentEntry, year int, rates core.TaxRateConfig) int {
	months := 0
	for month := 1; month <= 12; month++ {
		if DeductibleForMonth(e, year, month, rates) > 0 {
			months++
		}
	}
	return months
}
