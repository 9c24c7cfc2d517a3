package core

import (
	"errors"
	"strings"
	"time"
)

const (
	TransportCar        TransportKind = "car"
	TransportMotorcycle TransportKind = "motorcycle"
	TransportBike       TransportKind = "bike"
	TransportTicket     TransportKind = "ticket"
)

type (
	TransportKind string

	// TripEntry is a business trip. End is nil while the trip is ongoing;
	// an ongoing trip contributes zero deductible amount everywhere.
	TripEntry struct {
		ID    int64
		Start time.Time
		End   *time.Time

		// MealAllowance is the per-diem already netted against the trip's
		// own reimbursement field, rounded to cents at persistence.
		MealAllowance Money
		// TransportAllowances is the summed amount of the trip's
		// mileage/ticket records.
		TransportAllowances Money
	}

	// TransportAllowance is a mileage or ticket record attached to a trip.
	// It is deleted together with its trip.
	TransportAllowance struct {
		ID         int64
		TripID     int64
		Kind       TransportKind
		DistanceKm float64 // one way; zero for tickets
		Amount     Money
	}

	// EquipmentEntry is a purchased work item. Deductible amounts are always
	// derived per viewed year, never stored.
	EquipmentEntry struct {
		ID              int64
		Date            time.Time // purchase date
		Price           Money     // gross
		Description     string
		ReceiptFileName string // optional
	}

	// MonthlyReimbursement ("Spesen") is the employer reimbursement for one
	// calendar month. At most one entry per (Year, Month).
	MonthlyReimbursement struct {
		ID     int64
		Year   int
		Month  int // 1-12
		Amount Money
		Note   string
	}

	// ExpenseEntry is a personal, non-deductible expense. It only feeds the
	// informational balance, never the tax totals.
	ExpenseEntry struct {
		ID          int64
		Date        time.Time
		Amount      Money
		Description string
	}

	// TaxRateConfig holds the user-editable rates in euros. Every
	// calculation receives the current snapshot explicitly; there is no
	// historical versioning, so rate changes apply to all displayed years.
	TaxRateConfig struct {
		MealRate8h            float64
		MealRate24h           float64
		MileageRateCar        float64
		MileageRateMotorcycle float64
		MileageRateBike       float64
		GWGLimit              float64
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidYear      = errors.New("invalid year")
	ErrEmptyDescription = errors.New("empty description")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEndBeforeStart   = errors.New("end before start")
)

// DefaultTaxRates returns the statutory defaults: German per-diem tiers,
// mileage rates and the GWG immediate write-off ceiling.
func DefaultTaxRates() TaxRateConfig {
	return TaxRateConfig{
		MealRate8h:            14,
		MealRate24h:           28,
		MileageRateCar:        0.30,
		MileageRateMotorcycle: 0.20,
		MileageRateBike:       0.05,
		GWGLimit:              952,
	}
}

func (c TaxRateConfig) Validate() error {
	for _, v := range []float64{
		c.MealRate8h, c.MealRate24h,
		c.MileageRateCar, c.MileageRateMotorcycle, c.MileageRateBike,
		c.GWGLimit,
	} {
		if v != v || v < 0 { // NaN or negative
			return ErrInvalidAmount
		}
	}
	return nil
}

// MileageRate returns the per-kilometer rate for a transport kind.
// Tickets have no distance rate.
func (c TaxRateConfig) MileageRate(kind TransportKind) float64 {
	switch kind {
	case TransportCar:
		return c.MileageRateCar
	case TransportMotorcycle:
		return c.MileageRateMotorcycle
	case TransportBike:
		return c.MileageRateBike
	}
	return 0
}

// Ongoing reports whether the trip has no end yet.
func (t TripEntry) Ongoing() bool {
	return t.End == nil
}

func (t TripEntry) Validate() error {
	if t.Start.IsZero() {
		return ErrZeroDate
	}
	if t.End != nil && t.End.Before(t.Start) {
		return ErrEndBeforeStart
	}
	return nil
}

func (k TransportKind) Valid() bool {
	switch k {
	case TransportCar, TransportMotorcycle, TransportBike, TransportTicket:
		return true
	}
	return false
}

func (a TransportAllowance) Validate() error {
	if !a.Kind.Valid() {
		return errors.New("invalid transport kind")
	}
	if a.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e EquipmentEntry) Validate() error {
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return e.Price.Validate()
}

func (m MonthlyReimbursement) Validate() error {
	if m.Year < 1970 || m.Year > 9999 {
		return ErrInvalidYear
	}
	if m.Month < 1 || m.Month > 12 {
		return ErrInvalidMonth
	}
	if m.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e ExpenseEntry) Validate() error {
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	return e.Amount.Validate()
}
