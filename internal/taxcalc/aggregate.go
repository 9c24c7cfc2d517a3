package taxcalc

import (
	"sort"
	"time"

	"spesen/internal/core"
)

const (
	ActivityTrip      ActivityKind = "trip"
	ActivityEquipment ActivityKind = "equipment"
)

type (
	ActivityKind string

	// Snapshot is an immutable view of all entry collections. The engine
	// never mutates it; aggregation re-derives everything from it on each
	// call.
	Snapshot struct {
		Trips          []core.TripEntry
		Equipment      []core.EquipmentEntry
		Reimbursements []core.MonthlyReimbursement
		Expenses       []core.ExpenseEntry
	}

	// YearKpis are the dashboard totals for one tax year, in euros.
	YearKpis struct {
		Year            int
		TotalTrips      float64
		TotalEquipment  float64
		TotalReimbursed float64
		GrandTotal      float64
		TotalExpenses   float64
		NetTotal        float64
	}

	// MonthPoint is one point of the 12-month series.
	MonthPoint struct {
		Month      int // 1-12
		Gross      float64
		Reimbursed float64
		Net        float64 // max(0, Gross-Reimbursed), floored per month
	}

	// ActivityItem is one row of the recent activity feed.
	ActivityItem struct {
		Kind        ActivityKind
		ID          int64
		Date        time.Time
		Description string
		Amount      float64
	}
)

// tripDeductible is a trip's stored deductible contribution: the netted
// meal allowance plus its transport allowances. Ongoing trips count zero
// until completed.
func tripDeductible(t core.TripEntry) float64 {
	if t.Ongoing() {
		return 0
	}
	return sanitize(t.MealAllowance.Euros()) + sanitize(t.TransportAllowances.Euros())
}

// YearlyKpis computes the dashboard totals for a tax year. Trips belong to
// the year their start date falls in; equipment contributes its
// depreciation bucket for that year regardless of purchase year.
// GrandTotal and NetTotal are not floored, only the monthly series is.
func YearlyKpis(year int, snap Snapshot, rates core.TaxRateConfig) YearKpis {
	k := YearKpis{Year: year}

	for _, t := range snap.Trips {
		if t.Start.Year() == year {
			k.TotalTrips += tripDeductible(t)
		}
	}
	for _, e := range snap.Equipment {
		k.TotalEquipment += DeductibleForYear(e, year, rates)
	}
	for _, r := range snap.Reimbursements {
		if r.Year == year {
			k.TotalReimbursed += sanitize(r.Amount.Euros())
		}
	}
	for _, e := range snap.Expenses {
		if e.Date.Year() == year {
			k.TotalExpenses += sanitize(e.Amount.Euros())
		}
	}

	k.GrandTotal = k.TotalTrips + k.TotalEquipment - k.TotalReimbursed
	k.NetTotal = k.GrandTotal - k.TotalExpenses
	return k
}

// MonthlySeries computes the 12-point gross/reimbursed/net series for a
// year. Net is floored at zero per month; a reimbursement exceeding the
// month's gross does not carry into any other month.
func MonthlySeries(year int, snap Snapshot, rates core.TaxRateConfig) [12]MonthPoint {
	var series [12]MonthPoint
	for i := range series {
		series[i].Month = i + 1
	}

	for _, t := range snap.Trips {
		if t.Start.Year() == year {
			series[t.Start.Month()-1].Gross += tripDeductible(t)
		}
	}
	for _, e := range snap.Equipment {
		for month := 1; month <= 12; month++ {
			series[month-1].Gross += DeductibleForMonth(e, year, month, rates)
		}
	}
	for _, r := range snap.Reimbursements {
		if r.Year == year && r.Month >= 1 && r.Month <= 12 {
			series[r.Month-1].Reimbursed += sanitize(r.Amount.Euros())
		}
	}

	for i := range series {
		net := series[i].Gross - series[i].Reimbursed
		if net < 0 {
			net = 0
		}
		series[i].Net = net
	}
	return series
}

// RecentActivity merges trips and equipment purchases into a single feed
// sorted by date descending, truncated to limit. The feed spans all years.
func RecentActivity(trips []core.TripEntry, equipment []core.EquipmentEntry, limit int) []ActivityItem {
	items := make([]ActivityItem, 0, len(trips)+len(equipment))
	for _, t := range trips {
		items = append(items, ActivityItem{
			Kind:        ActivityTrip,
			ID:          t.ID,
			Date:        t.Start,
			Description: tripLabel(t),
			Amount:      tripDeductible(t),
		})
	}
	for _, e := range equipment {
		items = append(items, ActivityItem{
			Kind:        ActivityEquipment,
			ID:          e.ID,
			Date:        e.Date,
			Description: e.Description,
			Amount:      sanitize(e.Price.Euros()),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func tripLabel(t core.TripEntry) string {
	if t.Ongoing() {
		return "Fahrt (laufend)"
	}
	return "Fahrt"
}
