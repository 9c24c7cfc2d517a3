// Package report renders a year's deduction figures for the CLI, either
// as plain text or as a PDF summary.
package report

import (
	"fmt"
	"strings"

	"spesen/internal/taxcalc"
)

// YearReport bundles everything the renderers need for one tax year.
type YearReport struct {
	Kpis   taxcalc.YearKpis
	Series [12]taxcalc.MonthPoint
	Recent []taxcalc.ActivityItem
}

var monthNames = [12]string{
	"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}

// RenderText formats the report for the terminal.
func RenderText(r YearReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Steuerbericht %d\n", r.Kpis.Year)
	fmt.Fprintf(&b, "================\n\n")
	fmt.Fprintf(&b, "Fahrten            %12s\n", formatEuros(r.Kpis.TotalTrips))
	fmt.Fprintf(&b, "Arbeitsmittel      %12s\n", formatEuros(r.Kpis.TotalEquipment))
	fmt.Fprintf(&b, "Spesen (erstattet) %12s\n", formatEuros(r.Kpis.TotalReimbursed))
	fmt.Fprintf(&b, "Absetzbar gesamt   %12s\n", formatEuros(r.Kpis.GrandTotal))
	fmt.Fprintf(&b, "Private Ausgaben   %12s\n", formatEuros(r.Kpis.TotalExpenses))
	fmt.Fprintf(&b, "Netto              %12s\n", formatEuros(r.Kpis.NetTotal))

	fmt.Fprintf(&b, "\nMonatsübersicht\n")
	for _, p := range r.Series {
		fmt.Fprintf(&b, "  %-10s brutto %10s  erstattet %10s  netto %10s\n",
			monthNames[p.Month-1], formatEuros(p.Gross), formatEuros(p.Reimbursed), formatEuros(p.Net))
	}

	if len(r.Recent) > 0 {
		fmt.Fprintf(&b, "\nLetzte Einträge\n")
		for _, item := range r.Recent {
			fmt.Fprintf(&b, "  %s  %-30s %10s\n",
				item.Date.Format("2006-01-02"), item.Description, formatEuros(item.Amount))
		}
	}

	return b.String()
}

// formatEuros renders a euro amount with comma decimals, the way the rest
// of the German-facing output does.
func formatEuros(v float64) string {
	s := fmt.Sprintf("%.2f €", v)
	return strings.Replace(s, ".", ",", 1)
}
