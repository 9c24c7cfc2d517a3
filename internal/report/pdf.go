package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
)

// RenderPDF builds a one-page PDF summary and returns the bytes plus a
// suggested file name.
func RenderPDF(r YearReport) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Steuerbericht %d", r.Kpis.Year), true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Steuerbericht %d", r.Kpis.Year)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, tr("Erstellt am "+time.Now().Format("2006-01-02")))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, tr("Jahressummen"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	totals := []struct {
		label string
		value float64
	}{
		{"Fahrten", r.Kpis.TotalTrips},
		{"Arbeitsmittel", r.Kpis.TotalEquipment},
		{"Spesen (erstattet)", r.Kpis.TotalReimbursed},
		{"Absetzbar gesamt", r.Kpis.GrandTotal},
		{"Private Ausgaben", r.Kpis.TotalExpenses},
		{"Netto", r.Kpis.NetTotal},
	}
	for _, row := range totals {
		pdf.Cell(90, 6, tr(row.label))
		pdf.CellFormat(40, 6, tr(formatEuros(row.value)), "", 0, "R", false, 0, "")
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, tr("Monatsübersicht"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(40, 6, tr("Monat"))
	pdf.CellFormat(30, 6, tr("Brutto"), "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 6, tr("Erstattet"), "", 0, "R", false, 0, "")
	pdf.CellFormat(30, 6, tr("Netto"), "", 0, "R", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 10)
	for _, p := range r.Series {
		pdf.Cell(40, 6, tr(monthNames[p.Month-1]))
		pdf.CellFormat(30, 6, tr(formatEuros(p.Gross)), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, tr(formatEuros(p.Reimbursed)), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, tr(formatEuros(p.Net)), "", 0, "R", false, 0, "")
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("render pdf: %w", err)
	}

	filename := fmt.Sprintf("steuerbericht_%d.pdf", r.Kpis.Year)
	return buf.Bytes(), filename, nil
}
