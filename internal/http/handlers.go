package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"spesen/internal/core"
	"spesen/internal/services"
	"spesen/internal/storage"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	year := parseYear(r.URL.Query().Get("year"))

	ongoing, err := s.trips.OngoingTrip(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Ongoing trip lookup error", "error", err)
	}

	rates, err := s.entries.TaxRates(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Tax rates lookup error", "error", err)
		rates = core.DefaultTaxRates()
	}

	data := struct {
		Year         int
		Today        string
		Ongoing      *core.TripEntry
		OngoingSince string
		Rates        core.TaxRateConfig
	}{
		Year:  year,
		Today: time.Now().Format("2006-01-02"),
		Rates: rates,
	}
	if ongoing != nil {
		data.Ongoing = ongoing
		data.OngoingSince = ongoing.Start.Format("02.01.2006 15:04")
	}

	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Dashboard template execution failed", "error", err, "template", "dashboard.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleKpis renders the yearly totals partial.
func (s *Server) handleKpis(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	year := parseYear(r.URL.Query().Get("year"))

	kpis, err := s.getKpis(r.Context(), year)
	if err != nil {
		slog.ErrorContext(r.Context(), "KPI error", "error", err, "year", year)
		_, _ = w.Write([]byte(`<section id="kpis" class="kpis"><div class="placeholder">Fehler beim Laden der Kennzahlen</div></section>`))
		return
	}

	data := struct {
		Year            int
		TotalTrips      string
		TotalEquipment  string
		TotalReimbursed string
		GrandTotal      string
		TotalExpenses   string
		NetTotal        string
	}{
		Year:            kpis.Year,
		TotalTrips:      formatEuros(kpis.TotalTrips),
		TotalEquipment:  formatEuros(kpis.TotalEquipment),
		TotalReimbursed: formatEuros(kpis.TotalReimbursed),
		GrandTotal:      formatEuros(kpis.GrandTotal),
		TotalExpenses:   formatEuros(kpis.TotalExpenses),
		NetTotal:        formatEuros(kpis.NetTotal),
	}
	if err := s.templates.ExecuteTemplate(w, "kpis.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "kpis.html", "year", year)
		_, _ = w.Write([]byte(`<section id="kpis" class="kpis"><div class="placeholder">Fehler beim Rendern</div></section>`))
	}
}

// handleRecent renders the activity feed partial. The feed spans all
// years on purpose.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	items, err := s.reports.Recent(r.Context(), s.feedLimit)
	if err != nil {
		slog.ErrorContext(r.Context(), "Recent activity error", "error", err)
		_, _ = w.Write([]byte(`<section id="recent" class="recent"><div class="placeholder">Fehler beim Laden</div></section>`))
		return
	}

	type row struct {
		Kind        string
		ID          int64
		Date        string
		Description string
		Amount      string
	}
	data := struct{ Items []row }{}
	for _, item := range items {
		data.Items = append(data.Items, row{
			Kind:        string(item.Kind),
			ID:          item.ID,
			Date:        item.Date.Format("02.01.2006"),
			Description: template.HTMLEscapeString(item.Description),
			Amount:      formatEuros(item.Amount),
		})
	}
	if err := s.templates.ExecuteTemplate(w, "recent.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "recent.html")
		_, _ = w.Write([]byte(`<section id="recent" class="recent"><div class="placeholder">Fehler beim Rendern</div></section>`))
	}
}

// handleSchedule renders the depreciation schedule partial for one
// equipment entry.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Ungültige ID</div>`))
		return
	}
	year := parseYear(r.URL.Query().Get("year"))

	schedule, err := s.reports.Schedule(r.Context(), id, year)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<div class="error">Eintrag nicht gefunden</div>`))
			return
		}
		slog.ErrorContext(r.Context(), "Schedule error", "error", err, "id", id, "year", year)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<div class="error">Fehler beim Laden</div>`))
		return
	}

	type row struct {
		Year      string
		Months    int
		Rate      string
		Deduction string
		Current   bool
	}
	data := struct {
		Type      string
		Rows      []row
		Total     string
		BookValue string
	}{
		Type:      string(schedule.Type),
		Total:     formatEuros(schedule.Total),
		BookValue: formatEuros(schedule.BookValue),
	}
	for _, y := range schedule.Years {
		data.Rows = append(data.Rows, row{
			Year:      strconv.Itoa(y.Year),
			Months:    y.Months,
			Rate:      formatEuros(y.MonthlyRate),
			Deduction: formatEuros(y.Deduction),
			Current:   y.IsCurrentYear,
		})
	}
	if err := s.templates.ExecuteTemplate(w, "schedule.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "schedule.html", "id", id)
		_, _ = w.Write([]byte(`<div class="error">Fehler beim Rendern</div>`))
	}
}

// handleMonthlySeries serves the chart data as JSON.
func (s *Server) handleMonthlySeries(w http.ResponseWriter, r *http.Request) {
	year := parseYear(r.URL.Query().Get("year"))

	series, err := s.getSeries(r.Context(), year)
	if err != nil {
		slog.ErrorContext(r.Context(), "Monthly series error", "error", err, "year", year)
		http.Error(w, "series unavailable", http.StatusInternalServerError)
		return
	}

	type point struct {
		Month      int     `json:"month"`
		Gross      float64 `json:"gross"`
		Reimbursed float64 `json:"reimbursed"`
		Net        float64 `json:"net"`
	}
	payload := struct {
		Year   int     `json:"year"`
		Points []point `json:"points"`
	}{Year: year}
	for _, p := range series {
		payload.Points = append(payload.Points, point{
			Month:      p.Month,
			Gross:      p.Gross,
			Reimbursed: p.Reimbursed,
			Net:        p.Net,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.ErrorContext(r.Context(), "Series encode error", "error", err, "year", year)
	}
}

// handleTrips creates a trip on POST and removes one on DELETE.
func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateTrip(w, r)
	case http.MethodDelete:
		s.handleDeleteTrip(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.ErrorContext(r.Context(), "Parse form error", "error", err, "url", r.URL.Path)
		writeFormError(w, http.StatusBadRequest, "Ungültige Anfrage")
		return
	}

	start, err := parseDateTime(r.Form.Get("start"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Beginn")
		return
	}

	in := services.TripInput{Start: start}
	if v := r.Form.Get("end"); v != "" {
		end, err := parseDateTime(v)
		if err != nil {
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültiges Ende")
			return
		}
		in.End = &end
	}
	if v := r.Form.Get("reimbursement"); v != "" {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültige Spesen")
			return
		}
		in.Reimbursement = core.Money{Cents: cents}
	}

	kinds := r.Form["transport_kind"]
	distances := r.Form["transport_distance"]
	tickets := r.Form["ticket_amount"]
	for i, kind := range kinds {
		leg := services.TransportInput{Kind: core.TransportKind(kind)}
		if i < len(distances) && distances[i] != "" {
			km, err := strconv.ParseFloat(distances[i], 64)
			if err != nil {
				writeFormError(w, http.StatusUnprocessableEntity, "Ungültige Entfernung")
				return
			}
			leg.DistanceKm = km
		}
		if i < len(tickets) && tickets[i] != "" {
			cents, err := core.ParseDecimalToCents(tickets[i])
			if err != nil {
				writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Ticketpreis")
				return
			}
			leg.TicketAmount = core.Money{Cents: cents}
		}
		in.Transports = append(in.Transports, leg)
	}

	id, err := s.trips.CreateTrip(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOngoingTripExists):
			writeFormError(w, http.StatusConflict, "Es läuft bereits eine Fahrt")
		case errors.Is(err, services.ErrTripOverlap):
			writeFormError(w, http.StatusConflict, "Die Fahrt überschneidet sich mit einer bestehenden")
		case errors.Is(err, core.ErrEndBeforeStart), errors.Is(err, core.ErrZeroDate):
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Zeitraum")
		default:
			slog.ErrorContext(r.Context(), "Trip create error", "error", err)
			writeFormError(w, http.StatusInternalServerError, "Fehler beim Speichern")
		}
		return
	}

	s.invalidateYear(start.Year())
	s.fireChanged(w, start.Year())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Fahrt gespeichert (#` + strconv.FormatInt(id, 10) + `)</div>`))
}

func (s *Server) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige ID")
		return
	}

	year, err := s.trips.DeleteTrip(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeFormError(w, http.StatusNotFound, "Fahrt nicht gefunden")
			return
		}
		slog.ErrorContext(r.Context(), "Trip delete error", "error", err, "id", id)
		writeFormError(w, http.StatusInternalServerError, "Fehler beim Löschen")
		return
	}

	s.invalidateYear(year)
	s.fireChanged(w, year)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Fahrt gelöscht</div>`))
}

// handleFinishTrip completes the ongoing trip.
func (s *Server) handleFinishTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige Anfrage")
		return
	}

	end, err := parseDateTime(r.Form.Get("end"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiges Ende")
		return
	}
	var reimbursement core.Money
	if v := r.Form.Get("reimbursement"); v != "" {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültige Spesen")
			return
		}
		reimbursement = core.Money{Cents: cents}
	}

	id, err := s.trips.FinishTrip(r.Context(), end, reimbursement)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoOngoingTrip):
			writeFormError(w, http.StatusConflict, "Keine laufende Fahrt")
		case errors.Is(err, core.ErrEndBeforeStart):
			writeFormError(w, http.StatusUnprocessableEntity, "Ende liegt vor dem Beginn")
		default:
			slog.ErrorContext(r.Context(), "Trip finish error", "error", err)
			writeFormError(w, http.StatusInternalServerError, "Fehler beim Speichern")
		}
		return
	}

	s.invalidateYear(end.Year())
	s.fireChanged(w, end.Year())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Fahrt abgeschlossen (#` + strconv.FormatInt(id, 10) + `)</div>`))
}

// handleEquipment creates an equipment purchase on POST and removes one
// on DELETE.
func (s *Server) handleEquipment(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		s.handleDeleteEquipment(w, r)
		return
	default:
		w.Header().Set("Allow", "POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige Anfrage")
		return
	}

	date, err := parseDate(r.Form.Get("date"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiges Datum")
		return
	}
	cents, err := core.ParseDecimalToCents(r.Form.Get("price"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Preis")
		return
	}

	entry := core.EquipmentEntry{
		Date:            date,
		Price:           core.Money{Cents: cents},
		Description:     sanitizeInput(r.Form.Get("description")),
		ReceiptFileName: sanitizeInput(r.Form.Get("receipt")),
	}
	id, err := s.entries.CreateEquipment(r.Context(), entry)
	if err != nil {
		if errors.Is(err, core.ErrEmptyDescription) || errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrZeroDate) {
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültige Eingaben: "+template.HTMLEscapeString(err.Error()))
			return
		}
		slog.ErrorContext(r.Context(), "Equipment create error", "error", err)
		writeFormError(w, http.StatusInternalServerError, "Fehler beim Speichern")
		return
	}

	s.invalidateAllYears()
	s.fireChanged(w, date.Year())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Arbeitsmittel gespeichert (#` + strconv.FormatInt(id, 10) + `)</div>`))
}

func (s *Server) handleDeleteEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige ID")
		return
	}

	year, err := s.entries.DeleteEquipment(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeFormError(w, http.StatusNotFound, "Eintrag nicht gefunden")
			return
		}
		slog.ErrorContext(r.Context(), "Equipment delete error", "error", err, "id", id)
		writeFormError(w, http.StatusInternalServerError, "Fehler beim Löschen")
		return
	}

	// Depreciation spans years, so every cached year goes.
	s.invalidateAllYears()
	s.fireChanged(w, year)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Arbeitsmittel gelöscht</div>`))
}

// handleReimbursements records one month's employer payments. A duplicate
// month answers 409.
func (s *Server) handleReimbursements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		s.handleDeleteReimbursement(w, r)
		return
	default:
		w.Header().Set("Allow", "POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige Anfrage")
		return
	}

	year, err := strconv.Atoi(r.Form.Get("year"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiges Jahr")
		return
	}
	month, err := strconv.Atoi(r.Form.Get("month"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Monat")
		return
	}
	cents, err := core.ParseDecimalToCents(r.Form.Get("amount"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Betrag")
		return
	}

	m := core.MonthlyReimbursement{
		Year:   year,
		Month:  month,
		Amount: core.Money{Cents: cents},
		Note:   sanitizeInput(r.Form.Get("note")),
	}
	if _, err := s.entries.CreateReimbursement(r.Context(), m); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateMonth):
			writeFormError(w, http.StatusConflict, "Für diesen Monat sind bereits Spesen erfasst")
		case errors.Is(err, core.ErrInvalidMonth), errors.Is(err, core.ErrInvalidYear), errors.Is(err, core.ErrInvalidAmount):
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültige Eingaben: "+template.HTMLEscapeString(err.Error()))
		default:
			slog.ErrorContext(r.Context(), "Reimbursement create error", "error", err)
			writeFormError(w, http.StatusInternalServerError, "Fehler beim Speichern")
		}
		return
	}

	s.invalidateYear(year)
	s.fireChanged(w, year)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Spesen erfasst</div>`))
}

func (s *Server) handleDeleteReimbursement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige ID")
		return
	}

	if err := s.entries.DeleteReimbursement(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeFormError(w, http.StatusNotFound, "Eintrag nicht gefunden")
			return
		}
		slog.ErrorContext(r.Context(), "Reimbursement delete error", "error", err, "id", id)
		writeFormError(w, http.StatusInternalServerError, "Fehler beim Löschen")
		return
	}

	year := parseYear(r.URL.Query().Get("year"))
	s.invalidateYear(year)
	s.fireChanged(w, year)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Spesen gelöscht</div>`))
}

// handleExpenses records a personal expense. These never reach the
// deductible totals.
func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige Anfrage")
		return
	}

	date, err := parseDate(r.Form.Get("date"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiges Datum")
		return
	}
	cents, err := core.ParseDecimalToCents(r.Form.Get("amount"))
	if err != nil {
		writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Betrag")
		return
	}

	entry := core.ExpenseEntry{
		Date:        date,
		Amount:      core.Money{Cents: cents},
		Description: sanitizeInput(r.Form.Get("description")),
	}
	if _, err := s.entries.CreateExpense(r.Context(), entry); err != nil {
		if errors.Is(err, core.ErrEmptyDescription) || errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrZeroDate) {
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültige Eingaben: "+template.HTMLEscapeString(err.Error()))
			return
		}
		slog.ErrorContext(r.Context(), "Expense create error", "error", err)
		writeFormError(w, http.StatusInternalServerError, "Fehler beim Speichern")
		return
	}

	s.invalidateYear(date.Year())
	s.fireChanged(w, date.Year())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Ausgabe erfasst</div>`))
}

// handleRates updates the tax rate configuration. The change applies
// retroactively to every displayed year, so all cached aggregates go.
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeFormError(w, http.StatusBadRequest, "Ungültige Anfrage")
		return
	}

	rates := core.TaxRateConfig{}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"meal_rate_8h", &rates.MealRate8h},
		{"meal_rate_24h", &rates.MealRate24h},
		{"mileage_rate_car", &rates.MileageRateCar},
		{"mileage_rate_motorcycle", &rates.MileageRateMotorcycle},
		{"mileage_rate_bike", &rates.MileageRateBike},
		{"gwg_limit", &rates.GWGLimit},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(r.Form.Get(f.name), 64)
		if err != nil {
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültiger Wert für "+f.name)
			return
		}
		*f.dst = v
	}

	if err := s.entries.UpdateTaxRates(r.Context(), rates); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			writeFormError(w, http.StatusUnprocessableEntity, "Ungültige Sätze")
			return
		}
		slog.ErrorContext(r.Context(), "Rates update error", "error", err)
		writeFormError(w, http.StatusInternalServerError, "Fehler beim Speichern")
		return
	}

	s.invalidateAllYears()
	s.fireChanged(w, time.Now().Year())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<div class="success">Sätze aktualisiert</div>`))
}

// fireChanged notifies the HTMX frontend that aggregates for a year are
// stale.
func (s *Server) fireChanged(w http.ResponseWriter, year int) {
	w.Header().Set("HX-Trigger", `{"entries:changed": {"year": `+strconv.Itoa(year)+`}}`)
}
