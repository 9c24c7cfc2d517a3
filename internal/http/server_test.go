package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"spesen/internal/services"
	"spesen/internal/storage"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "spesen.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	trips := services.NewTripService(repo, nil)
	entries := services.NewEntryService(repo, nil)
	reports := services.NewReportService(repo)
	return NewServer(":0", trips, entries, reports, 5)
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(t *testing.T, srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexAndHealth(t *testing.T) {
	srv := testServer(t)

	rr := get(t, srv, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Steuerübersicht") {
		t.Fatalf("index body missing heading")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := get(t, srv, path); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	if rr := get(t, srv, "/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestKpisPartial(t *testing.T) {
	srv := testServer(t)

	rr := get(t, srv, "/ui/kpis?year=2024")
	if rr.Code != http.StatusOK {
		t.Fatalf("kpis status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Kennzahlen 2024") || !strings.Contains(body, "0,00 €") {
		t.Fatalf("unexpected kpis body: %s", body)
	}
}

func TestMonthlySeriesJSON(t *testing.T) {
	srv := testServer(t)

	rr := get(t, srv, "/api/monthly-series?year=2024")
	if rr.Code != http.StatusOK {
		t.Fatalf("series status=%d", rr.Code)
	}
	var payload struct {
		Year   int `json:"year"`
		Points []struct {
			Month int     `json:"month"`
			Net   float64 `json:"net"`
		} `json:"points"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if payload.Year != 2024 || len(payload.Points) != 12 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCreateTripFlow(t *testing.T) {
	srv := testServer(t)

	// Wrong method
	if rr := get(t, srv, "/trips"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	// Invalid start
	rr := postForm(t, srv, "/trips", url.Values{"start": {"gestern"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	// Multi-day trip with a car leg
	rr = postForm(t, srv, "/trips", url.Values{
		"start":              {"2024-05-01T08:00"},
		"end":                {"2024-05-03T18:00"},
		"transport_kind":     {"car"},
		"transport_distance": {"100"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "success") {
		t.Fatalf("expected success body: %s", rr.Body.String())
	}
	if rr.Header().Get("HX-Trigger") == "" {
		t.Fatal("expected HX-Trigger header on write")
	}

	// The KPI partial now reflects the trip (56 meal + 30 transport).
	body := get(t, srv, "/ui/kpis?year=2024").Body.String()
	if !strings.Contains(body, "86,00 €") {
		t.Fatalf("kpis missing trip total: %s", body)
	}

	// Overlapping trip is rejected.
	rr = postForm(t, srv, "/trips", url.Values{
		"start": {"2024-05-03T08:00"},
		"end":   {"2024-05-04T18:00"},
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestOngoingTripFlow(t *testing.T) {
	srv := testServer(t)

	// Finish with nothing running
	rr := postForm(t, srv, "/trips/finish", url.Values{"end": {"2024-05-01T18:00"}})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	// Start an ongoing trip
	rr = postForm(t, srv, "/trips", url.Values{"start": {"2024-05-01T06:00"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("start trip: %d: %s", rr.Code, rr.Body.String())
	}

	// A second ongoing trip conflicts
	rr = postForm(t, srv, "/trips", url.Values{"start": {"2024-06-01T06:00"}})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	// Finish it
	rr = postForm(t, srv, "/trips/finish", url.Values{"end": {"2024-05-01T16:00"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("finish trip: %d: %s", rr.Code, rr.Body.String())
	}
}

func TestReimbursementDuplicateMonth(t *testing.T) {
	srv := testServer(t)

	form := url.Values{"year": {"2024"}, "month": {"5"}, "amount": {"150"}}
	if rr := postForm(t, srv, "/reimbursements", form); rr.Code != http.StatusOK {
		t.Fatalf("first reimbursement: %d", rr.Code)
	}
	if rr := postForm(t, srv, "/reimbursements", form); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate month: expected 409, got %d", rr.Code)
	}
}

func TestEquipmentAndSchedule(t *testing.T) {
	srv := testServer(t)

	rr := postForm(t, srv, "/equipment", url.Values{
		"date":        {"2024-06-15"},
		"price":       {"1800"},
		"description": {"Navigationsgerät"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create equipment: %d: %s", rr.Code, rr.Body.String())
	}

	// Equipment above the GWG limit depreciates linearly: 300 in 2024.
	body := get(t, srv, "/ui/kpis?year=2024").Body.String()
	if !strings.Contains(body, "300,00 €") {
		t.Fatalf("kpis missing depreciation: %s", body)
	}

	rr = get(t, srv, "/ui/schedule?id=1&year=2025")
	if rr.Code != http.StatusOK {
		t.Fatalf("schedule status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Lineare Abschreibung") {
		t.Fatalf("schedule body: %s", rr.Body.String())
	}

	if rr := get(t, srv, "/ui/schedule?id=99&year=2025"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing schedule: expected 404, got %d", rr.Code)
	}
}

func TestRatesUpdate(t *testing.T) {
	srv := testServer(t)

	form := url.Values{
		"meal_rate_8h":            {"15"},
		"meal_rate_24h":           {"30"},
		"mileage_rate_car":        {"0.35"},
		"mileage_rate_motorcycle": {"0.2"},
		"mileage_rate_bike":       {"0.05"},
		"gwg_limit":               {"1000"},
	}
	if rr := postForm(t, srv, "/rates", form); rr.Code != http.StatusOK {
		t.Fatalf("update rates: %d", rr.Code)
	}

	form.Set("meal_rate_8h", "-1")
	if rr := postForm(t, srv, "/rates", form); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative rate: expected 422, got %d", rr.Code)
	}
}

func TestDeleteTripInvalidatesItsYear(t *testing.T) {
	srv := testServer(t)

	rr := postForm(t, srv, "/trips", url.Values{
		"start": {"2024-05-01T08:00"},
		"end":   {"2024-05-03T18:00"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create trip: %d: %s", rr.Code, rr.Body.String())
	}

	// Prime the 2024 cache.
	if body := get(t, srv, "/ui/kpis?year=2024").Body.String(); !strings.Contains(body, "56,00 €") {
		t.Fatalf("kpis before delete: %s", body)
	}

	// Delete without a year parameter; the handler must invalidate the
	// trip's own year, not the current one.
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/trips?id=1", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete trip: %d: %s", rr.Code, rr.Body.String())
	}

	if body := get(t, srv, "/ui/kpis?year=2024").Body.String(); strings.Contains(body, "56,00 €") {
		t.Fatalf("kpis still stale after delete: %s", body)
	}
}

func TestExtractClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.7:4711", "", "", "203.0.113.7"},
		{"untrusted peer ignores xff", "203.0.113.7:4711", "198.51.100.1", "", "203.0.113.7"},
		{"untrusted peer ignores xri", "203.0.113.7:4711", "", "198.51.100.1", "203.0.113.7"},
		{"trusted proxy honors xff", "127.0.0.1:4711", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy honors xri", "10.0.0.5:4711", "", "198.51.100.1", "198.51.100.1"},
		{"garbage xff falls back", "127.0.0.1:4711", "not-an-ip", "", "127.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}
			if got := extractClientIP(req); got != tc.want {
				t.Errorf("extractClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := parseDateTime("2024-05-01T08:00"); err != nil {
		t.Errorf("datetime-local: %v", err)
	}
	if _, err := parseDateTime("2024-05-01T08:00:00Z"); err != nil {
		t.Errorf("rfc3339: %v", err)
	}
	if _, err := parseDateTime("nope"); err == nil {
		t.Error("expected error for garbage datetime")
	}
	if _, err := parseDate("2024-06-15"); err != nil {
		t.Errorf("date: %v", err)
	}
	if y := parseYear(""); y < 2024 {
		t.Errorf("parseYear default = %d", y)
	}
	if y := parseYear("2022"); y != 2022 {
		t.Errorf("parseYear = %d", y)
	}

	if got := formatEuros(-12.3); got != "-12,30 €" {
		t.Errorf("formatEuros = %q", got)
	}
	if got := sanitizeInput("  a\x00b  "); got != "ab" {
		t.Errorf("sanitizeInput = %q", got)
	}
}
