package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// parseYear returns the given year or the current one when empty or
// malformed.
func parseYear(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Now().Year()
	}
	year, err := strconv.Atoi(v)
	if err != nil || year < 1900 || year > 3000 {
		return time.Now().Year()
	}
	return year
}

// parseDateTime accepts the datetime-local input format with an RFC3339
// fallback.
func parseDateTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", v)
}

// parseDate accepts a plain date input.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	return t, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func writeFormError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`<div class="error">` + msg + `</div>`))
}

// invalidateAllYears drops every cached aggregate. Equipment and rate
// changes reach into multiple years through the depreciation window.
func (s *Server) invalidateAllYears() {
	s.kpisCache.Clear()
	s.seriesCache.Clear()
}

// formatEuros renders a euro amount with comma decimals.
func formatEuros(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	s = strings.Replace(s, ".", ",", 1)
	if neg {
		return "-" + s + " €"
	}
	return s + " €"
}
