package memory

import (
	"context"
	"testing"
	"time"

	"spesen/internal/export"
)

func TestAppendAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	row := export.ReportRow{
		Kind:        "trip",
		ID:          1,
		Date:        time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Description: "Fahrt",
		Amount:      56,
	}
	ref, err := s.Append(ctx, row)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "trip:1" {
		t.Errorf("ref = %q, want trip:1", ref)
	}

	other := row
	other.ID = 2
	if _, err := s.Append(ctx, other); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := len(s.Rows(2024)); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}

	if err := s.Delete(ctx, 2024, "trip:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows := s.Rows(2024)
	if len(rows) != 1 || rows[0].ID != 2 {
		t.Errorf("rows after delete = %+v", rows)
	}

	// Deleting an absent ref is a no-op.
	if err := s.Delete(ctx, 2024, "trip:99"); err != nil {
		t.Errorf("delete absent: %v", err)
	}
}
