package export

import (
	"context"
	"fmt"
	"time"
)

// ReportRow is one exported entry in a yearly report sheet.
type ReportRow struct {
	Kind        string
	ID          int64
	Date        time.Time
	Description string
	Amount      float64 // euros
}

// Ref is the stable key used to find a row again for deletion.
func (r ReportRow) Ref() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Year of the report sheet the row belongs to.
func (r ReportRow) Year() int {
	return r.Date.Year()
}

// Ports for outbound adapters.
type (
	RowWriter interface {
		Append(ctx context.Context, row ReportRow) (rowRef string, err error)
	}

	RowDeleter interface {
		// Delete removes every row carrying the given ref from the year's
		// sheet. Deleting an absent ref is not an error.
		Delete(ctx context.Context, year int, ref string) error
	}
)
