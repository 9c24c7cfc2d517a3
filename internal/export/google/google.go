package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"spesen/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client writes report rows to a yearly Google Sheets tab named
// "<year> <base>", e.g. "2024 Bericht".
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// Ensure interface conformance
var (
	_ export.RowWriter  = (*Client)(nil)
	_ export.RowDeleter = (*Client)(nil)
)

// New creates a Sheets client using service account credentials.
// Auth comes from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Bericht"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) sheetName(year int) string {
	return fmt.Sprintf("%d %s", year, c.sheetBase)
}

// Append writes the row below the last used row of the year's sheet.
// Columns: date, kind, description, amount in euros, ref key.
func (c *Client) Append(ctx context.Context, row export.ReportRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.sheetName(row.Year())
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", sheet, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:E%d", sheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		row.Date.Format("2006-01-02"),
		row.Kind,
		row.Description,
		row.Amount,
		row.Ref(),
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", dataRange, err)
	}

	return dataRange, nil
}

// Delete clears every row of the year's sheet whose ref column matches.
func (c *Client) Delete(ctx context.Context, year int, ref string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := c.sheetName(year)
	rng := fmt.Sprintf("%s!E:E", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read refs from %s: %w", sheet, err)
	}

	empty := &gsheet.ValueRange{Values: [][]any{{"", "", "", "", ""}}}
	for i, row := range resp.Values {
		if len(row) == 0 || strings.TrimSpace(fmt.Sprint(row[0])) != ref {
			continue
		}
		dataRange := fmt.Sprintf("%s!A%d:E%d", sheet, i+1, i+1)
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, empty).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("clear %s: %w", dataRange, err)
		}
	}
	return nil
}
