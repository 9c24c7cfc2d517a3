package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spesen/internal/core"
	"spesen/internal/taxcalc"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateMonth = errors.New("reimbursement for this month already exists")
)

const timeLayout = time.RFC3339

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Cascade deletes on transport allowances depend on this.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTrip inserts a trip and its transport allowance records in one
// transaction and returns the trip id.
func (r *SQLiteRepository) CreateTrip(ctx context.Context, t core.TripEntry, allowances []core.TransportAllowance) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO trips (start_at, end_at, meal_allowance_cents, transport_allowance_cents)
		 VALUES (?, ?, ?, ?)`,
		t.Start.UTC().Format(timeLayout), formatNullableTime(t.End),
		t.MealAllowance.Cents, t.TransportAllowances.Cents)
	if err != nil {
		return 0, fmt.Errorf("insert trip: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("trip id: %w", err)
	}

	for _, a := range allowances {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transport_allowances (trip_id, kind, distance_km, amount_cents)
			 VALUES (?, ?, ?, ?)`,
			id, string(a.Kind), a.DistanceKm, a.Amount.Cents); err != nil {
			return 0, fmt.Errorf("insert transport allowance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit trip: %w", err)
	}

	slog.InfoContext(ctx, "Trip saved",
		"id", id,
		"start", t.Start.Format(timeLayout),
		"ongoing", t.Ongoing(),
		"meal_allowance_cents", t.MealAllowance.Cents,
		"transport_records", len(allowances))

	return id, nil
}

// FinishTrip completes the ongoing trip with its end time and the netted
// meal allowance computed by the service layer.
func (r *SQLiteRepository) FinishTrip(ctx context.Context, id int64, end time.Time, mealAllowance core.Money) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE trips SET end_at = ?, meal_allowance_cents = ? WHERE id = ? AND end_at IS NULL`,
		end.UTC().Format(timeLayout), mealAllowance.Cents, id)
	if err != nil {
		return fmt.Errorf("finish trip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTrip removes a trip; its transport allowance records go with it
// via the foreign key cascade.
func (r *SQLiteRepository) DeleteTrip(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	slog.InfoContext(ctx, "Trip deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) GetTrip(ctx context.Context, id int64) (core.TripEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, start_at, end_at, meal_allowance_cents, transport_allowance_cents
		 FROM trips WHERE id = ?`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TripEntry{}, ErrNotFound
	}
	if err != nil {
		return core.TripEntry{}, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

// OngoingTrip returns the trip without an end time, or nil when none
// exists. The service layer keeps this unique.
func (r *SQLiteRepository) OngoingTrip(ctx context.Context) (*core.TripEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, start_at, end_at, meal_allowance_cents, transport_allowance_cents
		 FROM trips WHERE end_at IS NULL LIMIT 1`)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ongoing trip: %w", err)
	}
	return &t, nil
}

func (r *SQLiteRepository) ListTrips(ctx context.Context) ([]core.TripEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, start_at, end_at, meal_allowance_cents, transport_allowance_cents
		 FROM trips ORDER BY start_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var trips []core.TripEntry
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// ListTripsOverlapping returns completed trips intersecting [start, end).
// Ranges are half-open: a trip ending exactly at start (or starting
// exactly at end) does not overlap. The ongoing trip is excluded; it is
// checked separately.
func (r *SQLiteRepository) ListTripsOverlapping(ctx context.Context, start, end time.Time) ([]core.TripEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, start_at, end_at, meal_allowance_cents, transport_allowance_cents
		 FROM trips WHERE end_at IS NOT NULL AND start_at < ? AND end_at > ?`,
		end.UTC().Format(timeLayout), start.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list overlapping trips: %w", err)
	}
	defer rows.Close()

	var trips []core.TripEntry
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

func (r *SQLiteRepository) ListTransportAllowances(ctx context.Context, tripID int64) ([]core.TransportAllowance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trip_id, kind, distance_km, amount_cents
		 FROM transport_allowances WHERE trip_id = ? ORDER BY id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list transport allowances: %w", err)
	}
	defer rows.Close()

	var allowances []core.TransportAllowance
	for rows.Next() {
		var a core.TransportAllowance
		var kind string
		if err := rows.Scan(&a.ID, &a.TripID, &kind, &a.DistanceKm, &a.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan transport allowance: %w", err)
		}
		a.Kind = core.TransportKind(kind)
		allowances = append(allowances, a)
	}
	return allowances, rows.Err()
}

func (r *SQLiteRepository) CreateEquipment(ctx context.Context, e core.EquipmentEntry) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO equipment (purchased_on, price_cents, description, receipt_file_name)
		 VALUES (?, ?, ?, ?)`,
		e.Date.UTC().Format(timeLayout), e.Price.Cents, e.Description, e.ReceiptFileName)
	if err != nil {
		return 0, fmt.Errorf("insert equipment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("equipment id: %w", err)
	}
	slog.InfoContext(ctx, "Equipment saved",
		"id", id,
		"description", e.Description,
		"price_cents", e.Price.Cents)
	return id, nil
}

func (r *SQLiteRepository) DeleteEquipment(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM equipment WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete equipment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetEquipment(ctx context.Context, id int64) (core.EquipmentEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, purchased_on, price_cents, description, receipt_file_name
		 FROM equipment WHERE id = ?`, id)
	e, err := scanEquipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EquipmentEntry{}, ErrNotFound
	}
	if err != nil {
		return core.EquipmentEntry{}, fmt.Errorf("get equipment: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListEquipment(ctx context.Context) ([]core.EquipmentEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, purchased_on, price_cents, description, receipt_file_name
		 FROM equipment ORDER BY purchased_on DESC`)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	defer rows.Close()

	var entries []core.EquipmentEntry
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) CreateReimbursement(ctx context.Context, m core.MonthlyReimbursement) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reimbursements (year, month, amount_cents, note) VALUES (?, ?, ?, ?)`,
		m.Year, m.Month, m.Amount.Cents, m.Note)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, ErrDuplicateMonth
		}
		return 0, fmt.Errorf("insert reimbursement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reimbursement id: %w", err)
	}
	slog.InfoContext(ctx, "Reimbursement saved",
		"id", id, "year", m.Year, "month", m.Month, "amount_cents", m.Amount.Cents)
	return id, nil
}

func (r *SQLiteRepository) DeleteReimbursement(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reimbursements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reimbursement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListReimbursements(ctx context.Context) ([]core.MonthlyReimbursement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, year, month, amount_cents, note FROM reimbursements ORDER BY year, month`)
	if err != nil {
		return nil, fmt.Errorf("list reimbursements: %w", err)
	}
	defer rows.Close()

	var entries []core.MonthlyReimbursement
	for rows.Next() {
		var m core.MonthlyReimbursement
		if err := rows.Scan(&m.ID, &m.Year, &m.Month, &m.Amount.Cents, &m.Note); err != nil {
			return nil, fmt.Errorf("scan reimbursement: %w", err)
		}
		entries = append(entries, m)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.ExpenseEntry) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (spent_on, amount_cents, description) VALUES (?, ?, ?)`,
		e.Date.UTC().Format(timeLayout), e.Amount.Cents, e.Description)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.ExpenseEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, spent_on, amount_cents, description FROM expenses ORDER BY spent_on DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var entries []core.ExpenseEntry
	for rows.Next() {
		var e core.ExpenseEntry
		var spentOn string
		if err := rows.Scan(&e.ID, &spentOn, &e.Amount.Cents, &e.Description); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = time.Parse(timeLayout, spentOn); err != nil {
			return nil, fmt.Errorf("parse expense date: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetTaxRates reads the single current rate configuration. Every caller
// gets the live row, so an edit retroactively changes all displayed years.
func (r *SQLiteRepository) GetTaxRates(ctx context.Context) (core.TaxRateConfig, error) {
	var c core.TaxRateConfig
	err := r.db.QueryRowContext(ctx,
		`SELECT meal_rate_8h, meal_rate_24h, mileage_rate_car, mileage_rate_motorcycle, mileage_rate_bike, gwg_limit
		 FROM tax_rates WHERE id = 1`).
		Scan(&c.MealRate8h, &c.MealRate24h, &c.MileageRateCar, &c.MileageRateMotorcycle, &c.MileageRateBike, &c.GWGLimit)
	if err != nil {
		return core.TaxRateConfig{}, fmt.Errorf("get tax rates: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateTaxRates(ctx context.Context, c core.TaxRateConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE tax_rates SET meal_rate_8h = ?, meal_rate_24h = ?, mileage_rate_car = ?,
		 mileage_rate_motorcycle = ?, mileage_rate_bike = ?, gwg_limit = ? WHERE id = 1`,
		c.MealRate8h, c.MealRate24h, c.MileageRateCar, c.MileageRateMotorcycle, c.MileageRateBike, c.GWGLimit)
	if err != nil {
		return fmt.Errorf("update tax rates: %w", err)
	}
	slog.InfoContext(ctx, "Tax rates updated", "gwg_limit", c.GWGLimit)
	return nil
}

// Snapshot loads all entry collections for the calculation engine.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (taxcalc.Snapshot, error) {
	var snap taxcalc.Snapshot
	var err error

	if snap.Trips, err = r.ListTrips(ctx); err != nil {
		return snap, err
	}
	if snap.Equipment, err = r.ListEquipment(ctx); err != nil {
		return snap, err
	}
	if snap.Reimbursements, err = r.ListReimbursements(ctx); err != nil {
		return snap, err
	}
	if snap.Expenses, err = r.ListExpenses(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (core.TripEntry, error) {
	var t core.TripEntry
	var startAt string
	var endAt sql.NullString
	if err := row.Scan(&t.ID, &startAt, &endAt, &t.MealAllowance.Cents, &t.TransportAllowances.Cents); err != nil {
		return t, err
	}
	start, err := time.Parse(timeLayout, startAt)
	if err != nil {
		return t, fmt.Errorf("parse trip start: %w", err)
	}
	t.Start = start
	if endAt.Valid {
		end, err := time.Parse(timeLayout, endAt.String)
		if err != nil {
			return t, fmt.Errorf("parse trip end: %w", err)
		}
		t.End = &end
	}
	return t, nil
}

func scanEquipment(row rowScanner) (core.EquipmentEntry, error) {
	var e core.EquipmentEntry
	var purchasedOn string
	if err := row.Scan(&e.ID, &purchasedOn, &e.Price.Cents, &e.Description, &e.ReceiptFileName); err != nil {
		return e, err
	}
	date, err := time.Parse(timeLayout, purchasedOn)
	if err != nil {
		return e, fmt.Errorf("parse purchase date: %w", err)
	}
	e.Date = date
	return e, nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}
