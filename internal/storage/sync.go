package storage

import (
	"context"
	"fmt"
	"time"
)

// Sync states for the report export. New entries start as pending; the
// export worker moves them to synced or error.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// PendingEntry identifies one entry awaiting export.
type PendingEntry struct {
	Kind string // "trip" or "equipment"
	ID   int64
}

// ListPendingSync returns up to limit entries that still need exporting.
// Ongoing trips are excluded; they are exported once finished.
func (r *SQLiteRepository) ListPendingSync(ctx context.Context, limit int) ([]PendingEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, id FROM (
		   SELECT 'trip' AS kind, id, start_at AS ord FROM trips
		     WHERE sync_status = ? AND end_at IS NOT NULL
		   UNION ALL
		   SELECT 'equipment' AS kind, id, purchased_on AS ord FROM equipment
		     WHERE sync_status = ?
		 ) ORDER BY ord LIMIT ?`,
		SyncPending, SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending sync entries: %w", err)
	}
	defer rows.Close()

	var pending []PendingEntry
	for rows.Next() {
		var p PendingEntry
		if err := rows.Scan(&p.Kind, &p.ID); err != nil {
			return nil, fmt.Errorf("scan pending entry: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkSynced records a successful export.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, kind string, id int64) error {
	return r.setSyncStatus(ctx, kind, id, SyncDone)
}

// MarkSyncError flags an entry whose export failed so the sweep retries
// do not hide it forever.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, kind string, id int64) error {
	return r.setSyncStatus(ctx, kind, id, SyncError)
}

// MarkSyncPending resets an entry for re-export, used when it changes
// after having been synced.
func (r *SQLiteRepository) MarkSyncPending(ctx context.Context, kind string, id int64) error {
	return r.setSyncStatus(ctx, kind, id, SyncPending)
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, kind string, id int64, status string) error {
	table, err := syncTable(kind)
	if err != nil {
		return err
	}

	var syncedAt any
	if status == SyncDone {
		syncedAt = time.Now().UTC().Format(timeLayout)
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET sync_status = ?, synced_at = ? WHERE id = ?`, table),
		status, syncedAt, id)
	if err != nil {
		return fmt.Errorf("set sync status: %w", err)
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

func syncTable(kind string) (string, error) {
	switch kind {
	case "trip":
		return "trips", nil
	case "equipment":
		return "equipment", nil
	default:
		return "", fmt.Errorf("unknown sync kind %q", kind)
	}
}
