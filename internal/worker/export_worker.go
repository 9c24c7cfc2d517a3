package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spesen/internal/amqp"
	"spesen/internal/core"
	"spesen/internal/export"
	"spesen/internal/storage"
)

// ExportWorker mirrors trips and equipment purchases to the yearly report
// sheet. It is driven by AMQP messages, with a pending-entry sweep as
// backup in case messages are lost.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	writer    export.RowWriter
	deleter   export.RowDeleter
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, writer export.RowWriter, deleter export.RowDeleter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		writer:    writer,
		deleter:   deleter,
		batchSize: batchSize,
	}
}

// HandleSyncMessage exports one entry. A sync message for a trip that is
// still ongoing is acknowledged and skipped; finishing the trip publishes
// a fresh one.
func (w *ExportWorker) HandleSyncMessage(ctx context.Context, msg *amqp.EntrySyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"kind", msg.Kind,
		"id", msg.ID,
		"version", msg.Version)

	return w.exportEntry(ctx, msg.Kind, msg.ID)
}

// HandleDeleteMessage removes the entry's row from the year's sheet.
func (w *ExportWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.EntryDeleteMessage) error {
	slog.InfoContext(ctx, "Processing delete message",
		"kind", msg.Kind,
		"id", msg.ID,
		"year", msg.Year)

	if w.deleter == nil {
		slog.WarnContext(ctx, "No row deleter configured, skipping sheet deletion",
			"kind", msg.Kind, "id", msg.ID)
		return nil
	}

	ref := export.ReportRow{Kind: msg.Kind, ID: msg.ID}.Ref()
	if err := w.deleter.Delete(ctx, msg.Year, ref); err != nil {
		return fmt.Errorf("delete row from sheet: %w", err)
	}

	slog.InfoContext(ctx, "Deleted entry from report sheet",
		"kind", msg.Kind, "id", msg.ID, "year", msg.Year)
	return nil
}

// ProcessPendingEntries exports entries that never made it to the sheet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingEntries(ctx context.Context) error {
	return w.sweep(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep at worker startup to recover from
// downtime.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	return w.sweep(ctx, w.batchSize*5)
}

func (w *ExportWorker) sweep(ctx context.Context, limit int) error {
	pending, err := w.storage.ListPendingSync(ctx, limit)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending entries", "count", len(pending))

	successCount := 0
	errorCount := 0
	for _, p := range pending {
		if err := w.exportEntry(ctx, p.Kind, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export pending entry",
				"kind", p.Kind, "id", p.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Pending sweep completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)
	return nil
}

func (w *ExportWorker) exportEntry(ctx context.Context, kind string, id int64) error {
	row, skip, err := w.buildRow(ctx, kind, id)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, kind, id); markErr != nil && !errors.Is(markErr, storage.ErrNotFound) {
			slog.ErrorContext(ctx, "Failed to mark sync error", "kind", kind, "id", id, "error", markErr)
		}
		return err
	}
	if skip {
		return nil
	}

	ref, err := w.writer.Append(ctx, row)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, kind, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "kind", kind, "id", id, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, kind, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "kind", kind, "id", id, "error", err)
		// Don't return an error - the export itself worked
	}

	slog.InfoContext(ctx, "Exported entry to report sheet",
		"kind", kind,
		"id", id,
		"sheet_ref", ref,
		"amount", row.Amount)
	return nil
}

// buildRow loads the entry and shapes its report row. skip is true for
// entries that should not be exported yet.
func (w *ExportWorker) buildRow(ctx context.Context, kind string, id int64) (export.ReportRow, bool, error) {
	switch kind {
	case amqp.KindTrip:
		trip, err := w.storage.GetTrip(ctx, id)
		if err != nil {
			return export.ReportRow{}, false, fmt.Errorf("get trip: %w", err)
		}
		if trip.Ongoing() {
			slog.InfoContext(ctx, "Trip still ongoing, skipping export", "id", id)
			return export.ReportRow{}, true, nil
		}
		amount := trip.MealAllowance.Euros() + trip.TransportAllowances.Euros()
		return export.ReportRow{
			Kind:        kind,
			ID:          id,
			Date:        trip.Start,
			Description: tripDescription(trip),
			Amount:      amount,
		}, false, nil
	case amqp.KindEquipment:
		entry, err := w.storage.GetEquipment(ctx, id)
		if err != nil {
			return export.ReportRow{}, false, fmt.Errorf("get equipment: %w", err)
		}
		return export.ReportRow{
			Kind:        kind,
			ID:          id,
			Date:        entry.Date,
			Description: entry.Description,
			Amount:      entry.Price.Euros(),
		}, false, nil
	default:
		return export.ReportRow{}, false, fmt.Errorf("unknown entry kind %q", kind)
	}
}

func tripDescription(t core.TripEntry) string {
	if t.End == nil {
		return "Fahrt"
	}
	return fmt.Sprintf("Fahrt %s bis %s",
		t.Start.Format("2006-01-02"), t.End.Format("2006-01-02"))
}
