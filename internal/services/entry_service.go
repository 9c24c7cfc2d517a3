package services

import (
	"context"
	"fmt"
	"log/slog"

	"spesen/internal/amqp"
	"spesen/internal/core"
	"spesen/internal/storage"
)

// EntryService orchestrates equipment, reimbursement, expense and rate
// operations. Equipment changes are mirrored to the report sheet; the
// other entities stay local.
type EntryService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewEntryService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *EntryService {
	return &EntryService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

func (s *EntryService) CreateEquipment(ctx context.Context, e core.EquipmentEntry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateEquipment(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save equipment: %w", err)
	}

	s.publishSync(ctx, amqp.KindEquipment, id)
	return id, nil
}

// DeleteEquipment removes an equipment entry and returns its purchase
// year for the caller's cache invalidation.
func (s *EntryService) DeleteEquipment(ctx context.Context, id int64) (int, error) {
	entry, err := s.storage.GetEquipment(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load equipment: %w", err)
	}
	if err := s.storage.DeleteEquipment(ctx, id); err != nil {
		return 0, fmt.Errorf("delete equipment: %w", err)
	}

	year := entry.Date.Year()
	if s.amqpClient != nil {
		if err := s.amqpClient.PublishEntryDelete(ctx, amqp.KindEquipment, id, year); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete message",
				"kind", amqp.KindEquipment, "id", id, "error", err)
			// Don't fail the request - equipment is deleted locally
		}
	}
	return year, nil
}

// CreateReimbursement records one month's employer payments. The storage
// layer maps the unique month constraint to ErrDuplicateMonth.
func (s *EntryService) CreateReimbursement(ctx context.Context, m core.MonthlyReimbursement) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateReimbursement(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("save reimbursement: %w", err)
	}
	return id, nil
}

func (s *EntryService) DeleteReimbursement(ctx context.Context, id int64) error {
	return s.storage.DeleteReimbursement(ctx, id)
}

func (s *EntryService) CreateExpense(ctx context.Context, e core.ExpenseEntry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}
	return id, nil
}

func (s *EntryService) DeleteExpense(ctx context.Context, id int64) error {
	return s.storage.DeleteExpense(ctx, id)
}

func (s *EntryService) TaxRates(ctx context.Context) (core.TaxRateConfig, error) {
	return s.storage.GetTaxRates(ctx)
}

// UpdateTaxRates replaces the single rate configuration. The change is
// retroactive: every later calculation uses the new rates for all years.
func (s *EntryService) UpdateTaxRates(ctx context.Context, c core.TaxRateConfig) error {
	if err := s.storage.UpdateTaxRates(ctx, c); err != nil {
		return fmt.Errorf("update tax rates: %w", err)
	}
	return nil
}

func (s *EntryService) publishSync(ctx context.Context, kind string, id int64) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return
	}
	if err := s.amqpClient.PublishEntrySync(ctx, kind, id, 1); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"kind", kind, "id", id, "error", err)
		// Don't fail the request - the entry is saved locally
	}
}
