package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spesen/internal/amqp"
	"spesen/internal/core"
	"spesen/internal/storage"
	"spesen/internal/taxcalc"
)

var (
	ErrOngoingTripExists = errors.New("an ongoing trip already exists")
	ErrNoOngoingTrip     = errors.New("no ongoing trip to finish")
	ErrTripOverlap       = errors.New("trip overlaps an existing trip")
)

// TransportInput is one transport leg from the trip form. TicketAmount is
// only read for ticket legs; mileage legs use DistanceKm and the current
// per-km rate.
type TransportInput struct {
	Kind         core.TransportKind
	DistanceKm   float64
	TicketAmount core.Money
}

// TripInput is the trip form payload. A nil End starts an ongoing trip.
// Reimbursement is what the employer already paid for this trip; it is
// netted against the per-diem before anything is stored.
type TripInput struct {
	Start         time.Time
	End           *time.Time
	Reimbursement core.Money
	Transports    []TransportInput
}

// TripService orchestrates trip operations across SQLite and AMQP.
type TripService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewTripService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *TripService {
	return &TripService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// CreateTrip validates the trip against existing ones, computes the netted
// meal allowance and the transport amounts, saves everything in one
// transaction and publishes a sync message.
func (s *TripService) CreateTrip(ctx context.Context, in TripInput) (int64, error) {
	if in.Start.IsZero() {
		return 0, core.ErrZeroDate
	}
	if in.End != nil && !in.End.After(in.Start) {
		return 0, core.ErrEndBeforeStart
	}

	if err := s.checkConflicts(ctx, in.Start, in.End); err != nil {
		return 0, err
	}

	rates, err := s.storage.GetTaxRates(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tax rates: %w", err)
	}

	trip := core.TripEntry{Start: in.Start, End: in.End}
	if in.End != nil {
		trip.MealAllowance = netMealAllowance(in.Start, *in.End, in.Reimbursement, rates)
	}

	allowances := buildTransportAllowances(in.Transports, rates)
	for _, a := range allowances {
		trip.TransportAllowances.Cents += a.Amount.Cents
	}

	id, err := s.storage.CreateTrip(ctx, trip, allowances)
	if err != nil {
		return 0, fmt.Errorf("save trip: %w", err)
	}

	s.publishSync(ctx, amqp.KindTrip, id)
	return id, nil
}

// FinishTrip completes the ongoing trip. The meal allowance is computed
// from the full duration and netted against the reimbursement.
func (s *TripService) FinishTrip(ctx context.Context, end time.Time, reimbursement core.Money) (int64, error) {
	ongoing, err := s.storage.OngoingTrip(ctx)
	if err != nil {
		return 0, fmt.Errorf("load ongoing trip: %w", err)
	}
	if ongoing == nil {
		return 0, ErrNoOngoingTrip
	}
	if !end.After(ongoing.Start) {
		return 0, core.ErrEndBeforeStart
	}

	rates, err := s.storage.GetTaxRates(ctx)
	if err != nil {
		return 0, fmt.Errorf("load tax rates: %w", err)
	}

	allowance := netMealAllowance(ongoing.Start, end, reimbursement, rates)
	if err := s.storage.FinishTrip(ctx, ongoing.ID, end, allowance); err != nil {
		return 0, fmt.Errorf("finish trip: %w", err)
	}

	s.publishSync(ctx, amqp.KindTrip, ongoing.ID)
	return ongoing.ID, nil
}

// DeleteTrip removes a trip and its transport records, then publishes a
// delete message. The trip is loaded first because the delete message
// and the caller's cache invalidation both need the trip's year, which
// it returns.
func (s *TripService) DeleteTrip(ctx context.Context, id int64) (int, error) {
	trip, err := s.storage.GetTrip(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load trip: %w", err)
	}
	if err := s.storage.DeleteTrip(ctx, id); err != nil {
		return 0, fmt.Errorf("delete trip: %w", err)
	}

	year := trip.Start.Year()
	if s.amqpClient != nil {
		if err := s.amqpClient.PublishEntryDelete(ctx, amqp.KindTrip, id, year); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete message",
				"kind", amqp.KindTrip, "id", id, "error", err)
			// Don't fail the request - trip is deleted locally
		}
	}
	return year, nil
}

func (s *TripService) OngoingTrip(ctx context.Context) (*core.TripEntry, error) {
	return s.storage.OngoingTrip(ctx)
}

// checkConflicts rejects a second ongoing trip and any time overlap with
// completed trips or with the ongoing one.
func (s *TripService) checkConflicts(ctx context.Context, start time.Time, end *time.Time) error {
	ongoing, err := s.storage.OngoingTrip(ctx)
	if err != nil {
		return fmt.Errorf("check ongoing trip: %w", err)
	}
	if end == nil {
		if ongoing != nil {
			return ErrOngoingTripExists
		}
	} else if ongoing != nil && ongoing.Start.Before(*end) {
		return ErrTripOverlap
	}

	rangeEnd := start
	if end != nil {
		rangeEnd = *end
	}
	overlapping, err := s.storage.ListTripsOverlapping(ctx, start, rangeEnd)
	if err != nil {
		return fmt.Errorf("check trip overlap: %w", err)
	}
	if len(overlapping) > 0 {
		return ErrTripOverlap
	}
	return nil
}

func (s *TripService) publishSync(ctx context.Context, kind string, id int64) {
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

// netMealAllowance nets the computed per-diem against the trip's own
// reimbursement, floored at zero. The monthly floor in the series is a
// separate mechanism.
func netMealAllowance(start, end time.Time, reimbursement core.Money, rates core.TaxRateConfig) core.Money {
	allowance := taxcalc.MealAllowance(start, end, rates)
	net := allowance.Rate - reimbursement.Euros()
	if net < 0 {
		net = 0
	}
	return core.FromEuros(net)
}

func buildTransportAllowances(inputs []TransportInput, rates core.TaxRateConfig) []core.TransportAllowance {
	var allowances []core.TransportAllowance
	for _, in := range inputs {
		amount := taxcalc.TransportAmount(in.Kind, in.DistanceKm, in.TicketAmount.Euros(), rates)
		if amount <= 0 {
			continue
		}
		allowances = append(allowances, core.TransportAllowance{
			Kind:       in.Kind,
			DistanceKm: in.DistanceKm,
			Amount:     core.FromEuros(amount),
		})
	}
	return allowances
}

// Close closes both storage and AMQP connections.
func (s *TripService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close trip service: %v", errs)
	}

	return nil
}
