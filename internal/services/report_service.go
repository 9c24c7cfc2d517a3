package services

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"spesen/internal/core"
	"spesen/internal/storage"
	"spesen/internal/taxcalc"
)

// ReportService feeds the calculation engine with database snapshots and
// the live tax rates. Nothing here is cached; the HTTP layer caches
// per-year results and invalidates them on writes.
type ReportService struct {
	storage *storage.SQLiteRepository
}

func NewReportService(storage *storage.SQLiteRepository) *ReportService {
	return &ReportService{storage: storage}
}

func (s *ReportService) load(ctx context.Context) (taxcalc.Snapshot, core.TaxRateConfig, error) {
	snap, err := s.storage.Snapshot(ctx)
	if err != nil {
		return taxcalc.Snapshot{}, core.TaxRateConfig{}, fmt.Errorf("load snapshot: %w", err)
	}
	rates, err := s.storage.GetTaxRates(ctx)
	if err != nil {
		return taxcalc.Snapshot{}, core.TaxRateConfig{}, fmt.Errorf("load tax rates: %w", err)
	}
	return snap, rates, nil
}

func (s *ReportService) Kpis(ctx context.Context, year int) (taxcalc.YearKpis, error) {
	snap, rates, err := s.load(ctx)
	if err != nil {
		return taxcalc.YearKpis{}, err
	}
	return taxcalc.YearlyKpis(year, snap, rates), nil
}

func (s *ReportService) Series(ctx context.Context, year int) ([12]taxcalc.MonthPoint, error) {
	snap, rates, err := s.load(ctx)
	if err != nil {
		return [12]taxcalc.MonthPoint{}, err
	}
	return taxcalc.MonthlySeries(year, snap, rates), nil
}

func (s *ReportService) Recent(ctx context.Context, limit int) ([]taxcalc.ActivityItem, error) {
	snap, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return taxcalc.RecentActivity(snap.Trips, snap.Equipment, limit), nil
}

// Schedule builds the depreciation schedule for one equipment entry as
// seen from the selected year.
func (s *ReportService) Schedule(ctx context.Context, equipmentID int64, year int) (taxcalc.Schedule, error) {
	entry, err := s.storage.GetEquipment(ctx, equipmentID)
	if err != nil {
		return taxcalc.Schedule{}, fmt.Errorf("load equipment: %w", err)
	}
	rates, err := s.storage.GetTaxRates(ctx)
	if err != nil {
		return taxcalc.Schedule{}, fmt.Errorf("load tax rates: %w", err)
	}
	return taxcalc.BuildSchedule(entry, year, rates), nil
}

// YearRange computes the KPIs for each year in [from, to], one goroutine
// per year over a shared snapshot. The engine is pure, so the fan-out is
// safe.
func (s *ReportService) YearRange(ctx context.Context, from, to int) ([]taxcalc.YearKpis, error) {
	if from > to {
		from, to = to, from
	}

	snap, rates, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]taxcalc.YearKpis, to-from+1)
	g, _ := errgroup.WithContext(ctx)
	for year := from; year <= to; year++ {
		i, y := year-from, year
		g.Go(func() error {
			results[i] = taxcalc.YearlyKpis(y, snap, rates)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Year < results[j].Year })
	return results, nil
}
