package periods

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/shared"
)

// Service answers gate checks and manages the fiscal calendar.
type Service struct {
	repo  Repository
	cache *Cache
	audit shared.AuditRecorder
	now   func() time.Time
}

func NewService(repo Repository, cache *Cache, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CanPost resolves the posting window for a date. It denies when no period
// contains the date, when the year is inactive, or when the period is locked
// or closed. The cache only short-circuits the allow path; posting re-checks
// the period row FOR UPDATE at commit time, so a decision cached just before
// a lock can never let a posting through.
func (s *Service) CanPost(ctx context.Context, companyID int64, date time.Time) (PostingWindow, error) {
	date = dateOnly(date)
	if window, ok := s.cache.Get(ctx, companyID, date); ok {
		return window, nil
	}
	year, period, err := s.repo.FindPeriodByDate(ctx, companyID, date)
	if err != nil {
		return PostingWindow{}, err
	}
	if year.Status != YearStatusActive {
		return PostingWindow{}, lshared.ErrYearInactive
	}
	switch period.Status {
	case PeriodStatusLocked:
		return PostingWindow{}, lshared.ErrPeriodLocked
	case PeriodStatusClosed:
		return PostingWindow{}, lshared.ErrPeriodClosed
	}
	window := PostingWindow{YearID: year.ID, PeriodID: period.ID}
	s.cache.Put(ctx, companyID, date, window)
	return window, nil
}

// GenerateYear creates a fiscal year with twelve monthly periods partitioning
// the calendar year without gaps or overlaps.
func (s *Service) GenerateYear(ctx context.Context, companyID int64, year int, actor shared.Actor) (FiscalYear, error) {
	if year < 1900 || year > 2999 {
		return FiscalYear{}, fmt.Errorf("periods: implausible year %d", year)
	}
	if _, err := s.repo.GetYearByNumber(ctx, companyID, year); err == nil {
		return FiscalYear{}, fmt.Errorf("periods: fiscal year %d already exists", year)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return FiscalYear{}, err
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	fiscalYear := FiscalYear{
		CompanyID: companyID,
		Year:      year,
		StartDate: start,
		EndDate:   end,
		Status:    YearStatusActive,
	}
	months := make([]FiscalPeriod, 0, 12)
	for m := 1; m <= 12; m++ {
		first := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1)
		months = append(months, FiscalPeriod{Number: m, StartDate: first, EndDate: last})
	}
	inserted, err := s.repo.InsertYearWithPeriods(ctx, fiscalYear, months)
	if err != nil {
		return FiscalYear{}, err
	}
	s.cache.Invalidate(ctx, companyID)
	s.record(ctx, companyID, actor, "fiscal_year.generate", inserted.ID, nil, map[string]any{"year": year, "periods": 12})
	return inserted, nil
}

// LockPeriod transitions Open -> Locked.
func (s *Service) LockPeriod(ctx context.Context, companyID, periodID, version int64, actor shared.Actor) (FiscalPeriod, error) {
	return s.transition(ctx, companyID, periodID, version, PeriodStatusOpen, PeriodStatusLocked, actor)
}

// ClosePeriod transitions Locked -> Closed. Closed is terminal.
func (s *Service) ClosePeriod(ctx context.Context, companyID, periodID, version int64, actor shared.Actor) (FiscalPeriod, error) {
	return s.transition(ctx, companyID, periodID, version, PeriodStatusLocked, PeriodStatusClosed, actor)
}

// ReopenPeriod transitions Locked -> Open. Reopening a closed period is an
// administrative action outside this service.
func (s *Service) ReopenPeriod(ctx context.Context, companyID, periodID, version int64, actor shared.Actor) (FiscalPeriod, error) {
	return s.transition(ctx, companyID, periodID, version, PeriodStatusLocked, PeriodStatusOpen, actor)
}

func (s *Service) transition(ctx context.Context, companyID, periodID, version int64, from, to PeriodStatus, actor shared.Actor) (FiscalPeriod, error) {
	current, err := s.repo.GetPeriod(ctx, companyID, periodID)
	if err != nil {
		return FiscalPeriod{}, err
	}
	if current.Status != from {
		return FiscalPeriod{}, fmt.Errorf("periods: cannot move period from %s to %s", current.Status, to)
	}
	updated, err := s.repo.SetPeriodStatus(ctx, companyID, periodID, version, to, actor.ID)
	if err != nil {
		return FiscalPeriod{}, err
	}
	s.cache.Invalidate(ctx, companyID)
	s.record(ctx, companyID, actor, "fiscal_period."+string(to), periodID,
		map[string]any{"status": string(from)}, map[string]any{"status": string(to)})
	return updated, nil
}

// dateOnly strips the clock so lookups compare against DATE columns cleanly.
// A timestamp past midnight on a period's last day must still match it.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(ctx context.Context, companyID int64, actor shared.Actor, action string, entityID int64, oldVals, newVals map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actor.ID,
		Actor:     actor.Username,
		Action:    action,
		Entity:    "fiscal_period",
		EntityID:  strconv.FormatInt(entityID, 10),
		OldValues: oldVals,
		NewValues: newVals,
	})
}
