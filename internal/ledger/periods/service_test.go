package periods

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/shared"
)

type memoryRepo struct {
	years      map[int64]FiscalYear
	periods    map[int64]FiscalPeriod
	nextYear   int64
	nextPeriod int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{years: make(map[int64]FiscalYear), periods: make(map[int64]FiscalPeriod)}
}

func (r *memoryRepo) GetYear(ctx context.Context, companyID, yearID int64) (FiscalYear, error) {
	y, ok := r.years[yearID]
	if !ok || y.CompanyID != companyID {
		return FiscalYear{}, shared.ErrNotFound
	}
	return y, nil
}

func (r *memoryRepo) GetYearByNumber(ctx context.Context, companyID int64, year int) (FiscalYear, error) {
	for _, y := range r.years {
		if y.CompanyID == companyID && y.Year == year && !y.IsDeleted {
			return y, nil
		}
	}
	return FiscalYear{}, shared.ErrNotFound
}

func (r *memoryRepo) FindPeriodByDate(ctx context.Context, companyID int64, date time.Time) (FiscalYear, FiscalPeriod, error) {
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.ContainsDate(date) {
			y := r.years[p.FiscalYearID]
			if y.Status == YearStatusCancelled || y.IsDeleted {
				continue
			}
			return y, p, nil
		}
	}
	return FiscalYear{}, FiscalPeriod{}, lshared.ErrNoOpenPeriod
}

func (r *memoryRepo) ListPeriods(ctx context.Context, companyID, yearID int64) ([]FiscalPeriod, error) {
	var out []FiscalPeriod
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.FiscalYearID == yearID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetPeriod(ctx context.Context, companyID, periodID int64) (FiscalPeriod, error) {
	p, ok := r.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return FiscalPeriod{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) InsertYearWithPeriods(ctx context.Context, year FiscalYear, months []FiscalPeriod) (FiscalYear, error) {
	r.nextYear++
	year.ID = r.nextYear
	year.Version = 1
	r.years[year.ID] = year
	for _, p := range months {
		r.nextPeriod++
		p.ID = r.nextPeriod
		p.CompanyID = year.CompanyID
		p.FiscalYearID = year.ID
		p.Status = PeriodStatusOpen
		p.Version = 1
		r.periods[p.ID] = p
	}
	return year, nil
}

func (r *memoryRepo) SetPeriodStatus(ctx context.Context, companyID, periodID, version int64, status PeriodStatus, actorID int64) (FiscalPeriod, error) {
	p, ok := r.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return FiscalPeriod{}, shared.ErrNotFound
	}
	if p.Version != version {
		return FiscalPeriod{}, shared.ErrConcurrencyConflict
	}
	now := time.Now()
	switch status {
	case PeriodStatusLocked:
		if p.LockedAt == nil {
			p.LockedAt = &now
			p.LockedBy = &actorID
		}
	case PeriodStatusClosed:
		if p.ClosedAt == nil {
			p.ClosedAt = &now
		}
	}
	p.Status = status
	p.Version++
	r.periods[periodID] = p
	return p, nil
}

func newFixture(t *testing.T) (*Service, *memoryRepo, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	repo := newMemoryRepo()
	svc := NewService(repo, cache, nil)
	return svc, repo, cache
}

func seedYear(t *testing.T, svc *Service, repo *memoryRepo, year int) FiscalYear {
	t.Helper()
	fy, err := svc.GenerateYear(context.Background(), 1, year, shared.Actor{ID: 9, Username: "admin"})
	require.NoError(t, err)
	return fy
}

func periodFor(t *testing.T, repo *memoryRepo, date time.Time) FiscalPeriod {
	t.Helper()
	_, p, err := repo.FindPeriodByDate(context.Background(), 1, date)
	require.NoError(t, err)
	return p
}

func TestGenerateYearPartitionsCalendar(t *testing.T) {
	svc, repo, _ := newFixture(t)
	fy := seedYear(t, svc, repo, 2025)

	periods, err := repo.ListPeriods(context.Background(), 1, fy.ID)
	require.NoError(t, err)
	require.Len(t, periods, 12)

	byNumber := make(map[int]FiscalPeriod, 12)
	for _, p := range periods {
		byNumber[p.Number] = p
	}
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), byNumber[1].StartDate)
	require.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), byNumber[12].EndDate)
	for n := 2; n <= 12; n++ {
		require.Equal(t, byNumber[n-1].EndDate.AddDate(0, 0, 1), byNumber[n].StartDate, "period %d must start the day after period %d ends", n, n-1)
	}

	_, err = svc.GenerateYear(context.Background(), 1, 2025, shared.Actor{})
	require.Error(t, err)
}

func TestCanPostResolvesWindow(t *testing.T) {
	svc, repo, _ := newFixture(t)
	fy := seedYear(t, svc, repo, 2025)

	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	window, err := svc.CanPost(context.Background(), 1, date)
	require.NoError(t, err)
	require.Equal(t, fy.ID, window.YearID)
	require.Equal(t, periodFor(t, repo, date).ID, window.PeriodID)

	_, err = svc.CanPost(context.Background(), 1, time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, lshared.ErrNoOpenPeriod)
}

// Gate callers pass whatever clock they have. A timestamp past midnight on a
// period's last day must still resolve to that period.
func TestCanPostAcceptsTimestampOnLastDay(t *testing.T) {
	svc, repo, _ := newFixture(t)
	seedYear(t, svc, repo, 2025)

	stamp := time.Date(2025, 3, 31, 13, 45, 5, 0, time.UTC)
	window, err := svc.CanPost(context.Background(), 1, stamp)
	require.NoError(t, err)

	lastDay := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, periodFor(t, repo, lastDay).ID, window.PeriodID)
}

func TestCanPostDeniesLockedAndClosed(t *testing.T) {
	svc, repo, _ := newFixture(t)
	seedYear(t, svc, repo, 2025)
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	p := periodFor(t, repo, date)

	locked, err := svc.LockPeriod(context.Background(), 1, p.ID, p.Version, shared.Actor{ID: 9})
	require.NoError(t, err)
	require.NotNil(t, locked.LockedAt)

	_, err = svc.CanPost(context.Background(), 1, date)
	require.ErrorIs(t, err, lshared.ErrPeriodLocked)

	closed, err := svc.ClosePeriod(context.Background(), 1, p.ID, locked.Version, shared.Actor{ID: 9})
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)

	_, err = svc.CanPost(context.Background(), 1, date)
	require.ErrorIs(t, err, lshared.ErrPeriodClosed)
}

func TestCanPostDeniesInactiveYear(t *testing.T) {
	svc, repo, _ := newFixture(t)
	fy := seedYear(t, svc, repo, 2025)
	fy.Status = YearStatusClosed
	repo.years[fy.ID] = fy

	_, err := svc.CanPost(context.Background(), 1, time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, lshared.ErrYearInactive)
}

// A cached allow outlives the underlying period state on purpose; posting
// re-checks the locked row inside its own transaction. Lock transitions
// invalidate the cache so the stale window disappears promptly.
func TestLockInvalidatesCachedDecision(t *testing.T) {
	svc, repo, cache := newFixture(t)
	seedYear(t, svc, repo, 2025)
	ctx := context.Background()
	date := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	window, err := svc.CanPost(ctx, 1, date)
	require.NoError(t, err)
	_, hit := cache.Get(ctx, 1, date)
	require.True(t, hit)

	p := periodFor(t, repo, date)
	require.Equal(t, window.PeriodID, p.ID)
	_, err = svc.LockPeriod(ctx, 1, p.ID, p.Version, shared.Actor{ID: 9})
	require.NoError(t, err)

	_, hit = cache.Get(ctx, 1, date)
	require.False(t, hit, "generation bump must orphan the cached window")
	_, err = svc.CanPost(ctx, 1, date)
	require.ErrorIs(t, err, lshared.ErrPeriodLocked)
}

func TestPeriodTransitionsEnforceOrder(t *testing.T) {
	svc, repo, _ := newFixture(t)
	seedYear(t, svc, repo, 2025)
	ctx := context.Background()
	p := periodFor(t, repo, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC))

	// Open periods cannot close directly.
	_, err := svc.ClosePeriod(ctx, 1, p.ID, p.Version, shared.Actor{})
	require.Error(t, err)

	locked, err := svc.LockPeriod(ctx, 1, p.ID, p.Version, shared.Actor{ID: 4})
	require.NoError(t, err)

	reopened, err := svc.ReopenPeriod(ctx, 1, p.ID, locked.Version, shared.Actor{ID: 4})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, reopened.Status)
	require.NotNil(t, reopened.LockedAt, "reopening keeps the lock history")

	relocked, err := svc.LockPeriod(ctx, 1, p.ID, reopened.Version, shared.Actor{ID: 4})
	require.NoError(t, err)
	closed, err := svc.ClosePeriod(ctx, 1, p.ID, relocked.Version, shared.Actor{ID: 4})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)

	// Closed is terminal.
	_, err = svc.ReopenPeriod(ctx, 1, p.ID, closed.Version, shared.Actor{ID: 4})
	require.Error(t, err)
}

func TestStaleVersionRejectedOnTransition(t *testing.T) {
	svc, repo, _ := newFixture(t)
	seedYear(t, svc, repo, 2025)
	p := periodFor(t, repo, time.Date(2025, 9, 9, 0, 0, 0, 0, time.UTC))

	_, err := svc.LockPeriod(context.Background(), 1, p.ID, p.Version+3, shared.Actor{})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}
