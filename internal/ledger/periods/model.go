package periods

import "time"

// YearStatus enumerates fiscal year states.
type YearStatus string

const (
	YearStatusActive    YearStatus = "ACTIVE"
	YearStatusClosed    YearStatus = "CLOSED"
	YearStatusCancelled YearStatus = "CANCELLED"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusLocked PeriodStatus = "LOCKED"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// FiscalYear owns a gapless run of periods partitioning its date range.
type FiscalYear struct {
	ID        int64
	CompanyID int64
	Year      int
	StartDate time.Time
	EndDate   time.Time
	Status    YearStatus
	ClosedAt  *time.Time
	IsDeleted bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FiscalPeriod is one posting window within a year. LockedAt/ClosedAt are
// append-only stamps; reopening clears the status but not the history.
type FiscalPeriod struct {
	ID           int64
	CompanyID    int64
	FiscalYearID int64
	Number       int
	StartDate    time.Time
	EndDate      time.Time
	Status       PeriodStatus
	LockedAt     *time.Time
	LockedBy     *int64
	ClosedAt     *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContainsDate reports whether date falls inside the period window. Callers
// pass calendar dates; a timestamp past midnight on EndDate does not match,
// mirroring how a timestamptz compares against the DATE bounds in SQL.
func (p FiscalPeriod) ContainsDate(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// PostingWindow is the result of a successful gate check.
type PostingWindow struct {
	YearID   int64
	PeriodID int64
}
