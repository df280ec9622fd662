package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/platform/db"
	"github.com/marco-erp/ledger/internal/shared"
)

// Repository encapsulates DB operations for the fiscal calendar.
type Repository interface {
	GetYear(ctx context.Context, companyID, yearID int64) (FiscalYear, error)
	GetYearByNumber(ctx context.Context, companyID int64, year int) (FiscalYear, error)
	FindPeriodByDate(ctx context.Context, companyID int64, date time.Time) (FiscalYear, FiscalPeriod, error)
	ListPeriods(ctx context.Context, companyID, yearID int64) ([]FiscalPeriod, error)
	GetPeriod(ctx context.Context, companyID, periodID int64) (FiscalPeriod, error)
	InsertYearWithPeriods(ctx context.Context, year FiscalYear, periods []FiscalPeriod) (FiscalYear, error)
	SetPeriodStatus(ctx context.Context, companyID, periodID, version int64, status PeriodStatus, actorID int64) (FiscalPeriod, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const yearColumns = `id, company_id, year, start_date, end_date, status, closed_at, is_deleted, version, created_at, updated_at`
const periodColumns = `id, company_id, fiscal_year_id, number, start_date, end_date, status, locked_at, locked_by, closed_at, version, created_at, updated_at`

func scanYear(row pgx.Row) (FiscalYear, error) {
	var y FiscalYear
	err := row.Scan(&y.ID, &y.CompanyID, &y.Year, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt, &y.IsDeleted, &y.Version, &y.CreatedAt, &y.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, shared.ErrNotFound
		}
		return FiscalYear{}, err
	}
	return y, nil
}

func scanPeriod(row pgx.Row) (FiscalPeriod, error) {
	var p FiscalPeriod
	err := row.Scan(&p.ID, &p.CompanyID, &p.FiscalYearID, &p.Number, &p.StartDate, &p.EndDate, &p.Status, &p.LockedAt, &p.LockedBy, &p.ClosedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, shared.ErrNotFound
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

func (r *repository) GetYear(ctx context.Context, companyID, yearID int64) (FiscalYear, error) {
	row := r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE company_id=$1 AND id=$2 AND NOT is_deleted`, companyID, yearID)
	return scanYear(row)
}

func (r *repository) GetYearByNumber(ctx context.Context, companyID int64, year int) (FiscalYear, error) {
	row := r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE company_id=$1 AND year=$2 AND NOT is_deleted`, companyID, year)
	return scanYear(row)
}

// FindPeriodByDate resolves the period containing date along with its year.
// Soft-deleted and cancelled years never match.
func (r *repository) FindPeriodByDate(ctx context.Context, companyID int64, date time.Time) (FiscalYear, FiscalPeriod, error) {
	row := r.db.QueryRow(ctx, `SELECT `+qualify("y", yearColumns)+`, `+qualify("p", periodColumns)+`
FROM fiscal_periods p
JOIN fiscal_years y ON y.id = p.fiscal_year_id
WHERE p.company_id=$1 AND $2 BETWEEN p.start_date AND p.end_date
  AND NOT y.is_deleted AND y.status <> 'CANCELLED'`, companyID, date)
	var y FiscalYear
	var p FiscalPeriod
	err := row.Scan(&y.ID, &y.CompanyID, &y.Year, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt, &y.IsDeleted, &y.Version, &y.CreatedAt, &y.UpdatedAt,
		&p.ID, &p.CompanyID, &p.FiscalYearID, &p.Number, &p.StartDate, &p.EndDate, &p.Status, &p.LockedAt, &p.LockedBy, &p.ClosedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, FiscalPeriod{}, lshared.ErrNoOpenPeriod
		}
		return FiscalYear{}, FiscalPeriod{}, err
	}
	return y, p, nil
}

func (r *repository) ListPeriods(ctx context.Context, companyID, yearID int64) ([]FiscalPeriod, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE company_id=$1 AND fiscal_year_id=$2 ORDER BY number ASC`, companyID, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) GetPeriod(ctx context.Context, companyID, periodID int64) (FiscalPeriod, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE company_id=$1 AND id=$2`, companyID, periodID)
	return scanPeriod(row)
}

func (r *repository) InsertYearWithPeriods(ctx context.Context, year FiscalYear, periods []FiscalPeriod) (FiscalYear, error) {
	var inserted FiscalYear
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO fiscal_years (company_id, year, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5) RETURNING `+yearColumns,
			year.CompanyID, year.Year, year.StartDate, year.EndDate, year.Status)
		var err error
		inserted, err = scanYear(row)
		if err != nil {
			return err
		}
		for _, p := range periods {
			if _, err := tx.Exec(ctx, `INSERT INTO fiscal_periods (company_id, fiscal_year_id, number, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,'OPEN')`, year.CompanyID, inserted.ID, p.Number, p.StartDate, p.EndDate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	return inserted, nil
}

// SetPeriodStatus transitions a period under a version check. Lock and close
// stamps are written once and never cleared.
func (r *repository) SetPeriodStatus(ctx context.Context, companyID, periodID, version int64, status PeriodStatus, actorID int64) (FiscalPeriod, error) {
	row := r.db.QueryRow(ctx, `UPDATE fiscal_periods
SET status=$4,
    locked_at=CASE WHEN $4='LOCKED' AND locked_at IS NULL THEN NOW() ELSE locked_at END,
    locked_by=CASE WHEN $4='LOCKED' AND locked_by IS NULL THEN $5 ELSE locked_by END,
    closed_at=CASE WHEN $4='CLOSED' AND closed_at IS NULL THEN NOW() ELSE closed_at END,
    version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$3
RETURNING `+periodColumns, companyID, periodID, version, status, actorID)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return FiscalPeriod{}, shared.ErrConcurrencyConflict
		}
		return FiscalPeriod{}, err
	}
	return p, nil
}

func qualify(alias, columns string) string {
	out := ""
	for i, col := range splitColumns(columns) {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + col
	}
	return out
}

func splitColumns(columns string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(columns); i++ {
		if i == len(columns) || columns[i] == ',' {
			col := columns[start:i]
			for len(col) > 0 && col[0] == ' ' {
				col = col[1:]
			}
			if col != "" {
				out = append(out, col)
			}
			start = i + 1
		}
	}
	return out
}
