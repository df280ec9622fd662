package journals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marco-erp/ledger/internal/ledger/accounts"
	"github.com/marco-erp/ledger/internal/ledger/periods"
	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/platform/db"
	"github.com/marco-erp/ledger/internal/shared"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, companyID int64) ([]Entry, error)
	GetWithLines(ctx context.Context, companyID, entryID int64) (Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a posting transaction.
// Period and account reads live here so the gate and postability checks
// happen atomically with the state transition.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, companyID, entryID int64) (Entry, error)
	GetLines(ctx context.Context, entryID int64) ([]Line, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	UpdateDraft(ctx context.Context, entry Entry) (Entry, error)
	ReplaceLines(ctx context.Context, entryID int64, lines []LineInput) error
	MarkPosted(ctx context.Context, entry Entry, journalNumber, postedBy string, postedAt time.Time) (Entry, error)
	MarkReversed(ctx context.Context, companyID, entryID, version, reversalEntryID int64) error
	SoftDeleteDraft(ctx context.Context, companyID, entryID, version int64, deletedBy string) error

	GetPeriodForUpdate(ctx context.Context, companyID, periodID int64) (periods.FiscalPeriod, error)
	GetYear(ctx context.Context, companyID, yearID int64) (periods.FiscalYear, error)
	GetAccounts(ctx context.Context, companyID int64, ids []int64) ([]accounts.Account, error)
	MarkAccountsUsed(ctx context.Context, companyID int64, ids []int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, company_id, journal_number, draft_code, date, description, reference, status, source_type, source_id, fiscal_year_id, fiscal_period_id, cost_center_id, reversed_entry_id, reversal_entry_id, adjusted_entry_id, COALESCE(reversal_reason, ''), COALESCE(posted_by, ''), posting_date, total_debit, total_credit, is_deleted, version, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.CompanyID, &e.JournalNumber, &e.DraftCode, &e.Date, &e.Description, &e.Reference,
		&e.Status, &e.Source.Type, &e.Source.ID, &e.FiscalYearID, &e.FiscalPeriodID, &e.CostCenterID,
		&e.ReversedEntryID, &e.ReversalEntryID, &e.AdjustedEntryID, &e.ReversalReason,
		&e.PostedBy, &e.PostingDate, &e.TotalDebit, &e.TotalCredit, &e.IsDeleted, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, lshared.ErrJournalNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context, companyID int64) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE company_id=$1 AND NOT is_deleted ORDER BY id DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, companyID, entryID int64) (Entry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE company_id=$1 AND id=$2 AND NOT is_deleted`, companyID, entryID))
	if err != nil {
		return Entry{}, err
	}
	lines, err := queryLines(ctx, r.db, entryID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, entryID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, line_number, account_id, debit, credit, description, cost_center_id, warehouse_id, created_at
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY line_number ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.LineNumber, &line.AccountID, &line.Debit, &line.Credit,
			&line.Description, &line.CostCenterID, &line.WarehouseID, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, companyID, entryID int64) (Entry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE company_id=$1 AND id=$2 AND NOT is_deleted FOR UPDATE`, companyID, entryID))
	if err != nil {
		return Entry{}, err
	}
	lines, err := queryLines(ctx, r.tx, entryID)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]Line, error) {
	return queryLines(ctx, r.tx, entryID)
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(company_id, journal_number, draft_code, date, description, reference, status, source_type, source_id, fiscal_year_id, fiscal_period_id, cost_center_id, reversed_entry_id, adjusted_entry_id, reversal_reason, posted_by, posting_date, total_debit, total_credit)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING `+entryColumns,
		e.CompanyID, e.JournalNumber, e.DraftCode, e.Date, e.Description, e.Reference, e.Status,
		e.Source.Type, e.Source.ID, e.FiscalYearID, e.FiscalPeriodID, e.CostCenterID,
		e.ReversedEntryID, e.AdjustedEntryID, nullString(e.ReversalReason), nullString(e.PostedBy), e.PostingDate,
		e.TotalDebit, e.TotalCredit)
	inserted, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_entries_reversed_entry" {
			return Entry{}, lshared.ErrAlreadyReversed
		}
		return Entry{}, err
	}
	return inserted, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_entry_lines
(entry_id, line_number, account_id, debit, credit, description, cost_center_id, warehouse_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			entryID, line.LineNumber, line.AccountID, line.Debit, line.Credit,
			nullString(line.Description), line.CostCenterID, line.WarehouseID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdateDraft(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `UPDATE journal_entries
SET date=$4, description=$5, reference=$6, source_type=$7, source_id=$8, fiscal_year_id=$9, fiscal_period_id=$10, cost_center_id=$11, total_debit=$12, total_credit=$13, version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$3 AND status='DRAFT' AND NOT is_deleted
RETURNING `+entryColumns,
		e.CompanyID, e.ID, e.Version, e.Date, e.Description, e.Reference,
		e.Source.Type, e.Source.ID, e.FiscalYearID, e.FiscalPeriodID, e.CostCenterID,
		e.TotalDebit, e.TotalCredit)
	updated, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, lshared.ErrJournalNotFound) {
			return Entry{}, shared.ErrConcurrencyConflict
		}
		return Entry{}, err
	}
	return updated, nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, entryID int64, lines []LineInput) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_entry_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	return r.InsertLines(ctx, entryID, lines)
}

func (r *txRepository) MarkPosted(ctx context.Context, e Entry, journalNumber, postedBy string, postedAt time.Time) (Entry, error) {
	row := r.tx.QueryRow(ctx, `UPDATE journal_entries
SET status='POSTED', journal_number=$4, posted_by=$5, posting_date=$6, total_debit=$7, total_credit=$8, version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$3 AND status='DRAFT'
RETURNING `+entryColumns,
		e.CompanyID, e.ID, e.Version, journalNumber, postedBy, postedAt, e.TotalDebit, e.TotalCredit)
	posted, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, lshared.ErrJournalNotFound) {
			return Entry{}, shared.ErrConcurrencyConflict
		}
		return Entry{}, err
	}
	return posted, nil
}

func (r *txRepository) MarkReversed(ctx context.Context, companyID, entryID, version, reversalEntryID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET status='REVERSED', reversal_entry_id=$4, version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$3 AND status='POSTED' AND reversal_entry_id IS NULL`,
		companyID, entryID, version, reversalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func (r *txRepository) SoftDeleteDraft(ctx context.Context, companyID, entryID, version int64, deletedBy string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries
SET is_deleted=TRUE, deleted_by=$4, deleted_at=NOW(), version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$3 AND status='DRAFT' AND NOT is_deleted`,
		companyID, entryID, version, deletedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, companyID, periodID int64) (periods.FiscalPeriod, error) {
	var p periods.FiscalPeriod
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, fiscal_year_id, number, start_date, end_date, status, locked_at, locked_by, closed_at, version, created_at, updated_at
FROM fiscal_periods WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, periodID).
		Scan(&p.ID, &p.CompanyID, &p.FiscalYearID, &p.Number, &p.StartDate, &p.EndDate, &p.Status, &p.LockedAt, &p.LockedBy, &p.ClosedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.FiscalPeriod{}, lshared.ErrNoOpenPeriod
		}
		return periods.FiscalPeriod{}, err
	}
	return p, nil
}

func (r *txRepository) GetYear(ctx context.Context, companyID, yearID int64) (periods.FiscalYear, error) {
	var y periods.FiscalYear
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, year, start_date, end_date, status, closed_at, is_deleted, version, created_at, updated_at
FROM fiscal_years WHERE company_id=$1 AND id=$2 AND NOT is_deleted`, companyID, yearID).
		Scan(&y.ID, &y.CompanyID, &y.Year, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt, &y.IsDeleted, &y.Version, &y.CreatedAt, &y.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.FiscalYear{}, shared.ErrNotFound
		}
		return periods.FiscalYear{}, err
	}
	return y, nil
}

func (r *txRepository) GetAccounts(ctx context.Context, companyID int64, ids []int64) ([]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, code, name, local_name, type, normal_balance, parent_id, level, is_leaf, allow_posting, is_active, has_postings, is_system, is_deleted, version, created_at, updated_at
FROM accounts WHERE company_id=$1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounts.Account
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.LocalName, &a.Type, &a.NormalBalance,
			&a.ParentID, &a.Level, &a.IsLeaf, &a.AllowPosting, &a.IsActive, &a.HasPostings,
			&a.IsSystemAccount, &a.IsDeleted, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) MarkAccountsUsed(ctx context.Context, companyID int64, ids []int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET has_postings=TRUE, version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id = ANY($2) AND NOT has_postings`, companyID, ids)
	return err
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
