package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marco-erp/ledger/internal/shared"
)

// Repository persists counter rows.
type Repository interface {
	GetOrCreate(ctx context.Context, companyID int64, docType DocumentType, fiscalYearID int64) (CodeSequence, error)
	IncrementIfVersion(ctx context.Context, id, version int64) (CodeSequence, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const sequenceColumns = `id, company_id, document_type, fiscal_year_id, prefix, current_sequence, version, created_at, updated_at`

func scanSequence(row pgx.Row) (CodeSequence, error) {
	var s CodeSequence
	err := row.Scan(&s.ID, &s.CompanyID, &s.DocumentType, &s.FiscalYearID, &s.Prefix, &s.CurrentSequence, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CodeSequence{}, shared.ErrNotFound
		}
		return CodeSequence{}, err
	}
	return s, nil
}

// GetOrCreate reads the counter row, lazily inserting it on first use. The
// insert races benignly: ON CONFLICT DO NOTHING followed by the read settles
// on whichever row won.
func (r *repository) GetOrCreate(ctx context.Context, companyID int64, docType DocumentType, fiscalYearID int64) (CodeSequence, error) {
	if _, err := r.db.Exec(ctx, `INSERT INTO code_sequences (company_id, document_type, fiscal_year_id, prefix, current_sequence)
SELECT $1, $2, $3, $2 || '-' || y.year, 0 FROM fiscal_years y WHERE y.id = $3
ON CONFLICT (company_id, document_type, fiscal_year_id) DO NOTHING`, companyID, docType, fiscalYearID); err != nil {
		return CodeSequence{}, err
	}
	row := r.db.QueryRow(ctx, `SELECT `+sequenceColumns+` FROM code_sequences
WHERE company_id=$1 AND document_type=$2 AND fiscal_year_id=$3`, companyID, docType, fiscalYearID)
	return scanSequence(row)
}

// IncrementIfVersion advances the counter by one only when the version still
// matches. The statement commits on its own so the number is durable before
// anyone sees it.
func (r *repository) IncrementIfVersion(ctx context.Context, id, version int64) (CodeSequence, error) {
	row := r.db.QueryRow(ctx, `UPDATE code_sequences
SET current_sequence=current_sequence+1, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$2
RETURNING `+sequenceColumns, id, version)
	seq, err := scanSequence(row)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return CodeSequence{}, shared.ErrConcurrencyConflict
		}
		return CodeSequence{}, err
	}
	return seq, nil
}
