package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marco-erp/ledger/internal/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	List(ctx context.Context, companyID int64) ([]Account, error)
	GetByID(ctx context.Context, companyID, id int64) (Account, error)
	GetByCode(ctx context.Context, companyID int64, code string) (Account, error)
	Insert(ctx context.Context, account Account) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
	SoftDelete(ctx context.Context, companyID, id, version int64, deletedBy string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, company_id, code, name, local_name, type, normal_balance, parent_id, level, is_leaf, allow_posting, is_active, has_postings, is_system, is_deleted, version, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.LocalName, &a.Type, &a.NormalBalance,
		&a.ParentID, &a.Level, &a.IsLeaf, &a.AllowPosting, &a.IsActive, &a.HasPostings,
		&a.IsSystemAccount, &a.IsDeleted, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) List(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND NOT is_deleted ORDER BY code ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, companyID, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2 AND NOT is_deleted`, companyID, id)
	return scanAccount(row)
}

func (r *repository) GetByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2 AND NOT is_deleted`, companyID, code)
	return scanAccount(row)
}

func (r *repository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, local_name, type, normal_balance, parent_id, level, is_leaf, allow_posting, is_active, is_system)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+accountColumns,
		a.CompanyID, a.Code, a.Name, a.LocalName, a.Type, a.NormalBalance, a.ParentID, a.Level, a.IsLeaf, a.AllowPosting, a.IsActive, a.IsSystemAccount)
	return scanAccount(row)
}

// Update applies the change only when the supplied version matches the stored
// one; the version advances on success.
func (r *repository) Update(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts
SET name=$4, local_name=$5, parent_id=$6, level=$7, is_leaf=$8, allow_posting=$9, is_active=$10, has_postings=$11, version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$3 AND NOT is_deleted
RETURNING `+accountColumns,
		a.CompanyID, a.ID, a.Version, a.Name, a.LocalName, a.ParentID, a.Level, a.IsLeaf, a.AllowPosting, a.IsActive, a.HasPostings)
	updated, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Account{}, shared.ErrConcurrencyConflict
		}
		return Account{}, err
	}
	return updated, nil
}

func (r *repository) SoftDelete(ctx context.Context, companyID, id, version int64, deletedBy string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_deleted=TRUE, version=version+1, updated_at=NOW(), deleted_by=$4, deleted_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$3 AND NOT is_deleted`, companyID, id, version, deletedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}
