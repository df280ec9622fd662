package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marco-erp/ledger/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, companyID, warehouseID, productID int64) (Stock, error)
	ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error)
}

// TxRepository runs inside one movement transaction. The stock row lock
// serializes concurrent movements per (warehouse, product).
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, companyID, warehouseID, productID int64) (Stock, error)
	UpsertStock(ctx context.Context, stock Stock) error
	InsertMovement(ctx context.Context, movement Movement) (Movement, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) RepositoryPort {
	return &repository{db: db}
}

const movementColumns = `id, company_id, warehouse_id, product_id, type, source_doc, source_id, qty_in, qty_out, unit_cost, total_cost, balance_qty, balance_avg_cost, note, moved_at, created_by, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.CompanyID, &m.WarehouseID, &m.ProductID, &m.Type, &m.SourceDoc, &m.SourceID,
		&m.QtyIn, &m.QtyOut, &m.UnitCost, &m.TotalCost, &m.BalanceQty, &m.BalanceAvgCost,
		&m.Note, &m.MovedAt, &m.CreatedBy, &m.CreatedAt)
	return m, err
}

func (r *repository) GetStock(ctx context.Context, companyID, warehouseID, productID int64) (Stock, error) {
	return scanStock(r.db.QueryRow(ctx, `SELECT company_id, warehouse_id, product_id, qty_on_hand, avg_unit_cost, version, updated_at
FROM stock_balances WHERE company_id=$1 AND warehouse_id=$2 AND product_id=$3`, companyID, warehouseID, productID))
}

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.CompanyID, &s.WarehouseID, &s.ProductID, &s.QtyOnHand, &s.AvgUnitCost, &s.Version, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, err
	}
	return s, nil
}

func (r *repository) ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM inventory_movements
WHERE company_id=$1 AND warehouse_id=$2 AND product_id=$3`
	args := []any{filter.CompanyID, filter.WarehouseID, filter.ProductID}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += ` AND moved_at >= $4`
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		if filter.From != nil {
			query += ` AND moved_at <= $5`
		} else {
			query += ` AND moved_at <= $4`
		}
	}
	query += ` ORDER BY id ASC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, companyID, warehouseID, productID int64) (Stock, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT company_id, warehouse_id, product_id, qty_on_hand, avg_unit_cost, version, updated_at
FROM stock_balances WHERE company_id=$1 AND warehouse_id=$2 AND product_id=$3 FOR UPDATE`, companyID, warehouseID, productID))
}

func (r *txRepository) UpsertStock(ctx context.Context, s Stock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (company_id, warehouse_id, product_id, qty_on_hand, avg_unit_cost)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (company_id, warehouse_id, product_id)
DO UPDATE SET qty_on_hand=EXCLUDED.qty_on_hand, avg_unit_cost=EXCLUDED.avg_unit_cost, version=stock_balances.version+1, updated_at=NOW()`,
		s.CompanyID, s.WarehouseID, s.ProductID, s.QtyOnHand, s.AvgUnitCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	return scanMovement(r.tx.QueryRow(ctx, `INSERT INTO inventory_movements
(company_id, warehouse_id, product_id, type, source_doc, source_id, qty_in, qty_out, unit_cost, total_cost, balance_qty, balance_avg_cost, note, moved_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING `+movementColumns,
		m.CompanyID, m.WarehouseID, m.ProductID, m.Type, m.SourceDoc, m.SourceID,
		m.QtyIn, m.QtyOut, m.UnitCost, m.TotalCost, m.BalanceQty, m.BalanceAvgCost,
		m.Note, m.MovedAt, m.CreatedBy))
}
