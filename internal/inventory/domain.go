package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReceipt is an inbound movement that re-blends the average cost.
	MovementReceipt MovementType = "RECEIPT"
	// MovementIssue is an outbound movement costed at the current average.
	MovementIssue MovementType = "ISSUE"
	// MovementAdjustIn and MovementAdjustOut are manual corrections.
	MovementAdjustIn  MovementType = "ADJUST_IN"
	MovementAdjustOut MovementType = "ADJUST_OUT"
	// MovementTransferIn / MovementTransferOut pair up across warehouses.
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
)

var (
	ErrInvalidQuantity   = errors.New("inventory: quantity must be positive")
	ErrInvalidUnitCost   = errors.New("inventory: unit cost must not be negative")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrStockNotFound     = errors.New("inventory: stock row not found")
)

// Inbound reports whether the movement adds to stock.
func (t MovementType) Inbound() bool {
	switch t {
	case MovementReceipt, MovementAdjustIn, MovementTransferIn:
		return true
	}
	return false
}

// Stock is the running balance per (company, warehouse, product). AvgUnitCost
// is the weighted average over everything currently on hand.
type Stock struct {
	CompanyID   int64
	WarehouseID int64
	ProductID   int64
	QtyOnHand   decimal.Decimal
	AvgUnitCost decimal.Decimal
	Version     int64
	UpdatedAt   time.Time
}

// Movement is one immutable stock card row. BalanceQty and BalanceAvgCost
// snapshot the stock after the movement, so consecutive rows form a
// verifiable chain.
type Movement struct {
	ID             int64
	CompanyID      int64
	WarehouseID    int64
	ProductID      int64
	Type           MovementType
	SourceDoc      string
	SourceID       uuid.UUID
	QtyIn          decimal.Decimal
	QtyOut         decimal.Decimal
	UnitCost       decimal.Decimal
	TotalCost      decimal.Decimal
	BalanceQty     decimal.Decimal
	BalanceAvgCost decimal.Decimal
	Note           string
	MovedAt        time.Time
	CreatedBy      int64
	CreatedAt      time.Time
}

// StockCardFilter narrows the movement listing.
type StockCardFilter struct {
	CompanyID   int64
	WarehouseID int64
	ProductID   int64
	From        *time.Time
	To          *time.Time
}

// MovementPostedEvent notifies downstream consumers (ledger bridging, replay
// verification) that a movement committed.
type MovementPostedEvent struct {
	MovementID  int64
	CompanyID   int64
	WarehouseID int64
	ProductID   int64
	Type        MovementType
	TotalCost   decimal.Decimal
	MovedAt     time.Time
}
