package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marco-erp/ledger/internal/shared"
)

// avgScale bounds the stored average unit cost; costScale bounds movement
// amounts handed to the ledger.
const (
	avgScale  = 6
	costScale = 4
)

// Events receives committed movements for downstream processing.
type Events interface {
	MovementPosted(ctx context.Context, event MovementPostedEvent) error
}

// Service coordinates stock movements under weighted average costing.
type Service struct {
	repo        RepositoryPort
	audit       shared.AuditRecorder
	idempotency *shared.IdempotencyStore
	events      Events
	allowNeg    bool
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

func NewService(repo RepositoryPort, audit shared.AuditRecorder, idem *shared.IdempotencyStore, events Events, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, events: events, allowNeg: cfg.AllowNegativeStock, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ReceiptInput describes an inbound movement from a source document.
type ReceiptInput struct {
	CompanyID   int64
	WarehouseID int64
	ProductID   int64
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	SourceDoc   string
	SourceID    uuid.UUID
	Note        string
	Actor       shared.Actor
}

// IssueInput describes an outbound movement. The unit cost is never supplied;
// issues always draw at the running average.
type IssueInput struct {
	CompanyID   int64
	WarehouseID int64
	ProductID   int64
	Qty         decimal.Decimal
	SourceDoc   string
	SourceID    uuid.UUID
	Note        string
	Actor       shared.Actor
}

// AdjustmentInput corrects stock up or down. Positive quantities require a
// unit cost; negative quantities cost out at the average.
type AdjustmentInput struct {
	CompanyID   int64
	WarehouseID int64
	ProductID   int64
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	Note        string
	Actor       shared.Actor
}

// TransferInput moves stock between warehouses as an OUT/IN pair. The IN leg
// carries the cost the OUT leg was issued at, so value moves with quantity.
type TransferInput struct {
	CompanyID    int64
	SrcWarehouse int64
	DstWarehouse int64
	ProductID    int64
	Qty          decimal.Decimal
	Note         string
	Actor        shared.Actor
}

// Receipt posts an inbound movement and re-blends the weighted average cost.
func (s *Service) Receipt(ctx context.Context, in ReceiptInput) (Movement, error) {
	if in.WarehouseID == 0 || in.ProductID == 0 {
		return Movement{}, errors.New("inventory: warehouse and product required")
	}
	if !in.Qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}
	return s.post(ctx, movementParams{
		CompanyID: in.CompanyID, WarehouseID: in.WarehouseID, ProductID: in.ProductID,
		Type: MovementReceipt, Qty: in.Qty, UnitCost: in.UnitCost,
		SourceDoc: in.SourceDoc, SourceID: in.SourceID, Note: in.Note, Actor: in.Actor,
	})
}

// Issue posts an outbound movement. The returned movement's TotalCost is the
// cost of goods sold for the issued quantity.
func (s *Service) Issue(ctx context.Context, in IssueInput) (Movement, error) {
	if in.WarehouseID == 0 || in.ProductID == 0 {
		return Movement{}, errors.New("inventory: warehouse and product required")
	}
	if !in.Qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	return s.post(ctx, movementParams{
		CompanyID: in.CompanyID, WarehouseID: in.WarehouseID, ProductID: in.ProductID,
		Type: MovementIssue, Qty: in.Qty,
		SourceDoc: in.SourceDoc, SourceID: in.SourceID, Note: in.Note, Actor: in.Actor,
	})
}

// Adjust posts a signed correction.
func (s *Service) Adjust(ctx context.Context, in AdjustmentInput) (Movement, error) {
	if in.WarehouseID == 0 || in.ProductID == 0 {
		return Movement{}, errors.New("inventory: warehouse and product required")
	}
	if in.Qty.IsZero() {
		return Movement{}, ErrInvalidQuantity
	}
	params := movementParams{
		CompanyID: in.CompanyID, WarehouseID: in.WarehouseID, ProductID: in.ProductID,
		SourceDoc: "ADJUSTMENT", Note: in.Note, Actor: in.Actor,
	}
	if in.Qty.IsPositive() {
		if in.UnitCost.IsNegative() {
			return Movement{}, ErrInvalidUnitCost
		}
		params.Type = MovementAdjustIn
		params.Qty = in.Qty
		params.UnitCost = in.UnitCost
	} else {
		params.Type = MovementAdjustOut
		params.Qty = in.Qty.Neg()
	}
	return s.post(ctx, params)
}

// Transfer issues from the source warehouse and receives into the destination
// at the issued cost.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Movement, Movement, error) {
	if in.SrcWarehouse == 0 || in.DstWarehouse == 0 || in.ProductID == 0 {
		return Movement{}, Movement{}, errors.New("inventory: warehouse and product required")
	}
	if in.SrcWarehouse == in.DstWarehouse {
		return Movement{}, Movement{}, errors.New("inventory: source and destination warehouse must differ")
	}
	if !in.Qty.IsPositive() {
		return Movement{}, Movement{}, ErrInvalidQuantity
	}
	out, err := s.post(ctx, movementParams{
		CompanyID: in.CompanyID, WarehouseID: in.SrcWarehouse, ProductID: in.ProductID,
		Type: MovementTransferOut, Qty: in.Qty,
		SourceDoc: "TRANSFER", Note: fmt.Sprintf("to warehouse %d: %s", in.DstWarehouse, in.Note), Actor: in.Actor,
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	received, err := s.post(ctx, movementParams{
		CompanyID: in.CompanyID, WarehouseID: in.DstWarehouse, ProductID: in.ProductID,
		Type: MovementTransferIn, Qty: in.Qty, UnitCost: out.UnitCost,
		SourceDoc: "TRANSFER", Note: fmt.Sprintf("from warehouse %d: %s", in.SrcWarehouse, in.Note), Actor: in.Actor,
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	return out, received, nil
}

// StockCard lists movements in chain order.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if filter.WarehouseID == 0 || filter.ProductID == 0 {
		return nil, errors.New("inventory: warehouse and product required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// Stock returns the current balance.
func (s *Service) Stock(ctx context.Context, companyID, warehouseID, productID int64) (Stock, error) {
	return s.repo.GetStock(ctx, companyID, warehouseID, productID)
}

type movementParams struct {
	CompanyID   int64
	WarehouseID int64
	ProductID   int64
	Type        MovementType
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	SourceDoc   string
	SourceID    uuid.UUID
	Note        string
	Actor       shared.Actor
}

func (s *Service) post(ctx context.Context, params movementParams) (Movement, error) {
	now := s.now().UTC()
	key := movementKey(params)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, params.CompanyID, params.WarehouseID, params.ProductID)
		if err != nil {
			if !errors.Is(err, ErrStockNotFound) {
				return err
			}
			stock = Stock{CompanyID: params.CompanyID, WarehouseID: params.WarehouseID, ProductID: params.ProductID}
		}

		var next Stock
		if params.Type.Inbound() {
			next, movement = applyInbound(stock, params, now)
		} else {
			next, movement, err = applyOutbound(stock, params, now, s.allowNeg)
			if err != nil {
				return err
			}
		}
		inserted, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement = inserted
		return tx.UpsertStock(ctx, next)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}

	if s.events != nil {
		_ = s.events.MovementPosted(ctx, MovementPostedEvent{
			MovementID: movement.ID, CompanyID: movement.CompanyID,
			WarehouseID: movement.WarehouseID, ProductID: movement.ProductID,
			Type: movement.Type, TotalCost: movement.TotalCost, MovedAt: movement.MovedAt,
		})
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: params.CompanyID,
			ActorID:   params.Actor.ID,
			Actor:     params.Actor.Username,
			Action:    "inventory." + string(params.Type),
			Entity:    "inventory_movement",
			EntityID:  fmt.Sprintf("%d", movement.ID),
			NewValues: map[string]any{
				"warehouse_id": params.WarehouseID,
				"product_id":   params.ProductID,
				"qty":          params.Qty.String(),
				"total_cost":   movement.TotalCost.String(),
			},
		})
	}
	return movement, nil
}

// applyInbound re-blends the average: value on hand plus incoming value over
// the new quantity. When nothing is on hand the incoming cost becomes the
// average outright, which also recovers from a zero balance left by a full
// issue.
func applyInbound(stock Stock, params movementParams, now time.Time) (Stock, Movement) {
	newQty := stock.QtyOnHand.Add(params.Qty)
	var newAvg decimal.Decimal
	if stock.QtyOnHand.IsPositive() {
		value := stock.QtyOnHand.Mul(stock.AvgUnitCost).Add(params.Qty.Mul(params.UnitCost))
		newAvg = value.DivRound(newQty, avgScale)
	} else {
		newAvg = params.UnitCost
	}
	stock.QtyOnHand = newQty
	stock.AvgUnitCost = newAvg
	movement := Movement{
		CompanyID:      params.CompanyID,
		WarehouseID:    params.WarehouseID,
		ProductID:      params.ProductID,
		Type:           params.Type,
		SourceDoc:      params.SourceDoc,
		SourceID:       params.SourceID,
		QtyIn:          params.Qty,
		UnitCost:       params.UnitCost,
		TotalCost:      params.Qty.Mul(params.UnitCost).Round(costScale),
		BalanceQty:     newQty,
		BalanceAvgCost: newAvg,
		Note:           params.Note,
		MovedAt:        now,
		CreatedBy:      params.Actor.ID,
	}
	return stock, movement
}

// applyOutbound draws at the running average; the movement's TotalCost is the
// value leaving stock (COGS for issues). A fully drained balance zeroes the
// average so the next receipt starts clean.
func applyOutbound(stock Stock, params movementParams, now time.Time, allowNeg bool) (Stock, Movement, error) {
	if params.Qty.GreaterThan(stock.QtyOnHand) && !allowNeg {
		return Stock{}, Movement{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientStock,
			stock.QtyOnHand.String(), params.Qty.String())
	}
	unitCost := stock.AvgUnitCost
	newQty := stock.QtyOnHand.Sub(params.Qty)
	newAvg := stock.AvgUnitCost
	if !newQty.IsPositive() {
		newAvg = decimal.Zero
	}
	stock.QtyOnHand = newQty
	stock.AvgUnitCost = newAvg
	movement := Movement{
		CompanyID:      params.CompanyID,
		WarehouseID:    params.WarehouseID,
		ProductID:      params.ProductID,
		Type:           params.Type,
		SourceDoc:      params.SourceDoc,
		SourceID:       params.SourceID,
		QtyOut:         params.Qty,
		UnitCost:       unitCost,
		TotalCost:      params.Qty.Mul(unitCost).Round(costScale),
		BalanceQty:     newQty,
		BalanceAvgCost: newAvg,
		Note:           params.Note,
		MovedAt:        now,
		CreatedBy:      params.Actor.ID,
	}
	return stock, movement, nil
}

func movementKey(params movementParams) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%s", params.Type, params.SourceDoc, params.SourceID,
		params.WarehouseID, params.ProductID, params.Qty.String())
}
