package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/marco-erp/ledger/internal/shared"
)

type memoryRepo struct {
	stocks    map[string]Stock
	movements []Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stocks: make(map[string]Stock)}
}

func key(companyID, warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d:%d", companyID, warehouseID, productID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetStock(ctx context.Context, companyID, warehouseID, productID int64) (Stock, error) {
	if s, ok := r.stocks[key(companyID, warehouseID, productID)]; ok {
		return s, nil
	}
	return Stock{}, ErrStockNotFound
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.CompanyID == filter.CompanyID && m.WarehouseID == filter.WarehouseID && m.ProductID == filter.ProductID {
			out = append(out, m)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, companyID, warehouseID, productID int64) (Stock, error) {
	return tx.repo.GetStock(ctx, companyID, warehouseID, productID)
}

func (tx *memoryTx) UpsertStock(ctx context.Context, s Stock) error {
	tx.repo.stocks[key(s.CompanyID, s.WarehouseID, s.ProductID)] = s
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m, nil
}

type capturedEvents struct {
	events []MovementPostedEvent
}

func (c *capturedEvents) MovementPosted(ctx context.Context, e MovementPostedEvent) error {
	c.events = append(c.events, e)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWeightedAverageBlending(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()
	actor := shared.Actor{ID: 1, Username: "w"}

	m, err := svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("10"), UnitCost: dec("2"), SourceDoc: "PI", Actor: actor})
	require.NoError(t, err)
	require.True(t, m.BalanceQty.Equal(dec("10")))
	require.True(t, m.BalanceAvgCost.Equal(dec("2")))

	m, err = svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("10"), UnitCost: dec("4"), SourceDoc: "PI", Actor: actor})
	require.NoError(t, err)
	require.True(t, m.BalanceQty.Equal(dec("20")))
	require.True(t, m.BalanceAvgCost.Equal(dec("3")), "10@2 + 10@4 must average to 3, got %s", m.BalanceAvgCost)

	issue, err := svc.Issue(ctx, IssueInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("5"), SourceDoc: "SI", Actor: actor})
	require.NoError(t, err)
	require.True(t, issue.UnitCost.Equal(dec("3")), "issues draw at the current average")
	require.True(t, issue.TotalCost.Equal(dec("15")), "COGS = 5 x 3")
	require.True(t, issue.BalanceQty.Equal(dec("15")))
	require.True(t, issue.BalanceAvgCost.Equal(dec("3")), "issues never move the average")
}

func TestReceiptAfterFullIssueResetsAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	_, err := svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("8"), UnitCost: dec("10"), SourceDoc: "PI", Actor: actor})
	require.NoError(t, err)
	drained, err := svc.Issue(ctx, IssueInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("8"), SourceDoc: "SI", Actor: actor})
	require.NoError(t, err)
	require.True(t, drained.BalanceQty.IsZero())
	require.True(t, drained.BalanceAvgCost.IsZero())

	fresh, err := svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("3"), UnitCost: dec("25"), SourceDoc: "PI", Actor: actor})
	require.NoError(t, err)
	require.True(t, fresh.BalanceAvgCost.Equal(dec("25")), "zero balance takes the incoming cost outright")
}

func TestIssueBeyondStockRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Issue(ctx, IssueInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("1"), SourceDoc: "SI"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("2"), UnitCost: dec("9"), SourceDoc: "PI"})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, IssueInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("2.5"), SourceDoc: "SI"})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestNegativeStockAllowedWhenConfigured(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{AllowNegativeStock: true})

	m, err := svc.Issue(context.Background(), IssueInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("4"), SourceDoc: "SI"})
	require.NoError(t, err)
	require.True(t, m.BalanceQty.Equal(dec("-4")))
}

func TestBalanceChainIsContinuous(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 2, ProductID: 7, Qty: dec("10"), UnitCost: dec("1.5"), SourceDoc: "PI"})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, IssueInput{CompanyID: 1, WarehouseID: 2, ProductID: 7, Qty: dec("4"), SourceDoc: "SI"})
	require.NoError(t, err)
	_, err = svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 2, ProductID: 7, Qty: dec("6"), UnitCost: dec("2"), SourceDoc: "PI"})
	require.NoError(t, err)

	card, err := svc.StockCard(ctx, StockCardFilter{CompanyID: 1, WarehouseID: 2, ProductID: 7})
	require.NoError(t, err)
	require.Len(t, card, 3)

	running := decimal.Zero
	for i, m := range card {
		running = running.Add(m.QtyIn).Sub(m.QtyOut)
		require.True(t, m.BalanceQty.Equal(running), "row %d balance %s, replay says %s", i, m.BalanceQty, running)
	}

	stock, err := svc.Stock(ctx, 1, 2, 7)
	require.NoError(t, err)
	require.True(t, stock.QtyOnHand.Equal(running))
}

func TestTransferMovesValueWithQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Receipt(ctx, ReceiptInput{CompanyID: 1, WarehouseID: 1, ProductID: 5, Qty: dec("10"), UnitCost: dec("7"), SourceDoc: "PI"})
	require.NoError(t, err)

	out, in, err := svc.Transfer(ctx, TransferInput{CompanyID: 1, SrcWarehouse: 1, DstWarehouse: 2, ProductID: 5, Qty: dec("4")})
	require.NoError(t, err)
	require.True(t, out.UnitCost.Equal(dec("7")))
	require.True(t, in.UnitCost.Equal(dec("7")), "destination receives at the issued cost")
	require.True(t, out.BalanceQty.Equal(dec("6")))
	require.True(t, in.BalanceQty.Equal(dec("4")))

	_, _, err = svc.Transfer(ctx, TransferInput{CompanyID: 1, SrcWarehouse: 1, DstWarehouse: 1, ProductID: 5, Qty: dec("1")})
	require.Error(t, err)
}

func TestAdjustmentSigns(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, ServiceConfig{})
	ctx := context.Background()

	up, err := svc.Adjust(ctx, AdjustmentInput{CompanyID: 1, WarehouseID: 1, ProductID: 9, Qty: dec("5"), UnitCost: dec("3"), Note: "count surplus"})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustIn, up.Type)

	down, err := svc.Adjust(ctx, AdjustmentInput{CompanyID: 1, WarehouseID: 1, ProductID: 9, Qty: dec("-2"), Note: "damage"})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustOut, down.Type)
	require.True(t, down.TotalCost.Equal(dec("6")), "writes off at the average")

	_, err = svc.Adjust(ctx, AdjustmentInput{CompanyID: 1, WarehouseID: 1, ProductID: 9, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMovementEventsPublished(t *testing.T) {
	repo := newMemoryRepo()
	events := &capturedEvents{}
	svc := NewService(repo, nil, nil, events, ServiceConfig{})

	m, err := svc.Receipt(context.Background(), ReceiptInput{CompanyID: 3, WarehouseID: 1, ProductID: 2, Qty: dec("1"), UnitCost: dec("100"), SourceDoc: "PI"})
	require.NoError(t, err)
	require.Len(t, events.events, 1)
	require.Equal(t, m.ID, events.events[0].MovementID)
	require.Equal(t, MovementReceipt, events.events[0].Type)
}
