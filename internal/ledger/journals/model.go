package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
)

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "DRAFT"
	StatusPosted   EntryStatus = "POSTED"
	StatusReversed EntryStatus = "REVERSED"
)

// SourceType discriminates the business document a journal entry came from.
type SourceType string

const (
	SourceManual              SourceType = "MANUAL"
	SourceOpening             SourceType = "OPENING"
	SourceSalesInvoice        SourceType = "SALES_INVOICE"
	SourceSalesReturn         SourceType = "SALES_RETURN"
	SourcePurchaseInvoice     SourceType = "PURCHASE_INVOICE"
	SourcePurchaseReturn      SourceType = "PURCHASE_RETURN"
	SourceCashReceipt         SourceType = "CASH_RECEIPT"
	SourceCashPayment         SourceType = "CASH_PAYMENT"
	SourceCashTransfer        SourceType = "CASH_TRANSFER"
	SourceInventoryAdjustment SourceType = "INVENTORY_ADJUSTMENT"
	SourcePOS                 SourceType = "POS"
	SourceAdjustment          SourceType = "ADJUSTMENT"
	SourceReversal            SourceType = "REVERSAL"
)

// SourceRef ties an entry to its originating document.
type SourceRef struct {
	Type SourceType
	ID   uuid.UUID
}

// KnownSourceTypes is the closed set accepted when building candidate
// entries; anything else is rejected rather than stored as an opaque string.
var KnownSourceTypes = map[SourceType]struct{}{
	SourceManual: {}, SourceOpening: {}, SourceSalesInvoice: {}, SourceSalesReturn: {},
	SourcePurchaseInvoice: {}, SourcePurchaseReturn: {}, SourceCashReceipt: {},
	SourceCashPayment: {}, SourceCashTransfer: {}, SourceInventoryAdjustment: {},
	SourcePOS: {}, SourceAdjustment: {}, SourceReversal: {},
}

// Entry is a journal entry header. Once posted, the header's number, poster
// stamps, and every line are immutable; corrections go through Reverse.
type Entry struct {
	ID             int64
	CompanyID      int64
	JournalNumber  *string
	DraftCode      string
	Date           time.Time
	Description    string
	Reference      string
	Status         EntryStatus
	Source         SourceRef
	FiscalYearID   int64
	FiscalPeriodID int64
	CostCenterID   *int64
	ReversedEntryID *int64
	ReversalEntryID *int64
	AdjustedEntryID *int64
	ReversalReason string
	PostedBy       string
	PostingDate    *time.Time
	TotalDebit     decimal.Decimal
	TotalCredit    decimal.Decimal
	IsDeleted      bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Line stores a debit or credit amount against one account. Exactly one side
// is non-zero.
type Line struct {
	ID           int64
	EntryID      int64
	LineNumber   int
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Description  string
	CostCenterID *int64
	WarehouseID  *int64
	CreatedAt    time.Time
}

// CanPost reports whether the posting transition is legal from the current
// status.
func (e *Entry) CanPost() error {
	switch e.Status {
	case StatusDraft:
		return nil
	case StatusPosted, StatusReversed:
		return lshared.ErrAlreadyPosted
	default:
		return lshared.ErrJournalNotFound
	}
}

// CanReverse reports whether the reversal transition is legal.
func (e *Entry) CanReverse() error {
	if e.Status == StatusReversed || e.ReversalEntryID != nil {
		return lshared.ErrAlreadyReversed
	}
	if e.Status != StatusPosted {
		return lshared.ErrNotPosted
	}
	return nil
}

// mirrorLines produces the sign-convention-preserving reversal lines: sides
// swap per line rather than amounts negating.
func mirrorLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			LineNumber:   line.LineNumber,
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			Description:  line.Description,
			CostCenterID: line.CostCenterID,
			WarehouseID:  line.WarehouseID,
		})
	}
	return out
}
