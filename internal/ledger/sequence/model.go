package sequence

import (
	"fmt"
	"time"
)

// DocumentType scopes a counter. Each (company, type, fiscal year) triple owns
// an independent sequence.
type DocumentType string

const (
	DocTypeJournal             DocumentType = "JE"
	DocTypeSalesInvoice        DocumentType = "SI"
	DocTypeSalesReturn         DocumentType = "SR"
	DocTypePurchaseInvoice     DocumentType = "PI"
	DocTypePurchaseReturn      DocumentType = "PR"
	DocTypeCashReceipt         DocumentType = "CRV"
	DocTypeCashPayment         DocumentType = "CPV"
	DocTypeCashTransfer        DocumentType = "CTV"
	DocTypeInventoryAdjustment DocumentType = "ADJ"
	DocTypePOS                 DocumentType = "POS"
)

// CodeSequence holds the last consumed number for a counter scope. Gaps are
// acceptable after failed postings; duplicates never are.
type CodeSequence struct {
	ID              int64
	CompanyID       int64
	DocumentType    DocumentType
	FiscalYearID    int64
	Prefix          string
	CurrentSequence int64
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FormatCode renders the externally visible document number.
func FormatCode(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}
