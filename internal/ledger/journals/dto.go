package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
)

// balanceTolerance is the maximum |Σdebit − Σcredit| a posted entry may
// carry. Mirrored by the storage trigger.
var balanceTolerance = decimal.New(1, -3)

// LineInput describes one candidate journal line.
type LineInput struct {
	LineNumber   int
	AccountID    int64
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Description  string
	CostCenterID *int64
	WarehouseID  *int64
}

// CandidateEntry groups everything needed to create a draft.
type CandidateEntry struct {
	CompanyID       int64
	Date            time.Time
	Description     string
	Reference       string
	Source          SourceRef
	CostCenterID    *int64
	AdjustedEntryID *int64
	Lines           []LineInput
}

// Validate checks the entry-shape invariants and collects every failure
// rather than stopping at the first. Account postability needs storage and is
// checked by the service, atomically with the state transition.
func (c CandidateEntry) Validate() error {
	var reasons []string
	if c.Description == "" {
		reasons = append(reasons, "description required")
	}
	if _, ok := KnownSourceTypes[c.Source.Type]; !ok {
		reasons = append(reasons, fmt.Sprintf("unknown source type %q", c.Source.Type))
	}
	if requiresSourceID(c.Source.Type) && c.Source.ID == uuid.Nil {
		reasons = append(reasons, "source document id required")
	}
	if len(c.Lines) < 2 {
		reasons = append(reasons, lshared.ErrTooFewLines.Error())
	}
	seen := make(map[int]struct{}, len(c.Lines))
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, line := range c.Lines {
		if line.AccountID == 0 {
			reasons = append(reasons, fmt.Sprintf("line %d: account required", line.LineNumber))
		}
		if _, dup := seen[line.LineNumber]; dup {
			reasons = append(reasons, fmt.Sprintf("line %d: duplicate line number", line.LineNumber))
		}
		seen[line.LineNumber] = struct{}{}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			reasons = append(reasons, fmt.Sprintf("line %d: negative amount", line.LineNumber))
		}
		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if debitSet && creditSet {
			reasons = append(reasons, fmt.Sprintf("line %d: cannot be both debit and credit", line.LineNumber))
		}
		if !debitSet && !creditSet {
			reasons = append(reasons, fmt.Sprintf("line %d: debit and credit both zero", line.LineNumber))
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if totalDebit.Sub(totalCredit).Abs().GreaterThan(balanceTolerance) {
		reasons = append(reasons, fmt.Sprintf("%s: debit %s != credit %s",
			lshared.ErrUnbalanced.Error(), totalDebit.StringFixed(2), totalCredit.StringFixed(2)))
	}
	if len(reasons) > 0 {
		return &lshared.ValidationError{Reasons: reasons}
	}
	return nil
}

// requiresSourceID reports whether the source type must reference a business
// document. Manual, opening, adjustment, and reversal entries stand alone.
func requiresSourceID(t SourceType) bool {
	switch t {
	case SourceManual, SourceOpening, SourceAdjustment, SourceReversal:
		return false
	}
	return true
}

// Totals sums the candidate lines.
func (c CandidateEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range c.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// PostResult is returned to source-document services after posting.
type PostResult struct {
	EntryID       int64
	JournalNumber string
	TotalDebit    decimal.Decimal
	TotalCredit   decimal.Decimal
	PostingDate   time.Time
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	CompanyID int64
	EntryID   int64
	Reason    string
}
