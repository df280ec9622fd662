package shared

import (
	"errors"
	"strings"
)

var (
	// ErrUnbalanced indicates debit != credit beyond tolerance.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrNoOpenPeriod indicates no fiscal period contains the date.
	ErrNoOpenPeriod = errors.New("ledger: no fiscal period for date")
	// ErrPeriodLocked indicates the period is locked against postings.
	ErrPeriodLocked = errors.New("ledger: period locked")
	// ErrPeriodClosed indicates the period is permanently closed.
	ErrPeriodClosed = errors.New("ledger: period closed")
	// ErrYearInactive indicates the fiscal year is not active.
	ErrYearInactive = errors.New("ledger: fiscal year not active")
	// ErrAccountNotPostable indicates a referenced account cannot take lines.
	ErrAccountNotPostable = errors.New("ledger: account not postable")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrAlreadyPosted indicates an illegal Draft-only operation on a posted entry.
	ErrAlreadyPosted = errors.New("ledger: entry already posted")
	// ErrAlreadyReversed indicates a posted entry was reversed before.
	ErrAlreadyReversed = errors.New("ledger: entry already reversed")
	// ErrNotPosted indicates the operation requires a posted entry.
	ErrNotPosted = errors.New("ledger: entry not posted")
	// ErrAccountCycle indicates a parent assignment would create a cycle.
	ErrAccountCycle = errors.New("ledger: account parent must not be a descendant")
	// ErrSystemAccount indicates a protected account.
	ErrSystemAccount = errors.New("ledger: system account is protected")
)

// ValidationError collects the reasons a candidate entry failed validation.
// The caller's input is wrong; correcting it makes the operation succeed.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "ledger: invalid entry: " + strings.Join(e.Reasons, "; ")
}

// AsValidation reports whether err is a ValidationError and returns it.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
