package sequence

import (
	"context"
	"errors"

	"github.com/marco-erp/ledger/internal/shared"
)

// maxAttempts bounds the optimistic retry loop. Contention past this means
// the scope is hot enough that the caller should back off and retry whole.
const maxAttempts = 3

// Allocator issues unique, monotonically increasing document codes per
// (company, document type, fiscal year).
type Allocator struct {
	repo Repository
}

func NewAllocator(repo Repository) *Allocator {
	return &Allocator{repo: repo}
}

// Allocate consumes and returns the next code. The increment is committed
// before the code is returned, so a posting that fails afterwards leaves a
// gap, never a duplicate. On version conflict the read is refreshed and the
// increment retried up to maxAttempts times.
func (a *Allocator) Allocate(ctx context.Context, companyID int64, docType DocumentType, fiscalYearID int64) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		seq, err := a.repo.GetOrCreate(ctx, companyID, docType, fiscalYearID)
		if err != nil {
			return "", err
		}
		advanced, err := a.repo.IncrementIfVersion(ctx, seq.ID, seq.Version)
		if err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				continue
			}
			return "", err
		}
		return FormatCode(advanced.Prefix, advanced.CurrentSequence), nil
	}
	return "", shared.ErrResourceContention
}

// Peek formats the next code without consuming it. Only a hint for entry
// forms; concurrent allocations may take the number first.
func (a *Allocator) Peek(ctx context.Context, companyID int64, docType DocumentType, fiscalYearID int64) (string, error) {
	seq, err := a.repo.GetOrCreate(ctx, companyID, docType, fiscalYearID)
	if err != nil {
		return "", err
	}
	return FormatCode(seq.Prefix, seq.CurrentSequence+1), nil
}
