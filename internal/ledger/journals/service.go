package journals

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marco-erp/ledger/internal/ledger/periods"
	"github.com/marco-erp/ledger/internal/ledger/sequence"
	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/shared"
)

// Gate resolves whether a posting date falls in an open fiscal window.
type Gate interface {
	CanPost(ctx context.Context, companyID int64, date time.Time) (periods.PostingWindow, error)
}

// Service drives the journal entry lifecycle: draft, post, reverse.
type Service struct {
	repo  Repository
	seq   *sequence.Allocator
	gate  Gate
	audit shared.AuditRecorder
	now   func() time.Time
}

func NewService(repo Repository, seq *sequence.Allocator, gate Gate, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, seq: seq, gate: gate, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, companyID int64) ([]Entry, error) {
	return s.repo.List(ctx, companyID)
}

func (s *Service) Get(ctx context.Context, companyID, entryID int64) (Entry, error) {
	return s.repo.GetWithLines(ctx, companyID, entryID)
}

// CreateDraft validates the candidate, resolves its fiscal window, and stores
// it with a provisional draft code. Drafts take no document number; the
// sequence is consumed only at posting.
func (s *Service) CreateDraft(ctx context.Context, candidate CandidateEntry, actor shared.Actor) (Entry, error) {
	if err := candidate.Validate(); err != nil {
		return Entry{}, err
	}
	window, err := s.gate.CanPost(ctx, candidate.CompanyID, candidate.Date)
	if err != nil {
		return Entry{}, err
	}
	debit, credit := candidate.Totals()
	draft := Entry{
		CompanyID:       candidate.CompanyID,
		DraftCode:       newDraftCode(),
		Date:            candidate.Date,
		Description:     candidate.Description,
		Reference:       candidate.Reference,
		Status:          StatusDraft,
		Source:          candidate.Source,
		FiscalYearID:    window.YearID,
		FiscalPeriodID:  window.PeriodID,
		CostCenterID:    candidate.CostCenterID,
		AdjustedEntryID: candidate.AdjustedEntryID,
		TotalDebit:      debit,
		TotalCredit:     credit,
	}
	var created Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, draft)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, candidate.Lines); err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, created.CompanyID, actor, "journal.draft", created.ID, nil, map[string]any{
		"draft_code": created.DraftCode,
		"date":       created.Date.Format("2006-01-02"),
		"lines":      len(candidate.Lines),
	})
	return created, nil
}

// UpdateDraft replaces a draft's header and lines in full. Posted entries
// are immutable; the fiscal window is re-resolved in case the date moved.
// The adjustment link, if any, stays as created.
func (s *Service) UpdateDraft(ctx context.Context, entryID, version int64, candidate CandidateEntry, actor shared.Actor) (Entry, error) {
	if err := candidate.Validate(); err != nil {
		return Entry{}, err
	}
	window, err := s.gate.CanPost(ctx, candidate.CompanyID, candidate.Date)
	if err != nil {
		return Entry{}, err
	}
	debit, credit := candidate.Totals()
	var updated Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, candidate.CompanyID, entryID)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return lshared.ErrAlreadyPosted
		}
		if current.Version != version {
			return shared.ErrConcurrencyConflict
		}
		next := current
		next.Date = candidate.Date
		next.Description = candidate.Description
		next.Reference = candidate.Reference
		next.Source = candidate.Source
		next.FiscalYearID = window.YearID
		next.FiscalPeriodID = window.PeriodID
		next.CostCenterID = candidate.CostCenterID
		next.TotalDebit = debit
		next.TotalCredit = credit
		saved, err := tx.UpdateDraft(ctx, next)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, entryID, candidate.Lines); err != nil {
			return err
		}
		updated = saved
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, updated.CompanyID, actor, "journal.update", updated.ID, nil, map[string]any{
		"draft_code": updated.DraftCode,
		"date":       updated.Date.Format("2006-01-02"),
		"lines":      len(candidate.Lines),
	})
	return updated, nil
}

// NextNumber previews the journal number a posting dated date would take.
// Only a hint; a concurrent posting may consume it first.
func (s *Service) NextNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	if date.IsZero() {
		date = s.now()
	}
	window, err := s.gate.CanPost(ctx, companyID, date)
	if err != nil {
		return "", err
	}
	return s.seq.Peek(ctx, companyID, sequence.DocTypeJournal, window.YearID)
}

// CreateAdjustment creates an adjusting draft linked to a posted entry. The
// adjusted entry itself is untouched.
func (s *Service) CreateAdjustment(ctx context.Context, candidate CandidateEntry, adjustedEntryID int64, actor shared.Actor) (Entry, error) {
	target, err := s.repo.GetWithLines(ctx, candidate.CompanyID, adjustedEntryID)
	if err != nil {
		return Entry{}, err
	}
	if target.Status != StatusPosted && target.Status != StatusReversed {
		return Entry{}, lshared.ErrNotPosted
	}
	candidate.Source.Type = SourceAdjustment
	candidate.AdjustedEntryID = &adjustedEntryID
	return s.CreateDraft(ctx, candidate, actor)
}

// Post transitions a draft to posted atomically. Inside one transaction it
// locks the entry, re-validates the lines, re-checks the fiscal window with
// the period row locked, verifies every account is postable, allocates the
// journal number, and stamps the entry. The number allocation commits on its
// own; a failure after it leaves a gap in the sequence, never a duplicate.
func (s *Service) Post(ctx context.Context, companyID, entryID, version int64, actor shared.Actor) (PostResult, error) {
	postedAt := s.now().UTC()
	var result PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, companyID, entryID)
		if err != nil {
			return err
		}
		if err := entry.CanPost(); err != nil {
			return err
		}
		if entry.Version != version {
			return shared.ErrConcurrencyConflict
		}
		if err := candidateOf(entry).Validate(); err != nil {
			return err
		}
		if err := checkWindow(ctx, tx, entry); err != nil {
			return err
		}
		if err := checkAccounts(ctx, tx, entry); err != nil {
			return err
		}
		number, err := s.seq.Allocate(ctx, companyID, sequence.DocTypeJournal, entry.FiscalYearID)
		if err != nil {
			return err
		}
		posted, err := tx.MarkPosted(ctx, entry, number, actor.Username, postedAt)
		if err != nil {
			return err
		}
		if err := tx.MarkAccountsUsed(ctx, companyID, accountIDs(entry.Lines)); err != nil {
			return err
		}
		result = PostResult{
			EntryID:       posted.ID,
			JournalNumber: number,
			TotalDebit:    posted.TotalDebit,
			TotalCredit:   posted.TotalCredit,
			PostingDate:   postedAt,
		}
		return nil
	})
	if err != nil {
		return PostResult{}, err
	}
	s.record(ctx, companyID, actor, "journal.post", result.EntryID, nil, map[string]any{
		"journal_number": result.JournalNumber,
		"total_debit":    result.TotalDebit.String(),
		"total_credit":   result.TotalCredit.String(),
	})
	return result, nil
}

// Reverse creates and posts a mirror entry for a posted original, then marks
// the original reversed. Lines swap sides rather than negate, so per-account
// debit and credit activity stays sign-correct. The reversal lands in the
// period containing today, which must be open; reversing into the original's
// period is not supported once that period moved on.
func (s *Service) Reverse(ctx context.Context, in ReverseInput, actor shared.Actor) (Entry, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return Entry{}, &lshared.ValidationError{Reasons: []string{"reversal reason required"}}
	}
	reversedAt := s.now().UTC()
	today := dateOnly(reversedAt)
	window, err := s.gate.CanPost(ctx, in.CompanyID, today)
	if err != nil {
		return Entry{}, err
	}
	var reversal Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.CompanyID, in.EntryID)
		if err != nil {
			return err
		}
		if err := original.CanReverse(); err != nil {
			return err
		}
		period, err := tx.GetPeriodForUpdate(ctx, in.CompanyID, window.PeriodID)
		if err != nil {
			return err
		}
		if err := periodOpen(period); err != nil {
			return err
		}
		year, err := tx.GetYear(ctx, in.CompanyID, window.YearID)
		if err != nil {
			return err
		}
		if year.Status != periods.YearStatusActive {
			return lshared.ErrYearInactive
		}
		number, err := s.seq.Allocate(ctx, in.CompanyID, sequence.DocTypeJournal, window.YearID)
		if err != nil {
			return err
		}
		mirror := Entry{
			CompanyID:       in.CompanyID,
			JournalNumber:   &number,
			Date:            today,
			Description:     "Reversal of " + journalLabel(original) + ": " + in.Reason,
			Reference:       original.Reference,
			Status:          StatusPosted,
			Source:          SourceRef{Type: SourceReversal, ID: original.Source.ID},
			FiscalYearID:    window.YearID,
			FiscalPeriodID:  window.PeriodID,
			CostCenterID:    original.CostCenterID,
			ReversedEntryID: &original.ID,
			ReversalReason:  in.Reason,
			PostedBy:        actor.Username,
			PostingDate:     &reversedAt,
			TotalDebit:      original.TotalCredit,
			TotalCredit:     original.TotalDebit,
		}
		inserted, err := tx.InsertEntry(ctx, mirror)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, mirrorLines(original.Lines)); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, in.CompanyID, original.ID, original.Version, inserted.ID); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, in.CompanyID, actor, "journal.reverse", in.EntryID, nil, map[string]any{
		"reversal_entry_id": reversal.ID,
		"reason":            in.Reason,
	})
	return reversal, nil
}

// DeleteDraft soft-deletes a draft. Posted entries never leave the ledger.
func (s *Service) DeleteDraft(ctx context.Context, companyID, entryID, version int64, actor shared.Actor) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, companyID, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return lshared.ErrAlreadyPosted
		}
		return tx.SoftDeleteDraft(ctx, companyID, entryID, version, actor.Username)
	})
	if err != nil {
		return err
	}
	s.record(ctx, companyID, actor, "journal.draft.delete", entryID, nil, nil)
	return nil
}

// checkWindow re-validates the fiscal window with the period row locked.
// Period boundaries are immutable, so the draft's stamped period still
// contains the entry date; only its status can have changed since.
func checkWindow(ctx context.Context, tx TxRepository, entry Entry) error {
	period, err := tx.GetPeriodForUpdate(ctx, entry.CompanyID, entry.FiscalPeriodID)
	if err != nil {
		return err
	}
	if err := periodOpen(period); err != nil {
		return err
	}
	year, err := tx.GetYear(ctx, entry.CompanyID, entry.FiscalYearID)
	if err != nil {
		return err
	}
	if year.Status != periods.YearStatusActive {
		return lshared.ErrYearInactive
	}
	return nil
}

// dateOnly strips the clock before a timestamp is gated or stamped as an
// entry date. DATE columns compare against midnight.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func periodOpen(period periods.FiscalPeriod) error {
	switch period.Status {
	case periods.PeriodStatusLocked:
		return lshared.ErrPeriodLocked
	case periods.PeriodStatusClosed:
		return lshared.ErrPeriodClosed
	}
	return nil
}

func checkAccounts(ctx context.Context, tx TxRepository, entry Entry) error {
	ids := accountIDs(entry.Lines)
	accts, err := tx.GetAccounts(ctx, entry.CompanyID, ids)
	if err != nil {
		return err
	}
	byID := make(map[int64]bool, len(accts))
	for _, a := range accts {
		byID[a.ID] = a.CanReceivePostings()
	}
	for _, line := range entry.Lines {
		postable, found := byID[line.AccountID]
		if !found || !postable {
			return fmt.Errorf("%w: line %d account %d", lshared.ErrAccountNotPostable, line.LineNumber, line.AccountID)
		}
	}
	return nil
}

func accountIDs(lines []Line) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}

func candidateOf(entry Entry) CandidateEntry {
	lines := make([]LineInput, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		lines = append(lines, LineInput{
			LineNumber:   line.LineNumber,
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Description:  line.Description,
			CostCenterID: line.CostCenterID,
			WarehouseID:  line.WarehouseID,
		})
	}
	return CandidateEntry{
		CompanyID:   entry.CompanyID,
		Date:        entry.Date,
		Description: entry.Description,
		Reference:   entry.Reference,
		Source:      entry.Source,
		Lines:       lines,
	}
}

func journalLabel(entry Entry) string {
	if entry.JournalNumber != nil {
		return *entry.JournalNumber
	}
	return entry.DraftCode
}

func newDraftCode() string {
	return "DRAFT-" + strings.ToUpper(uuid.NewString()[:8])
}

func (s *Service) record(ctx context.Context, companyID int64, actor shared.Actor, action string, entityID int64, oldVals, newVals map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actor.ID,
		Actor:     actor.Username,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  strconv.FormatInt(entityID, 10),
		OldValues: oldVals,
		NewValues: newVals,
	})
}
