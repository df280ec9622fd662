package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/marco-erp/ledger/internal/inventory"
	jobmetrics "github.com/marco-erp/ledger/internal/jobs"
	"github.com/marco-erp/ledger/internal/shared"
)

// Handlers owns the dependencies the task handlers close over.
type Handlers struct {
	db          *pgxpool.Pool
	movements   inventory.RepositoryPort
	idempotency *shared.IdempotencyStore
	audit       shared.AuditRecorder
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
}

func NewHandlers(db *pgxpool.Pool, movements inventory.RepositoryPort, idem *shared.IdempotencyStore, metrics *jobmetrics.Metrics, logger *slog.Logger) *Handlers {
	return &Handlers{
		db:          db,
		movements:   movements,
		idempotency: idem,
		audit:       shared.NewAuditLogger(db),
		metrics:     metrics,
		logger:      logger,
	}
}

// HandleAuditRecord appends one queued audit record.
func (h *Handlers) HandleAuditRecord(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("audit_record")
	var log shared.AuditLog
	if err := json.Unmarshal(t.Payload(), &log); err != nil {
		return asynq.SkipRetry
	}
	return tracker.End(h.audit.Record(ctx, log))
}

// HandleMovementCheck replays one stock card and verifies that every row's
// stored balance matches the running sum. A mismatch means a movement was
// written outside the serialized path and needs investigation.
func (h *Handlers) HandleMovementCheck(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("movement_check")
	var payload MovementCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	movements, err := h.movements.ListMovements(ctx, inventory.StockCardFilter{
		CompanyID:   payload.CompanyID,
		WarehouseID: payload.WarehouseID,
		ProductID:   payload.ProductID,
	})
	if err != nil {
		return tracker.End(err)
	}
	running := decimal.Zero
	anomalies := 0
	for _, m := range movements {
		running = running.Add(m.QtyIn).Sub(m.QtyOut)
		if !m.BalanceQty.Equal(running) {
			anomalies++
			h.logger.Error("stock card balance mismatch",
				slog.Int64("movement_id", m.ID),
				slog.Int64("company_id", payload.CompanyID),
				slog.Int64("warehouse_id", payload.WarehouseID),
				slog.Int64("product_id", payload.ProductID),
				slog.String("stored", m.BalanceQty.String()),
				slog.String("replayed", running.String()))
		}
	}
	h.metrics.AddAnomalies("stock_card", payload.CompanyID, anomalies)
	return tracker.End(nil)
}

// HandleJournalIntegrity sweeps posted entries whose header totals disagree
// with their line sums or exceed the balance tolerance. The storage trigger
// should make this unreachable; the sweep is the alarm for the day it is not.
func (h *Handlers) HandleJournalIntegrity(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("journal_integrity")
	var payload JournalIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	rows, err := h.db.Query(ctx, `SELECT e.id, e.company_id, e.journal_number,
  e.total_debit, e.total_credit,
  COALESCE(SUM(l.debit), 0) AS line_debit, COALESCE(SUM(l.credit), 0) AS line_credit
FROM journal_entries e
JOIN journal_entry_lines l ON l.entry_id = e.id
WHERE e.status IN ('POSTED', 'REVERSED')
GROUP BY e.id
HAVING ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) > 0.001
    OR COALESCE(SUM(l.debit), 0) <> e.total_debit
    OR COALESCE(SUM(l.credit), 0) <> e.total_credit`)
	if err != nil {
		return tracker.End(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, companyID                                  int64
			journalNumber                                  *string
			totalDebit, totalCredit, lineDebit, lineCredit decimal.Decimal
		)
		if err := rows.Scan(&id, &companyID, &journalNumber, &totalDebit, &totalCredit, &lineDebit, &lineCredit); err != nil {
			return tracker.End(err)
		}
		number := ""
		if journalNumber != nil {
			number = *journalNumber
		}
		h.logger.Error("posted entry out of balance",
			slog.Int64("entry_id", id),
			slog.Int64("company_id", companyID),
			slog.String("journal_number", number),
			slog.String("line_debit", lineDebit.String()),
			slog.String("line_credit", lineCredit.String()))
		h.metrics.AddAnomalies("journal_balance", companyID, 1)
	}
	return tracker.End(rows.Err())
}

// HandleIdempotencyCleanup trims processed keys past retention.
func (h *Handlers) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track("idempotency_cleanup")
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retain := time.Duration(payload.RetainHours) * time.Hour
	if retain <= 0 {
		retain = 72 * time.Hour
	}
	return tracker.End(h.idempotency.Cleanup(ctx, retain))
}
