package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/marco-erp/ledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMovementCheck replays a stock card and verifies balance continuity.
	TaskMovementCheck = "inventory:movement_check"
	// TaskJournalIntegrity sweeps posted entries for balance violations.
	TaskJournalIntegrity = "ledger:journal_integrity"
	// TaskIdempotencyCleanup trims expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
	// TaskAuditRecord appends one audit log record.
	TaskAuditRecord = "audit:record"
)

// MovementCheckPayload identifies one stock card to replay.
type MovementCheckPayload struct {
	CompanyID   int64 `json:"company_id"`
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
}

// NewMovementCheckTask constructs an Asynq task for a stock card replay.
func NewMovementCheckTask(payload MovementCheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMovementCheck, data, asynq.Queue(QueueDefault)), nil
}

// JournalIntegrityPayload carries scheduling metadata.
type JournalIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewJournalIntegrityTask constructs the nightly integrity sweep task.
func NewJournalIntegrityTask(at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(JournalIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskJournalIntegrity, data, asynq.Queue(QueueDefault)), nil
}

// NewAuditRecordTask constructs a task carrying one audit record.
func NewAuditRecordTask(log shared.AuditLog) (*asynq.Task, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets the retention for the cleanup run.
type IdempotencyCleanupPayload struct {
	RetainHours int `json:"retain_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retainHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetainHours: retainHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}
