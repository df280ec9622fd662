package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents one append-only record in audit_logs. Old/new values
// capture the field-level change; ChangedColumns names what differed.
type AuditLog struct {
	CompanyID      int64
	ActorID        int64
	Actor          string
	Action         string
	Entity         string
	EntityID       string
	OldValues      map[string]any
	NewValues      map[string]any
	ChangedColumns []string
	At             time.Time
}

// columns normalizes a nil slice to empty. Most call sites record whole-entity
// actions and never name individual columns; the table still requires a value.
func (l AuditLog) columns() []string {
	if l.ChangedColumns == nil {
		return []string{}
	}
	return l.ChangedColumns
}

// AuditRecorder is the port engines use to shadow mutations. Implementations
// must be best-effort: a failed audit write is logged by the caller and never
// fails the primary transaction.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs directly.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. Rows are never updated or deleted.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	oldJSON, err := json.Marshal(log.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(log.NewValues)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (company_id, actor_id, actor, action, entity, entity_id, old_values, new_values, changed_columns, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		log.CompanyID, log.ActorID, log.Actor, log.Action, log.Entity, log.EntityID, oldJSON, newJSON, log.columns(), at)
	return err
}
