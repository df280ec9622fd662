package jobs

import (
	"context"
	"log/slog"

	"github.com/marco-erp/ledger/internal/inventory"
	"github.com/marco-erp/ledger/internal/shared"
)

// MovementEvents bridges committed stock movements onto the queue. Each
// movement schedules a replay check of its stock card. Enqueue failures are
// logged and swallowed; the movement itself already committed.
type MovementEvents struct {
	client *Client
	logger *slog.Logger
}

func NewMovementEvents(client *Client, logger *slog.Logger) *MovementEvents {
	return &MovementEvents{client: client, logger: logger}
}

func (e *MovementEvents) MovementPosted(ctx context.Context, event inventory.MovementPostedEvent) error {
	if e == nil || e.client == nil {
		return nil
	}
	_, err := e.client.EnqueueMovementCheck(ctx, MovementCheckPayload{
		CompanyID:   event.CompanyID,
		WarehouseID: event.WarehouseID,
		ProductID:   event.ProductID,
	})
	if err != nil && e.logger != nil {
		e.logger.Warn("movement check enqueue failed",
			slog.Int64("movement_id", event.MovementID),
			slog.Any("error", err))
	}
	return nil
}

// AuditEvents delivers audit records through the queue so the primary
// transaction never waits on the audit write. When the enqueue fails the
// record falls through to the direct writer.
type AuditEvents struct {
	client *Client
	direct shared.AuditRecorder
	logger *slog.Logger
}

func NewAuditEvents(client *Client, direct shared.AuditRecorder, logger *slog.Logger) *AuditEvents {
	return &AuditEvents{client: client, direct: direct, logger: logger}
}

func (e *AuditEvents) Record(ctx context.Context, log shared.AuditLog) error {
	if e == nil || e.client == nil {
		if e != nil && e.direct != nil {
			return e.direct.Record(ctx, log)
		}
		return nil
	}
	if err := e.client.EnqueueAuditRecord(ctx, log); err != nil {
		if e.logger != nil {
			e.logger.Warn("audit enqueue failed, writing directly",
				slog.String("action", log.Action),
				slog.Any("error", err))
		}
		if e.direct != nil {
			return e.direct.Record(ctx, log)
		}
		return err
	}
	return nil
}
