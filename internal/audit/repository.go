package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Timeline(ctx context.Context, params QueryParams) ([]TimelineRow, error) {
	query := `SELECT occurred_at, actor, action, entity, entity_id, old_values, new_values, changed_columns
FROM audit_logs WHERE company_id = $1`
	args := []any{params.CompanyID}
	idx := 2
	appendFilter := func(clause string, value any) {
		query += fmt.Sprintf(" AND %s $%d", clause, idx)
		args = append(args, value)
		idx++
	}
	if !params.From.IsZero() {
		appendFilter("occurred_at >=", params.From)
	}
	if !params.To.IsZero() {
		appendFilter("occurred_at <=", params.To)
	}
	if params.Actor != "" {
		appendFilter("actor =", params.Actor)
	}
	if params.Entity != "" {
		appendFilter("entity =", params.Entity)
	}
	if params.EntityID != "" {
		appendFilter("entity_id =", params.EntityID)
	}
	if params.Action != "" {
		appendFilter("action =", params.Action)
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, params.LimitRows, params.OffsetRows)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var (
			row            TimelineRow
			oldRaw, newRaw []byte
		)
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &oldRaw, &newRaw, &row.ChangedColumns); err != nil {
			return nil, err
		}
		if len(oldRaw) > 0 {
			_ = json.Unmarshal(oldRaw, &row.OldValues)
		}
		if len(newRaw) > 0 {
			_ = json.Unmarshal(newRaw, &row.NewValues)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
