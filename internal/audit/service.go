package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TimelineRow is one audit event as presented to reviewers.
type TimelineRow struct {
	At             time.Time
	Actor          string
	Action         string
	Entity         string
	EntityID       string
	OldValues      map[string]any
	NewValues      map[string]any
	ChangedColumns []string
}

// TimelineFilters narrows the timeline query. Zero values mean "any".
type TimelineFilters struct {
	CompanyID int64
	From      time.Time
	To        time.Time
	Actor     string
	Entity    string
	Action    string
	Page      int
	PageSize  int
}

// QueryParams is the normalized form handed to the repository. LimitRows is
// requested as page size plus one so the service can detect a next page
// without a count query.
type QueryParams struct {
	CompanyID  int64
	From       time.Time
	To         time.Time
	Actor      string
	Entity     string
	EntityID   string
	Action     string
	OffsetRows int
	LimitRows  int
}

// Repository reads the append-only audit_logs table.
type Repository interface {
	Timeline(ctx context.Context, params QueryParams) ([]TimelineRow, error)
}

// PagingInfo describes the returned window.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Timeline(ctx, QueryParams{
		CompanyID:  filters.CompanyID,
		From:       filters.From,
		To:         filters.To,
		Actor:      strings.TrimSpace(filters.Actor),
		Entity:     strings.TrimSpace(filters.Entity),
		Action:     strings.TrimSpace(filters.Action),
		OffsetRows: (page - 1) * pageSize,
		LimitRows:  pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// EntityTrail returns the full history for one entity, oldest first, so a
// reviewer can replay every change in order.
func (s *Service) EntityTrail(ctx context.Context, companyID int64, entity, entityID string) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if entity == "" || entityID == "" {
		return nil, fmt.Errorf("audit: entity and entity id required")
	}
	rows, err := s.repo.Timeline(ctx, QueryParams{CompanyID: companyID, Entity: entity, EntityID: entityID, LimitRows: 1000})
	if err != nil {
		return nil, err
	}
	trail := make([]TimelineRow, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		trail = append(trail, rows[i])
	}
	return trail, nil
}
