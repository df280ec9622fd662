package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/shared"
)

// Service manages the chart of accounts tree.
type Service struct {
	repo  Repository
	audit shared.AuditRecorder
}

func NewService(repo Repository, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes a new account.
type CreateInput struct {
	CompanyID    int64
	Code         string
	Name         string
	LocalName    string
	Type         AccountType
	ParentID     *int64
	AllowPosting bool
	IsSystem     bool
	Actor        shared.Actor
}

func (s *Service) List(ctx context.Context, companyID int64) ([]Account, error) {
	return s.repo.List(ctx, companyID)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Account, error) {
	return s.repo.GetByID(ctx, companyID, id)
}

// Create inserts a leaf account under the given parent. The parent, if any,
// stops being a leaf and stops accepting postings.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if in.Code == "" || in.Name == "" {
		return Account{}, errors.New("accounts: code and name required")
	}
	level := 1
	if in.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, in.CompanyID, *in.ParentID)
		if err != nil {
			return Account{}, fmt.Errorf("accounts: parent: %w", err)
		}
		if parent.Type != in.Type {
			return Account{}, errors.New("accounts: child type must match parent type")
		}
		level = parent.Level + 1
		if parent.IsLeaf {
			parent.IsLeaf = false
			parent.AllowPosting = false
			if _, err := s.repo.Update(ctx, parent); err != nil {
				return Account{}, err
			}
		}
	}
	account := Account{
		CompanyID:       in.CompanyID,
		Code:            in.Code,
		Name:            in.Name,
		LocalName:       in.LocalName,
		Type:            in.Type,
		NormalBalance:   NormalSideFor(in.Type),
		ParentID:        in.ParentID,
		Level:           level,
		IsLeaf:          true,
		AllowPosting:    in.AllowPosting,
		IsActive:        true,
		IsSystemAccount: in.IsSystem,
	}
	created, err := s.repo.Insert(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.CompanyID, in.Actor, "account.create", created.ID, nil, map[string]any{
		"code": created.Code, "name": created.Name, "type": string(created.Type),
	}, nil)
	return created, nil
}

// UpdateInput mutates account metadata under a version check.
type UpdateInput struct {
	CompanyID    int64
	ID           int64
	Version      int64
	Name         string
	LocalName    string
	ParentID     *int64
	AllowPosting bool
	IsActive     bool
	Actor        shared.Actor
}

// Update renames or reparents an account. Reparenting is refused when the new
// parent is the account itself or one of its descendants; the schema cannot
// express that, so it is walked here.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Account, error) {
	current, err := s.repo.GetByID(ctx, in.CompanyID, in.ID)
	if err != nil {
		return Account{}, err
	}
	if current.Version != in.Version {
		return Account{}, shared.ErrConcurrencyConflict
	}
	level := current.Level
	if !sameParent(current.ParentID, in.ParentID) {
		if in.ParentID != nil {
			if err := s.ensureNotDescendant(ctx, in.CompanyID, in.ID, *in.ParentID); err != nil {
				return Account{}, err
			}
			parent, err := s.repo.GetByID(ctx, in.CompanyID, *in.ParentID)
			if err != nil {
				return Account{}, fmt.Errorf("accounts: parent: %w", err)
			}
			level = parent.Level + 1
		} else {
			level = 1
		}
	}
	prev := current
	current.Name = in.Name
	current.LocalName = in.LocalName
	current.ParentID = in.ParentID
	current.Level = level
	current.AllowPosting = in.AllowPosting
	current.IsActive = in.IsActive
	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.CompanyID, in.Actor, "account.update", updated.ID,
		map[string]any{"name": prev.Name, "active": prev.IsActive},
		map[string]any{"name": updated.Name, "active": updated.IsActive},
		[]string{"name", "local_name", "parent_id", "allow_posting", "is_active"})
	return updated, nil
}

// Delete soft-deletes an account. System accounts and accounts with postings
// are refused.
func (s *Service) Delete(ctx context.Context, companyID, id, version int64, actor shared.Actor) error {
	account, err := s.repo.GetByID(ctx, companyID, id)
	if err != nil {
		return err
	}
	if account.IsSystemAccount {
		return lshared.ErrSystemAccount
	}
	if account.HasPostings {
		return errors.New("accounts: account has postings and cannot be deleted")
	}
	if err := s.repo.SoftDelete(ctx, companyID, id, version, actor.Username); err != nil {
		return err
	}
	s.record(ctx, companyID, actor, "account.delete", id,
		map[string]any{"code": account.Code}, nil, nil)
	return nil
}

// ensureNotDescendant walks from the proposed parent to the root, rejecting
// the move when the chain passes through the account being reparented.
func (s *Service) ensureNotDescendant(ctx context.Context, companyID, accountID, parentID int64) error {
	cursor := parentID
	for {
		if cursor == accountID {
			return lshared.ErrAccountCycle
		}
		node, err := s.repo.GetByID(ctx, companyID, cursor)
		if err != nil {
			return err
		}
		if node.ParentID == nil {
			return nil
		}
		cursor = *node.ParentID
	}
}

func (s *Service) record(ctx context.Context, companyID int64, actor shared.Actor, action string, entityID int64, oldVals, newVals map[string]any, cols []string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID:      companyID,
		ActorID:        actor.ID,
		Actor:          actor.Username,
		Action:         action,
		Entity:         "account",
		EntityID:       strconv.FormatInt(entityID, 10),
		OldValues:      oldVals,
		NewValues:      newVals,
		ChangedColumns: cols,
	})
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
