package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	lshared "github.com/marco-erp/ledger/internal/ledger/shared"
	"github.com/marco-erp/ledger/internal/shared"
)

type memoryRepo struct {
	accounts map[int64]Account
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]Account)}
}

func (r *memoryRepo) List(ctx context.Context, companyID int64) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.CompanyID == companyID && !a.IsDeleted {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetByID(ctx context.Context, companyID, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok || a.CompanyID != companyID || a.IsDeleted {
		return Account{}, shared.ErrNotFound
	}
	return a, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	for _, a := range r.accounts {
		if a.CompanyID == companyID && a.Code == code && !a.IsDeleted {
			return a, nil
		}
	}
	return Account{}, shared.ErrNotFound
}

func (r *memoryRepo) Insert(ctx context.Context, account Account) (Account, error) {
	r.nextID++
	account.ID = r.nextID
	account.Version = 1
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryRepo) Update(ctx context.Context, account Account) (Account, error) {
	stored, ok := r.accounts[account.ID]
	if !ok || stored.Version != account.Version {
		return Account{}, shared.ErrConcurrencyConflict
	}
	account.Version++
	r.accounts[account.ID] = account
	return account, nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, companyID, id, version int64, deletedBy string) error {
	stored, ok := r.accounts[id]
	if !ok || stored.CompanyID != companyID || stored.Version != version {
		return shared.ErrConcurrencyConflict
	}
	stored.IsDeleted = true
	stored.Version++
	r.accounts[id] = stored
	return nil
}

func seedTree(t *testing.T, svc *Service) (root, child Account) {
	t.Helper()
	ctx := context.Background()
	root, err := svc.Create(ctx, CreateInput{CompanyID: 1, Code: "1000", Name: "Assets", Type: AccountTypeAsset, AllowPosting: true})
	require.NoError(t, err)
	child, err = svc.Create(ctx, CreateInput{CompanyID: 1, Code: "1100", Name: "Cash", Type: AccountTypeAsset, ParentID: &root.ID, AllowPosting: true})
	require.NoError(t, err)
	return root, child
}

func TestCreateDemotesParentLeaf(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	root, child := seedTree(t, svc)

	parent, err := svc.Get(context.Background(), 1, root.ID)
	require.NoError(t, err)
	require.False(t, parent.IsLeaf)
	require.False(t, parent.AllowPosting)
	require.False(t, parent.CanReceivePostings())

	require.Equal(t, 2, child.Level)
	require.True(t, child.CanReceivePostings())
	require.Equal(t, BalanceSideDebit, child.NormalBalance)
}

func TestCreateRejectsTypeMismatchWithParent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	root, _ := seedTree(t, svc)

	_, err := svc.Create(context.Background(), CreateInput{CompanyID: 1, Code: "4100", Name: "Sales", Type: AccountTypeRevenue, ParentID: &root.ID})
	require.Error(t, err)
}

func TestUpdateRejectsCycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	root, child := seedTree(t, svc)
	ctx := context.Background()

	grand, err := svc.Create(ctx, CreateInput{CompanyID: 1, Code: "1110", Name: "Petty cash", Type: AccountTypeAsset, ParentID: &child.ID, AllowPosting: true})
	require.NoError(t, err)

	// Moving the root under its grandchild would loop the tree.
	_, err = svc.Update(ctx, UpdateInput{
		CompanyID: 1, ID: root.ID, Version: repo.accounts[root.ID].Version,
		Name: root.Name, ParentID: &grand.ID, AllowPosting: false, IsActive: true,
	})
	require.ErrorIs(t, err, lshared.ErrAccountCycle)
}

func TestUpdateStaleVersionRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	_, child := seedTree(t, svc)

	_, err := svc.Update(context.Background(), UpdateInput{
		CompanyID: 1, ID: child.ID, Version: child.Version + 2,
		Name: "Cash on hand", AllowPosting: true, IsActive: true,
	})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestDeleteGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	_, child := seedTree(t, svc)
	ctx := context.Background()

	sys, err := svc.Create(ctx, CreateInput{CompanyID: 1, Code: "3999", Name: "Retained earnings", Type: AccountTypeEquity, AllowPosting: true, IsSystem: true})
	require.NoError(t, err)
	err = svc.Delete(ctx, 1, sys.ID, sys.Version, shared.Actor{Username: "x"})
	require.ErrorIs(t, err, lshared.ErrSystemAccount)

	used := repo.accounts[child.ID]
	used.HasPostings = true
	repo.accounts[child.ID] = used
	err = svc.Delete(ctx, 1, child.ID, used.Version, shared.Actor{Username: "x"})
	require.Error(t, err)

	clean, err := svc.Create(ctx, CreateInput{CompanyID: 1, Code: "1200", Name: "Bank", Type: AccountTypeAsset, AllowPosting: true})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 1, clean.ID, clean.Version, shared.Actor{Username: "x"}))
	_, err = svc.Get(ctx, 1, clean.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
