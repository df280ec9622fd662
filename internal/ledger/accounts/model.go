package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// BalanceSide is the normal balance side of an account.
type BalanceSide string

const (
	BalanceSideDebit  BalanceSide = "DEBIT"
	BalanceSideCredit BalanceSide = "CREDIT"
)

// Account models a chart of accounts node. Accounts form a tree; Level is the
// depth from the root. Only active leaf accounts with AllowPosting may appear
// on journal lines.
type Account struct {
	ID              int64
	CompanyID       int64
	Code            string
	Name            string
	LocalName       string
	Type            AccountType
	NormalBalance   BalanceSide
	ParentID        *int64
	Level           int
	IsLeaf          bool
	AllowPosting    bool
	IsActive        bool
	HasPostings     bool
	IsSystemAccount bool
	IsDeleted       bool
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanReceivePostings reports whether journal lines may reference the account.
func (a Account) CanReceivePostings() bool {
	return a.IsActive && a.IsLeaf && a.AllowPosting && !a.IsDeleted
}

// NormalSideFor returns the conventional balance side for an account type.
func NormalSideFor(t AccountType) BalanceSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return BalanceSideDebit
	default:
		return BalanceSideCredit
	}
}
