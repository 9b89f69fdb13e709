package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountBalance models a ledger account with its posted debit/credit sums.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Sums      balances.Amounts
}

// ClosingBS is debit minus credit in BS.
func (a AccountBalance) ClosingBS() decimal.Decimal {
	return a.Sums.DebitBS.Sub(a.Sums.CreditBS)
}

// ClosingUSD is debit minus credit in USD.
func (a AccountBalance) ClosingUSD() decimal.Decimal {
	return a.Sums.DebitUSD.Sub(a.Sums.CreditUSD)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	AccountID  int64
	Code       string
	Name       string
	Sums       balances.Amounts
	ClosingBS  decimal.Decimal
	ClosingUSD decimal.Decimal
}

// TrialBalanceGroup aggregates accounts sharing the first code segment.
type TrialBalanceGroup struct {
	Key      string
	Accounts []TrialBalanceAccount
	Sums     balances.Amounts
}

// TrialBalance is the grouped trial balance with its grand totals.
type TrialBalance struct {
	Groups []TrialBalanceGroup
	Totals balances.Amounts
}

// Balanced reports whether total debits equal total credits within tolerance in both currencies.
func (tb TrialBalance) Balanced() bool {
	return shared.Balanced(tb.Totals.DebitBS, tb.Totals.CreditBS) && shared.Balanced(tb.Totals.DebitUSD, tb.Totals.CreditUSD)
}

// BuildTrialBalance converts account balances into grouped trial balance data.
func BuildTrialBalance(rows []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range rows {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Accounts = append(grp.Accounts, TrialBalanceAccount{
			AccountID:  acc.AccountID,
			Code:       acc.Code,
			Name:       acc.Name,
			Sums:       acc.Sums,
			ClosingBS:  acc.ClosingBS(),
			ClosingUSD: acc.ClosingUSD(),
		})
		grp.Sums = grp.Sums.Add(acc.Sums)
	}

	sort.Strings(keys)
	result := TrialBalance{}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.Totals = result.Totals.Add(grp.Sums)
	}
	return result
}
