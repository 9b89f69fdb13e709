package reports

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
)

// ProfitAndLossAccount represents a revenue or expense account summary.
type ProfitAndLossAccount struct {
	Code      string
	Name      string
	AmountBS  decimal.Decimal
	AmountUSD decimal.Decimal
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string
	Accounts []ProfitAndLossAccount
	TotalBS  decimal.Decimal
	TotalUSD decimal.Decimal
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	Revenue      ProfitAndLossSection
	Expense      ProfitAndLossSection
	NetIncomeBS  decimal.Decimal
	NetIncomeUSD decimal.Decimal
}

// BuildProfitAndLoss aggregates accounts into revenue and expense sections.
func BuildProfitAndLoss(rows []AccountBalance) ProfitAndLoss {
	revenue := ProfitAndLossSection{Label: "Ingresos"}
	expense := ProfitAndLossSection{Label: "Gastos"}

	for _, acc := range rows {
		row := ProfitAndLossAccount{Code: acc.Code, Name: acc.Name, AmountBS: acc.ClosingBS(), AmountUSD: acc.ClosingUSD()}
		switch acc.Type {
		case accounts.AccountTypeRevenue:
			row.AmountBS = row.AmountBS.Neg()
			row.AmountUSD = row.AmountUSD.Neg()
			revenue.Accounts = append(revenue.Accounts, row)
			revenue.TotalBS = revenue.TotalBS.Add(row.AmountBS)
			revenue.TotalUSD = revenue.TotalUSD.Add(row.AmountUSD)
		case accounts.AccountTypeExpense:
			expense.Accounts = append(expense.Accounts, row)
			expense.TotalBS = expense.TotalBS.Add(row.AmountBS)
			expense.TotalUSD = expense.TotalUSD.Add(row.AmountUSD)
		}
	}

	sort.Slice(revenue.Accounts, func(i, j int) bool { return revenue.Accounts[i].Code < revenue.Accounts[j].Code })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Code < expense.Accounts[j].Code })

	return ProfitAndLoss{
		Revenue:      revenue,
		Expense:      expense,
		NetIncomeBS:  revenue.TotalBS.Sub(expense.TotalBS),
		NetIncomeUSD: revenue.TotalUSD.Sub(expense.TotalUSD),
	}
}

// Source reads what the income statement needs.
type Source interface {
	ListByType(ctx context.Context, storeID int64, types ...accounts.AccountType) ([]accounts.Account, error)
	SumPostedBetween(ctx context.Context, storeID int64, accountIDs []int64, from, to time.Time) (map[int64]balances.Amounts, error)
}

// ProfitAndLossFor builds the income statement of a store for [from, to].
func ProfitAndLossFor(ctx context.Context, src Source, storeID int64, from, to time.Time) (ProfitAndLoss, error) {
	nominal, err := src.ListByType(ctx, storeID, accounts.AccountTypeRevenue, accounts.AccountTypeExpense)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	ids := make([]int64, 0, len(nominal))
	for _, a := range nominal {
		ids = append(ids, a.ID)
	}
	sums, err := src.SumPostedBetween(ctx, storeID, ids, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	rows := make([]AccountBalance, 0, len(nominal))
	for _, a := range nominal {
		rows = append(rows, AccountBalance{AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, Sums: sums[a.ID]})
	}
	return BuildProfitAndLoss(rows), nil
}

// IncomeStatementProvider adapts src to the close engine's net income gate.
func IncomeStatementProvider(src Source) periods.IncomeStatementProvider {
	return func(ctx context.Context, storeID int64, start, end time.Time) (periods.NetIncome, error) {
		pl, err := ProfitAndLossFor(ctx, src, storeID, start, end)
		if err != nil {
			return periods.NetIncome{}, err
		}
		return periods.NetIncome{BS: pl.NetIncomeBS, USD: pl.NetIncomeUSD}, nil
	}
}
