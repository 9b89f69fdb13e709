package balances

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Amounts holds the four currency × side accumulators.
type Amounts struct {
	DebitBS   decimal.Decimal `json:"debit_bs"`
	CreditBS  decimal.Decimal `json:"credit_bs"`
	DebitUSD  decimal.Decimal `json:"debit_usd"`
	CreditUSD decimal.Decimal `json:"credit_usd"`
}

// AmountsFromFloats builds Amounts from raw floats; NaN and infinities count as zero.
func AmountsFromFloats(debitBS, creditBS, debitUSD, creditUSD float64) Amounts {
	return Amounts{
		DebitBS:   shared.Dec(debitBS),
		CreditBS:  shared.Dec(creditBS),
		DebitUSD:  shared.Dec(debitUSD),
		CreditUSD: shared.Dec(creditUSD),
	}
}

// Add sums two accumulators.
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{
		DebitBS:   a.DebitBS.Add(b.DebitBS),
		CreditBS:  a.CreditBS.Add(b.CreditBS),
		DebitUSD:  a.DebitUSD.Add(b.DebitUSD),
		CreditUSD: a.CreditUSD.Add(b.CreditUSD),
	}
}

// Neg flips the sign of every field.
func (a Amounts) Neg() Amounts {
	return Amounts{
		DebitBS:   a.DebitBS.Neg(),
		CreditBS:  a.CreditBS.Neg(),
		DebitUSD:  a.DebitUSD.Neg(),
		CreditUSD: a.CreditUSD.Neg(),
	}
}

// IsZero reports whether all fields are zero.
func (a Amounts) IsZero() bool {
	return a.DebitBS.IsZero() && a.CreditBS.IsZero() && a.DebitUSD.IsZero() && a.CreditUSD.IsZero()
}

// Equal compares field by field.
func (a Amounts) Equal(b Amounts) bool {
	return a.DebitBS.Equal(b.DebitBS) && a.CreditBS.Equal(b.CreditBS) &&
		a.DebitUSD.Equal(b.DebitUSD) && a.CreditUSD.Equal(b.CreditUSD)
}

// Delta is the change a posting applies to one account.
type Delta struct {
	AccountID int64
	Amounts
}

// Balance is the signed balance of an account as of a date.
type Balance struct {
	AccountID  int64           `json:"account_id"`
	BalanceBS  decimal.Decimal `json:"balance_bs"`
	BalanceUSD decimal.Decimal `json:"balance_usd"`
}

// Bucket is the precomputed monthly balance row of an account.
type Bucket struct {
	StoreID          int64
	AccountID        int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	Opening          Amounts
	Period           Amounts
	Closing          Amounts
	LastCalculatedAt time.Time
}

// Apply accumulates d into the period and recomputes closing = opening + period.
func (b *Bucket) Apply(d Amounts) {
	b.Period = b.Period.Add(d)
	b.Closing = b.Opening.Add(b.Period)
}

// Consistent reports whether closing = opening + period holds.
func (b Bucket) Consistent() bool {
	return b.Closing.Equal(b.Opening.Add(b.Period))
}

// Signed converts raw debit/credit sums into a balance on the account's natural side.
func Signed(accountID int64, nature accounts.Nature, sums Amounts) Balance {
	out := Balance{AccountID: accountID}
	if nature == accounts.NatureDebit {
		out.BalanceBS = sums.DebitBS.Sub(sums.CreditBS)
		out.BalanceUSD = sums.DebitUSD.Sub(sums.CreditUSD)
	} else {
		out.BalanceBS = sums.CreditBS.Sub(sums.DebitBS)
		out.BalanceUSD = sums.CreditUSD.Sub(sums.DebitUSD)
	}
	return out
}

// Compute signs every known account; accounts without postings get a zero balance.
func Compute(accts map[int64]accounts.Account, sums map[int64]Amounts) map[int64]Balance {
	out := make(map[int64]Balance, len(accts))
	for id, acc := range accts {
		out[id] = Signed(id, acc.Nature(), sums[id])
	}
	return out
}

// MergeDeltas folds deltas per account, drops empty ones and orders them by account id
// so concurrent upserts lock rows in the same order.
func MergeDeltas(deltas []Delta) []Delta {
	byAccount := make(map[int64]Amounts, len(deltas))
	for _, d := range deltas {
		if d.AccountID == 0 {
			continue
		}
		byAccount[d.AccountID] = byAccount[d.AccountID].Add(d.Amounts)
	}
	out := make([]Delta, 0, len(byAccount))
	for id, amt := range byAccount {
		if amt.IsZero() {
			continue
		}
		out = append(out, Delta{AccountID: id, Amounts: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
