package integration

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
)

// pair debits one account and credits another by the same amount in both currencies.
func pair(debitAccount, creditAccount int64, amount Money, description string) []journals.LineInput {
	bs, usd := amount.BS.Round(2), amount.USD.Round(2)
	return []journals.LineInput{
		{AccountID: debitAccount, DebitBS: bs, DebitUSD: usd, Description: description},
		{AccountID: creditAccount, CreditBS: bs, CreditUSD: usd, Description: description},
	}
}

func settlementKey(method string) string {
	switch method {
	case PaymentBank:
		return mappings.KeyBank
	case PaymentCredit:
		return mappings.KeyReceivable
	default:
		return mappings.KeyCash
	}
}

func positive(v decimal.Decimal) decimal.Decimal {
	if v.IsPositive() {
		return v
	}
	return decimal.Zero
}
