package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is an amount carried in both ledger currencies.
type Money struct {
	BS  decimal.Decimal `json:"bs"`
	USD decimal.Decimal `json:"usd"`
}

// IsZero reports whether both currencies are zero after rounding.
func (m Money) IsZero() bool {
	return m.BS.Round(2).IsZero() && m.USD.Round(2).IsZero()
}

// Payment methods of sales, purchases and debt payments.
const (
	PaymentCash   = "cash"
	PaymentBank   = "bank"
	PaymentCredit = "credit"
)

// SaleCompleted is emitted by the point of sale when a sale is paid or charged.
type SaleCompleted struct {
	StoreID       int64           `json:"store_id"`
	SaleID        string          `json:"sale_id"`
	Number        string          `json:"number"`
	Date          time.Time       `json:"date"`
	Total         Money           `json:"total"`
	Cost          Money           `json:"cost"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	PaymentMethod string          `json:"payment_method"`
	ActorID       int64           `json:"actor_id,omitempty"`
}

// PurchaseReceived is emitted when merchandise from a supplier is received.
type PurchaseReceived struct {
	StoreID       int64           `json:"store_id"`
	PurchaseID    string          `json:"purchase_id"`
	Number        string          `json:"number"`
	Date          time.Time       `json:"date"`
	Total         Money           `json:"total"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	PaymentMethod string          `json:"payment_method"`
	ActorID       int64           `json:"actor_id,omitempty"`
}

// InvoiceIssued is emitted when a customer invoice on credit is issued.
type InvoiceIssued struct {
	StoreID      int64           `json:"store_id"`
	InvoiceID    string          `json:"invoice_id"`
	Number       string          `json:"number"`
	Date         time.Time       `json:"date"`
	Total        Money           `json:"total"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	ActorID      int64           `json:"actor_id,omitempty"`
}

// TransferShipped is emitted when stock leaves the store towards another location.
type TransferShipped struct {
	StoreID      int64           `json:"store_id"`
	TransferID   string          `json:"transfer_id"`
	Number       string          `json:"number"`
	Date         time.Time       `json:"date"`
	Cost         Money           `json:"cost"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	ActorID      int64           `json:"actor_id,omitempty"`
}

// InventoryAdjusted is emitted after a stock count adjustment. Positive quantities are
// gains, negative ones are shrinkage.
type InventoryAdjusted struct {
	StoreID      int64           `json:"store_id"`
	AdjustmentID string          `json:"adjustment_id"`
	Code         string          `json:"code"`
	Date         time.Time       `json:"date"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     Money           `json:"unit_cost"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	ActorID      int64           `json:"actor_id,omitempty"`
}

// Debt directions.
const (
	DebtReceivable = "receivable"
	DebtPayable    = "payable"
)

// DebtPaid is emitted when a customer pays a receivable or the store pays a supplier.
type DebtPaid struct {
	StoreID       int64           `json:"store_id"`
	PaymentID     string          `json:"payment_id"`
	Number        string          `json:"number"`
	Date          time.Time       `json:"date"`
	Direction     string          `json:"direction"`
	Amount        Money           `json:"amount"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	PaymentMethod string          `json:"payment_method"`
	ActorID       int64           `json:"actor_id,omitempty"`
}

// CashSessionClosed is emitted when a register is counted at the end of a shift.
type CashSessionClosed struct {
	StoreID      int64           `json:"store_id"`
	SessionID    string          `json:"session_id"`
	Register     string          `json:"register"`
	Date         time.Time       `json:"date"`
	Expected     Money           `json:"expected"`
	Counted      Money           `json:"counted"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	ActorID      int64           `json:"actor_id,omitempty"`
}
