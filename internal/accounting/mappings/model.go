package mappings

import (
	"strings"
	"time"
)

// Modules that generate entries automatically.
const (
	ModuleSales     = "SALES"
	ModulePurchases = "PURCHASES"
	ModuleInvoices  = "INVOICES"
	ModuleInventory = "INVENTORY"
	ModuleTransfers = "TRANSFERS"
	ModuleDebts     = "DEBTS"
	ModuleCashClose = "CASH_CLOSE"
)

// Keys resolved by the generators.
const (
	KeyCash          = "cash"
	KeyBank          = "bank"
	KeyReceivable    = "accounts_receivable"
	KeyPayable       = "accounts_payable"
	KeyRevenue       = "revenue"
	KeyInventory     = "inventory"
	KeyCostOfSales   = "cost_of_sales"
	KeyShrinkage     = "inventory_shrinkage"
	KeyInventoryGain = "inventory_gain"
	KeyInTransit     = "inventory_in_transit"
	KeyCashShortage  = "cash_shortage"
	KeyCashOverage   = "cash_overage"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	StoreID   int64
	Module    string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func normalizeModule(module string) string {
	return strings.ToUpper(strings.TrimSpace(module))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
