package integration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
)

// Source types stamped on auto-generated entries.
const (
	SourceSale        = "sale"
	SourcePurchase    = "purchase"
	SourceInvoice     = "invoice"
	SourceTransfer    = "transfer"
	SourceAdjustment  = "inventory_adjustment"
	SourceDebtPayment = "debt_payment"
	SourceCashClose   = "cash_close"
)

// sourceNamespace scopes the deterministic source ids of business events.
var sourceNamespace = uuid.MustParse("0b7f4f1e-52c4-4a43-9d1a-2f1f7e0c9a11")

// Ledger exposes the idempotent auto-entry operation required by integrations.
type Ledger interface {
	CreateAutoEntry(ctx context.Context, in journals.CreateInput) (journals.Entry, error)
}

// AccountResolver maps integration keys to ledger accounts.
type AccountResolver interface {
	Resolve(ctx context.Context, storeID int64, module string, keys ...string) (map[string]int64, error)
}

// Hooks wires domain events from operational modules into the general ledger.
// Replaying an event returns the entry generated the first time.
type Hooks struct {
	ledger   Ledger
	accounts AccountResolver
	logger   *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, accounts AccountResolver, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, accounts: accounts, logger: logger}
}

func (h *Hooks) ready() bool {
	return h != nil && h.ledger != nil && h.accounts != nil
}

// SourceID derives the stable source id of a business event.
func SourceID(sourceType, id string) uuid.UUID {
	return uuid.NewSHA1(sourceNamespace, []byte(fmt.Sprintf("%s:%s", strings.ToUpper(sourceType), id)))
}

type posting struct {
	storeID     int64
	date        time.Time
	entryType   journals.EntryType
	sourceType  string
	sourceID    string
	description string
	rate        decimal.Decimal
	actorID     int64
	lines       []journals.LineInput
}

func (h *Hooks) post(ctx context.Context, p posting) (journals.Entry, error) {
	if strings.TrimSpace(p.sourceID) == "" {
		return journals.Entry{}, fmt.Errorf("%w: %s source id required", ErrMalformedEvent, p.sourceType)
	}
	if p.date.IsZero() {
		return journals.Entry{}, fmt.Errorf("%w: %s %s date required", ErrMalformedEvent, p.sourceType, p.sourceID)
	}
	sid := SourceID(p.sourceType, p.sourceID)
	entry, err := h.ledger.CreateAutoEntry(ctx, journals.CreateInput{
		StoreID:      p.storeID,
		Date:         p.date,
		Type:         p.entryType,
		SourceType:   p.sourceType,
		SourceID:     &sid,
		Description:  p.description,
		Currency:     journals.CurrencyBS,
		ExchangeRate: p.rate,
		ActorID:      p.actorID,
		Lines:        p.lines,
	})
	if err != nil {
		return journals.Entry{}, fmt.Errorf("integration: %s %s: %w", p.sourceType, p.sourceID, err)
	}
	h.logger.Debug("auto entry", slog.Int64("store_id", p.storeID), slog.String("source", p.sourceType), slog.String("number", entry.Number))
	return entry, nil
}

func (h *Hooks) resolve(ctx context.Context, storeID int64, module string, keys ...string) (map[string]int64, error) {
	ids, err := h.accounts.Resolve(ctx, storeID, module, keys...)
	if err != nil {
		return nil, fmt.Errorf("integration: resolve %s accounts: %w", module, err)
	}
	return ids, nil
}

// HandleSaleCompleted debits cash, bank or receivables against revenue, and moves the
// cost of the goods sold out of inventory when the event carries it.
func (h *Hooks) HandleSaleCompleted(ctx context.Context, evt SaleCompleted) (journals.Entry, error) {
	if !h.ready() || evt.Total.IsZero() {
		return journals.Entry{}, nil
	}
	keys := []string{settlementKey(evt.PaymentMethod), mappings.KeyRevenue}
	withCost := !evt.Cost.IsZero()
	if withCost {
		keys = append(keys, mappings.KeyCostOfSales, mappings.KeyInventory)
	}
	ids, err := h.resolve(ctx, evt.StoreID, mappings.ModuleSales, keys...)
	if err != nil {
		return journals.Entry{}, err
	}
	lines := pair(ids[keys[0]], ids[mappings.KeyRevenue], evt.Total, "Venta "+evt.Number)
	if withCost {
		lines = append(lines, pair(ids[mappings.KeyCostOfSales], ids[mappings.KeyInventory], evt.Cost, "Costo de venta "+evt.Number)...)
	}
	return h.post(ctx, posting{
		storeID:     evt.StoreID,
		date:        evt.Date,
		entryType:   journals.TypeSale,
		sourceType:  SourceSale,
		sourceID:    evt.SaleID,
		description: "Venta " + evt.Number,
		rate:        evt.ExchangeRate,
		actorID:     evt.ActorID,
		lines:       lines,
	})
}

// HandlePurchaseReceived debits inventory against payables, or cash and bank for paid purchases.
func (h *Hooks) HandlePurchaseReceived(ctx context.Context, evt PurchaseReceived) (journals.Entry, error) {
	if !h.ready() || evt.Total.IsZero() {
		return journals.Entry{}, nil
	}
	credit := mappings.KeyPayable
	if evt.PaymentMethod == PaymentCash || evt.PaymentMethod == PaymentBank {
		credit = settlementKey(evt.PaymentMethod)
	}
	ids, err := h.resolve(ctx, evt.StoreID, mappings.ModulePurchases, mappings.KeyInventory, credit)
	if err != nil {
		return journals.Entry{}, err
	}
	return h.post(ctx, posting{
		storeID:     evt.StoreID,
		date:        evt.Date,
		entryType:   journals.TypePurchase,
		sourceType:  SourcePurchase,
		sourceID:    evt.PurchaseID,
		description: "Compra " + evt.Number,
		rate:        evt.ExchangeRate,
		actorID:     evt.ActorID,
		lines:       pair(ids[mappings.KeyInventory], ids[credit], evt.Total, "Compra "+evt.Number),
	})
}

// HandleInvoiceIssued debits receivables against revenue.
func (h *Hooks) HandleInvoiceIssued(ctx context.Context, evt InvoiceIssued) (journals.Entry, error) {
	if !h.ready() || evt.Total.IsZero() {
		return journals.Entry{}, nil
	}
	ids, err := h.resolve(ctx, evt.StoreID, mappings.ModuleInvoices, mappings.KeyReceivable, mappings.KeyRevenue)
	if err != nil {
		return journals.Entry{}, err
	}
	return h.post(ctx, posting{
		storeID:     evt.StoreID,
		date:        evt.Date,
		entryType:   journals.TypeInvoice,
		sourceType:  SourceInvoice,
		sourceID:    evt.InvoiceID,
		description: "Factura " + evt.Number,
		rate:        evt.ExchangeRate,
		actorID:     evt.ActorID,
		lines:       pair(ids[mappings.KeyReceivable], ids[mappings.KeyRevenue], evt.Total, "Factura "+evt.Number),
	})
}

// HandleTransferShipped moves the cost of shipped stock into inventory in transit.
func (h *Hooks) HandleTransferShipped(ctx context.Context, evt TransferShipped) (journals.Entry, error) {
	if !h.ready() || evt.Cost.IsZero() {
		return journals.Entry{}, nil
	}
	ids, err := h.resolve(ctx, evt.StoreID, mappings.ModuleTransfers, mappings.KeyInTransit, mappings.KeyInventory)
	if err != nil {
		return journals.Entry{}, err
	}
	return h.post(ctx, posting{
		storeID:     evt.StoreID,
		date:        evt.Date,
		entryType:   journals.TypeTransfer,
		sourceType:  SourceTransfer,
		sourceID:    evt.TransferID,
		description: "Traslado " + evt.Number,
		rate:        evt.ExchangeRate,
		actorID:     evt.ActorID,
		lines:       pair(ids[mappings.KeyInTransit], ids[mappings.KeyInventory], evt.Cost, "Traslado "+evt.Number),
	})
}

// HandleInventoryAdjusted books gains against inventory_gain and shrinkage against
// inventory_shrinkage, valued at unit cost.
func (h *Hooks) HandleInventoryAdjusted(ctx context.Context, evt InventoryAdjusted) (journals.Entry, error) {
	if !h.ready() {
		return journals.Entry{}, nil
	}
	qty := evt.Quantity.Abs()
	amount := Money{BS: qty.Mul(evt.UnitCost.BS).Round(2), USD: qty.Mul(evt.UnitCost.USD).Round(2)}
	if amount.IsZero() {
		return journals.Entry{}, nil
	}
	ids, err := h.resolve(ctx, evt.StoreID, mappings.ModuleInventory, mappings.KeyInventory, mappings.KeyInventoryGain, mappings.KeyShrinkage)
	if err != nil {
		return journals.Entry{}, err
	}
	memo := "Ajuste de inventario " + evt.Code
	lines := pair(ids[mappings.KeyShrinkage], ids[mappings.KeyInventory], amount, memo)
	if evt.Quantity.IsPositive() {
		lines = pair(ids[mappings.KeyInventory], ids[mappings.KeyInventoryGain], amount, memo)
	}
	return h.post(ctx, posting{
		storeID:     evt.StoreID,
		date:        evt.Date,
		entryType:   journals.TypeInventoryAdjustment,
		sourceType:  SourceAdjustment,
		sourceID:    evt.AdjustmentID,
		description: memo,
		rate:        evt.ExchangeRate,
		actorID:     evt.ActorID,
		lines:       lines,
	})
}

// HandleDebtPaid settles receivables collected or payables paid through cash or bank.
func (h *Hooks) HandleDebtPaid(ctx context.Context, evt DebtPaid) (journals.Entry, error) {
	if !h.ready() || evt.Amount.IsZero() {
		return journals.Entry{}, nil
	}
	settlement := settlementKey(evt.PaymentMethod)
	if settlement == mappings.KeyReceivable {
		settlement = mappings.KeyCash
	}
	var debit, credit, memo string
	switch evt.Direction {
	case DebtReceivable:
		debit, credit, memo = settlement, mappings.KeyReceivable, "Cobro "+evt.Number
	case DebtPayable:
		debit, credit, memo = mappings.KeyPayable, settlement, "Pago "+evt.Number
	default:
		return journals.Entry{}, fmt.Errorf("%w: unknown debt direction %q", ErrMalformedEvent, evt.Direction)
	}
	ids, err := h.resolve(ctx, evt.StoreID, mappings.ModuleDebts, debit, credit)
	if err != nil {
		return journals.Entry{}, err
	}
	return h.post(ctx, posting{
		storeID:     evt.StoreID,
		date:        evt.Date,
		entryType:   journals.TypeDebtPayment,
		sourceType:  SourceDebtPayment,
		sourceID:    evt.PaymentID,
		description: memo,
		rate:        evt.ExchangeRate,
		actorID:     evt.ActorID,
		lines:       pair(ids[debit], ids[credit], evt.Amount, memo),
	})
}

// HandleCashSessionClosed books the difference between counted and expected cash. A
// balanced register generates no entry.
func (h *Hooks) HandleCashSessionClosed(ctx context.Context, evt CashSessionClosed) (journals.Entry, error) {
	if !h.ready() {
		return journals.Entry{}, nil
	}
	diff := Money{BS: evt.Counted.BS.Sub(evt.Expected.BS), USD: evt.Counted.USD.Sub(evt.Expected.USD)}
	if diff.IsZero() {
		return journals.Entry{}, nil
	}
	ids, err := h.resolve(ctx, evt.StoreID, mappings.ModuleCashClose, mappings.KeyCash, mappings.KeyCashOverage, mappings.KeyCashShortage)
	if err != nil {
		return journals.Entry{}, err
	}
	memo := "Cierre de caja " + evt.Register
	// each currency may go in a different direction
	over := Money{BS: positive(diff.BS), USD: positive(diff.USD)}
	short := Money{BS: positive(diff.BS.Neg()), USD: positive(diff.USD.Neg())}
	var lines []journals.LineInput
	if !over.IsZero() {
		lines = append(lines, pair(ids[mappings.KeyCash], ids[mappings.KeyCashOverage], over, memo+" sobrante")...)
	}
	if !short.IsZero() {
		lines = append(lines, pair(ids[mappings.KeyCashShortage], ids[mappings.KeyCash], short, memo+" faltante")...)
	}
	return h.post(ctx, posting{
		storeID:     evt.StoreID,
		date:        evt.Date,
		entryType:   journals.TypeCashClose,
		sourceType:  SourceCashClose,
		sourceID:    evt.SessionID,
		description: memo,
		rate:        evt.ExchangeRate,
		actorID:     evt.ActorID,
		lines:       lines,
	})
}
