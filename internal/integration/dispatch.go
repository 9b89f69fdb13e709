package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
)

// Event kinds carried by the business event queue.
const (
	EventSaleCompleted     = "sale.completed"
	EventPurchaseReceived  = "purchase.received"
	EventInvoiceIssued     = "invoice.issued"
	EventTransferShipped   = "transfer.shipped"
	EventInventoryAdjusted = "inventory.adjusted"
	EventDebtPaid          = "debt.paid"
	EventCashSessionClosed = "cash_session.closed"
)

var (
	// ErrUnknownEvent indicates a kind no hook handles.
	ErrUnknownEvent = errors.New("integration: unknown event kind")
	// ErrMalformedEvent indicates the event body does not decode into its kind.
	ErrMalformedEvent = errors.New("integration: malformed event")
)

// Dispatch decodes raw as the event named by kind and runs the matching hook.
func (h *Hooks) Dispatch(ctx context.Context, kind string, raw json.RawMessage) (journals.Entry, error) {
	switch kind {
	case EventSaleCompleted:
		return dispatch(ctx, kind, raw, h.HandleSaleCompleted)
	case EventPurchaseReceived:
		return dispatch(ctx, kind, raw, h.HandlePurchaseReceived)
	case EventInvoiceIssued:
		return dispatch(ctx, kind, raw, h.HandleInvoiceIssued)
	case EventTransferShipped:
		return dispatch(ctx, kind, raw, h.HandleTransferShipped)
	case EventInventoryAdjusted:
		return dispatch(ctx, kind, raw, h.HandleInventoryAdjusted)
	case EventDebtPaid:
		return dispatch(ctx, kind, raw, h.HandleDebtPaid)
	case EventCashSessionClosed:
		return dispatch(ctx, kind, raw, h.HandleCashSessionClosed)
	default:
		return journals.Entry{}, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
}

func dispatch[E any](ctx context.Context, kind string, raw json.RawMessage, handle func(context.Context, E) (journals.Entry, error)) (journals.Entry, error) {
	var evt E
	if err := json.Unmarshal(raw, &evt); err != nil {
		return journals.Entry{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, kind, err)
	}
	return handle(ctx, evt)
}
