package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityAudit audits posted entries of one or more stores.
	TaskLedgerIntegrityAudit = "ledger:integrity_audit"
	// TaskLedgerRecalculateTotals re-derives entry totals and auto-corrects drift.
	TaskLedgerRecalculateTotals = "ledger:recalculate_totals"
	// TaskLedgerBusinessEvent turns an operational business event into its auto entry.
	TaskLedgerBusinessEvent = "ledger:business_event"
)

// IntegrityAuditPayload scopes an integrity audit run. Empty StoreIDs means every store.
type IntegrityAuditPayload struct {
	StoreIDs     []int64 `json:"store_ids,omitempty"`
	WindowMonths int     `json:"window_months"`
	AutoCorrect  bool    `json:"auto_correct"`
}

// RecalculateTotalsPayload names the entries to recalculate. Empty EntryIDs means all posted entries.
type RecalculateTotalsPayload struct {
	StoreID  int64   `json:"store_id"`
	EntryIDs []int64 `json:"entry_ids,omitempty"`
}

// BusinessEventPayload wraps one business event. Event is decoded according to Kind.
type BusinessEventPayload struct {
	Kind  string          `json:"kind"`
	Event json.RawMessage `json:"event"`
}

// NewIntegrityAuditTask constructs an Asynq task for the integrity audit.
func NewIntegrityAuditTask(payload IntegrityAuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityAudit, data), nil
}

// NewRecalculateTotalsTask constructs an Asynq task for a totals recalculation.
func NewRecalculateTotalsTask(payload RecalculateTotalsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRecalculateTotals, data), nil
}

// NewBusinessEventTask constructs an Asynq task carrying event under kind.
func NewBusinessEventTask(kind string, event any) (*asynq.Task, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(BusinessEventPayload{Kind: kind, Event: raw})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerBusinessEvent, data, asynq.MaxRetry(10)), nil
}
