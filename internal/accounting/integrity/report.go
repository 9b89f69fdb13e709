package integrity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Finding kinds reported by Audit.
const (
	KindUnbalancedEntry = "unbalanced_entry"
	KindTotalsMismatch  = "totals_mismatch"
	KindOrphanEntry     = "orphan_entry"
	KindBucketMismatch  = "balance_bucket_mismatch"
	KindOpeningMismatch = "balance_opening_mismatch"
	KindTrialBalance    = "trial_balance_imbalance"
	KindBenford         = "benford_deviation"
	KindCheckFailed     = "check_failed"
)

// Finding is one problem detected by an audit.
type Finding struct {
	Kind      string          `json:"kind"`
	Severity  Severity        `json:"severity"`
	EntryID   int64           `json:"entry_id,omitempty"`
	Number    string          `json:"number,omitempty"`
	AccountID int64           `json:"account_id,omitempty"`
	DiffBS    decimal.Decimal `json:"diff_bs"`
	DiffUSD   decimal.Decimal `json:"diff_usd"`
	ErrorType ErrorType       `json:"error_type,omitempty"`
	Message   string          `json:"message"`
}

// Report is the structured outcome of a store audit.
type Report struct {
	StoreID        int64          `json:"store_id"`
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	EntriesScanned int            `json:"entries_scanned"`
	Errors         []Finding      `json:"errors"`
	Warnings       []Finding      `json:"warnings"`
	Benford        *BenfordResult `json:"benford,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Healthy reports whether the audit found no errors.
func (r Report) Healthy() bool {
	return len(r.Errors) == 0
}

func (r *Report) addError(f Finding) {
	r.Errors = append(r.Errors, f)
}

func (r *Report) addWarning(f Finding) {
	r.Warnings = append(r.Warnings, f)
}

// Correction is the persisted record of one automatic correction.
type Correction struct {
	StoreID     int64
	EntryID     int64
	LineID      int64
	DiffBS      decimal.Decimal
	DiffUSD     decimal.Decimal
	ErrorType   ErrorType
	Reason      string
	CorrectedAt time.Time
}

// CorrectionFailure explains why an entry was left for manual review. Suggestion,
// when set, spreads the difference over the credit lines.
type CorrectionFailure struct {
	EntryID    int64
	ErrorType  ErrorType
	Err        error
	Suggestion []Adjustment
}

// CorrectionReport summarises a RecalculateEntryTotals run.
type CorrectionReport struct {
	Processed   int
	Corrected   int
	TotalsFixed int
	Skipped     int
	Corrections []Correction
	Failures    []CorrectionFailure
}
