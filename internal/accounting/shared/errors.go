package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired indicates a missing tenant scope.
	ErrStoreRequired = errors.New("accounting: store id required")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrNegativeAmount indicates a line carries a negative amount.
	ErrNegativeAmount = errors.New("accounting: line amounts cannot be negative")
	// ErrInvalidPeriod indicates the period for a date is not open.
	ErrInvalidPeriod = errors.New("accounting: period is not open")
	// ErrPeriodLocked indicates locked period.
	ErrPeriodLocked = errors.New("accounting: period locked")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrDateOutOfRange indicates mismatched period boundaries.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
	// ErrAccountInactive indicates a line references an inactive account.
	ErrAccountInactive = errors.New("accounting: account inactive")
	// ErrAccountNotPostable indicates a line references an aggregation account.
	ErrAccountNotPostable = errors.New("accounting: account does not allow entries")
	// ErrDuplicateAccountCode indicates the code already exists for the store.
	ErrDuplicateAccountCode = errors.New("accounting: duplicate account code")
	// ErrParentNotAggregate indicates the parent account cannot hold sub-accounts.
	ErrParentNotAggregate = errors.New("accounting: parent account does not allow sub-accounts")
	// ErrAccountHasChildren indicates deletion of a non-leaf account.
	ErrAccountHasChildren = errors.New("accounting: account has sub-accounts")
	// ErrEquityAccountNotFound indicates no equity account can receive the closing entry.
	ErrEquityAccountNotFound = errors.New("accounting: equity account not found")
	// ErrInvalidCurrency indicates a currency other than BS or USD.
	ErrInvalidCurrency = errors.New("accounting: unsupported currency")
	// ErrSourceRequired indicates an auto-generated entry without its business source.
	ErrSourceRequired = errors.New("accounting: source type and id required")

	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrPeriodNotFound indicates missing period.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")

	// ErrSourceConflict indicates the (source_type, source_id) pair already has an entry.
	ErrSourceConflict = errors.New("accounting: source link conflict")
	// ErrNumberConflict indicates a concurrent writer took the same entry number.
	ErrNumberConflict = errors.New("accounting: entry number conflict")
	// ErrConcurrentUpdate indicates another transaction changed the same period or entry;
	// the whole unit of work can be retried on a fresh snapshot.
	ErrConcurrentUpdate = errors.New("accounting: concurrent update")
)

var validationErrors = []error{
	ErrStoreRequired,
	ErrUnbalanced,
	ErrTooFewLines,
	ErrNegativeAmount,
	ErrInvalidPeriod,
	ErrPeriodLocked,
	ErrInvalidStatus,
	ErrDateOutOfRange,
	ErrAccountInactive,
	ErrAccountNotPostable,
	ErrDuplicateAccountCode,
	ErrParentNotAggregate,
	ErrAccountHasChildren,
	ErrEquityAccountNotFound,
	ErrSourceRequired,
	ErrInvalidCurrency,
}

var notFoundErrors = []error{
	ErrJournalNotFound,
	ErrAccountNotFound,
	ErrPeriodNotFound,
	ErrMappingNotFound,
}

// ValidationError carries the offending field next to the sentinel it wraps.
type ValidationError struct {
	Field  string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (%s)", e.Err, e.Field)
	}
	return fmt.Sprintf("%v (%s): %s", e.Err, e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid builds a ValidationError for field wrapping err.
func Invalid(field string, err error, format string, args ...any) error {
	detail := ""
	if format != "" {
		detail = fmt.Sprintf(format, args...)
	}
	return &ValidationError{Field: field, Err: err, Detail: detail}
}

// IsValidation reports whether err belongs to the validation taxonomy.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err signals a missing entity.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
