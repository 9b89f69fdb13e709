package shared

import (
	"fmt"
	"time"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// ValidatePeriodTransition checks open → closed → open and closed → locked. Locked is terminal.
func ValidatePeriodTransition(current, target PeriodStatus) error {
	switch current {
	case PeriodStatusOpen:
		if target == PeriodStatusClosed {
			return nil
		}
	case PeriodStatusClosed:
		if target == PeriodStatusOpen || target == PeriodStatusLocked {
			return nil
		}
	case PeriodStatusLocked:
		return ErrPeriodLocked
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, current, target)
}

// MonthBounds returns the first and last calendar day of the month containing date.
func MonthBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// PeriodCode formats the monthly period key YYYY-MM.
func PeriodCode(date time.Time) string {
	return date.Format("2006-01")
}

// DateOnly truncates a timestamp to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Period is the monthly accounting period of a store.
type Period struct {
	ID             int64
	StoreID        int64
	Code           string
	StartDate      time.Time
	EndDate        time.Time
	Status         PeriodStatus
	ClosedAt       *time.Time
	ClosedBy       *int64
	ClosingEntryID *int64
	YearEndEntryID *int64
	ClosingNote    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contains reports whether date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(p.StartDate)) && !d.After(DateOnly(p.EndDate))
}

// EnsureOpenForPosting rejects writes into periods that are not open.
func (p Period) EnsureOpenForPosting() error {
	switch p.Status {
	case PeriodStatusOpen:
		return nil
	case PeriodStatusLocked:
		return ErrPeriodLocked
	default:
		return Invalid("period", ErrInvalidPeriod, "period %s is %s", p.Code, p.Status)
	}
}
