package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// maxConflictAttempts bounds retries when a concurrent writer takes the same entry
// number or touches the same period.
const maxConflictAttempts = 3

// WriteOptions controls how Write persists an entry.
type WriteOptions struct {
	Status        Status
	AutoGenerated bool
	Now           time.Time
}

// Write validates in and persists the entry with its lines inside tx. POSTED entries
// update the balance buckets in the same transaction.
func Write(ctx context.Context, tx TxRepository, in CreateInput, opts WriteOptions) (Entry, error) {
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	if opts.Status == "" {
		opts.Status = StatusDraft
	}
	if opts.Status != StatusDraft && opts.Status != StatusPosted {
		return Entry{}, fmt.Errorf("%w: cannot create entry as %s", shared.ErrInvalidStatus, opts.Status)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	period, err := tx.EnsurePeriod(ctx, in.StoreID, in.Date)
	if err != nil {
		return Entry{}, err
	}
	if err := period.EnsureOpenForPosting(); err != nil {
		return Entry{}, err
	}
	lines := toLines(in.Lines)
	if err := checkAccounts(ctx, tx, in.StoreID, lines); err != nil {
		return Entry{}, err
	}
	number, err := tx.NextEntryNumber(ctx, in.StoreID, in.Date)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		StoreID:         in.StoreID,
		Number:          number,
		Date:            in.Date,
		Type:            in.Type,
		SourceType:      in.SourceType,
		SourceID:        in.SourceID,
		Description:     in.Description,
		Currency:        in.Currency,
		ExchangeRate:    in.ExchangeRate,
		Status:          opts.Status,
		IsAutoGenerated: opts.AutoGenerated,
		CreatedBy:       in.ActorID,
	}
	entry.SetTotals(LineTotals(lines))
	if opts.Status == StatusPosted {
		at := opts.Now
		actor := in.ActorID
		entry.PostedAt = &at
		entry.PostedBy = &actor
	}

	inserted, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	stored, err := tx.InsertLines(ctx, inserted.ID, lines)
	if err != nil {
		return Entry{}, err
	}
	inserted.Lines = stored
	if inserted.Status == StatusPosted {
		if err := tx.UpsertBalances(ctx, inserted.StoreID, inserted.Date, inserted.Deltas(), opts.Now); err != nil {
			return Entry{}, err
		}
	}
	return inserted, nil
}

// Cancel marks entry cancelled inside tx. Posted entries have their balance effect reversed.
func Cancel(ctx context.Context, tx TxRepository, entry Entry, actorID int64, reason string, now time.Time) (Entry, error) {
	if entry.Status == StatusCancelled {
		return Entry{}, fmt.Errorf("%w: entry %s already cancelled", shared.ErrInvalidStatus, entry.Number)
	}
	if entry.Status == StatusPosted {
		period, err := tx.EnsurePeriod(ctx, entry.StoreID, entry.Date)
		if err != nil {
			return Entry{}, err
		}
		if err := period.EnsureOpenForPosting(); err != nil {
			return Entry{}, err
		}
		if err := tx.UpsertBalances(ctx, entry.StoreID, entry.Date, entry.ReversalDeltas(), now); err != nil {
			return Entry{}, err
		}
	}
	if err := tx.MarkCancelled(ctx, entry.StoreID, entry.ID, actorID, reason, now); err != nil {
		return Entry{}, err
	}
	entry.Status = StatusCancelled
	at := now
	actor := actorID
	entry.CancelledAt = &at
	entry.CancelledBy = &actor
	entry.CancelReason = reason
	return entry, nil
}

// RetryConflict runs fn again when it fails on an entry number taken by a concurrent
// writer or on a period changed by an overlapping transaction.
func RetryConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, shared.ErrNumberConflict) && !errors.Is(err, shared.ErrConcurrentUpdate) {
			return err
		}
	}
	return err
}

func toLines(in []LineInput) []Line {
	out := make([]Line, 0, len(in))
	for idx, l := range in {
		out = append(out, Line{
			LineNumber:  idx + 1,
			AccountID:   l.AccountID,
			DebitBS:     l.DebitBS,
			CreditBS:    l.CreditBS,
			DebitUSD:    l.DebitUSD,
			CreditUSD:   l.CreditUSD,
			Description: l.Description,
		})
	}
	return out
}

func checkAccounts(ctx context.Context, tx TxRepository, storeID int64, lines []Line) error {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.AccountID)
	}
	accts, err := tx.AccountsForPosting(ctx, storeID, ids)
	if err != nil {
		return err
	}
	for idx, l := range lines {
		acc, ok := accts[l.AccountID]
		if !ok {
			return fmt.Errorf("%w: line %d account %d", shared.ErrAccountNotFound, idx+1, l.AccountID)
		}
		if err := postable(acc); err != nil {
			return shared.Invalid(fmt.Sprintf("lines[%d]", idx), err, "account %s", acc.Code)
		}
	}
	return nil
}

func postable(acc accounts.Account) error {
	if !acc.IsActive {
		return shared.ErrAccountInactive
	}
	if !acc.AllowsEntries {
		return shared.ErrAccountNotPostable
	}
	return nil
}
