package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// reversalNamespace derives deterministic source ids for reversal entries.
var reversalNamespace = uuid.MustParse("7d0e4c8e-3b0a-5f5e-9c55-2f1b6f0d7a11")

// SourceReversal is the source type of reversal entries.
const SourceReversal = "reversal"

// BalanceInvalidator drops cached balances after a committed posting.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, storeID int64)
}

// Service owns the draft → posted → cancelled lifecycle of journal entries.
type Service struct {
	repo   Repository
	audit  shared.AuditPort
	cache  BalanceInvalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the posting engine. audit and cache may be nil.
func NewService(repo Repository, audit shared.AuditPort, cache BalanceInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, storeID, id int64) (Entry, error) {
	if storeID <= 0 {
		return Entry{}, shared.ErrStoreRequired
	}
	return s.repo.Get(ctx, storeID, id)
}

// List returns entries of a store, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	if filter.StoreID <= 0 {
		return nil, shared.ErrStoreRequired
	}
	return s.repo.List(ctx, filter)
}

// CreateEntry validates and stores a DRAFT entry.
func (s *Service) CreateEntry(ctx context.Context, in CreateInput) (Entry, error) {
	var entry Entry
	err := RetryConflict(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			entry, err = Write(ctx, tx, in, WriteOptions{Status: StatusDraft, Now: s.now()})
			return err
		})
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, in.ActorID, "journal.create", entry, map[string]any{"type": string(entry.Type)})
	return entry, nil
}

// CreateAutoEntry stores a POSTED auto-generated entry for a business event. A second call
// with the same (source type, source id) returns the existing entry.
func (s *Service) CreateAutoEntry(ctx context.Context, in CreateInput) (Entry, error) {
	if in.SourceType == "" || in.SourceID == nil || *in.SourceID == uuid.Nil {
		return Entry{}, shared.ErrSourceRequired
	}
	var entry Entry
	created := false
	err := RetryConflict(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			existing, err := tx.FindBySource(ctx, in.StoreID, in.SourceType, *in.SourceID)
			if err == nil {
				entry = existing
				return nil
			}
			if !errors.Is(err, shared.ErrJournalNotFound) {
				return err
			}
			entry, err = Write(ctx, tx, in, WriteOptions{Status: StatusPosted, AutoGenerated: true, Now: s.now()})
			created = err == nil
			return err
		})
	})
	if errors.Is(err, shared.ErrSourceConflict) {
		// lost the race against a concurrent generator for the same source
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var findErr error
			entry, findErr = tx.FindBySource(ctx, in.StoreID, in.SourceType, *in.SourceID)
			return findErr
		})
		created = false
	}
	if err != nil {
		return Entry{}, err
	}
	if created {
		s.invalidate(ctx, entry.StoreID)
		s.record(ctx, in.ActorID, "journal.post", entry, map[string]any{
			"source_type": entry.SourceType,
			"source_id":   in.SourceID.String(),
			"auto":        true,
		})
	}
	return entry, nil
}

// PostEntry moves a DRAFT entry to POSTED and applies its lines to the balances.
func (s *Service) PostEntry(ctx context.Context, storeID, entryID, actorID int64) (Entry, error) {
	if storeID <= 0 {
		return Entry{}, shared.ErrStoreRequired
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, storeID, entryID)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("%w: entry %s is %s", shared.ErrInvalidStatus, current.Number, current.Status)
		}
		period, err := tx.EnsurePeriod(ctx, storeID, current.Date)
		if err != nil {
			return err
		}
		if err := period.EnsureOpenForPosting(); err != nil {
			return err
		}
		if !Balanced(LineTotals(current.Lines)) {
			return shared.Invalid("lines", shared.ErrUnbalanced, "entry %s", current.Number)
		}
		if err := checkAccounts(ctx, tx, storeID, current.Lines); err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkPosted(ctx, storeID, entryID, actorID, now); err != nil {
			return err
		}
		if err := tx.UpsertBalances(ctx, storeID, current.Date, current.Deltas(), now); err != nil {
			return err
		}
		current.Status = StatusPosted
		current.PostedAt = &now
		current.PostedBy = &actorID
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, storeID)
	s.record(ctx, actorID, "journal.post", entry, nil)
	return entry, nil
}

// CancelEntry cancels a DRAFT or POSTED entry. Cancelling a POSTED entry reverses its
// balance effect in the same transaction.
func (s *Service) CancelEntry(ctx context.Context, storeID, entryID, actorID int64, reason string) (Entry, error) {
	if storeID <= 0 {
		return Entry{}, shared.ErrStoreRequired
	}
	var entry Entry
	var wasPosted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, storeID, entryID)
		if err != nil {
			return err
		}
		wasPosted = current.Status == StatusPosted
		entry, err = Cancel(ctx, tx, current, actorID, reason, s.now())
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if wasPosted {
		s.invalidate(ctx, storeID)
	}
	s.record(ctx, actorID, "journal.cancel", entry, map[string]any{"reason": reason})
	return entry, nil
}

// ReverseEntry posts the mirror of a POSTED entry. An entry can be reversed once.
func (s *Service) ReverseEntry(ctx context.Context, in ReverseInput) (Entry, error) {
	if in.StoreID <= 0 {
		return Entry{}, shared.ErrStoreRequired
	}
	sourceID := uuid.NewSHA1(reversalNamespace, []byte(strconv.FormatInt(in.StoreID, 10)+":"+strconv.FormatInt(in.EntryID, 10)))
	var reversal Entry
	err := RetryConflict(func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			original, err := tx.GetEntryForUpdate(ctx, in.StoreID, in.EntryID)
			if err != nil {
				return err
			}
			if original.Status != StatusPosted {
				return fmt.Errorf("%w: entry %s is %s", shared.ErrInvalidStatus, original.Number, original.Status)
			}
			if _, err := tx.FindBySource(ctx, in.StoreID, SourceReversal, sourceID); err == nil {
				return fmt.Errorf("%w: entry %s already reversed", shared.ErrInvalidStatus, original.Number)
			} else if !errors.Is(err, shared.ErrJournalNotFound) {
				return err
			}
			date := original.Date
			if in.Date != nil {
				date = *in.Date
			}
			reversal, err = Write(ctx, tx, CreateInput{
				StoreID:      in.StoreID,
				Date:         date,
				Type:         TypeReversal,
				SourceType:   SourceReversal,
				SourceID:     &sourceID,
				Description:  defaultReversalDescription(in.Description, original.Number),
				Currency:     original.Currency,
				ExchangeRate: original.ExchangeRate,
				ActorID:      in.ActorID,
				Lines:        reverseLines(original.Lines),
			}, WriteOptions{Status: StatusPosted, AutoGenerated: true, Now: s.now()})
			return err
		})
	})
	if err != nil {
		return Entry{}, err
	}
	s.invalidate(ctx, in.StoreID)
	s.record(ctx, in.ActorID, "journal.reverse", reversal, map[string]any{"reversed_entry_id": in.EntryID})
	return reversal, nil
}

func (s *Service) invalidate(ctx context.Context, storeID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, storeID)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entry Entry, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = entry.Number
	meta["status"] = string(entry.Status)
	shared.RecordAudit(ctx, s.audit, internalShared.AuditLog{
		StoreID:  entry.StoreID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	s.logger.Debug("journal event", slog.String("action", action), slog.Int64("store_id", entry.StoreID), slog.String("number", entry.Number))
}

func reverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{
			AccountID:   l.AccountID,
			DebitBS:     l.CreditBS,
			CreditBS:    l.DebitBS,
			DebitUSD:    l.CreditUSD,
			CreditUSD:   l.DebitUSD,
			Description: l.Description,
		})
	}
	return out
}

func defaultReversalDescription(desc, number string) string {
	if desc != "" {
		return desc
	}
	return "Reversal of " + number
}
