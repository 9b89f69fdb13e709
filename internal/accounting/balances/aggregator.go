package balances

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Reader sums posted lines per account.
type Reader interface {
	SumPostedLines(ctx context.Context, storeID int64, accountIDs []int64, asOf time.Time) (map[int64]Amounts, error)
}

// AccountLookup resolves accounts in bulk.
type AccountLookup interface {
	GetMany(ctx context.Context, storeID int64, ids []int64) (map[int64]accounts.Account, error)
}

// Aggregator computes signed account balances as of a date.
type Aggregator struct {
	reader   Reader
	accounts AccountLookup
	cache    *Cache
	logger   *slog.Logger
	group    singleflight.Group
}

// NewAggregator wires the aggregator. cache may be nil.
func NewAggregator(reader Reader, lookup AccountLookup, cache *Cache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{reader: reader, accounts: lookup, cache: cache, logger: logger}
}

// CalculateBalances returns the balance of every requested account that exists in the store.
// Unknown ids are omitted; known accounts without postings are zero.
func (a *Aggregator) CalculateBalances(ctx context.Context, storeID int64, accountIDs []int64, asOf time.Time) (map[int64]Balance, error) {
	if storeID <= 0 {
		return nil, shared.ErrStoreRequired
	}
	ids := uniqueIDs(accountIDs)
	if len(ids) == 0 {
		return map[int64]Balance{}, nil
	}
	asOf = shared.DateOnly(asOf)
	loader := func(ctx context.Context) (any, error) {
		out, err := a.compute(ctx, storeID, ids, asOf)
		if err != nil {
			return nil, loadError{err: err}
		}
		return out, nil
	}

	key, err := a.cache.BuildKey(ctx, storeID, "asof", asOf.Format("2006-01-02"), idsToken(ids))
	if err != nil {
		a.logger.Warn("balance cache unavailable", slog.Int64("store_id", storeID), slog.Any("error", err))
		return a.compute(ctx, storeID, ids, asOf)
	}
	v, err, _ := a.group.Do(key, func() (any, error) {
		var out map[int64]Balance
		if err := a.cache.FetchJSON(ctx, key, &out, loader); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		var le loadError
		if errors.As(err, &le) {
			return nil, le.err
		}
		a.logger.Warn("balance cache fetch failed", slog.Int64("store_id", storeID), slog.Any("error", err))
		return a.compute(ctx, storeID, ids, asOf)
	}
	return v.(map[int64]Balance), nil
}

// Invalidate drops cached balances of the store. Errors are logged, never returned.
func (a *Aggregator) Invalidate(ctx context.Context, storeID int64) {
	if err := a.cache.Bump(ctx, storeID); err != nil {
		a.logger.Warn("balance cache bump failed", slog.Int64("store_id", storeID), slog.Any("error", err))
	}
}

func (a *Aggregator) compute(ctx context.Context, storeID int64, ids []int64, asOf time.Time) (map[int64]Balance, error) {
	accts, err := a.accounts.GetMany(ctx, storeID, ids)
	if err != nil {
		return nil, err
	}
	sums, err := a.reader.SumPostedLines(ctx, storeID, ids, asOf)
	if err != nil {
		return nil, err
	}
	return Compute(accts, sums), nil
}

// loadError separates database failures from cache failures.
type loadError struct{ err error }

func (e loadError) Error() string { return e.err.Error() }
func (e loadError) Unwrap() error { return e.err }

func idsToken(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:8])
}
