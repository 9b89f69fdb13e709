package balances

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Store reads posted line sums and maintains the account_balances buckets.
type Store struct {
	db db.DBTX
}

// NewStore binds the store to a pool or a transaction.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

const sumPostedSQL = `SELECT l.account_id,
	COALESCE(SUM(l.debit_amount_bs),0), COALESCE(SUM(l.credit_amount_bs),0),
	COALESCE(SUM(l.debit_amount_usd),0), COALESCE(SUM(l.credit_amount_usd),0)
FROM journal_entry_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.store_id = $1 AND e.status = 'POSTED' AND l.account_id = ANY($2)
	AND e.date >= $3 AND e.date <= $4
GROUP BY l.account_id`

var epoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// SumPostedLines aggregates posted lines dated on or before asOf in a single query.
func (s *Store) SumPostedLines(ctx context.Context, storeID int64, accountIDs []int64, asOf time.Time) (map[int64]Amounts, error) {
	return s.SumPostedBetween(ctx, storeID, accountIDs, epoch, asOf)
}

// SumPostedBetween aggregates posted lines dated within [from, to].
func (s *Store) SumPostedBetween(ctx context.Context, storeID int64, accountIDs []int64, from, to time.Time) (map[int64]Amounts, error) {
	out := make(map[int64]Amounts, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, sumPostedSQL, storeID, accountIDs, shared.DateOnly(from), shared.DateOnly(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var amt Amounts
		if err := rows.Scan(&id, &amt.DebitBS, &amt.CreditBS, &amt.DebitUSD, &amt.CreditUSD); err != nil {
			return nil, err
		}
		out[id] = amt
	}
	return out, rows.Err()
}

const upsertBucketSQL = `INSERT INTO account_balances (store_id, account_id, period_start, period_end,
	opening_debit_bs, opening_credit_bs, opening_debit_usd, opening_credit_usd,
	period_debit_bs, period_credit_bs, period_debit_usd, period_credit_usd,
	closing_debit_bs, closing_credit_bs, closing_debit_usd, closing_credit_usd,
	last_calculated_at)
SELECT $1, $2, $3, $4,
	COALESCE(p.closing_debit_bs,0), COALESCE(p.closing_credit_bs,0), COALESCE(p.closing_debit_usd,0), COALESCE(p.closing_credit_usd,0),
	$5::numeric, $6::numeric, $7::numeric, $8::numeric,
	COALESCE(p.closing_debit_bs,0) + $5::numeric, COALESCE(p.closing_credit_bs,0) + $6::numeric,
	COALESCE(p.closing_debit_usd,0) + $7::numeric, COALESCE(p.closing_credit_usd,0) + $8::numeric,
	$9
FROM (SELECT 1) seed
LEFT JOIN LATERAL (
	SELECT closing_debit_bs, closing_credit_bs, closing_debit_usd, closing_credit_usd
	FROM account_balances
	WHERE account_id = $2 AND period_start < $3
	ORDER BY period_start DESC LIMIT 1
) p ON TRUE
ON CONFLICT (account_id, period_start) DO UPDATE SET
	period_debit_bs = account_balances.period_debit_bs + EXCLUDED.period_debit_bs,
	period_credit_bs = account_balances.period_credit_bs + EXCLUDED.period_credit_bs,
	period_debit_usd = account_balances.period_debit_usd + EXCLUDED.period_debit_usd,
	period_credit_usd = account_balances.period_credit_usd + EXCLUDED.period_credit_usd,
	closing_debit_bs = account_balances.opening_debit_bs + account_balances.period_debit_bs + EXCLUDED.period_debit_bs,
	closing_credit_bs = account_balances.opening_credit_bs + account_balances.period_credit_bs + EXCLUDED.period_credit_bs,
	closing_debit_usd = account_balances.opening_debit_usd + account_balances.period_debit_usd + EXCLUDED.period_debit_usd,
	closing_credit_usd = account_balances.opening_credit_usd + account_balances.period_credit_usd + EXCLUDED.period_credit_usd,
	last_calculated_at = EXCLUDED.last_calculated_at`

// rollForwardSQL carries a backdated delta into the opening and closing of every later
// bucket of the account.
const rollForwardSQL = `UPDATE account_balances SET
	opening_debit_bs = opening_debit_bs + $3::numeric, opening_credit_bs = opening_credit_bs + $4::numeric,
	opening_debit_usd = opening_debit_usd + $5::numeric, opening_credit_usd = opening_credit_usd + $6::numeric,
	closing_debit_bs = closing_debit_bs + $3::numeric, closing_credit_bs = closing_credit_bs + $4::numeric,
	closing_debit_usd = closing_debit_usd + $5::numeric, closing_credit_usd = closing_credit_usd + $6::numeric,
	last_calculated_at = $7
WHERE account_id = $1 AND period_start > $2`

// UpsertBuckets applies deltas to the monthly bucket containing date. New buckets
// open with the closing of the account's latest earlier bucket; later buckets of the
// account are rolled forward by the same delta.
func (s *Store) UpsertBuckets(ctx context.Context, storeID int64, date time.Time, deltas []Delta, at time.Time) error {
	merged := MergeDeltas(deltas)
	if len(merged) == 0 {
		return nil
	}
	start, end := shared.MonthBounds(date)
	batch := &pgx.Batch{}
	for _, d := range merged {
		batch.Queue(upsertBucketSQL, storeID, d.AccountID, start, end,
			d.DebitBS, d.CreditBS, d.DebitUSD, d.CreditUSD, at)
		batch.Queue(rollForwardSQL, d.AccountID, start,
			d.DebitBS, d.CreditBS, d.DebitUSD, d.CreditUSD, at)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for _, d := range merged {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert balance bucket account %d: %w", d.AccountID, err)
		}
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("roll forward balance buckets account %d: %w", d.AccountID, err)
		}
	}
	return nil
}

// ListBuckets returns the buckets of the month starting at periodStart.
func (s *Store) ListBuckets(ctx context.Context, storeID int64, periodStart time.Time) ([]Bucket, error) {
	rows, err := s.db.Query(ctx, `SELECT store_id, account_id, period_start, period_end,
		opening_debit_bs, opening_credit_bs, opening_debit_usd, opening_credit_usd,
		period_debit_bs, period_credit_bs, period_debit_usd, period_credit_usd,
		closing_debit_bs, closing_credit_bs, closing_debit_usd, closing_credit_usd,
		last_calculated_at
	FROM account_balances WHERE store_id=$1 AND period_start=$2 ORDER BY account_id`, storeID, shared.DateOnly(periodStart))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.StoreID, &b.AccountID, &b.PeriodStart, &b.PeriodEnd,
			&b.Opening.DebitBS, &b.Opening.CreditBS, &b.Opening.DebitUSD, &b.Opening.CreditUSD,
			&b.Period.DebitBS, &b.Period.CreditBS, &b.Period.DebitUSD, &b.Period.CreditUSD,
			&b.Closing.DebitBS, &b.Closing.CreditBS, &b.Closing.DebitUSD, &b.Closing.CreditUSD,
			&b.LastCalculatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
