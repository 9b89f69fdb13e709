package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/integrity"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const (
	constraintEntryNumber = "uq_journal_entries_number"
	constraintEntrySource = "uq_journal_entries_source"
	correctionHistorySize = 500
)

// Repository persists ledger entities in Postgres. Each engine reaches it through its
// own view so that every view exposes the WithTx its package expects.
type Repository struct {
	pool *pgxpool.Pool
	queries
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, queries: newQueries(pool)}
}

// queries holds the statements shared by pool-level reads and transactions.
type queries struct {
	db       db.DBTX
	accounts accounts.Repository
	balances *balances.Store
}

func newQueries(conn db.DBTX) queries {
	return queries{db: conn, accounts: accounts.NewRepository(conn), balances: balances.NewStore(conn)}
}

// txRepository implements the transaction surface of every engine.
type txRepository struct {
	queries
}

var (
	_ journals.TxRepository  = (*txRepository)(nil)
	_ periods.TxRepository   = (*txRepository)(nil)
	_ integrity.TxRepository = (*txRepository)(nil)
	_ reports.Source         = (*Repository)(nil)
	_ balances.Reader        = (*Repository)(nil)
)

// withTx executes fn within a repeatable-read transaction.
func (r *Repository) withTx(ctx context.Context, fn func(context.Context, *txRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{queries: newQueries(tx)})
	})
	if errors.Is(err, db.ErrSerialization) {
		return fmt.Errorf("%w: %v", shared.ErrConcurrentUpdate, err)
	}
	return err
}

// Journals returns the view used by the posting engine.
func (r *Repository) Journals() journals.Repository { return journalView{r} }

// Periods returns the view used by the close engine.
func (r *Repository) Periods() periods.Repository { return periodView{r} }

// Integrity returns the view used by the integrity engine.
func (r *Repository) Integrity() integrity.Repository { return integrityView{r} }

type journalView struct{ *Repository }

func (v journalView) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return v.withTx(ctx, func(ctx context.Context, tx *txRepository) error { return fn(ctx, tx) })
}

type periodView struct{ *Repository }

func (v periodView) Get(ctx context.Context, storeID int64, code string) (periods.Period, error) {
	return v.getPeriod(ctx, storeID, code, "")
}

func (v periodView) WithTx(ctx context.Context, fn func(context.Context, periods.TxRepository) error) error {
	return v.withTx(ctx, func(ctx context.Context, tx *txRepository) error { return fn(ctx, tx) })
}

type integrityView struct{ *Repository }

func (v integrityView) WithTx(ctx context.Context, fn func(context.Context, integrity.TxRepository) error) error {
	return v.withTx(ctx, func(ctx context.Context, tx *txRepository) error { return fn(ctx, tx) })
}

// ---- journal entries ----

const entryColumns = `SELECT id, store_id, number, date, entry_type, COALESCE(source_type,''), source_id,
	description, currency, exchange_rate, total_debit_bs, total_credit_bs, total_debit_usd, total_credit_usd,
	status, is_auto_generated, created_by, posted_at, posted_by, cancelled_at, cancelled_by,
	COALESCE(cancel_reason,''), created_at, updated_at
FROM journal_entries`

func scanEntry(row pgx.Row) (journals.Entry, error) {
	var e journals.Entry
	err := row.Scan(&e.ID, &e.StoreID, &e.Number, &e.Date, &e.Type, &e.SourceType, &e.SourceID,
		&e.Description, &e.Currency, &e.ExchangeRate, &e.TotalDebitBS, &e.TotalCreditBS, &e.TotalDebitUSD, &e.TotalCreditUSD,
		&e.Status, &e.IsAutoGenerated, &e.CreatedBy, &e.PostedAt, &e.PostedBy, &e.CancelledAt, &e.CancelledBy,
		&e.CancelReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return journals.Entry{}, shared.ErrJournalNotFound
		}
		return journals.Entry{}, err
	}
	return e, nil
}

func (q queries) collectEntries(ctx context.Context, rows pgx.Rows) ([]journals.Entry, error) {
	defer rows.Close()
	var out []journals.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if err := q.attachLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLines loads the lines of all entries in one query.
func (q queries) attachLines(ctx context.Context, entries []journals.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]int64, len(entries))
	index := make(map[int64]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		index[e.ID] = i
	}
	rows, err := q.db.Query(ctx, `SELECT id, entry_id, line_number, account_id,
	debit_amount_bs, credit_amount_bs, debit_amount_usd, credit_amount_usd, COALESCE(description,'')
FROM journal_entry_lines WHERE entry_id = ANY($1) ORDER BY entry_id, line_number`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l journals.Line
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNumber, &l.AccountID,
			&l.DebitBS, &l.CreditBS, &l.DebitUSD, &l.CreditUSD, &l.Description); err != nil {
			return err
		}
		i := index[l.EntryID]
		entries[i].Lines = append(entries[i].Lines, l)
	}
	return rows.Err()
}

func (q queries) getEntry(ctx context.Context, storeID, id int64, lock bool) (journals.Entry, error) {
	sql := entryColumns + ` WHERE store_id=$1 AND id=$2`
	if lock {
		sql += ` FOR UPDATE`
	}
	e, err := scanEntry(q.db.QueryRow(ctx, sql, storeID, id))
	if err != nil {
		return journals.Entry{}, err
	}
	list := []journals.Entry{e}
	if err := q.attachLines(ctx, list); err != nil {
		return journals.Entry{}, err
	}
	return list[0], nil
}

// Get returns the entry with its lines.
func (r *Repository) Get(ctx context.Context, storeID, id int64) (journals.Entry, error) {
	return r.getEntry(ctx, storeID, id, false)
}

// List returns entries matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter journals.ListFilter) ([]journals.Entry, error) {
	if filter.StoreID <= 0 {
		return nil, shared.ErrStoreRequired
	}
	where := []string{"store_id=$1"}
	args := []any{filter.StoreID}
	if filter.From != nil {
		args = append(args, shared.DateOnly(*filter.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, shared.DateOnly(*filter.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sql := fmt.Sprintf("%s WHERE %s ORDER BY date DESC, id DESC LIMIT %d", entryColumns, strings.Join(where, " AND "), limit)
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return r.collectEntries(ctx, rows)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, storeID, id int64) (journals.Entry, error) {
	return r.getEntry(ctx, storeID, id, true)
}

func (r *txRepository) FindBySource(ctx context.Context, storeID int64, sourceType string, sourceID uuid.UUID) (journals.Entry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, entryColumns+` WHERE store_id=$1 AND source_type=$2 AND source_id=$3`, storeID, sourceType, sourceID))
	if err != nil {
		return journals.Entry{}, err
	}
	list := []journals.Entry{e}
	if err := r.attachLines(ctx, list); err != nil {
		return journals.Entry{}, err
	}
	return list[0], nil
}

// NextEntryNumber advances the per-store, per-month sequence. The first use of a month
// seeds it from the highest existing suffix.
func (r *txRepository) NextEntryNumber(ctx context.Context, storeID int64, date time.Time) (string, error) {
	key := journals.PeriodKey(date)
	var seq int64
	err := r.db.QueryRow(ctx, `INSERT INTO journal_sequences (store_id, period_key, last_value)
VALUES ($1, $2, 1 + COALESCE((
	SELECT MAX(substring(number from '([0-9]+)$')::bigint)
	FROM journal_entries WHERE store_id=$1 AND number LIKE $3), 0))
ON CONFLICT (store_id, period_key) DO UPDATE SET last_value = journal_sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`, storeID, key, journals.NumberPrefix(date)+"%").Scan(&seq)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return "", fmt.Errorf("%w: %v", shared.ErrNumberConflict, err)
		}
		return "", err
	}
	return journals.FormatNumber(date, seq), nil
}

func (r *txRepository) InsertEntry(ctx context.Context, e journals.Entry) (journals.Entry, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO journal_entries (store_id, number, date, entry_type, source_type, source_id,
	description, currency, exchange_rate, total_debit_bs, total_credit_bs, total_debit_usd, total_credit_usd,
	status, is_auto_generated, created_by, posted_at, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
RETURNING id, created_at, updated_at`,
		e.StoreID, e.Number, shared.DateOnly(e.Date), e.Type, nullString(e.SourceType), e.SourceID,
		e.Description, e.Currency, e.ExchangeRate, e.TotalDebitBS, e.TotalCreditBS, e.TotalDebitUSD, e.TotalCreditUSD,
		e.Status, e.IsAutoGenerated, nullInt(e.CreatedBy), e.PostedAt, e.PostedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		switch {
		case db.UniqueViolation(err, constraintEntryNumber), db.IsSerializationFailure(err):
			return journals.Entry{}, fmt.Errorf("%w: %s", shared.ErrNumberConflict, e.Number)
		case db.UniqueViolation(err, constraintEntrySource):
			return journals.Entry{}, shared.ErrSourceConflict
		}
		return journals.Entry{}, err
	}
	return e, nil
}

const insertLineSQL = `INSERT INTO journal_entry_lines (entry_id, line_number, account_id,
	debit_amount_bs, credit_amount_bs, debit_amount_usd, credit_amount_usd, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`

// InsertLines writes all lines in one batch and returns them with their ids.
func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []journals.Line) ([]journals.Line, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(insertLineSQL, entryID, l.LineNumber, l.AccountID,
			l.DebitBS, l.CreditBS, l.DebitUSD, l.CreditUSD, l.Description)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	out := make([]journals.Line, len(lines))
	for i, l := range lines {
		l.EntryID = entryID
		if err := br.QueryRow().Scan(&l.ID); err != nil {
			return nil, fmt.Errorf("insert line %d: %w", l.LineNumber, err)
		}
		out[i] = l
	}
	return out, nil
}

func (r *txRepository) MarkPosted(ctx context.Context, storeID, id, actorID int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_at=$3, posted_by=$4, updated_at=NOW()
WHERE store_id=$1 AND id=$2 AND status='DRAFT'`, storeID, id, at, nullInt(actorID))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) MarkCancelled(ctx context.Context, storeID, id, actorID int64, reason string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE journal_entries SET status='CANCELLED', cancelled_at=$3, cancelled_by=$4, cancel_reason=$5, updated_at=NOW()
WHERE store_id=$1 AND id=$2 AND status <> 'CANCELLED'`, storeID, id, at, nullInt(actorID), reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) UpdateLine(ctx context.Context, l journals.Line) error {
	cmd, err := r.db.Exec(ctx, `UPDATE journal_entry_lines SET debit_amount_bs=$3, credit_amount_bs=$4,
	debit_amount_usd=$5, credit_amount_usd=$6, description=$7
WHERE id=$1 AND entry_id=$2`, l.ID, l.EntryID, l.DebitBS, l.CreditBS, l.DebitUSD, l.CreditUSD, l.Description)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) UpdateEntryTotals(ctx context.Context, storeID, entryID int64, t balances.Amounts) error {
	_, err := r.db.Exec(ctx, `UPDATE journal_entries SET total_debit_bs=$3, total_credit_bs=$4,
	total_debit_usd=$5, total_credit_usd=$6, updated_at=NOW()
WHERE store_id=$1 AND id=$2`, storeID, entryID, t.DebitBS, t.CreditBS, t.DebitUSD, t.CreditUSD)
	return err
}

func (r *txRepository) InsertCorrection(ctx context.Context, c integrity.Correction) error {
	_, err := r.db.Exec(ctx, `INSERT INTO journal_corrections (store_id, entry_id, line_id, diff_bs, diff_usd, error_type, reason, corrected_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, c.StoreID, c.EntryID, nullInt(c.LineID), c.DiffBS, c.DiffUSD, c.ErrorType, c.Reason, c.CorrectedAt)
	return err
}

// ---- accounts & balances ----

func (r *txRepository) AccountsForPosting(ctx context.Context, storeID int64, ids []int64) (map[int64]accounts.Account, error) {
	return r.accounts.GetMany(ctx, storeID, ids)
}

func (r *txRepository) FindAccountByCode(ctx context.Context, storeID int64, code string) (accounts.Account, error) {
	return r.accounts.GetByCode(ctx, storeID, code)
}

// ListAccountsByType lists accounts of the given types ordered by code.
func (q queries) ListAccountsByType(ctx context.Context, storeID int64, types ...accounts.AccountType) ([]accounts.Account, error) {
	return q.accounts.ListByType(ctx, storeID, types...)
}

// ListByType satisfies reports.Source.
func (q queries) ListByType(ctx context.Context, storeID int64, types ...accounts.AccountType) ([]accounts.Account, error) {
	return q.accounts.ListByType(ctx, storeID, types...)
}

// SumPostedLines aggregates posted lines dated on or before asOf.
func (q queries) SumPostedLines(ctx context.Context, storeID int64, ids []int64, asOf time.Time) (map[int64]balances.Amounts, error) {
	return q.balances.SumPostedLines(ctx, storeID, ids, asOf)
}

// SumPostedBetween aggregates posted lines dated within [from, to].
func (q queries) SumPostedBetween(ctx context.Context, storeID int64, ids []int64, from, to time.Time) (map[int64]balances.Amounts, error) {
	return q.balances.SumPostedBetween(ctx, storeID, ids, from, to)
}

// ListBuckets returns the balance buckets of one month.
func (q queries) ListBuckets(ctx context.Context, storeID int64, periodStart time.Time) ([]balances.Bucket, error) {
	return q.balances.ListBuckets(ctx, storeID, periodStart)
}

func (r *txRepository) UpsertBalances(ctx context.Context, storeID int64, date time.Time, deltas []balances.Delta, at time.Time) error {
	return r.balances.UpsertBuckets(ctx, storeID, date, deltas, at)
}

// ---- periods ----

const periodColumns = `SELECT id, store_id, period_code, period_start, period_end, status, closed_at, closed_by,
	closing_entry_id, year_end_entry_id, COALESCE(closing_note,''), created_at, updated_at
FROM accounting_periods`

func scanPeriod(row pgx.Row) (shared.Period, error) {
	var p shared.Period
	err := row.Scan(&p.ID, &p.StoreID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy,
		&p.ClosingEntryID, &p.YearEndEntryID, &p.ClosingNote, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.Period{}, shared.ErrPeriodNotFound
		}
		return shared.Period{}, err
	}
	return p, nil
}

func (q queries) getPeriod(ctx context.Context, storeID int64, code, lock string) (shared.Period, error) {
	return scanPeriod(q.db.QueryRow(ctx, periodColumns+` WHERE store_id=$1 AND period_code=$2`+lock, storeID, code))
}

// ListPeriods returns the periods of a store, newest first.
func (q queries) ListPeriods(ctx context.Context, storeID int64) ([]shared.Period, error) {
	rows, err := q.db.Query(ctx, periodColumns+` WHERE store_id=$1 ORDER BY period_start DESC`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (v periodView) List(ctx context.Context, storeID int64) ([]periods.Period, error) {
	return v.ListPeriods(ctx, storeID)
}

// EnsurePeriod creates the monthly period OPEN when missing and bumps its
// posting_version. Every balance-changing transaction writes the period row, so a
// close overlapping a posting fails with 40001 instead of summing a stale snapshot.
func (r *txRepository) EnsurePeriod(ctx context.Context, storeID int64, date time.Time) (shared.Period, error) {
	start, end := shared.MonthBounds(date)
	code := shared.PeriodCode(start)
	_, err := r.db.Exec(ctx, `INSERT INTO accounting_periods (store_id, period_code, period_start, period_end, status)
VALUES ($1,$2,$3,$4,'OPEN')
ON CONFLICT (store_id, period_code) DO UPDATE SET posting_version = accounting_periods.posting_version + 1`,
		storeID, code, start, end)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return shared.Period{}, fmt.Errorf("%w: period %s", shared.ErrConcurrentUpdate, code)
		}
		return shared.Period{}, fmt.Errorf("ensure period %s: %w", code, err)
	}
	return r.getPeriod(ctx, storeID, code, "")
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, storeID int64, code string) (shared.Period, error) {
	return r.getPeriod(ctx, storeID, code, ` FOR UPDATE`)
}

func (r *txRepository) UpdatePeriod(ctx context.Context, p shared.Period) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounting_periods SET status=$3, closed_at=$4, closed_by=$5,
	closing_entry_id=$6, year_end_entry_id=$7, closing_note=$8, updated_at=NOW()
WHERE store_id=$1 AND id=$2`, p.StoreID, p.ID, p.Status, p.ClosedAt, p.ClosedBy, p.ClosingEntryID, p.YearEndEntryID, nullString(p.ClosingNote))
	if err != nil {
		if db.IsSerializationFailure(err) {
			return fmt.Errorf("%w: period %s", shared.ErrConcurrentUpdate, p.Code)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}

// ---- integrity reads ----

// ListStoreIDs returns every store that owns a chart of accounts.
func (r *Repository) ListStoreIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT store_id FROM chart_of_accounts ORDER BY store_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (v integrityView) ListPostedEntryIDs(ctx context.Context, storeID int64) ([]int64, error) {
	rows, err := v.db.Query(ctx, `SELECT id FROM journal_entries WHERE store_id=$1 AND status='POSTED' ORDER BY id`, storeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (v integrityView) ScanPostedEntries(ctx context.Context, storeID int64, from, to time.Time) ([]journals.Entry, error) {
	rows, err := v.db.Query(ctx, entryColumns+` WHERE store_id=$1 AND status='POSTED' AND date >= $2 AND date <= $3 ORDER BY date, id`,
		storeID, shared.DateOnly(from), shared.DateOnly(to))
	if err != nil {
		return nil, err
	}
	return v.collectEntries(ctx, rows)
}

func (v integrityView) TrialBalanceRows(ctx context.Context, storeID int64, asOf time.Time) ([]reports.AccountBalance, error) {
	rows, err := v.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type,
	COALESCE(SUM(l.debit_amount_bs),0), COALESCE(SUM(l.credit_amount_bs),0),
	COALESCE(SUM(l.debit_amount_usd),0), COALESCE(SUM(l.credit_amount_usd),0)
FROM chart_of_accounts a
JOIN journal_entry_lines l ON l.account_id = a.id
JOIN journal_entries e ON e.id = l.entry_id AND e.status = 'POSTED' AND e.date <= $2
WHERE a.store_id = $1
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, storeID, shared.DateOnly(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reports.AccountBalance
	for rows.Next() {
		var b reports.AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type,
			&b.Sums.DebitBS, &b.Sums.CreditBS, &b.Sums.DebitUSD, &b.Sums.CreditUSD); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (v integrityView) CorrectionHistory(ctx context.Context, storeID int64) (integrity.History, error) {
	rows, err := v.db.Query(ctx, `SELECT GREATEST(ABS(diff_bs), ABS(diff_usd))::float8 FROM journal_corrections
WHERE store_id=$1 ORDER BY corrected_at DESC LIMIT $2`, storeID, correctionHistorySize)
	if err != nil {
		return integrity.History{}, err
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[float64])
	if err != nil {
		return integrity.History{}, err
	}
	return integrity.NewHistory(values), nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullString(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}
