package balances

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type batchConn struct {
	batch  *pgx.Batch
	failAt int
}

func (c *batchConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (c *batchConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported")
}

func (c *batchConn) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (c *batchConn) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	c.batch = b
	return &batchResults{failAt: c.failAt}
}

type batchResults struct {
	execs  int
	failAt int
}

func (r *batchResults) Exec() (pgconn.CommandTag, error) {
	r.execs++
	if r.execs == r.failAt {
		return pgconn.CommandTag{}, errors.New("deadlock detected")
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (r *batchResults) Query() (pgx.Rows, error) { return nil, errors.New("query not supported") }
func (r *batchResults) QueryRow() pgx.Row { return nil }
func (r *batchResults) Close() error { return nil }

func TestUpsertBucketsRollsLaterBucketsForward(t *testing.T) {
	conn := &batchConn{}
	store := NewStore(conn)
	at := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	err := store.UpsertBuckets(context.Background(), 1, jan, []Delta{
		{AccountID: 9, Amounts: Amounts{CreditBS: d("250")}},
		{AccountID: 4, Amounts: Amounts{DebitBS: d("250")}},
	}, at)
	require.NoError(t, err)

	queued := conn.batch.QueuedQueries
	require.Len(t, queued, 4)
	assert.Equal(t, upsertBucketSQL, queued[0].SQL)
	assert.Equal(t, rollForwardSQL, queued[1].SQL)
	assert.Equal(t, int64(4), queued[1].Arguments[0])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), queued[1].Arguments[1])
	assert.True(t, d("250").Equal(queued[1].Arguments[2].(decimal.Decimal)))
	assert.Equal(t, rollForwardSQL, queued[3].SQL)
	assert.Equal(t, int64(9), queued[3].Arguments[0])
	assert.True(t, d("250").Equal(queued[3].Arguments[3].(decimal.Decimal)))
}

func TestUpsertBucketsReportsRollForwardFailure(t *testing.T) {
	conn := &batchConn{failAt: 2}
	store := NewStore(conn)
	err := store.UpsertBuckets(context.Background(), 1, time.Now(), []Delta{{AccountID: 3, Amounts: Amounts{DebitUSD: d("1")}}}, time.Now())
	require.ErrorContains(t, err, "roll forward balance buckets account 3")
}

func TestUpsertBucketsSkipsEmptyDeltas(t *testing.T) {
	conn := &batchConn{}
	require.NoError(t, NewStore(conn).UpsertBuckets(context.Background(), 1, time.Now(), []Delta{{AccountID: 3}}, time.Now()))
	assert.Nil(t, conn.batch)
}
