package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

type stubDispatcher struct {
	kinds []string
	raws  []json.RawMessage
	entry journals.Entry
	err   error
}

func (s *stubDispatcher) Dispatch(_ context.Context, kind string, raw json.RawMessage) (journals.Entry, error) {
	s.kinds = append(s.kinds, kind)
	s.raws = append(s.raws, raw)
	return s.entry, s.err
}

func newBusinessEventJob(hooks EventDispatcher) *BusinessEventJob {
	return NewBusinessEventJob(hooks, slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestBusinessEventTaskCarriesKindAndEvent(t *testing.T) {
	evt := integration.InvoiceIssued{StoreID: 4, InvoiceID: "F-10", Number: "F-10", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	task, err := NewBusinessEventTask(integration.EventInvoiceIssued, evt)
	require.NoError(t, err)
	assert.Equal(t, TaskLedgerBusinessEvent, task.Type())

	hooks := &stubDispatcher{entry: journals.Entry{ID: 12, StoreID: 4, Number: "AS-202603-0001"}}
	require.NoError(t, newBusinessEventJob(hooks).Handle(context.Background(), task))

	require.Equal(t, []string{integration.EventInvoiceIssued}, hooks.kinds)
	var decoded integration.InvoiceIssued
	require.NoError(t, json.Unmarshal(hooks.raws[0], &decoded))
	assert.Equal(t, "F-10", decoded.InvoiceID)
	assert.Equal(t, int64(4), decoded.StoreID)
	assert.True(t, decoded.Date.Equal(evt.Date))
}

func TestBusinessEventSkipsRetryForPermanentFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "unknown kind", err: fmt.Errorf("%w: %q", integration.ErrUnknownEvent, "payroll.run")},
		{name: "malformed body", err: fmt.Errorf("%w: sale.completed", integration.ErrMalformedEvent)},
		{name: "closed period", err: fmt.Errorf("integration: sale 1: %w", shared.ErrInvalidPeriod)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, err := NewBusinessEventTask(integration.EventSaleCompleted, map[string]any{"sale_id": "1"})
			require.NoError(t, err)
			err = newBusinessEventJob(&stubDispatcher{err: tc.err}).Handle(context.Background(), task)
			assert.ErrorIs(t, err, asynq.SkipRetry)
		})
	}
}

func TestBusinessEventRetriesTransientFailures(t *testing.T) {
	boom := errors.New("connection reset")
	task, err := NewBusinessEventTask(integration.EventDebtPaid, map[string]any{"payment_id": "p"})
	require.NoError(t, err)

	for _, cause := range []error{boom, fmt.Errorf("integration: resolve debts accounts: %w", shared.ErrMappingNotFound)} {
		err = newBusinessEventJob(&stubDispatcher{err: cause}).Handle(context.Background(), task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
		assert.ErrorIs(t, err, cause)
	}
}

func TestBusinessEventRejectsBrokenEnvelope(t *testing.T) {
	hooks := &stubDispatcher{}
	job := newBusinessEventJob(hooks)

	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerBusinessEvent, []byte("{"))), asynq.SkipRetry)
	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskLedgerBusinessEvent, []byte(`{"event":{}}`))), asynq.SkipRetry)
	assert.Empty(t, hooks.kinds)

	var nilJob *BusinessEventJob
	assert.Error(t, nilJob.Handle(context.Background(), asynq.NewTask(TaskLedgerBusinessEvent, nil)))
}
