package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// EventDispatcher routes a decoded business event to its ledger hook.
type EventDispatcher interface {
	Dispatch(ctx context.Context, kind string, raw json.RawMessage) (journals.Entry, error)
}

// BusinessEventJob posts the auto entry of each queued business event.
type BusinessEventJob struct {
	Hooks   EventDispatcher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBusinessEventJob constructs the handler.
func NewBusinessEventJob(hooks EventDispatcher, logger *slog.Logger, metrics *jobmetrics.Metrics) *BusinessEventJob {
	return &BusinessEventJob{Hooks: hooks, Logger: logger, Metrics: metrics}
}

// Handle executes TaskLedgerBusinessEvent. Malformed events and entries the ledger
// rejects skip the retry queue; missing mappings and storage failures are retried.
func (j *BusinessEventJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Hooks == nil {
		return errors.New("business event: handler not configured")
	}
	var payload BusinessEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Kind == "" {
		return asynq.SkipRetry
	}
	logger := j.logger().With(slog.String("kind", payload.Kind))

	tracker := j.metrics().Track(TaskLedgerBusinessEvent)
	entry, err := j.Hooks.Dispatch(ctx, payload.Kind, payload.Event)
	if err != nil {
		if permanent(err) {
			logger.Error("business event rejected", slog.Any("error", err))
			_ = tracker.End(err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Warn("business event failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if entry.ID == 0 {
		logger.Debug("business event carried no amounts")
		return tracker.End(nil)
	}
	logger.Info("business event posted",
		slog.Int64("store_id", entry.StoreID),
		slog.String("number", entry.Number),
		slog.String("source", entry.SourceType),
	)
	return tracker.End(nil)
}

func permanent(err error) bool {
	return errors.Is(err, integration.ErrUnknownEvent) ||
		errors.Is(err, integration.ErrMalformedEvent) ||
		shared.IsValidation(err)
}

func (j *BusinessEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerBusinessEvent))
	}
	return slog.Default().With(slog.String("job", TaskLedgerBusinessEvent))
}

func (j *BusinessEventJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
