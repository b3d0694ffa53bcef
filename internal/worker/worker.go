package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"svcmarket/internal/metrics"
	"svcmarket/internal/model"
	"svcmarket/internal/service"
)

const (
	eventSubject  = model.EventTopicPrefix + ">"
	queueGroup    = "event_log"
	recordTimeout = 5 * time.Second
)

// EventWorker listens on the "market.events.>" NATS subjects and writes
// every ledger event to the event log.
type EventWorker struct {
	recorder service.EventRecorder
	natsConn *nats.Conn
	metrics  *metrics.Metrics
}

func NewEventWorker(recorder service.EventRecorder, nc *nats.Conn, m *metrics.Metrics) *EventWorker {
	return &EventWorker{
		recorder: recorder,
		natsConn: nc,
		metrics:  m,
	}
}

// Run subscribes to the event subjects and blocks until ctx is cancelled.
func (w *EventWorker) Run(ctx context.Context) error {
	// One member of the queue group receives each event.
	sub, err := w.natsConn.QueueSubscribe(eventSubject, queueGroup, func(m *nats.Msg) {
		_ = w.handle(ctx, m.Data)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Event worker is running")

	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscription...")
	return sub.Drain()
}

// handle records one message. Messages still buffered when ctx is cancelled
// are drained, so recording does not inherit the cancellation.
func (w *EventWorker) handle(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	return w.process(ctx, data)
}

func (w *EventWorker) process(ctx context.Context, data []byte) error {
	var event model.LedgerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		slog.Error("worker: failed to unmarshal nats message", "error", err)
		return err
	}

	// Recording is idempotent on the event id.
	if err := w.recorder.Record(ctx, event); err != nil {
		slog.Error("worker: failed to record ledger event",
			"seq", event.Seq,
			"op", event.Op,
			"error", err,
		)
		return err
	}

	w.metrics.EventStored()
	slog.Debug("worker: ledger event recorded", "seq", event.Seq, "op", event.Op)
	return nil
}

// Start implements the infrastructure.Server interface.
func (w *EventWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *EventWorker) Stop(ctx context.Context) error {
	return nil
}
