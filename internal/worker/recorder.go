package worker

import (
	"context"
	"log/slog"

	"svcmarket/internal/model"
)

// LogRecorder writes ledger events to the process log. Used when no
// Postgres event log is configured.
type LogRecorder struct{}

func (LogRecorder) Record(ctx context.Context, event model.LedgerEvent) error {
	slog.Info("ledger event",
		"id", event.ID,
		"seq", event.Seq,
		"op", event.Op,
		"caller", event.Caller,
	)
	return nil
}
