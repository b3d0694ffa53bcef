package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"svcmarket/internal/model"
)

// EventLog is the append-only ledger_events table fed by the worker.
type EventLog struct {
	dbPool *pgxpool.Pool
}

func NewEventLog(db *pgxpool.Pool) *EventLog {
	return &EventLog{dbPool: db}
}

// Record stores event once; redeliveries with the same ID are ignored.
func (e *EventLog) Record(ctx context.Context, event model.LedgerEvent) error {
	changes, err := json.Marshal(event.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	_, err = e.dbPool.Exec(ctx, `
		INSERT INTO ledger_events (id, seq, op, caller, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, int64(event.Seq), string(event.Op), event.Caller, changes, event.At)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}
	return nil
}
