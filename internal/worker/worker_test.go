package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"svcmarket/internal/ledger"
	"svcmarket/internal/metrics"
	"svcmarket/internal/model"
)

type mockRecorder struct {
	events []model.LedgerEvent
	err    error
}

func (m *mockRecorder) Record(ctx context.Context, event model.LedgerEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func TestEventWorker_Process(t *testing.T) {
	event := model.LedgerEvent{ID: "e-1", Seq: 7, Op: ledger.OpPurchase, Caller: "buyer"}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	var tests = []struct {
		name     string
		data     []byte
		err      error
		recorded int
		stored   float64
	}{
		{name: "records event", data: data, recorded: 1, stored: 1},
		{name: "bad payload", data: []byte("{"), recorded: 0, stored: 0},
		{name: "recorder failure", data: data, err: errors.New("db down"), recorded: 0, stored: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &mockRecorder{err: tt.err}
			m := metrics.New()
			w := NewEventWorker(rec, nil, m)

			err := w.process(context.Background(), tt.data)
			if tt.recorded == 0 {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Equal(t, "e-1", rec.events[0].ID)
				require.Equal(t, uint64(7), rec.events[0].Seq)
			}
			require.Len(t, rec.events, tt.recorded)
			require.Equal(t, tt.stored, testutil.ToFloat64(m.EventsStored))
		})
	}
}

func TestLogRecorder(t *testing.T) {
	require.NoError(t, LogRecorder{}.Record(context.Background(), model.LedgerEvent{Seq: 1}))
}

type ctxRecorder struct {
	err error
}

func (r *ctxRecorder) Record(ctx context.Context, event model.LedgerEvent) error {
	r.err = ctx.Err()
	return r.err
}

func TestEventWorker_RecordsAfterShutdown(t *testing.T) {
	data, err := json.Marshal(model.LedgerEvent{ID: "e-2", Seq: 8, Op: ledger.OpRequestRefund})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &ctxRecorder{}
	w := NewEventWorker(rec, nil, nil)
	require.NoError(t, w.handle(ctx, data))
	require.NoError(t, rec.err)
}
