package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestBus_Publish(t *testing.T) {
	w := &fakeWriter{}
	bus := newBus(w)

	require.NoError(t, bus.Publish("market.events.purchase", []byte(`{"seq":1}`)))
	require.NoError(t, bus.Publish("market.events.request_refund", []byte(`{"seq":2}`)))

	require.Len(t, w.msgs, 2)
	for _, m := range w.msgs {
		require.Equal(t, []byte("ledger"), m.Key)
	}
	require.Equal(t, []kafka.Header{{Key: SubjectHeader, Value: []byte("market.events.purchase")}}, w.msgs[0].Headers)
	require.Equal(t, []byte(`{"seq":2}`), w.msgs[1].Value)

	require.NoError(t, bus.Close())
	require.True(t, w.closed)
}

func TestBus_PublishError(t *testing.T) {
	boom := errors.New("broker unavailable")
	bus := newBus(&fakeWriter{err: boom})

	require.ErrorIs(t, bus.Publish("market.events.purchase", nil), boom)
}
