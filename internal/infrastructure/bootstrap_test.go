package infrastructure

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"svcmarket/internal/config"
	"svcmarket/internal/ledger"
)

func TestApplyGenesis(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Owner:           "owner",
		UnitCost:        150,
		FeeRate:         3,
		RefundRate:      85,
		ServiceCap:      1000,
		GenesisTokens:   map[string]int64{"bob": 500, "alice": 100},
		GenesisServices: map[string]int64{"alice": 10},
	}
	l, err := ledger.New(cfg.LedgerConfig())
	require.NoError(t, err)

	require.NoError(t, applyGenesis(ctx, l, cfg))
	require.Equal(t, uint64(3), l.Seq())
	require.Equal(t, int64(100), l.TokenBalance("alice"))
	require.Equal(t, int64(500), l.TokenBalance("bob"))
	require.Equal(t, int64(10), l.ServiceBalance("alice"))

	// a ledger with history is left alone
	require.NoError(t, applyGenesis(ctx, l, cfg))
	require.Equal(t, uint64(3), l.Seq())
	require.Equal(t, int64(100), l.TokenBalance("alice"))
}

type stubServer struct {
	started, stopped atomic.Bool
	err              error
}

func (s *stubServer) Start(ctx context.Context) error {
	s.started.Store(true)
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func (s *stubServer) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return nil
}

func TestApp_Run(t *testing.T) {
	a, b := &stubServer{}, &stubServer{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewApp([]Server{a, b}).Run(ctx) }()

	require.Eventually(t, func() bool { return a.started.Load() && b.started.Load() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("app did not stop")
	}
	require.True(t, a.stopped.Load())
	require.True(t, b.stopped.Load())
}

func TestApp_RunStopsOnComponentFailure(t *testing.T) {
	boom := errors.New("listen failed")
	failing, healthy := &stubServer{err: boom}, &stubServer{}

	err := NewApp([]Server{failing, healthy}).Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.True(t, healthy.stopped.Load())
}

func TestRunCleanup_ReverseOrder(t *testing.T) {
	var order []int
	runCleanup([]func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	})()
	require.Equal(t, []int{2, 1}, order)
}
