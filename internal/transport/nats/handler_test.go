package nats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svcmarket/internal/ledger"
	"svcmarket/internal/model"
	"svcmarket/internal/service"
)

func TestHandle(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.New(ledger.Config{Owner: "owner", UnitCost: 150, FeeRate: 3, RefundRate: 85, ServiceCap: 1000})
	require.NoError(t, err)
	svc := service.NewMarketplace(l, nil, nil)

	var tests = []struct {
		name     string
		data     string
		call     func(context.Context, []byte) Reply
		expected Reply
	}{
		{
			name: "invalid json",
			data: `{`,
			call: func(ctx context.Context, d []byte) Reply { return handle(ctx, d, svc.Purchase) },
			expected: Reply{Code: "INVALID_REQUEST", Error: "invalid_json"},
		},
		{
			name: "issue succeeds",
			data: `{"caller":"owner","account":"seller","asset":"services","amount":10}`,
			call: func(ctx context.Context, d []byte) Reply { return handle(ctx, d, svc.Issue) },
			expected: Reply{Success: true, Seq: 1, Code: ledger.CodeOK},
		},
		{
			name: "listing beyond holdings",
			data: `{"caller":"seller","quantity":11,"cost":5}`,
			call: func(ctx context.Context, d []byte) Reply { return handle(ctx, d, svc.AddListing) },
			expected: Reply{Code: ledger.CodeInsufficientFunds, Error: ledger.ErrInsufficientFunds.Error()},
		},
		{
			name: "unknown asset",
			data: `{"caller":"owner","account":"seller","asset":"gold","amount":10}`,
			call: func(ctx context.Context, d []byte) Reply { return handle(ctx, d, svc.Issue) },
			expected: Reply{Code: "INVALID_REQUEST", Error: `invalid request: unknown asset "gold"`},
		},
	}

	// cases share one ledger and run in order
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.call(ctx, []byte(tt.data)))
		})
	}
	require.Equal(t, model.AccountView{AccountID: "seller", Services: 10}, *mustAccount(t, svc, "seller"))
}

func mustAccount(t *testing.T, svc service.MarketService, id string) *model.AccountView {
	t.Helper()
	acc, err := svc.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc
}

type fakeSub struct {
	drained, unsubscribed bool
}

func (s *fakeSub) Drain() error {
	s.drained = true
	return nil
}

func (s *fakeSub) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

func TestHandler_SubscribeFailureReleasesEarlierSubscriptions(t *testing.T) {
	var subs []*fakeSub
	h := &Handler{
		subscribe: func(subject, queue string, cb nats.MsgHandler) (subscription, error) {
			if len(subs) == 2 {
				return nil, errors.New("permissions violation")
			}
			s := &fakeSub{}
			subs = append(subs, s)
			return s, nil
		},
	}

	routes := map[string]nats.MsgHandler{
		SubjectAddListing: nil, SubjectPurchase: nil, SubjectRefund: nil,
	}
	require.Error(t, h.subscribeAll(routes))
	require.Len(t, subs, 2)
	for _, s := range subs {
		require.True(t, s.unsubscribed)
	}
	require.Empty(t, h.subs)
}

func TestHandler_StartAndStop(t *testing.T) {
	l, err := ledger.New(ledger.Config{Owner: "owner", UnitCost: 150, FeeRate: 3, RefundRate: 85, ServiceCap: 1000})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		subs = map[string]*fakeSub{}
		cbs  = map[string]nats.MsgHandler{}
	)
	h := NewHandler(service.NewMarketplace(l, nil, nil), nil)
	h.subscribe = func(subject, queue string, cb nats.MsgHandler) (subscription, error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "market_group", queue)
		subs[subject] = &fakeSub{}
		cbs[subject] = cb
		return subs[subject], nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(subs) == 6
	}, time.Second, 5*time.Millisecond)

	// Stop may run concurrently with Start.
	require.NoError(t, h.Stop(context.Background()))
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	for subject, s := range subs {
		require.True(t, s.unsubscribed, subject)
	}
	cb := cbs[SubjectIssue]
	mu.Unlock()

	// a command delivered after cancellation still commits
	cb(&nats.Msg{Data: []byte(`{"caller":"owner","account":"a","asset":"tokens","amount":5}`)})
	require.Equal(t, int64(5), l.TokenBalance("a"))
}
