package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"svcmarket/internal/ledger"
	"svcmarket/internal/model"
	"svcmarket/internal/service"
)

type mockRecorder struct {
	mu     sync.Mutex
	events []model.LedgerEvent
	err    error
}

func (m *mockRecorder) Record(ctx context.Context, event model.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockRecorder) recorded() []model.LedgerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.LedgerEvent(nil), m.events...)
}

// startServer serves a fresh marketplace over an in-memory listener.
func startServer(t *testing.T, recorder service.EventRecorder) *grpc.ClientConn {
	t.Helper()
	l, err := ledger.New(ledger.Config{Owner: "owner", UnitCost: 150, FeeRate: 3, RefundRate: 85, ServiceCap: 1000})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	s := NewServer("", service.NewMarketplace(l, nil, nil), recorder)
	go func() { _ = s.srv.Serve(lis) }()
	t.Cleanup(s.srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func as(ctx context.Context, caller string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, CallerMetadataKey, caller)
}

func TestServer_MarketplaceRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := NewMarketplaceClient(startServer(t, nil))

	res, err := client.Issue(as(ctx, "owner"), &model.IssueRequest{Account: "seller", Asset: model.AssetServices, Amount: 10})
	require.NoError(t, err)
	require.True(t, res.Success)
	res, err = client.Issue(as(ctx, "owner"), &model.IssueRequest{Account: "buyer", Asset: model.AssetTokens, Amount: 1000})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = client.AddListing(as(ctx, "seller"), &model.AddListingRequest{Quantity: 5, Cost: 100})
	require.NoError(t, err)
	require.True(t, res.Success)

	// the metadata identity wins over a spoofed body field
	res, err = client.Purchase(as(ctx, "buyer"), &model.PurchaseRequest{Caller: "seller", Seller: "seller", Quantity: 2})
	require.NoError(t, err)
	require.True(t, res.Success, res.ErrorMessage)
	require.Equal(t, uint64(4), res.Seq)

	acc, err := client.GetAccount(ctx, "buyer")
	require.NoError(t, err)
	require.Equal(t, int64(794), acc.Tokens)
	require.Equal(t, int64(2), acc.Services)

	cfg, err := client.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), cfg.Listed)
}

func TestServer_Rejections(t *testing.T) {
	ctx := context.Background()
	client := NewMarketplaceClient(startServer(t, nil))

	res, err := client.UpdateConfig(as(ctx, "mallory"), &model.ConfigUpdateRequest{Field: model.FieldUnitCost, Value: 1})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, ledger.CodeUnauthorized, res.Code)

	res, err = client.UpdateConfig(as(ctx, "owner"), &model.ConfigUpdateRequest{Field: "bogus", Value: 1})
	require.NoError(t, err)
	require.Equal(t, "INVALID_REQUEST", res.Code)

	res, err = client.RequestRefund(as(ctx, "owner"), &model.RefundRequest{Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, ledger.CodeInsufficientFunds, res.Code)

	_, err = client.GetAccount(ctx, "")
	require.Error(t, err)
}

func TestGrpcBus_DeliversToEventService(t *testing.T) {
	recorder := &mockRecorder{}
	bus := NewGrpcBus(startServer(t, recorder), 8)

	event := model.LedgerEvent{ID: "e1", Seq: 1, Op: ledger.OpPurchase, Caller: "buyer"}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(model.EventTopic(ledger.OpPurchase), payload))
	bus.Close()

	require.Eventually(t, func() bool { return len(recorder.recorded()) == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, "e1", recorder.recorded()[0].ID)
}

func TestServer_PublishRejectsUnknownTopic(t *testing.T) {
	s := &Server{recorder: &mockRecorder{}}

	_, err := s.Publish(context.Background(), &EventRequest{Topic: "transactions.created", Payload: []byte("{}")})
	require.Error(t, err)

	res, err := s.Publish(context.Background(), &EventRequest{Topic: "market.events.purchase", Payload: []byte(`{"id":"x"}`)})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestGrpcBus_PublishAfterClose(t *testing.T) {
	bus := NewGrpcBus(nil, 4)
	bus.Close()
	bus.Close()

	require.NotPanics(t, func() {
		require.ErrorIs(t, bus.Publish("market.events.purchase", []byte("{}")), ErrBusClosed)
	})
}

func TestGrpcBus_ConcurrentPublishAndClose(t *testing.T) {
	bus := NewGrpcBus(startServer(t, &mockRecorder{}), 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := bus.Publish("market.events.purchase", []byte(`{"id":"x"}`))
				if err != nil && !errors.Is(err, ErrBusFull) && !errors.Is(err, ErrBusClosed) {
					t.Errorf("unexpected publish error: %v", err)
				}
			}
		}()
	}
	bus.Close()
	wg.Wait()
}
