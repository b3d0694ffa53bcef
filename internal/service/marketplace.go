package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"svcmarket/internal/ledger"
	"svcmarket/internal/metrics"
	"svcmarket/internal/model"
	"svcmarket/internal/repository"
)

// Marketplace runs requests against a ledger and publishes an event for
// every committed operation. Events reach the bus in seq order.
type Marketplace struct {
	mu      sync.Mutex
	ledger  *ledger.Ledger
	bus     repository.MessageBus
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewMarketplace wires the ledger to a bus. bus and m may be nil.
func NewMarketplace(l *ledger.Ledger, bus repository.MessageBus, m *metrics.Metrics) *Marketplace {
	mp := &Marketplace{ledger: l, bus: bus, metrics: m, now: time.Now}
	m.SetListed(l.Listed())
	return mp
}

var _ MarketService = (*Marketplace)(nil)

func (s *Marketplace) AddListing(ctx context.Context, req model.AddListingRequest) (*model.Result, error) {
	return s.commit(ctx, ledger.OpAddListing, func() (*ledger.Changeset, error) {
		return s.ledger.AddListing(ctx, ledger.AccountID(req.Caller), req.Quantity, req.Cost)
	})
}

func (s *Marketplace) RemoveListing(ctx context.Context, req model.RemoveListingRequest) (*model.Result, error) {
	return s.commit(ctx, ledger.OpRemoveListing, func() (*ledger.Changeset, error) {
		return s.ledger.RemoveListing(ctx, ledger.AccountID(req.Caller), req.Quantity)
	})
}

func (s *Marketplace) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.Result, error) {
	return s.commit(ctx, ledger.OpPurchase, func() (*ledger.Changeset, error) {
		return s.ledger.Purchase(ctx, ledger.AccountID(req.Caller), ledger.AccountID(req.Seller), req.Quantity)
	})
}

func (s *Marketplace) RequestRefund(ctx context.Context, req model.RefundRequest) (*model.Result, error) {
	return s.commit(ctx, ledger.OpRequestRefund, func() (*ledger.Changeset, error) {
		return s.ledger.RequestRefund(ctx, ledger.AccountID(req.Caller), req.Quantity)
	})
}

func (s *Marketplace) UpdateConfig(ctx context.Context, req model.ConfigUpdateRequest) (*model.Result, error) {
	caller := ledger.AccountID(req.Caller)
	var (
		op ledger.Op
		fn func() (*ledger.Changeset, error)
	)
	switch req.Field {
	case model.FieldUnitCost:
		op, fn = ledger.OpSetUnitCost, func() (*ledger.Changeset, error) { return s.ledger.SetUnitCost(ctx, caller, req.Value) }
	case model.FieldFeeRate:
		op, fn = ledger.OpSetFeeRate, func() (*ledger.Changeset, error) { return s.ledger.SetFeeRate(ctx, caller, req.Value) }
	case model.FieldRefundRate:
		op, fn = ledger.OpSetRefundRate, func() (*ledger.Changeset, error) { return s.ledger.SetRefundRate(ctx, caller, req.Value) }
	case model.FieldServiceCap:
		op, fn = ledger.OpSetServiceCap, func() (*ledger.Changeset, error) { return s.ledger.SetServiceCap(ctx, caller, req.Value) }
	case model.FieldListingCap:
		op, fn = ledger.OpSetListingCap, func() (*ledger.Changeset, error) { return s.ledger.SetListingCap(ctx, caller, req.Value) }
	default:
		return nil, fmt.Errorf("%w: unknown config field %q", ErrInvalidRequest, req.Field)
	}
	return s.commit(ctx, op, fn)
}

func (s *Marketplace) Issue(ctx context.Context, req model.IssueRequest) (*model.Result, error) {
	caller, account := ledger.AccountID(req.Caller), ledger.AccountID(req.Account)
	switch req.Asset {
	case model.AssetTokens:
		return s.commit(ctx, ledger.OpIssueTokens, func() (*ledger.Changeset, error) {
			return s.ledger.IssueTokens(ctx, caller, account, req.Amount)
		})
	case model.AssetServices:
		return s.commit(ctx, ledger.OpIssueServices, func() (*ledger.Changeset, error) {
			return s.ledger.IssueServices(ctx, caller, account, req.Amount)
		})
	default:
		return nil, fmt.Errorf("%w: unknown asset %q", ErrInvalidRequest, req.Asset)
	}
}

func (s *Marketplace) GetConfig(ctx context.Context) (*model.ConfigView, error) {
	snap := s.ledger.Snapshot()
	c := snap.Config
	return &model.ConfigView{
		Owner:      string(c.Owner),
		UnitCost:   c.UnitCost,
		FeeRate:    c.FeeRate,
		RefundRate: c.RefundRate,
		ServiceCap: c.ServiceCap,
		ListingCap: c.ListingCap,
		Listed:     snap.Listed,
	}, nil
}

func (s *Marketplace) GetAccount(ctx context.Context, accountID string) (*model.AccountView, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidRequest)
	}
	a := ledger.AccountID(accountID)
	return &model.AccountView{
		AccountID: accountID,
		Services:  s.ledger.ServiceBalance(a),
		Tokens:    s.ledger.TokenBalance(a),
		Listing:   s.ledger.Listing(a),
	}, nil
}

// commit runs fn, records the outcome and publishes the resulting event.
// The transition is already durable when publishing happens, so a bus
// failure is logged rather than returned. s.mu spans both steps so a later
// seq is never published before an earlier one.
func (s *Marketplace) commit(ctx context.Context, op ledger.Op, fn func() (*ledger.Changeset, error)) (*model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err := fn()
	s.metrics.ObserveOp(string(op), ledger.Code(err))
	if err != nil {
		if !ledger.IsRejection(err) {
			slog.Error("service: operation failed", "op", op, "error", err)
		}
		return nil, err
	}
	if cs.Listed != nil {
		s.metrics.SetListed(*cs.Listed)
	}
	s.publish(op, cs)
	return &model.Result{Seq: cs.Seq, Status: "SUCCESS"}, nil
}

func (s *Marketplace) publish(op ledger.Op, cs *ledger.Changeset) {
	if s.bus == nil {
		return
	}
	event := model.LedgerEvent{
		ID:      uuid.NewString(),
		Seq:     cs.Seq,
		Op:      op,
		Caller:  string(cs.Caller),
		Changes: cs,
		At:      s.now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("service: failed to marshal event", "op", op, "seq", cs.Seq, "error", err)
		s.metrics.PublishFailed()
		return
	}
	if err := s.bus.Publish(model.EventTopic(op), data); err != nil {
		slog.Error("service: failed to publish event", "op", op, "seq", cs.Seq, "error", err)
		s.metrics.PublishFailed()
	}
}
