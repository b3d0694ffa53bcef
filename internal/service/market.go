package service

import (
	"context"

	"svcmarket/internal/model"
)

// MarketService defines the business operations of the marketplace.
// All transport layers (HTTP, gRPC, NATS) depend on this interface, not on the ledger.
type MarketService interface {
	AddListing(ctx context.Context, req model.AddListingRequest) (*model.Result, error)
	RemoveListing(ctx context.Context, req model.RemoveListingRequest) (*model.Result, error)
	Purchase(ctx context.Context, req model.PurchaseRequest) (*model.Result, error)
	RequestRefund(ctx context.Context, req model.RefundRequest) (*model.Result, error)
	UpdateConfig(ctx context.Context, req model.ConfigUpdateRequest) (*model.Result, error)
	Issue(ctx context.Context, req model.IssueRequest) (*model.Result, error)
	GetConfig(ctx context.Context) (*model.ConfigView, error)
	GetAccount(ctx context.Context, accountID string) (*model.AccountView, error)
}

// EventRecorder persists ledger events delivered by the bus.
type EventRecorder interface {
	Record(ctx context.Context, event model.LedgerEvent) error
}
