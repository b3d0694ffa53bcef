package model

import (
	"time"

	"svcmarket/internal/ledger"
)

type AddListingRequest struct {
	Caller   string `json:"caller"`
	Quantity int64  `json:"quantity"`
	Cost     int64  `json:"cost"`
}

type RemoveListingRequest struct {
	Caller   string `json:"caller"`
	Quantity int64  `json:"quantity"`
}

type PurchaseRequest struct {
	Caller   string `json:"caller"`
	Seller   string `json:"seller"`
	Quantity int64  `json:"quantity"`
}

type RefundRequest struct {
	Caller   string `json:"caller"`
	Quantity int64  `json:"quantity"`
}

// ConfigField selects the owner-controlled parameter a ConfigUpdateRequest
// overwrites.
type ConfigField string

const (
	FieldUnitCost   ConfigField = "unit-cost"
	FieldFeeRate    ConfigField = "fee-rate"
	FieldRefundRate ConfigField = "refund-rate"
	FieldServiceCap ConfigField = "service-cap"
	FieldListingCap ConfigField = "listing-cap"
)

type ConfigUpdateRequest struct {
	Caller string      `json:"caller"`
	Field  ConfigField `json:"field"`
	Value  int64       `json:"value"`
}

// Asset selects which balance an IssueRequest credits.
type Asset string

const (
	AssetTokens   Asset = "tokens"
	AssetServices Asset = "services"
)

type IssueRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Asset   Asset  `json:"asset"`
	Amount  int64  `json:"amount"`
}

type Result struct {
	Seq    uint64 `json:"seq"`
	Status string `json:"status"`
}

type ConfigView struct {
	Owner      string `json:"owner"`
	UnitCost   int64  `json:"unit_cost"`
	FeeRate    int64  `json:"fee_rate"`
	RefundRate int64  `json:"refund_rate"`
	ServiceCap int64  `json:"service_cap"`
	ListingCap int64  `json:"listing_cap"`
	Listed     int64  `json:"listed"`
}

type AccountView struct {
	AccountID string         `json:"account_id"`
	Services  int64          `json:"services"`
	Tokens    int64          `json:"tokens"`
	Listing   ledger.Listing `json:"listing"`
}

// LedgerEvent is published on the bus after every committed operation.
type LedgerEvent struct {
	ID      string            `json:"id"`
	Seq     uint64            `json:"seq"`
	Op      ledger.Op         `json:"op"`
	Caller  string            `json:"caller"`
	Changes *ledger.Changeset `json:"changes"`
	At      time.Time         `json:"at"`
}

// EventTopic is the bus subject for events of op.
func EventTopic(op ledger.Op) string {
	return EventTopicPrefix + string(op)
}

const EventTopicPrefix = "market.events."
