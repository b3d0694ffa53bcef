package ledger

import "fmt"

// AccountID is an opaque participant identity supplied by the caller's host.
type AccountID string

// MaxRate is the upper bound for fee and refund rates, in percent.
const MaxRate = 100

// Config holds the owner-controlled ledger parameters.
type Config struct {
	Owner      AccountID `json:"owner"`
	UnitCost   int64     `json:"unit_cost"`
	FeeRate    int64     `json:"fee_rate"`
	RefundRate int64     `json:"refund_rate"`
	ServiceCap int64     `json:"service_cap"`
	// ListingCap bounds a single seller's listed quantity; 0 disables it.
	ListingCap int64 `json:"listing_cap"`
}

func (c Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("owner: %w", ErrInvalidAccount)
	}
	if c.UnitCost <= 0 {
		return fmt.Errorf("unit cost %d: %w", c.UnitCost, ErrInvalidCost)
	}
	if c.FeeRate < 0 || c.FeeRate > MaxRate {
		return fmt.Errorf("fee rate %d: %w", c.FeeRate, ErrInvalidLimit)
	}
	if c.RefundRate < 0 || c.RefundRate > MaxRate {
		return fmt.Errorf("refund rate %d: %w", c.RefundRate, ErrInvalidLimit)
	}
	if c.ServiceCap < 0 {
		return fmt.Errorf("service cap %d: %w", c.ServiceCap, ErrInvalidLimit)
	}
	if c.ListingCap < 0 {
		return fmt.Errorf("listing cap %d: %w", c.ListingCap, ErrInvalidLimit)
	}
	return nil
}

// Listing is a seller's advertised quantity and unit price. A zero quantity
// is the same as having no listing.
type Listing struct {
	Quantity int64 `json:"quantity"`
	Cost     int64 `json:"cost"`
}

func (l Listing) Empty() bool { return l.Quantity == 0 }

// Op names a state transition.
type Op string

const (
	OpSetUnitCost   Op = "set_unit_cost"
	OpSetFeeRate    Op = "set_fee_rate"
	OpSetRefundRate Op = "set_refund_rate"
	OpSetServiceCap Op = "set_service_cap"
	OpSetListingCap Op = "set_listing_cap"
	OpIssueTokens   Op = "issue_tokens"
	OpIssueServices Op = "issue_services"
	OpAddListing    Op = "add_listing"
	OpRemoveListing Op = "remove_listing"
	OpPurchase      Op = "purchase"
	OpRequestRefund Op = "request_refund"
)

// Snapshot is a full copy of ledger state at sequence Seq.
type Snapshot struct {
	Seq      uint64                `json:"seq"`
	Config   Config                `json:"config"`
	Services map[AccountID]int64   `json:"services"`
	Tokens   map[AccountID]int64   `json:"tokens"`
	Listings map[AccountID]Listing `json:"listings"`
	Listed   int64                 `json:"listed"`
}

func NewSnapshot(cfg Config) *Snapshot {
	return &Snapshot{
		Config:   cfg,
		Services: make(map[AccountID]int64),
		Tokens:   make(map[AccountID]int64),
		Listings: make(map[AccountID]Listing),
	}
}

func (s *Snapshot) Clone() *Snapshot {
	c := NewSnapshot(s.Config)
	c.Seq = s.Seq
	c.Listed = s.Listed
	for k, v := range s.Services {
		c.Services[k] = v
	}
	for k, v := range s.Tokens {
		c.Tokens[k] = v
	}
	for k, v := range s.Listings {
		c.Listings[k] = v
	}
	return c
}

// Apply writes the after-image carried by cs into s. Empty listings and
// zero balances are dropped so absent and zero stay indistinguishable.
func (s *Snapshot) Apply(cs *Changeset) {
	if cs.Config != nil {
		s.Config = *cs.Config
	}
	for k, v := range cs.Services {
		if v == 0 {
			delete(s.Services, k)
			continue
		}
		s.Services[k] = v
	}
	for k, v := range cs.Tokens {
		if v == 0 {
			delete(s.Tokens, k)
			continue
		}
		s.Tokens[k] = v
	}
	for k, v := range cs.Listings {
		if v.Empty() {
			delete(s.Listings, k)
			continue
		}
		s.Listings[k] = v
	}
	if cs.Listed != nil {
		s.Listed = *cs.Listed
	}
	s.Seq = cs.Seq
}

// ListedSum is the total quantity across all listings.
func (s *Snapshot) ListedSum() int64 {
	var sum int64
	for _, l := range s.Listings {
		sum += l.Quantity
	}
	return sum
}

// TokenSupply is the total of all token balances.
func (s *Snapshot) TokenSupply() int64 {
	var sum int64
	for _, v := range s.Tokens {
		sum += v
	}
	return sum
}

// Changeset is the after-image of every key one committed operation wrote.
type Changeset struct {
	Seq      uint64                `json:"seq"`
	Op       Op                    `json:"op"`
	Caller   AccountID             `json:"caller"`
	Config   *Config               `json:"config,omitempty"`
	Services map[AccountID]int64   `json:"services,omitempty"`
	Tokens   map[AccountID]int64   `json:"tokens,omitempty"`
	Listings map[AccountID]Listing `json:"listings,omitempty"`
	Listed   *int64                `json:"listed,omitempty"`
}
