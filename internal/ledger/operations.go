package ledger

import "context"

func requireOwner(tx *txn, caller AccountID) error {
	if caller != tx.config().Owner {
		return ErrUnauthorized
	}
	return nil
}

// updateConfig applies an owner-only change to a copy of the configuration.
func (l *Ledger) updateConfig(ctx context.Context, op Op, caller AccountID, fn func(tx *txn, c *Config) error) (*Changeset, error) {
	return l.execute(ctx, op, caller, func(tx *txn) error {
		if err := requireOwner(tx, caller); err != nil {
			return err
		}
		c := tx.config()
		if err := fn(tx, &c); err != nil {
			return err
		}
		tx.setConfig(c)
		return nil
	})
}

func (l *Ledger) SetUnitCost(ctx context.Context, caller AccountID, cost int64) (*Changeset, error) {
	return l.updateConfig(ctx, OpSetUnitCost, caller, func(_ *txn, c *Config) error {
		if cost <= 0 {
			return ErrInvalidCost
		}
		c.UnitCost = cost
		return nil
	})
}

// SetFeeRate takes effect for purchases committed after it.
func (l *Ledger) SetFeeRate(ctx context.Context, caller AccountID, rate int64) (*Changeset, error) {
	return l.updateConfig(ctx, OpSetFeeRate, caller, func(_ *txn, c *Config) error {
		if rate < 0 || rate > MaxRate {
			return ErrInvalidLimit
		}
		c.FeeRate = rate
		return nil
	})
}

func (l *Ledger) SetRefundRate(ctx context.Context, caller AccountID, rate int64) (*Changeset, error) {
	return l.updateConfig(ctx, OpSetRefundRate, caller, func(_ *txn, c *Config) error {
		if rate < 0 || rate > MaxRate {
			return ErrInvalidLimit
		}
		c.RefundRate = rate
		return nil
	})
}

// SetServiceCap rejects caps below the current listed total.
func (l *Ledger) SetServiceCap(ctx context.Context, caller AccountID, limit int64) (*Changeset, error) {
	return l.updateConfig(ctx, OpSetServiceCap, caller, func(tx *txn, c *Config) error {
		if limit < tx.listedTotal() {
			return ErrInvalidLimit
		}
		c.ServiceCap = limit
		return nil
	})
}

// SetListingCap sets the per-seller listing bound; 0 removes it. Existing
// listings above a new bound are left alone and only block further adds.
func (l *Ledger) SetListingCap(ctx context.Context, caller AccountID, limit int64) (*Changeset, error) {
	return l.updateConfig(ctx, OpSetListingCap, caller, func(_ *txn, c *Config) error {
		if limit < 0 {
			return ErrInvalidLimit
		}
		c.ListingCap = limit
		return nil
	})
}

// IssueTokens credits amount tokens to account.
func (l *Ledger) IssueTokens(ctx context.Context, caller, account AccountID, amount int64) (*Changeset, error) {
	return l.execute(ctx, OpIssueTokens, caller, func(tx *txn) error {
		if err := requireOwner(tx, caller); err != nil {
			return err
		}
		if account == "" {
			return ErrInvalidAccount
		}
		if amount <= 0 {
			return ErrInvalidQuantity
		}
		return tx.creditToken(account, amount)
	})
}

// IssueServices credits quantity service units to account.
func (l *Ledger) IssueServices(ctx context.Context, caller, account AccountID, quantity int64) (*Changeset, error) {
	return l.execute(ctx, OpIssueServices, caller, func(tx *txn) error {
		if err := requireOwner(tx, caller); err != nil {
			return err
		}
		if account == "" {
			return ErrInvalidAccount
		}
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		return tx.creditService(account, quantity)
	})
}

// AddListing lists quantity more units at cost. The seller's service balance
// must cover the whole resulting listing; it is reserved, not debited. The
// new cost replaces the price of units already listed.
func (l *Ledger) AddListing(ctx context.Context, caller AccountID, quantity, cost int64) (*Changeset, error) {
	return l.execute(ctx, OpAddListing, caller, func(tx *txn) error {
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		if cost <= 0 {
			return ErrInvalidCost
		}
		total, ok := add(tx.listing(caller).Quantity, quantity)
		if !ok {
			return ErrInvalidQuantity
		}
		if tx.service(caller) < total {
			return ErrInsufficientFunds
		}
		if limit := tx.config().ListingCap; limit > 0 && total > limit {
			return ErrLimitExceeded
		}
		if err := tx.adjustListed(quantity); err != nil {
			return err
		}
		tx.setListing(caller, Listing{Quantity: total, Cost: cost})
		return nil
	})
}

// RemoveListing withdraws quantity units from the caller's listing, keeping
// its cost.
func (l *Ledger) RemoveListing(ctx context.Context, caller AccountID, quantity int64) (*Changeset, error) {
	return l.execute(ctx, OpRemoveListing, caller, func(tx *txn) error {
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		cur := tx.listing(caller)
		if cur.Quantity < quantity {
			return ErrInsufficientFunds
		}
		if err := tx.adjustListed(-quantity); err != nil {
			return err
		}
		tx.setListing(caller, Listing{Quantity: cur.Quantity - quantity, Cost: cur.Cost})
		return nil
	})
}

// Purchase buys quantity units from seller's listing at the listing cost
// plus the platform fee. The listed-service counter is not adjusted.
func (l *Ledger) Purchase(ctx context.Context, buyer, seller AccountID, quantity int64) (*Changeset, error) {
	return l.execute(ctx, OpPurchase, buyer, func(tx *txn) error {
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		if buyer == seller {
			return ErrSelfTransaction
		}
		lst := tx.listing(seller)
		if lst.Quantity < quantity || tx.service(seller) < quantity {
			return ErrInsufficientFunds
		}
		total, ok := mul(quantity, lst.Cost)
		if !ok {
			return ErrInvalidQuantity
		}
		cfg := tx.config()
		fee, err := PlatformFee(total, cfg.FeeRate)
		if err != nil {
			return err
		}
		charge, ok := add(total, fee)
		if !ok {
			return ErrInvalidQuantity
		}
		if tx.token(buyer) < charge {
			return ErrInsufficientFunds
		}
		tx.setService(seller, tx.service(seller)-quantity)
		tx.setListing(seller, Listing{Quantity: lst.Quantity - quantity, Cost: lst.Cost})
		tx.setToken(buyer, tx.token(buyer)-charge)
		if err := tx.creditService(buyer, quantity); err != nil {
			return err
		}
		if err := tx.creditToken(seller, total); err != nil {
			return err
		}
		return tx.creditToken(cfg.Owner, fee)
	})
}

// RequestRefund returns quantity units to the owner for tokens drawn from
// the owner's balance. The refund is priced at the unit cost configured now,
// not at what the caller paid. The listed-service counter drops by quantity,
// floored at zero, whether or not those units were listed.
func (l *Ledger) RequestRefund(ctx context.Context, caller AccountID, quantity int64) (*Changeset, error) {
	return l.execute(ctx, OpRequestRefund, caller, func(tx *txn) error {
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		if tx.service(caller) < quantity {
			return ErrInsufficientFunds
		}
		cfg := tx.config()
		value, err := RefundValue(quantity, cfg.UnitCost, cfg.RefundRate)
		if err != nil {
			return err
		}
		if tx.token(cfg.Owner) < value {
			return ErrRefundFailure
		}

		tx.setService(caller, tx.service(caller)-quantity)
		if err := tx.creditToken(caller, value); err != nil {
			return err
		}
		tx.setToken(cfg.Owner, tx.token(cfg.Owner)-value)
		if err := tx.creditService(cfg.Owner, quantity); err != nil {
			return err
		}
		return tx.adjustListed(-quantity)
	})
}
