package ledger

// txn stages writes over a base snapshot. Reads see staged values first, so
// an operation touching the same account twice observes its own writes.
// Nothing reaches the base until the ledger commits the changeset.
type txn struct {
	base     *Snapshot
	cfg      *Config
	services map[AccountID]int64
	tokens   map[AccountID]int64
	listings map[AccountID]Listing
	listed   *int64
}

func newTxn(base *Snapshot) *txn {
	return &txn{
		base:     base,
		services: make(map[AccountID]int64),
		tokens:   make(map[AccountID]int64),
		listings: make(map[AccountID]Listing),
	}
}

func (tx *txn) config() Config {
	if tx.cfg != nil {
		return *tx.cfg
	}
	return tx.base.Config
}

func (tx *txn) setConfig(c Config) { tx.cfg = &c }

func (tx *txn) service(a AccountID) int64 {
	if v, ok := tx.services[a]; ok {
		return v
	}
	return tx.base.Services[a]
}

func (tx *txn) setService(a AccountID, v int64) { tx.services[a] = v }

func (tx *txn) creditService(a AccountID, v int64) error {
	next, ok := add(tx.service(a), v)
	if !ok {
		return ErrInvalidQuantity
	}
	tx.setService(a, next)
	return nil
}

func (tx *txn) token(a AccountID) int64 {
	if v, ok := tx.tokens[a]; ok {
		return v
	}
	return tx.base.Tokens[a]
}

func (tx *txn) setToken(a AccountID, v int64) { tx.tokens[a] = v }

func (tx *txn) creditToken(a AccountID, v int64) error {
	next, ok := add(tx.token(a), v)
	if !ok {
		return ErrInvalidQuantity
	}
	tx.setToken(a, next)
	return nil
}

func (tx *txn) listing(a AccountID) Listing {
	if v, ok := tx.listings[a]; ok {
		return v
	}
	return tx.base.Listings[a]
}

func (tx *txn) setListing(a AccountID, l Listing) {
	if l.Quantity == 0 {
		l = Listing{}
	}
	tx.listings[a] = l
}

func (tx *txn) listedTotal() int64 {
	if tx.listed != nil {
		return *tx.listed
	}
	return tx.base.Listed
}

// adjustListed moves the global listed-service counter by delta. Increments
// past the cap fail with ErrLimitExceeded and stage nothing. Decrements are
// floored at zero instead of failing.
func (tx *txn) adjustListed(delta int64) error {
	cur := tx.listedTotal()
	var next int64
	switch {
	case delta >= 0:
		sum, ok := add(cur, delta)
		if !ok || sum > tx.config().ServiceCap {
			return ErrLimitExceeded
		}
		next = sum
	case -delta > cur:
		next = 0
	default:
		next = cur + delta
	}
	tx.listed = &next
	return nil
}

func (tx *txn) changeset(seq uint64, op Op, caller AccountID) *Changeset {
	cs := &Changeset{Seq: seq, Op: op, Caller: caller, Config: tx.cfg, Listed: tx.listed}
	if len(tx.services) > 0 {
		cs.Services = tx.services
	}
	if len(tx.tokens) > 0 {
		cs.Tokens = tx.tokens
	}
	if len(tx.listings) > 0 {
		cs.Listings = tx.listings
	}
	return cs
}
