package ledger

import "fmt"

// CheckInvariants verifies that s has no negative balances or listings,
// every listing carries a positive cost and the listed counter is within
// [0, ServiceCap].
func CheckInvariants(s *Snapshot) error {
	for a, v := range s.Services {
		if v < 0 {
			return fmt.Errorf("service balance of %q is negative: %d", a, v)
		}
	}
	for a, v := range s.Tokens {
		if v < 0 {
			return fmt.Errorf("token balance of %q is negative: %d", a, v)
		}
	}
	for a, lst := range s.Listings {
		if lst.Quantity < 0 {
			return fmt.Errorf("listing of %q is negative: %d", a, lst.Quantity)
		}
		if lst.Quantity > 0 && lst.Cost <= 0 {
			return fmt.Errorf("listing of %q has cost %d", a, lst.Cost)
		}
	}
	if s.Listed < 0 {
		return fmt.Errorf("listed counter is negative: %d", s.Listed)
	}
	if s.Listed > s.Config.ServiceCap {
		return fmt.Errorf("listed counter %d exceeds cap %d", s.Listed, s.Config.ServiceCap)
	}
	return nil
}
