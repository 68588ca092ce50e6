package domain

// Tier is a price/supply bucket within an event (general, VIP, ...).
// Tier CRUD lives outside the core; the capacity ledger reads TotalSupply
// to seed its counters.
type Tier struct {
	ID          string
	EventID     string
	Name        string
	TotalSupply int
}
