package domain

import "time"

// Event represents a ticketed event. Event records are owned by an external
// service; the core only reads them to date-stamp proofs.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time
}
