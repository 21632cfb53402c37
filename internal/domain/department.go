package domain

import "time"

// Department is the municipal unit requests are routed to
// (public works, sanitation, parks, and so on).
type Department struct {
	ID           string
	Name         string
	Description  string
	ContactEmail string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
