package domain

import "time"

// CitizenStatus represents lifecycle states for a citizen account.
type CitizenStatus string

const (
	CitizenStatusActive    CitizenStatus = "ACTIVE"
	CitizenStatusSuspended CitizenStatus = "SUSPENDED"
)

// Citizen is the domain model for residents who submit service requests.
type Citizen struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       CitizenStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
