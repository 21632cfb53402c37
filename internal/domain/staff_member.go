package domain

import "time"

// StaffMember models a clerk, supervisor or field agent.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         ActorRole
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor converts the staff record into the command identity.
func (s *StaffMember) Actor() Actor {
	return Actor{ID: s.ID, Role: s.Role, DepartmentID: s.DepartmentID}
}
