package domain

import "time"

// SubjectType differentiates citizen vs staff tokens.
type SubjectType string

const (
	SubjectTypeCitizen SubjectType = "CITIZEN"
	SubjectTypeStaff   SubjectType = "STAFF"
)

// ActorRole is the role a command is performed under. Citizens always
// act as RoleCitizen; staff roles come from the staff record.
type ActorRole string

const (
	RoleCitizen    ActorRole = "CITIZEN"
	RoleClerk      ActorRole = "CLERK"
	RoleSupervisor ActorRole = "SUPERVISOR"
	RoleFieldAgent ActorRole = "FIELD_AGENT"
)

// Actor is the identity attached to every command, supplied by the
// transport boundary after authentication.
type Actor struct {
	ID           string
	Role         ActorRole
	DepartmentID *string
}

// IsStaff reports whether the actor holds any staff role.
func (a Actor) IsStaff() bool {
	return a.Role == RoleClerk || a.Role == RoleSupervisor || a.Role == RoleFieldAgent
}

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	Role      *ActorRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
