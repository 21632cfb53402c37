package domain

import "time"

// AssignmentRecord is one entry in the append-only assignment ledger.
// At most one record per request has IsActive=true; creating a new
// active record deactivates the prior one in the same transaction.
type AssignmentRecord struct {
	ID            string
	RequestID     string
	AssignedFrom  *string
	AssignedTo    string
	AssignedBy    string
	Reason        string
	WorkloadScore float64
	IsActive      bool
	CompletedAt   *time.Time
	CreatedAt     time.Time
}
