package domain

import "time"

// RequestStatus enumerates lifecycle states for service requests.
type RequestStatus string

const (
	RequestStatusDraft      RequestStatus = "DRAFT"
	RequestStatusSubmitted  RequestStatus = "SUBMITTED"
	RequestStatusTriaged    RequestStatus = "TRIAGED"
	RequestStatusInReview   RequestStatus = "IN_REVIEW"
	RequestStatusApproved   RequestStatus = "APPROVED"
	RequestStatusInProgress RequestStatus = "IN_PROGRESS"
	RequestStatusResolved   RequestStatus = "RESOLVED"
	RequestStatusRejected   RequestStatus = "REJECTED"
	RequestStatusClosed     RequestStatus = "CLOSED"
	RequestStatusCancelled  RequestStatus = "CANCELLED"
)

// IsTerminal reports whether the status closes the request for SLA,
// review and assignment purposes. RESOLVED and REJECTED still have
// outgoing edges (close, reopen) but count as terminal here.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusResolved, RequestStatusRejected, RequestStatusClosed, RequestStatusCancelled:
		return true
	}
	return false
}

// IsFinal reports whether the status has no outgoing edges at all.
func (s RequestStatus) IsFinal() bool {
	return s == RequestStatusClosed || s == RequestStatusCancelled
}

// RequestPriority enumerates SLA urgency.
type RequestPriority string

const (
	RequestPriorityLow    RequestPriority = "LOW"
	RequestPriorityMedium RequestPriority = "MEDIUM"
	RequestPriorityHigh   RequestPriority = "HIGH"
	RequestPriorityUrgent RequestPriority = "URGENT"
)

// ServiceRequest is the aggregate for municipal service requests.
// Version is the optimistic-concurrency counter: every accepted
// mutation increments it by exactly one.
type ServiceRequest struct {
	ID           string
	Code         string
	RequesterID  string
	DepartmentID string
	Category     string
	Title        string
	Description  string
	Status       RequestStatus
	Priority     RequestPriority
	AssigneeID   *string
	Version      int64
	TriagedAt    *time.Time
	SLADueAt     *time.Time
	ClosedAt     *time.Time
	ReopenUntil  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
