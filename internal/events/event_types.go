package events

import (
	"time"

	"github.com/civicgrid/request-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestSubmitted     EventType = "request_submitted"
	EventRequestStatusChanged EventType = "request_status_changed"
	EventRequestAssigned      EventType = "request_assigned"
	EventRequestCommentAdded  EventType = "request_comment_added"
	EventWorkOrderCheckedIn   EventType = "work_order_checked_in"
	EventWorkOrderCompleted   EventType = "work_order_completed"
	EventReviewRecorded       EventType = "review_recorded"
	EventGoalUpdated          EventType = "goal_updated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type      domain.SubjectType `json:"type"`
	CitizenID *string            `json:"citizen_id,omitempty"`
	StaffID   *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services. Emission is
// fire-and-forget: a failed handler never rolls back the transition
// that produced the event.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RequestID string      `json:"request_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RequestSubmittedPayload payload.
type RequestSubmittedPayload struct {
	DepartmentID string                 `json:"department_id"`
	Category     string                 `json:"category"`
	Priority     domain.RequestPriority `json:"priority"`
	Title        string                 `json:"title"`
}

// RequestStatusChangedPayload payload.
type RequestStatusChangedPayload struct {
	OldStatus domain.RequestStatus `json:"old_status"`
	NewStatus domain.RequestStatus `json:"new_status"`
	Comment   string               `json:"comment,omitempty"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	AssignmentID  string  `json:"assignment_id"`
	AssignedFrom  *string `json:"assigned_from,omitempty"`
	AssignedTo    string  `json:"assigned_to"`
	Reason        string  `json:"reason,omitempty"`
	WorkloadScore float64 `json:"workload_score"`
}

// RequestCommentAddedPayload payload.
type RequestCommentAddedPayload struct {
	CommentID   string                   `json:"comment_id"`
	Visibility  domain.CommentVisibility `json:"visibility"`
	AuthorType  domain.AuthorType        `json:"author_type"`
	AuthorID    *string                  `json:"author_id,omitempty"`
	BodyPreview string                   `json:"body_preview"`
}

// WorkOrderCheckedInPayload payload.
type WorkOrderCheckedInPayload struct {
	WorkOrderID string                 `json:"work_order_id"`
	AgentID     string                 `json:"agent_id"`
	Status      domain.WorkOrderStatus `json:"status"`
}

// WorkOrderCompletedPayload payload.
type WorkOrderCompletedPayload struct {
	WorkOrderID      string        `json:"work_order_id"`
	AgentID          string        `json:"agent_id"`
	ActualDuration   time.Duration `json:"actual_duration"`
	FollowUpRequired bool          `json:"follow_up_required"`
}

// ReviewRecordedPayload payload.
type ReviewRecordedPayload struct {
	ReviewID         string  `json:"review_id"`
	OverallScore     float64 `json:"overall_score"`
	FollowUpRequired bool    `json:"follow_up_required"`
}

// GoalUpdatedPayload payload.
type GoalUpdatedPayload struct {
	GoalID    string            `json:"goal_id"`
	StaffID   string            `json:"staff_id"`
	OldStatus domain.GoalStatus `json:"old_status"`
	NewStatus domain.GoalStatus `json:"new_status"`
}
