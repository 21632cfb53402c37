package dto

import (
	"time"

	"github.com/civicgrid/request-service/internal/domain"
)

// CheckInPayload records arrival on site.
type CheckInPayload struct {
	Latitude         float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude        float64 `json:"longitude" validate:"gte=-180,lte=180"`
	StartImmediately bool    `json:"start_immediately"`
}

// CheckOutPayload completes the work order.
type CheckOutPayload struct {
	CompletionNotes  string `json:"completion_notes" validate:"omitempty,max=4000"`
	FollowUpRequired bool   `json:"follow_up_required"`
}

// SegmentStartPayload opens an activity time segment.
type SegmentStartPayload struct {
	Kind  domain.TimeSegmentKind `json:"kind" validate:"required,oneof=TRAVEL SETUP WORK DOCUMENTATION BREAK"`
	Notes string                 `json:"notes" validate:"omitempty,max=1000"`
}

// CancelWorkOrderPayload aborts a work order.
type CancelWorkOrderPayload struct {
	Reason string `json:"reason" validate:"omitempty,max=512"`
}

// WorkOrderResponse describes field execution state.
type WorkOrderResponse struct {
	ID                    string                 `json:"id"`
	RequestID             string                 `json:"request_id"`
	AssignmentID          string                 `json:"assignment_id"`
	AssignedAgentID       string                 `json:"assigned_agent_id"`
	Status                domain.WorkOrderStatus `json:"status"`
	CheckInTime           *time.Time             `json:"check_in_time"`
	CheckInLatitude       *float64               `json:"check_in_latitude"`
	CheckInLongitude      *float64               `json:"check_in_longitude"`
	CheckOutTime          *time.Time             `json:"check_out_time"`
	ActualDurationSeconds *int64                 `json:"actual_duration_seconds"`
	CompletionNotes       string                 `json:"completion_notes"`
	FollowUpRequired      bool                   `json:"follow_up_required"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// TimeEntryResponse is one logged activity segment.
type TimeEntryResponse struct {
	ID          string                 `json:"id"`
	WorkOrderID string                 `json:"work_order_id"`
	AgentID     string                 `json:"agent_id"`
	Kind        domain.TimeSegmentKind `json:"kind"`
	StartTime   time.Time              `json:"start_time"`
	EndTime     *time.Time             `json:"end_time"`
	Notes       string                 `json:"notes"`
}
