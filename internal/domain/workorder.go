package domain

import "time"

// WorkOrderStatus enumerates field execution states. Transitions only
// move forward; COMPLETED and CANCELLED are terminal.
type WorkOrderStatus string

const (
	WorkOrderStatusAssigned   WorkOrderStatus = "ASSIGNED"
	WorkOrderStatusEnRoute    WorkOrderStatus = "EN_ROUTE"
	WorkOrderStatusOnSite     WorkOrderStatus = "ON_SITE"
	WorkOrderStatusInProgress WorkOrderStatus = "IN_PROGRESS"
	WorkOrderStatusCompleted  WorkOrderStatus = "COMPLETED"
	WorkOrderStatusCancelled  WorkOrderStatus = "CANCELLED"
)

// IsTerminal reports whether the work order accepts no further transitions.
func (s WorkOrderStatus) IsTerminal() bool {
	return s == WorkOrderStatusCompleted || s == WorkOrderStatusCancelled
}

// GeoPoint is a GPS coordinate captured at check-in.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// FieldWorkOrder tracks a field agent's on-site execution of an
// assignment. One work order exists per active field-agent assignment.
type FieldWorkOrder struct {
	ID               string
	RequestID        string
	AssignmentID     string
	AssignedAgentID  string
	Status           WorkOrderStatus
	CheckInTime      *time.Time
	CheckInLocation  *GeoPoint
	CheckOutTime     *time.Time
	ActualDuration   *time.Duration
	CompletionNotes  string
	FollowUpRequired bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TimeSegmentKind enumerates the activity buckets a field agent logs.
type TimeSegmentKind string

const (
	TimeSegmentTravel        TimeSegmentKind = "TRAVEL"
	TimeSegmentSetup         TimeSegmentKind = "SETUP"
	TimeSegmentWork          TimeSegmentKind = "WORK"
	TimeSegmentDocumentation TimeSegmentKind = "DOCUMENTATION"
	TimeSegmentBreak         TimeSegmentKind = "BREAK"
)

// ValidTimeSegmentKind reports whether k is a known segment kind.
func ValidTimeSegmentKind(k TimeSegmentKind) bool {
	switch k {
	case TimeSegmentTravel, TimeSegmentSetup, TimeSegmentWork, TimeSegmentDocumentation, TimeSegmentBreak:
		return true
	}
	return false
}

// TimeEntry is one [StartTime, EndTime) activity segment on a work
// order. An agent has at most one entry with EndTime unset at a time.
type TimeEntry struct {
	ID          string
	WorkOrderID string
	AgentID     string
	Kind        TimeSegmentKind
	StartTime   time.Time
	EndTime     *time.Time
	Notes       string
}
