package dto

import (
	"time"

	"github.com/civicgrid/request-service/internal/domain"
)

// CreateRequestPayload is the intake payload.
type CreateRequestPayload struct {
	DepartmentID string                 `json:"department_id" validate:"required"`
	Category     string                 `json:"category" validate:"required,max=128"`
	Title        string                 `json:"title" validate:"required,min=3,max=256"`
	Description  string                 `json:"description" validate:"required"`
	Priority     domain.RequestPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Draft        bool                   `json:"draft"`
}

// TransitionPayload drives a named lifecycle command. ExpectedVersion
// is the version the caller last read.
type TransitionPayload struct {
	ExpectedVersion int64  `json:"expected_version" validate:"required,gte=1"`
	Comment         string `json:"comment" validate:"omitempty,max=2000"`
}

// PriorityChangePayload changes priority before work starts.
type PriorityChangePayload struct {
	Priority        domain.RequestPriority `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
	ExpectedVersion int64                  `json:"expected_version" validate:"required,gte=1"`
}

// AssignPayload routes a request to a staff member.
type AssignPayload struct {
	AssigneeID      string   `json:"assignee_id" validate:"required"`
	Reason          string   `json:"reason" validate:"omitempty,max=512"`
	ExpectedVersion int64    `json:"expected_version" validate:"required,gte=1"`
	WorkloadScore   *float64 `json:"workload_score" validate:"omitempty,gte=0"`
}

// CommentPayload appends a comment to the request thread.
type CommentPayload struct {
	Body        string                   `json:"body" validate:"required"`
	Visibility  domain.CommentVisibility `json:"visibility" validate:"omitempty,oneof=PUBLIC INTERNAL_NOTE"`
	Attachments []AttachmentPayload      `json:"attachments" validate:"omitempty,dive"`
}

// AttachmentPayload describes attachment input.
type AttachmentPayload struct {
	StorageKey string `json:"storage_key" validate:"required"`
	FileName   string `json:"file_name" validate:"required"`
	MimeType   string `json:"mime_type" validate:"required"`
	SizeBytes  int64  `json:"size_bytes" validate:"gte=0"`
}

// RequestSummary response.
type RequestSummary struct {
	ID           string                 `json:"id"`
	Code         string                 `json:"code"`
	DepartmentID string                 `json:"department_id"`
	Category     string                 `json:"category"`
	Title        string                 `json:"title"`
	Status       domain.RequestStatus   `json:"status"`
	Priority     domain.RequestPriority `json:"priority"`
	AssigneeID   *string                `json:"assignee_id"`
	Version      int64                  `json:"version"`
	SLADueAt     *time.Time             `json:"sla_due_at"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// RequestDetailResponse provides full request info.
type RequestDetailResponse struct {
	ID           string                 `json:"id"`
	Code         string                 `json:"code"`
	RequesterID  string                 `json:"requester_id"`
	DepartmentID string                 `json:"department_id"`
	Category     string                 `json:"category"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Status       domain.RequestStatus   `json:"status"`
	Priority     domain.RequestPriority `json:"priority"`
	AssigneeID   *string                `json:"assignee_id"`
	Version      int64                  `json:"version"`
	TriagedAt    *time.Time             `json:"triaged_at"`
	SLADueAt     *time.Time             `json:"sla_due_at"`
	ClosedAt     *time.Time             `json:"closed_at"`
	ReopenUntil  *time.Time             `json:"reopen_until"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// CommentResponse represents one thread entry.
type CommentResponse struct {
	ID          string                   `json:"id"`
	AuthorType  domain.AuthorType        `json:"author_type"`
	AuthorID    *string                  `json:"author_id"`
	Visibility  domain.CommentVisibility `json:"visibility"`
	Body        string                   `json:"body"`
	Attachments []AttachmentResponse     `json:"attachments"`
	CreatedAt   time.Time                `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID            string                   `json:"id"`
	ChangeType    domain.RequestChangeType `json:"change_type"`
	ChangedByType domain.AuthorType        `json:"changed_by_type"`
	ChangedByID   *string                  `json:"changed_by_id"`
	OldValue      map[string]any           `json:"old_value"`
	NewValue      map[string]any           `json:"new_value"`
	CreatedAt     time.Time                `json:"created_at"`
}

// AssignmentResponse is one ledger record.
type AssignmentResponse struct {
	ID            string     `json:"id"`
	RequestID     string     `json:"request_id"`
	AssignedFrom  *string    `json:"assigned_from"`
	AssignedTo    string     `json:"assigned_to"`
	AssignedBy    string     `json:"assigned_by"`
	Reason        string     `json:"reason"`
	WorkloadScore float64    `json:"workload_score"`
	IsActive      bool       `json:"is_active"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DepartmentResponse describes a routing target.
type DepartmentResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ContactEmail string `json:"contact_email"`
}
