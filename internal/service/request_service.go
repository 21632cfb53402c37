package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/lifecycle"
	"github.com/civicgrid/request-service/internal/repository"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// RequestService coordinates the service-request lifecycle: intake,
// triage, approval, resolution, cancellation and reopen, plus the
// comment thread and audit history around them.
type RequestService struct {
	requests    repository.RequestRepository
	departments repository.DepartmentRepository
	comments    repository.CommentRepository
	attachments repository.AttachmentRepository
	history     repository.HistoryRepository
	machine     *lifecycle.Machine
	dispatcher  events.Dispatcher
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo    repository.RequestRepository
	DepartmentRepo repository.DepartmentRepository
	CommentRepo    repository.CommentRepository
	AttachmentRepo repository.AttachmentRepository
	HistoryRepo    repository.HistoryRepository
	Machine        *lifecycle.Machine
	Dispatcher     events.Dispatcher
}

// SubmitInput describes request intake payload.
type SubmitInput struct {
	DepartmentID string
	Category     string
	Title        string
	Description  string
	Priority     domain.RequestPriority
	Draft        bool
}

// CommentAttachmentInput defines attachment metadata from the blob store.
type CommentAttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	return &RequestService{
		requests:    deps.RequestRepo,
		departments: deps.DepartmentRepo,
		comments:    deps.CommentRepo,
		attachments: deps.AttachmentRepo,
		history:     deps.HistoryRepo,
		machine:     deps.Machine,
		dispatcher:  deps.Dispatcher,
	}
}

// Submit creates a request for a citizen, in DRAFT or directly SUBMITTED.
func (s *RequestService) Submit(ctx context.Context, citizenID string, input SubmitInput) (*domain.ServiceRequest, error) {
	dept, err := s.departments.GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": input.DepartmentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !dept.IsActive {
		return nil, apperrors.NewConflict("department inactive", map[string]any{"department_id": dept.ID})
	}

	status := domain.RequestStatusSubmitted
	if input.Draft {
		status = domain.RequestStatusDraft
	}
	request := &domain.ServiceRequest{
		Code:         generateRequestCode(),
		RequesterID:  citizenID,
		DepartmentID: input.DepartmentID,
		Category:     strings.TrimSpace(input.Category),
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Status:       status,
		Priority:     input.Priority,
	}
	if request.Priority == "" {
		request.Priority = domain.RequestPriorityMedium
	}

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestSubmitted,
		RequestID: request.ID,
		Actor:     citizenActor(citizenID),
		Payload: events.RequestSubmittedPayload{
			DepartmentID: request.DepartmentID,
			Category:     request.Category,
			Priority:     request.Priority,
			Title:        request.Title,
		},
	})
	return request, nil
}

// Transition applies a lifecycle edge on behalf of an actor. All the
// named commands (triage, approve, resolve, reject, cancel, reopen,
// close) funnel through here so the table, role and version checks
// live in one place.
func (s *RequestService) Transition(ctx context.Context, actor domain.Actor, requestID string, target domain.RequestStatus, expectedVersion int64, comment string) (*domain.ServiceRequest, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Citizens only act on their own requests.
	if actor.Role == domain.RoleCitizen && request.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	// Only the assigned field agent may resolve or start their own work.
	if actor.Role == domain.RoleFieldAgent {
		if request.AssigneeID == nil || *request.AssigneeID != actor.ID {
			return nil, apperrors.NewForbidden("request not assigned to this agent")
		}
	}

	updated, err := s.machine.Transition(request, target, actor, expectedVersion)
	if err != nil {
		return nil, err
	}

	// A terminal transition completes the active ledger record in the
	// same transaction. The request keeps its last assignee as a
	// projection of history.
	deactivate := target.IsTerminal()
	if err := s.requests.UpdateVersioned(ctx, updated, expectedVersion, deactivate); err != nil {
		return nil, err
	}

	s.recordStatusChange(ctx, actor, updated.ID, request.Status, updated.Status, comment)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestStatusChanged,
		RequestID: updated.ID,
		Actor:     eventActor(actor),
		Payload: events.RequestStatusChangedPayload{
			OldStatus: request.Status,
			NewStatus: updated.Status,
			Comment:   comment,
		},
	})
	return updated, nil
}

// UpdatePriority changes the request priority before work starts. An
// SLA due date already computed is deliberately left untouched.
func (s *RequestService) UpdatePriority(ctx context.Context, actor domain.Actor, requestID string, priority domain.RequestPriority, expectedVersion int64) (*domain.ServiceRequest, error) {
	if actor.Role != domain.RoleClerk && actor.Role != domain.RoleSupervisor {
		return nil, apperrors.NewForbidden("only clerks and supervisors may change priority")
	}
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.IsTerminal() {
		return nil, apperrors.NewAlreadyTerminal(string(request.Status))
	}
	if request.Version != expectedVersion {
		return nil, apperrors.NewConcurrencyConflict(expectedVersion, request.Version)
	}

	oldPriority := request.Priority
	updated := *request
	updated.Priority = priority
	updated.Version = request.Version + 1
	if err := s.requests.UpdateVersioned(ctx, &updated, expectedVersion, false); err != nil {
		return nil, err
	}
	s.recordHistory(ctx, actor, updated.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": priority})
	return &updated, nil
}

// Get fetches a request enforcing citizen ownership.
func (s *RequestService) Get(ctx context.Context, actor domain.Actor, requestID string) (*domain.ServiceRequest, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCitizen && request.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return request, nil
}

// IsBreached is the read-side SLA breach query for one request.
func (s *RequestService) IsBreached(ctx context.Context, actor domain.Actor, requestID string) (bool, error) {
	request, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return false, err
	}
	return s.machine.IsBreached(request), nil
}

// ListForCitizen returns the citizen's own requests.
func (s *RequestService) ListForCitizen(ctx context.Context, citizenID string, filter repository.RequestFilter) ([]domain.ServiceRequest, error) {
	filter.RequesterID = &citizenID
	return s.requests.ListWithFilter(ctx, filter)
}

// ListForStaff returns requests scoped to the staff member's department
// unless the caller is a supervisor.
func (s *RequestService) ListForStaff(ctx context.Context, staff domain.Actor, filter repository.RequestFilter) ([]domain.ServiceRequest, error) {
	if !staff.IsStaff() {
		return nil, apperrors.NewForbidden("staff required")
	}
	if staff.Role != domain.RoleSupervisor && staff.DepartmentID != nil {
		filter.DepartmentID = staff.DepartmentID
	}
	if staff.Role == domain.RoleFieldAgent {
		filter.AssigneeID = &staff.ID
	}
	return s.requests.ListWithFilter(ctx, filter)
}

// ListBreached returns non-terminal requests past their SLA due date.
func (s *RequestService) ListBreached(ctx context.Context, staff domain.Actor, filter repository.RequestFilter) ([]domain.ServiceRequest, error) {
	now := time.Now()
	filter.OverdueAt = &now
	return s.ListForStaff(ctx, staff, filter)
}

// AddComment appends a comment to the request thread.
func (s *RequestService) AddComment(ctx context.Context, actor domain.Actor, requestID string, visibility domain.CommentVisibility, body string, attachments []CommentAttachmentInput) (*domain.RequestComment, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCitizen {
		if request.RequesterID != actor.ID {
			return nil, apperrors.NewForbidden("access denied")
		}
		if visibility != domain.CommentPublic {
			return nil, apperrors.NewForbidden("citizens can only post public comments")
		}
	}

	authorID := actor.ID
	comment := &domain.RequestComment{
		RequestID:  request.ID,
		AuthorType: authorType(actor),
		AuthorID:   &authorID,
		Visibility: visibility,
		Body:       strings.TrimSpace(body),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	for _, att := range attachments {
		record := &domain.AttachmentReference{
			CommentID:  comment.ID,
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		}
		if err := s.attachments.Create(ctx, record); err != nil {
			return nil, apperrors.MapError(err)
		}
		comment.Attachments = append(comment.Attachments, *record)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCommentAdded,
		RequestID: request.ID,
		Actor:     eventActor(actor),
		Payload: events.RequestCommentAddedPayload{
			CommentID:   comment.ID,
			Visibility:  comment.Visibility,
			AuthorType:  comment.AuthorType,
			AuthorID:    comment.AuthorID,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return comment, nil
}

// ListComments returns the thread, hiding internal notes from citizens.
func (s *RequestService) ListComments(ctx context.Context, actor domain.Actor, requestID string) ([]domain.RequestComment, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCitizen && request.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	comments, err := s.comments.ListByRequest(ctx, request.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for i := range comments {
		attachments, err := s.attachments.ListByComment(ctx, comments[i].ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		comments[i].Attachments = attachments
	}
	if actor.Role != domain.RoleCitizen {
		return comments, nil
	}
	visible := make([]domain.RequestComment, 0, len(comments))
	for _, comment := range comments {
		if comment.Visibility == domain.CommentInternalNote {
			continue
		}
		visible = append(visible, comment)
	}
	return visible, nil
}

// ListHistory returns audit entries, citizens see status and assignee
// changes only.
func (s *RequestService) ListHistory(ctx context.Context, actor domain.Actor, requestID string, limit, offset int) ([]domain.RequestHistory, error) {
	request, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCitizen && request.RequesterID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	entries, err := s.history.ListByRequest(ctx, request.ID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleCitizen {
		return entries, nil
	}
	visible := make([]domain.RequestHistory, 0, len(entries))
	for _, entry := range entries {
		if entry.ChangeType == domain.ChangeTypeStatus || entry.ChangeType == domain.ChangeTypeAssignee {
			visible = append(visible, entry)
		}
	}
	return visible, nil
}

func (s *RequestService) getRequest(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("service request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.MapError(err)
	}
	return request, nil
}

func (s *RequestService) recordStatusChange(ctx context.Context, actor domain.Actor, requestID string, oldStatus, newStatus domain.RequestStatus, comment string) {
	s.recordHistory(ctx, actor, requestID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus, "comment": comment})
}

func (s *RequestService) recordHistory(ctx context.Context, actor domain.Actor, requestID string, changeType domain.RequestChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	actorID := actor.ID
	_ = s.history.Create(ctx, &domain.RequestHistory{
		RequestID:     requestID,
		ChangedByType: authorType(actor),
		ChangedByID:   &actorID,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
	})
}

func (s *RequestService) publishEvent(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, event)
}

func generateRequestCode() string {
	return "SR-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}

func authorType(actor domain.Actor) domain.AuthorType {
	if actor.Role == domain.RoleCitizen {
		return domain.AuthorTypeCitizen
	}
	return domain.AuthorTypeStaff
}

func citizenActor(citizenID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeCitizen, CitizenID: &citizenID}
}

func staffActor(staffID string) events.Actor {
	return events.Actor{Type: domain.SubjectTypeStaff, StaffID: &staffID}
}

func eventActor(actor domain.Actor) events.Actor {
	if actor.Role == domain.RoleCitizen {
		return citizenActor(actor.ID)
	}
	return staffActor(actor.ID)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}
