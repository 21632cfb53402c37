package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/repository"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// WorkloadScorer is the capacity-planner collaborator. The ledger only
// persists the score it returns; the engine never interprets it.
type WorkloadScorer interface {
	Score(ctx context.Context, assigneeID string) (float64, error)
}

// ActiveCountScorer is the default scorer: the assignee's current
// count of active assignments.
type ActiveCountScorer struct {
	Assignments repository.AssignmentRepository
}

// Score returns the number of active assignments for the candidate.
func (s *ActiveCountScorer) Score(ctx context.Context, assigneeID string) (float64, error) {
	count, err := s.Assignments.CountActiveByAssignee(ctx, assigneeID)
	if err != nil {
		return 0, err
	}
	return float64(count), nil
}

// AssignmentService routes requests to staff through the append-only
// assignment ledger, keeping the request's assignee projection in
// lockstep with the ledger.
type AssignmentService struct {
	requests    repository.RequestRepository
	assignments repository.AssignmentRepository
	staff       repository.StaffRepository
	workOrders  repository.WorkOrderRepository
	history     repository.HistoryRepository
	scorer      WorkloadScorer
	dispatcher  events.Dispatcher
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	RequestRepo    repository.RequestRepository
	AssignmentRepo repository.AssignmentRepository
	StaffRepo      repository.StaffRepository
	WorkOrderRepo  repository.WorkOrderRepository
	HistoryRepo    repository.HistoryRepository
	Scorer         WorkloadScorer
	Dispatcher     events.Dispatcher
}

// AssignInput describes an assignment command.
type AssignInput struct {
	RequestID       string
	AssigneeID      string
	Reason          string
	ExpectedVersion int64
	// WorkloadScore overrides the scorer when the caller already
	// obtained one from the capacity planner.
	WorkloadScore *float64
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		requests:    deps.RequestRepo,
		assignments: deps.AssignmentRepo,
		staff:       deps.StaffRepo,
		workOrders:  deps.WorkOrderRepo,
		history:     deps.HistoryRepo,
		scorer:      deps.Scorer,
		dispatcher:  deps.Dispatcher,
	}
}

// Assign routes a request to a staff member. Reassignment is the same
// operation: the prior active ledger record is completed atomically
// with the new insert. Requires the SUPERVISOR capability.
func (s *AssignmentService) Assign(ctx context.Context, actor domain.Actor, input AssignInput) (*domain.AssignmentRecord, error) {
	if actor.Role != domain.RoleSupervisor {
		return nil, apperrors.NewForbidden("supervisor capability required for assignment")
	}

	assignee, err := s.staff.GetByID(ctx, input.AssigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": input.AssigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.Active {
		return nil, apperrors.NewConflict("assignee inactive", map[string]any{"staff_id": assignee.ID})
	}

	request, err := s.requests.GetByID(ctx, input.RequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("service request", map[string]any{"request_id": input.RequestID})
		}
		return nil, apperrors.MapError(err)
	}
	if request.Status.IsTerminal() {
		return nil, apperrors.NewAlreadyTerminal(string(request.Status))
	}

	score := 0.0
	switch {
	case input.WorkloadScore != nil:
		score = *input.WorkloadScore
	case s.scorer != nil:
		score, err = s.scorer.Score(ctx, assignee.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	record := &domain.AssignmentRecord{
		RequestID:     request.ID,
		AssignedTo:    assignee.ID,
		AssignedBy:    actor.ID,
		Reason:        input.Reason,
		WorkloadScore: score,
	}
	if err := s.assignments.Assign(ctx, record, input.ExpectedVersion); err != nil {
		return nil, err
	}

	if assignee.Role == domain.RoleFieldAgent {
		order := &domain.FieldWorkOrder{
			RequestID:       request.ID,
			AssignmentID:    record.ID,
			AssignedAgentID: assignee.ID,
			Status:          domain.WorkOrderStatusAssigned,
		}
		if err := s.workOrders.Create(ctx, order); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	s.recordAssigneeChange(ctx, actor, request.ID, record.AssignedFrom, record.AssignedTo)
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventRequestAssigned,
		RequestID: request.ID,
		Actor:     staffActor(actor.ID),
		Payload: events.RequestAssignedPayload{
			AssignmentID:  record.ID,
			AssignedFrom:  record.AssignedFrom,
			AssignedTo:    record.AssignedTo,
			Reason:        record.Reason,
			WorkloadScore: record.WorkloadScore,
		},
	})
	return record, nil
}

// ActiveAssignment returns the current active ledger record, or nil
// when the request is unassigned.
func (s *AssignmentService) ActiveAssignment(ctx context.Context, requestID string) (*domain.AssignmentRecord, error) {
	record, err := s.assignments.GetActiveByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return record, nil
}

// Ledger returns the full assignment history for audit views.
func (s *AssignmentService) Ledger(ctx context.Context, requestID string) ([]domain.AssignmentRecord, error) {
	records, err := s.assignments.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

func (s *AssignmentService) recordAssigneeChange(ctx context.Context, actor domain.Actor, requestID string, oldAssignee *string, newAssignee string) {
	if s.history == nil {
		return
	}
	actorID := actor.ID
	_ = s.history.Create(ctx, &domain.RequestHistory{
		RequestID:     requestID,
		ChangedByType: domain.AuthorTypeStaff,
		ChangedByID:   &actorID,
		ChangeType:    domain.ChangeTypeAssignee,
		OldValue:      map[string]any{"assignee_id": oldAssignee},
		NewValue:      map[string]any{"assignee_id": newAssignee},
	})
}
