package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/repository"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// WorkOrderService runs the field execution sub-state machine:
// check-in/check-out, activity time segments and completion, including
// the auto-resolve of the parent request when the last open work order
// completes.
type WorkOrderService struct {
	workOrders repository.WorkOrderRepository
	requests   *RequestService
	dispatcher events.Dispatcher
	now        func() time.Time
}

// WorkOrderDependencies bundles collaborators.
type WorkOrderDependencies struct {
	WorkOrderRepo  repository.WorkOrderRepository
	RequestService *RequestService
	Dispatcher     events.Dispatcher
	Now            func() time.Time
}

// NewWorkOrderService creates the service.
func NewWorkOrderService(deps WorkOrderDependencies) *WorkOrderService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &WorkOrderService{
		workOrders: deps.WorkOrderRepo,
		requests:   deps.RequestService,
		dispatcher: deps.Dispatcher,
		now:        now,
	}
}

// workOrderEdges is the forward-only transition table for field work.
var workOrderEdges = map[domain.WorkOrderStatus][]domain.WorkOrderStatus{
	domain.WorkOrderStatusAssigned:   {domain.WorkOrderStatusEnRoute, domain.WorkOrderStatusOnSite, domain.WorkOrderStatusInProgress, domain.WorkOrderStatusCancelled},
	domain.WorkOrderStatusEnRoute:    {domain.WorkOrderStatusOnSite, domain.WorkOrderStatusInProgress, domain.WorkOrderStatusCancelled},
	domain.WorkOrderStatusOnSite:     {domain.WorkOrderStatusInProgress, domain.WorkOrderStatusCompleted, domain.WorkOrderStatusCancelled},
	domain.WorkOrderStatusInProgress: {domain.WorkOrderStatusCompleted, domain.WorkOrderStatusCancelled},
}

func workOrderEdgeAllowed(from, to domain.WorkOrderStatus) bool {
	for _, candidate := range workOrderEdges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// MarkEnRoute moves a fresh work order to EN_ROUTE.
func (s *WorkOrderService) MarkEnRoute(ctx context.Context, agent domain.Actor, workOrderID string) (*domain.FieldWorkOrder, error) {
	order, err := s.getOwnedOrder(ctx, agent, workOrderID)
	if err != nil {
		return nil, err
	}
	if !workOrderEdgeAllowed(order.Status, domain.WorkOrderStatusEnRoute) {
		return nil, apperrors.NewInvalidTransition(string(order.Status), string(domain.WorkOrderStatusEnRoute))
	}
	order.Status = domain.WorkOrderStatusEnRoute
	if err := s.workOrders.Update(ctx, order); err != nil {
		return nil, apperrors.MapError(err)
	}
	return order, nil
}

// CheckIn records arrival on site. Valid only from ASSIGNED or
// EN_ROUTE; startImmediately skips ON_SITE straight to IN_PROGRESS.
func (s *WorkOrderService) CheckIn(ctx context.Context, agent domain.Actor, workOrderID string, location domain.GeoPoint, startImmediately bool) (*domain.FieldWorkOrder, error) {
	order, err := s.getOwnedOrder(ctx, agent, workOrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.WorkOrderStatusAssigned && order.Status != domain.WorkOrderStatusEnRoute {
		return nil, apperrors.NewInvalidTransition(string(order.Status), string(domain.WorkOrderStatusOnSite))
	}

	target := domain.WorkOrderStatusOnSite
	if startImmediately {
		target = domain.WorkOrderStatusInProgress
	}
	checkInTime := s.now()
	order.Status = target
	order.CheckInTime = &checkInTime
	order.CheckInLocation = &location
	if err := s.workOrders.Update(ctx, order); err != nil {
		return nil, apperrors.MapError(err)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventWorkOrderCheckedIn,
		RequestID: order.RequestID,
		Actor:     staffActor(agent.ID),
		Payload: events.WorkOrderCheckedInPayload{
			WorkOrderID: order.ID,
			AgentID:     order.AssignedAgentID,
			Status:      order.Status,
		},
	})
	return order, nil
}

// StartWork moves an on-site order to IN_PROGRESS.
func (s *WorkOrderService) StartWork(ctx context.Context, agent domain.Actor, workOrderID string) (*domain.FieldWorkOrder, error) {
	order, err := s.getOwnedOrder(ctx, agent, workOrderID)
	if err != nil {
		return nil, err
	}
	if !workOrderEdgeAllowed(order.Status, domain.WorkOrderStatusInProgress) || order.Status == domain.WorkOrderStatusAssigned || order.Status == domain.WorkOrderStatusEnRoute {
		return nil, apperrors.NewInvalidTransition(string(order.Status), string(domain.WorkOrderStatusInProgress))
	}
	order.Status = domain.WorkOrderStatusInProgress
	if err := s.workOrders.Update(ctx, order); err != nil {
		return nil, apperrors.MapError(err)
	}
	return order, nil
}

// CheckOut completes the work order, computes the actual duration and,
// when this was the last open work order, resolves the parent request.
func (s *WorkOrderService) CheckOut(ctx context.Context, agent domain.Actor, workOrderID, completionNotes string, followUpRequired bool) (*domain.FieldWorkOrder, error) {
	order, err := s.getOwnedOrder(ctx, agent, workOrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.WorkOrderStatusOnSite && order.Status != domain.WorkOrderStatusInProgress {
		return nil, apperrors.NewInvalidTransition(string(order.Status), string(domain.WorkOrderStatusCompleted))
	}
	if order.CheckInTime == nil {
		return nil, apperrors.NewConflict("work order has no check-in time", map[string]any{"work_order_id": order.ID})
	}

	checkOutTime := s.now()
	if checkOutTime.Before(*order.CheckInTime) {
		return nil, apperrors.NewValidationError("check-out before check-in", nil)
	}
	duration := checkOutTime.Sub(*order.CheckInTime)
	order.Status = domain.WorkOrderStatusCompleted
	order.CheckOutTime = &checkOutTime
	order.ActualDuration = &duration
	order.CompletionNotes = completionNotes
	order.FollowUpRequired = followUpRequired
	if err := s.workOrders.Update(ctx, order); err != nil {
		return nil, apperrors.MapError(err)
	}

	// Close any segment the agent left open; its activity ends with
	// the work order.
	if entry, err := s.workOrders.GetOpenTimeEntry(ctx, agent.ID); err == nil && entry.WorkOrderID == order.ID {
		_ = s.workOrders.CloseTimeEntry(ctx, entry.ID, checkOutTime)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventWorkOrderCompleted,
		RequestID: order.RequestID,
		Actor:     staffActor(agent.ID),
		Payload: events.WorkOrderCompletedPayload{
			WorkOrderID:      order.ID,
			AgentID:          order.AssignedAgentID,
			ActualDuration:   duration,
			FollowUpRequired: followUpRequired,
		},
	})

	if err := s.resolveParentIfDone(ctx, agent, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel aborts a non-terminal work order.
func (s *WorkOrderService) Cancel(ctx context.Context, actor domain.Actor, workOrderID, reason string) (*domain.FieldWorkOrder, error) {
	if actor.Role != domain.RoleSupervisor {
		return nil, apperrors.NewForbidden("supervisor capability required")
	}
	order, err := s.getOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, apperrors.NewAlreadyTerminal(string(order.Status))
	}
	order.Status = domain.WorkOrderStatusCancelled
	order.CompletionNotes = reason
	if err := s.workOrders.Update(ctx, order); err != nil {
		return nil, apperrors.MapError(err)
	}
	return order, nil
}

// StartSegment opens a time segment for the agent. The per-agent open
// segment check serializes starts; a second open segment is rejected
// with OPEN_SEGMENT_CONFLICT.
func (s *WorkOrderService) StartSegment(ctx context.Context, agent domain.Actor, workOrderID string, kind domain.TimeSegmentKind, notes string) (*domain.TimeEntry, error) {
	if !domain.ValidTimeSegmentKind(kind) {
		return nil, apperrors.NewValidationError("unknown segment kind", map[string]any{"kind": kind})
	}
	order, err := s.getOwnedOrder(ctx, agent, workOrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, apperrors.NewAlreadyTerminal(string(order.Status))
	}
	if _, err := s.workOrders.GetOpenTimeEntry(ctx, agent.ID); err == nil {
		return nil, apperrors.NewOpenSegmentConflict(agent.ID)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	entry := &domain.TimeEntry{
		WorkOrderID: order.ID,
		AgentID:     agent.ID,
		Kind:        kind,
		StartTime:   s.now(),
		Notes:       notes,
	}
	if err := s.workOrders.CreateTimeEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// StopSegment closes the agent's open segment.
func (s *WorkOrderService) StopSegment(ctx context.Context, agent domain.Actor) (*domain.TimeEntry, error) {
	entry, err := s.workOrders.GetOpenTimeEntry(ctx, agent.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("open time segment", map[string]any{"agent_id": agent.ID})
		}
		return nil, apperrors.MapError(err)
	}
	endTime := s.now()
	if err := s.workOrders.CloseTimeEntry(ctx, entry.ID, endTime); err != nil {
		return nil, apperrors.MapError(err)
	}
	entry.EndTime = &endTime
	return entry, nil
}

// Get returns a work order for its agent or any supervisor.
func (s *WorkOrderService) Get(ctx context.Context, actor domain.Actor, workOrderID string) (*domain.FieldWorkOrder, error) {
	order, err := s.getOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleSupervisor && order.AssignedAgentID != actor.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return order, nil
}

// ListForAgent returns the agent's work orders.
func (s *WorkOrderService) ListForAgent(ctx context.Context, agent domain.Actor, includeClosed bool) ([]domain.FieldWorkOrder, error) {
	orders, err := s.workOrders.ListByAgent(ctx, agent.ID, includeClosed)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return orders, nil
}

// TimeEntries returns all segments logged on a work order.
func (s *WorkOrderService) TimeEntries(ctx context.Context, actor domain.Actor, workOrderID string) ([]domain.TimeEntry, error) {
	if _, err := s.Get(ctx, actor, workOrderID); err != nil {
		return nil, err
	}
	entries, err := s.workOrders.ListTimeEntries(ctx, workOrderID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// resolveParentIfDone moves the parent request IN_PROGRESS -> RESOLVED
// when no open work orders remain. A concurrent transition wins the
// version race; one retry with a fresh read covers the common case.
func (s *WorkOrderService) resolveParentIfDone(ctx context.Context, agent domain.Actor, order *domain.FieldWorkOrder) error {
	open, err := s.workOrders.ListOpenByRequest(ctx, order.RequestID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if len(open) > 0 {
		return nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		request, err := s.requests.getRequest(ctx, order.RequestID)
		if err != nil {
			return err
		}
		if request.Status != domain.RequestStatusInProgress {
			return nil
		}
		_, err = s.requests.Transition(ctx, agent, request.ID, domain.RequestStatusResolved, request.Version, "field work completed")
		if err == nil {
			return nil
		}
		if !apperrors.IsCode(err, "CONCURRENCY_CONFLICT") {
			return err
		}
	}
	return nil
}

func (s *WorkOrderService) getOrder(ctx context.Context, workOrderID string) (*domain.FieldWorkOrder, error) {
	order, err := s.workOrders.GetByID(ctx, workOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("work order", map[string]any{"work_order_id": workOrderID})
		}
		return nil, apperrors.MapError(err)
	}
	return order, nil
}

func (s *WorkOrderService) getOwnedOrder(ctx context.Context, agent domain.Actor, workOrderID string) (*domain.FieldWorkOrder, error) {
	order, err := s.getOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if order.AssignedAgentID != agent.ID {
		return nil, apperrors.NewForbidden("work order belongs to another agent")
	}
	return order, nil
}
