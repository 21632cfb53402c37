package service

import (
	"context"
	"testing"
	"time"

	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/lifecycle"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

type workOrderServiceFixture struct {
	service    *WorkOrderService
	requests   *requestRepoStub
	workOrders *workOrderRepoStub
	dispatcher *dispatcherStub
	now        *time.Time
}

func newWorkOrderServiceFixture() *workOrderServiceFixture {
	now := time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)
	f := &workOrderServiceFixture{
		requests:   newRequestRepoStub(),
		workOrders: newWorkOrderRepoStub(),
		dispatcher: &dispatcherStub{},
		now:        &now,
	}
	machine := lifecycle.NewMachine(lifecycle.Config{Now: func() time.Time { return *f.now }})
	requestService := NewRequestService(RequestDependencies{
		RequestRepo: f.requests,
		HistoryRepo: &historyRepoStub{},
		Machine:     machine,
		Dispatcher:  f.dispatcher,
	})
	f.service = NewWorkOrderService(WorkOrderDependencies{
		WorkOrderRepo:  f.workOrders,
		RequestService: requestService,
		Dispatcher:     f.dispatcher,
		Now:            func() time.Time { return *f.now },
	})
	return f
}

// seedOrder creates a parent request in the given status assigned to
// stf-agent, plus a fresh work order for it.
func (f *workOrderServiceFixture) seedOrder(requestStatus domain.RequestStatus) *domain.FieldWorkOrder {
	agentID := fieldAgent.ID
	request := f.requests.put(&domain.ServiceRequest{
		Code:         "SR-SEED",
		RequesterID:  "cit-1",
		DepartmentID: "dept-1",
		Title:        "water main leak",
		Status:       requestStatus,
		Priority:     domain.RequestPriorityUrgent,
		AssigneeID:   &agentID,
		Version:      1,
		CreatedAt:    *f.now,
	})
	order := &domain.FieldWorkOrder{
		RequestID:       request.ID,
		AssignmentID:    "asg-1",
		AssignedAgentID: agentID,
		Status:          domain.WorkOrderStatusAssigned,
	}
	_ = f.workOrders.Create(context.Background(), order)
	return order
}

func TestCheckInThenCheckOutComputesDurationAndResolvesParent(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)

	checkedIn, err := f.service.CheckIn(context.Background(), fieldAgent, order.ID, domain.GeoPoint{Latitude: 45.52, Longitude: -122.68}, true)
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if checkedIn.Status != domain.WorkOrderStatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS with startImmediately", checkedIn.Status)
	}
	if checkedIn.CheckInTime == nil || !checkedIn.CheckInTime.Equal(*f.now) {
		t.Error("check-in time not recorded")
	}
	if checkedIn.CheckInLocation == nil || checkedIn.CheckInLocation.Latitude != 45.52 {
		t.Error("check-in location not recorded")
	}

	*f.now = f.now.Add(45 * time.Minute)
	completed, err := f.service.CheckOut(context.Background(), fieldAgent, order.ID, "valve replaced", false)
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}
	if completed.Status != domain.WorkOrderStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", completed.Status)
	}
	if completed.ActualDuration == nil || *completed.ActualDuration != 45*time.Minute {
		t.Fatalf("duration = %v, want 45m", completed.ActualDuration)
	}

	// Last open work order completed: the parent auto-resolves.
	request, _ := f.requests.GetByID(context.Background(), order.RequestID)
	if request.Status != domain.RequestStatusResolved {
		t.Errorf("parent status = %s, want RESOLVED", request.Status)
	}
	if len(f.dispatcher.eventsOfType(events.EventWorkOrderCompleted)) != 1 {
		t.Error("expected a WorkOrderCompleted event")
	}
}

func TestCheckOutLeavesParentWhenSiblingsOpen(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)

	// A second open order on the same request.
	sibling := &domain.FieldWorkOrder{
		RequestID:       order.RequestID,
		AssignmentID:    "asg-2",
		AssignedAgentID: "stf-agent2",
		Status:          domain.WorkOrderStatusAssigned,
	}
	_ = f.workOrders.Create(context.Background(), sibling)

	if _, err := f.service.CheckIn(context.Background(), fieldAgent, order.ID, domain.GeoPoint{}, true); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if _, err := f.service.CheckOut(context.Background(), fieldAgent, order.ID, "", false); err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	request, _ := f.requests.GetByID(context.Background(), order.RequestID)
	if request.Status != domain.RequestStatusInProgress {
		t.Errorf("parent status = %s, want IN_PROGRESS while sibling open", request.Status)
	}
}

func TestWorkOrderTransitionGuards(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)

	// Cannot check out before checking in.
	_, err := f.service.CheckOut(context.Background(), fieldAgent, order.ID, "", false)
	if !apperrors.IsCode(err, "INVALID_TRANSITION") {
		t.Errorf("check-out from ASSIGNED: got %v, want INVALID_TRANSITION", err)
	}

	// Cannot start work before arriving on site.
	_, err = f.service.StartWork(context.Background(), fieldAgent, order.ID)
	if !apperrors.IsCode(err, "INVALID_TRANSITION") {
		t.Errorf("start from ASSIGNED: got %v, want INVALID_TRANSITION", err)
	}

	if _, err := f.service.MarkEnRoute(context.Background(), fieldAgent, order.ID); err != nil {
		t.Fatalf("en-route failed: %v", err)
	}
	// EN_ROUTE is not repeatable.
	_, err = f.service.MarkEnRoute(context.Background(), fieldAgent, order.ID)
	if !apperrors.IsCode(err, "INVALID_TRANSITION") {
		t.Errorf("double en-route: got %v, want INVALID_TRANSITION", err)
	}

	if _, err := f.service.CheckIn(context.Background(), fieldAgent, order.ID, domain.GeoPoint{}, false); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if _, err := f.service.StartWork(context.Background(), fieldAgent, order.ID); err != nil {
		t.Fatalf("start work failed: %v", err)
	}
}

func TestWorkOrderOwnership(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)
	stranger := domain.Actor{ID: "stf-agent2", Role: domain.RoleFieldAgent}

	_, err := f.service.CheckIn(context.Background(), stranger, order.ID, domain.GeoPoint{}, false)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Errorf("stranger check-in: got %v, want FORBIDDEN", err)
	}
	_, err = f.service.Get(context.Background(), stranger, order.ID)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Errorf("stranger get: got %v, want FORBIDDEN", err)
	}
	// Supervisors can always read.
	if _, err := f.service.Get(context.Background(), supervisor, order.ID); err != nil {
		t.Errorf("supervisor get failed: %v", err)
	}
}

func TestCancelRequiresSupervisor(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)

	_, err := f.service.Cancel(context.Background(), fieldAgent, order.ID, "nope")
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Errorf("agent cancel: got %v, want FORBIDDEN", err)
	}

	cancelled, err := f.service.Cancel(context.Background(), supervisor, order.ID, "duplicate dispatch")
	if err != nil {
		t.Fatalf("supervisor cancel failed: %v", err)
	}
	if cancelled.Status != domain.WorkOrderStatusCancelled || cancelled.CompletionNotes != "duplicate dispatch" {
		t.Errorf("cancelled = %+v", cancelled)
	}

	_, err = f.service.Cancel(context.Background(), supervisor, order.ID, "again")
	if !apperrors.IsCode(err, "ALREADY_TERMINAL") {
		t.Errorf("double cancel: got %v, want ALREADY_TERMINAL", err)
	}
}

func TestTimeSegments(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)
	if _, err := f.service.CheckIn(context.Background(), fieldAgent, order.ID, domain.GeoPoint{}, true); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	entry, err := f.service.StartSegment(context.Background(), fieldAgent, order.ID, domain.TimeSegmentWork, "digging")
	if err != nil {
		t.Fatalf("start segment failed: %v", err)
	}
	if entry.Kind != domain.TimeSegmentWork || entry.EndTime != nil {
		t.Errorf("entry = %+v", entry)
	}

	// One open segment per agent.
	_, err = f.service.StartSegment(context.Background(), fieldAgent, order.ID, domain.TimeSegmentBreak, "")
	if !apperrors.IsCode(err, "OPEN_SEGMENT_CONFLICT") {
		t.Fatalf("second open segment: got %v, want OPEN_SEGMENT_CONFLICT", err)
	}

	*f.now = f.now.Add(20 * time.Minute)
	stopped, err := f.service.StopSegment(context.Background(), fieldAgent)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if stopped.EndTime == nil || stopped.EndTime.Sub(stopped.StartTime) != 20*time.Minute {
		t.Errorf("stopped = %+v", stopped)
	}

	// After stopping, a new segment may start.
	if _, err := f.service.StartSegment(context.Background(), fieldAgent, order.ID, domain.TimeSegmentDocumentation, ""); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	_, err = f.service.StartSegment(context.Background(), fieldAgent, order.ID, "LUNCH", "")
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Errorf("unknown kind: got %v, want VALIDATION_FAILED", err)
	}
}

func TestStopSegmentWithoutOpenEntry(t *testing.T) {
	f := newWorkOrderServiceFixture()

	_, err := f.service.StopSegment(context.Background(), fieldAgent)
	if !apperrors.IsCode(err, "NOT_FOUND") {
		t.Errorf("got %v, want NOT_FOUND", err)
	}
}

func TestCheckOutClosesOpenSegment(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)

	if _, err := f.service.CheckIn(context.Background(), fieldAgent, order.ID, domain.GeoPoint{}, true); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if _, err := f.service.StartSegment(context.Background(), fieldAgent, order.ID, domain.TimeSegmentWork, ""); err != nil {
		t.Fatalf("start segment failed: %v", err)
	}

	*f.now = f.now.Add(30 * time.Minute)
	if _, err := f.service.CheckOut(context.Background(), fieldAgent, order.ID, "", false); err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	entries, err := f.service.TimeEntries(context.Background(), supervisor, order.ID)
	if err != nil {
		t.Fatalf("list entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].EndTime == nil || !entries[0].EndTime.Equal(*f.now) {
		t.Errorf("segment left open after check-out: %+v", entries[0])
	}
}

func TestCheckOutFollowUpKeepsFlag(t *testing.T) {
	f := newWorkOrderServiceFixture()
	order := f.seedOrder(domain.RequestStatusInProgress)

	if _, err := f.service.CheckIn(context.Background(), fieldAgent, order.ID, domain.GeoPoint{}, true); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	completed, err := f.service.CheckOut(context.Background(), fieldAgent, order.ID, "needs second visit", true)
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}
	if !completed.FollowUpRequired || completed.CompletionNotes != "needs second visit" {
		t.Errorf("completed = %+v", completed)
	}
}
