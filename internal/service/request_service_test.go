package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/lifecycle"
	"github.com/civicgrid/request-service/internal/repository"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

type requestServiceFixture struct {
	service     *RequestService
	requests    *requestRepoStub
	departments *departmentRepoStub
	comments    *commentRepoStub
	attachments *attachmentRepoStub
	history     *historyRepoStub
	dispatcher  *dispatcherStub
	now         *time.Time
}

func newRequestServiceFixture() *requestServiceFixture {
	now := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	f := &requestServiceFixture{
		requests: newRequestRepoStub(),
		departments: &departmentRepoStub{items: map[string]*domain.Department{
			"dept-1": {ID: "dept-1", Name: "Roads", IsActive: true},
			"dept-2": {ID: "dept-2", Name: "Parks", IsActive: false},
		}},
		comments:    &commentRepoStub{},
		attachments: &attachmentRepoStub{},
		history:     &historyRepoStub{},
		dispatcher:  &dispatcherStub{},
		now:         &now,
	}
	machine := lifecycle.NewMachine(lifecycle.Config{Now: func() time.Time { return *f.now }})
	f.service = NewRequestService(RequestDependencies{
		RequestRepo:    f.requests,
		DepartmentRepo: f.departments,
		CommentRepo:    f.comments,
		AttachmentRepo: f.attachments,
		HistoryRepo:    f.history,
		Machine:        machine,
		Dispatcher:     f.dispatcher,
	})
	return f
}

func (f *requestServiceFixture) seed(status domain.RequestStatus, requesterID string) *domain.ServiceRequest {
	request := &domain.ServiceRequest{
		Code:         "SR-SEED",
		RequesterID:  requesterID,
		DepartmentID: "dept-1",
		Title:        "pothole on main st",
		Status:       status,
		Priority:     domain.RequestPriorityMedium,
		Version:      1,
		CreatedAt:    *f.now,
	}
	return f.requests.put(request)
}

var (
	citizen    = domain.Actor{ID: "cit-1", Role: domain.RoleCitizen}
	otherCit   = domain.Actor{ID: "cit-2", Role: domain.RoleCitizen}
	clerk      = domain.Actor{ID: "stf-clerk", Role: domain.RoleClerk}
	supervisor = domain.Actor{ID: "stf-sup", Role: domain.RoleSupervisor}
	fieldAgent = domain.Actor{ID: "stf-agent", Role: domain.RoleFieldAgent}
)

func TestSubmitDefaults(t *testing.T) {
	f := newRequestServiceFixture()

	request, err := f.service.Submit(context.Background(), citizen.ID, SubmitInput{
		DepartmentID: "dept-1",
		Category:     "roads",
		Title:        "  pothole  ",
		Description:  "deep pothole near the crosswalk",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if request.Status != domain.RequestStatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", request.Status)
	}
	if request.Priority != domain.RequestPriorityMedium {
		t.Errorf("priority = %s, want MEDIUM default", request.Priority)
	}
	if !strings.HasPrefix(request.Code, "SR-") {
		t.Errorf("code = %q, want SR- prefix", request.Code)
	}
	if request.Title != "pothole" {
		t.Errorf("title = %q, want trimmed", request.Title)
	}
	if got := f.dispatcher.eventsOfType(events.EventRequestSubmitted); len(got) != 1 {
		t.Errorf("submitted events = %d, want 1", len(got))
	}
}

func TestSubmitDraft(t *testing.T) {
	f := newRequestServiceFixture()

	request, err := f.service.Submit(context.Background(), citizen.ID, SubmitInput{
		DepartmentID: "dept-1",
		Title:        "broken streetlight",
		Draft:        true,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if request.Status != domain.RequestStatusDraft {
		t.Errorf("status = %s, want DRAFT", request.Status)
	}
}

func TestSubmitDepartmentChecks(t *testing.T) {
	f := newRequestServiceFixture()

	_, err := f.service.Submit(context.Background(), citizen.ID, SubmitInput{DepartmentID: "dept-2", Title: "x"})
	if !apperrors.IsCode(err, "CONFLICT") {
		t.Errorf("inactive department: got %v, want CONFLICT", err)
	}

	_, err = f.service.Submit(context.Background(), citizen.ID, SubmitInput{DepartmentID: "missing", Title: "x"})
	if !apperrors.IsCode(err, "NOT_FOUND") {
		t.Errorf("unknown department: got %v, want NOT_FOUND", err)
	}
}

func TestTransitionPersistsAndRecordsHistory(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusSubmitted, citizen.ID)

	updated, err := f.service.Transition(context.Background(), clerk, seeded.ID, domain.RequestStatusTriaged, 1, "routed to roads crew")
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}

	stored, err := f.requests.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.RequestStatusTriaged || stored.Version != 2 {
		t.Errorf("stored = %s v%d, want TRIAGED v2", stored.Status, stored.Version)
	}

	if len(f.history.items) != 1 || f.history.items[0].ChangeType != domain.ChangeTypeStatus {
		t.Fatalf("expected one status history entry, got %+v", f.history.items)
	}
	statusEvents := f.dispatcher.eventsOfType(events.EventRequestStatusChanged)
	if len(statusEvents) != 1 {
		t.Fatalf("status events = %d, want 1", len(statusEvents))
	}
	payload, ok := statusEvents[0].Payload.(events.RequestStatusChangedPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", statusEvents[0].Payload)
	}
	if payload.OldStatus != domain.RequestStatusSubmitted || payload.NewStatus != domain.RequestStatusTriaged {
		t.Errorf("payload = %+v", payload)
	}
}

func TestTransitionStaleVersion(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusSubmitted, citizen.ID)

	if _, err := f.service.Transition(context.Background(), clerk, seeded.ID, domain.RequestStatusTriaged, 1, ""); err != nil {
		t.Fatalf("first transition failed: %v", err)
	}

	// Replay with the stale version.
	_, err := f.service.Transition(context.Background(), supervisor, seeded.ID, domain.RequestStatusInReview, 1, "")
	if !apperrors.IsCode(err, "CONCURRENCY_CONFLICT") {
		t.Fatalf("got %v, want CONCURRENCY_CONFLICT", err)
	}
	// Nothing was persisted for the losing command.
	stored, _ := f.requests.GetByID(context.Background(), seeded.ID)
	if stored.Status != domain.RequestStatusTriaged {
		t.Errorf("stored status = %s, want TRIAGED", stored.Status)
	}
}

func TestTransitionCitizenOwnership(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusDraft, citizen.ID)

	_, err := f.service.Transition(context.Background(), otherCit, seeded.ID, domain.RequestStatusSubmitted, 1, "")
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("got %v, want FORBIDDEN", err)
	}
	if _, err := f.service.Transition(context.Background(), citizen, seeded.ID, domain.RequestStatusSubmitted, 1, ""); err != nil {
		t.Fatalf("owner submit failed: %v", err)
	}
}

func TestTransitionFieldAgentMustBeAssignee(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusApproved, citizen.ID)

	_, err := f.service.Transition(context.Background(), fieldAgent, seeded.ID, domain.RequestStatusInProgress, 1, "")
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("unassigned agent: got %v, want FORBIDDEN", err)
	}

	agentID := fieldAgent.ID
	stored := f.requests.items[seeded.ID]
	stored.AssigneeID = &agentID
	if _, err := f.service.Transition(context.Background(), fieldAgent, seeded.ID, domain.RequestStatusInProgress, 1, ""); err != nil {
		t.Fatalf("assigned agent start failed: %v", err)
	}
}

func TestTerminalTransitionKeepsAssigneeProjection(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusInProgress, citizen.ID)
	agentID := fieldAgent.ID
	f.requests.items[seeded.ID].AssigneeID = &agentID

	updated, err := f.service.Transition(context.Background(), supervisor, seeded.ID, domain.RequestStatusResolved, 1, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if updated.ClosedAt == nil {
		t.Error("ClosedAt not set on terminal transition")
	}
	if updated.AssigneeID == nil || *updated.AssigneeID != agentID {
		t.Error("assignee projection must survive terminal transitions")
	}
}

func TestUpdatePriority(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusTriaged, citizen.ID)

	updated, err := f.service.UpdatePriority(context.Background(), clerk, seeded.ID, domain.RequestPriorityUrgent, 1)
	if err != nil {
		t.Fatalf("update priority failed: %v", err)
	}
	if updated.Priority != domain.RequestPriorityUrgent || updated.Version != 2 {
		t.Errorf("got %s v%d, want URGENT v2", updated.Priority, updated.Version)
	}
	if len(f.history.items) != 1 || f.history.items[0].ChangeType != domain.ChangeTypePriority {
		t.Error("expected a priority history entry")
	}

	_, err = f.service.UpdatePriority(context.Background(), fieldAgent, seeded.ID, domain.RequestPriorityLow, 2)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Errorf("field agent: got %v, want FORBIDDEN", err)
	}

	_, err = f.service.UpdatePriority(context.Background(), clerk, seeded.ID, domain.RequestPriorityLow, 1)
	if !apperrors.IsCode(err, "CONCURRENCY_CONFLICT") {
		t.Errorf("stale version: got %v, want CONCURRENCY_CONFLICT", err)
	}

	closed := f.seed(domain.RequestStatusClosed, citizen.ID)
	_, err = f.service.UpdatePriority(context.Background(), clerk, closed.ID, domain.RequestPriorityLow, 1)
	if !apperrors.IsCode(err, "ALREADY_TERMINAL") {
		t.Errorf("terminal: got %v, want ALREADY_TERMINAL", err)
	}
}

func TestCommentVisibility(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusTriaged, citizen.ID)

	if _, err := f.service.AddComment(context.Background(), citizen, seeded.ID, domain.CommentPublic, "any update?", nil); err != nil {
		t.Fatalf("citizen public comment failed: %v", err)
	}
	_, err := f.service.AddComment(context.Background(), citizen, seeded.ID, domain.CommentInternalNote, "sneaky", nil)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("citizen internal note: got %v, want FORBIDDEN", err)
	}
	if _, err := f.service.AddComment(context.Background(), clerk, seeded.ID, domain.CommentInternalNote, "crew scheduled tuesday", nil); err != nil {
		t.Fatalf("staff internal note failed: %v", err)
	}

	citizenView, err := f.service.ListComments(context.Background(), citizen, seeded.ID)
	if err != nil {
		t.Fatalf("citizen list failed: %v", err)
	}
	if len(citizenView) != 1 || citizenView[0].Visibility != domain.CommentPublic {
		t.Errorf("citizen sees %d comments, want 1 public", len(citizenView))
	}

	staffView, err := f.service.ListComments(context.Background(), clerk, seeded.ID)
	if err != nil {
		t.Fatalf("staff list failed: %v", err)
	}
	if len(staffView) != 2 {
		t.Errorf("staff sees %d comments, want 2", len(staffView))
	}

	_, err = f.service.ListComments(context.Background(), otherCit, seeded.ID)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Errorf("stranger list: got %v, want FORBIDDEN", err)
	}
}

func TestCommentAttachments(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusTriaged, citizen.ID)

	comment, err := f.service.AddComment(context.Background(), citizen, seeded.ID, domain.CommentPublic, "photo attached", []CommentAttachmentInput{
		{StorageKey: "blobs/abc", FileName: "pothole.jpg", MimeType: "image/jpeg", SizeBytes: 52311},
	})
	if err != nil {
		t.Fatalf("comment failed: %v", err)
	}
	if len(comment.Attachments) != 1 || comment.Attachments[0].StorageKey != "blobs/abc" {
		t.Fatalf("attachments = %+v", comment.Attachments)
	}

	listed, err := f.service.ListComments(context.Background(), citizen, seeded.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Attachments) != 1 {
		t.Errorf("listed attachments missing: %+v", listed)
	}
}

func TestHistoryCitizenFilter(t *testing.T) {
	f := newRequestServiceFixture()
	seeded := f.seed(domain.RequestStatusSubmitted, citizen.ID)

	if _, err := f.service.Transition(context.Background(), clerk, seeded.ID, domain.RequestStatusTriaged, 1, ""); err != nil {
		t.Fatalf("triage failed: %v", err)
	}
	if _, err := f.service.UpdatePriority(context.Background(), clerk, seeded.ID, domain.RequestPriorityHigh, 2); err != nil {
		t.Fatalf("priority failed: %v", err)
	}

	staffEntries, err := f.service.ListHistory(context.Background(), clerk, seeded.ID, 50, 0)
	if err != nil {
		t.Fatalf("staff history failed: %v", err)
	}
	if len(staffEntries) != 2 {
		t.Errorf("staff sees %d entries, want 2", len(staffEntries))
	}

	citizenEntries, err := f.service.ListHistory(context.Background(), citizen, seeded.ID, 50, 0)
	if err != nil {
		t.Fatalf("citizen history failed: %v", err)
	}
	if len(citizenEntries) != 1 || citizenEntries[0].ChangeType != domain.ChangeTypeStatus {
		t.Errorf("citizen sees %+v, want status changes only", citizenEntries)
	}
}

func TestListBreached(t *testing.T) {
	f := newRequestServiceFixture()
	// ListBreached stamps the wall clock into the filter, so anchor the
	// due dates to it rather than the fixture clock.
	overdue := time.Now().Add(-2 * time.Hour)
	fresh := time.Now().Add(48 * time.Hour)

	breached := f.seed(domain.RequestStatusInProgress, citizen.ID)
	f.requests.items[breached.ID].SLADueAt = &overdue
	ok := f.seed(domain.RequestStatusInProgress, citizen.ID)
	f.requests.items[ok.ID].SLADueAt = &fresh
	closed := f.seed(domain.RequestStatusClosed, citizen.ID)
	f.requests.items[closed.ID].SLADueAt = &overdue

	listed, err := f.service.ListBreached(context.Background(), supervisor, repository.RequestFilter{})
	if err != nil {
		t.Fatalf("list breached failed: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != breached.ID {
		t.Errorf("breached = %+v, want only the overdue open request", listed)
	}
}
