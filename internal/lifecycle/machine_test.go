package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/civicgrid/request-service/internal/domain"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

func fixedClock(t time.Time) *time.Time {
	return &t
}

func newTestMachine(now *time.Time) *Machine {
	return NewMachine(Config{Now: func() time.Time { return *now }})
}

func baseRequest(status domain.RequestStatus) *domain.ServiceRequest {
	return &domain.ServiceRequest{
		ID:          "req-1",
		RequesterID: "cit-1",
		Status:      status,
		Priority:    domain.RequestPriorityMedium,
		Version:     1,
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from    domain.RequestStatus
		to      domain.RequestStatus
		role    domain.ActorRole
		allowed bool
	}{
		{domain.RequestStatusDraft, domain.RequestStatusSubmitted, domain.RoleCitizen, true},
		{domain.RequestStatusDraft, domain.RequestStatusSubmitted, domain.RoleClerk, false},
		{domain.RequestStatusSubmitted, domain.RequestStatusTriaged, domain.RoleClerk, true},
		{domain.RequestStatusSubmitted, domain.RequestStatusTriaged, domain.RoleCitizen, false},
		{domain.RequestStatusTriaged, domain.RequestStatusInReview, domain.RoleSupervisor, true},
		{domain.RequestStatusInReview, domain.RequestStatusApproved, domain.RoleSupervisor, true},
		{domain.RequestStatusInReview, domain.RequestStatusApproved, domain.RoleClerk, false},
		{domain.RequestStatusInReview, domain.RequestStatusRejected, domain.RoleSupervisor, true},
		{domain.RequestStatusApproved, domain.RequestStatusInProgress, domain.RoleFieldAgent, true},
		{domain.RequestStatusInProgress, domain.RequestStatusResolved, domain.RoleFieldAgent, true},
		{domain.RequestStatusInProgress, domain.RequestStatusResolved, domain.RoleClerk, false},
		{domain.RequestStatusResolved, domain.RequestStatusClosed, domain.RoleCitizen, true},
		{domain.RequestStatusRejected, domain.RequestStatusClosed, domain.RoleClerk, true},
		{domain.RequestStatusResolved, domain.RequestStatusInProgress, domain.RoleSupervisor, true},
		{domain.RequestStatusInProgress, domain.RequestStatusCancelled, domain.RoleSupervisor, true},
		{domain.RequestStatusInProgress, domain.RequestStatusCancelled, domain.RoleClerk, false},
		{domain.RequestStatusDraft, domain.RequestStatusCancelled, domain.RoleCitizen, true},
	}
	for _, tc := range cases {
		if got := RoleAllowed(tc.from, tc.to, tc.role); got != tc.allowed {
			t.Errorf("RoleAllowed(%s, %s, %s) = %v, want %v", tc.from, tc.to, tc.role, got, tc.allowed)
		}
	}
}

func TestTransitionMissingEdge(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	m := newTestMachine(now)
	request := baseRequest(domain.RequestStatusDraft)

	_, err := m.Transition(request, domain.RequestStatusResolved, domain.Actor{ID: "cit-1", Role: domain.RoleCitizen}, 1)
	if !apperrors.IsCode(err, "INVALID_TRANSITION") {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestTransitionRoleForbidden(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	m := newTestMachine(now)
	request := baseRequest(domain.RequestStatusInProgress)

	// A clerk may not cancel once work has started.
	_, err := m.Transition(request, domain.RequestStatusCancelled, domain.Actor{ID: "stf-1", Role: domain.RoleClerk}, 1)
	if !apperrors.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestTransitionVersionConflict(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	m := newTestMachine(now)
	request := baseRequest(domain.RequestStatusSubmitted)
	request.Version = 3

	_, err := m.Transition(request, domain.RequestStatusTriaged, domain.Actor{ID: "stf-1", Role: domain.RoleClerk}, 2)
	if !apperrors.IsCode(err, "CONCURRENCY_CONFLICT") {
		t.Fatalf("expected CONCURRENCY_CONFLICT, got %v", err)
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatal("expected DomainError")
	}
	if domainErr.Details["current_version"] != int64(3) {
		t.Errorf("current_version = %v, want 3", domainErr.Details["current_version"])
	}
}

func TestTransitionFinalStatus(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	m := newTestMachine(now)

	for _, status := range []domain.RequestStatus{domain.RequestStatusClosed, domain.RequestStatusCancelled} {
		request := baseRequest(status)
		_, err := m.Transition(request, domain.RequestStatusInProgress, domain.Actor{ID: "stf-1", Role: domain.RoleSupervisor}, 1)
		if !apperrors.IsCode(err, "ALREADY_TERMINAL") {
			t.Errorf("from %s: expected ALREADY_TERMINAL, got %v", status, err)
		}
	}
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	m := newTestMachine(now)
	request := baseRequest(domain.RequestStatusSubmitted)

	updated, err := m.Transition(request, domain.RequestStatusTriaged, domain.Actor{ID: "stf-1", Role: domain.RoleClerk}, 1)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if request.Status != domain.RequestStatusSubmitted || request.Version != 1 {
		t.Error("input request was mutated")
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	if updated.TriagedAt == nil || !updated.TriagedAt.Equal(*now) {
		t.Error("TriagedAt not set to transition time")
	}
}

func TestSLAComputedOnFirstInProgress(t *testing.T) {
	triagedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := fixedClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	m := newTestMachine(now)

	request := baseRequest(domain.RequestStatusApproved)
	request.Priority = domain.RequestPriorityUrgent
	request.TriagedAt = &triagedAt

	updated, err := m.Transition(request, domain.RequestStatusInProgress, domain.Actor{ID: "agt-1", Role: domain.RoleFieldAgent}, 1)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	want := triagedAt.Add(24 * time.Hour)
	if updated.SLADueAt == nil || !updated.SLADueAt.Equal(want) {
		t.Fatalf("SLADueAt = %v, want %v", updated.SLADueAt, want)
	}

	// The due date must survive later transitions unchanged.
	*now = now.Add(time.Hour)
	resolved, err := m.Transition(updated, domain.RequestStatusResolved, domain.Actor{ID: "agt-1", Role: domain.RoleFieldAgent}, 2)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !resolved.SLADueAt.Equal(want) {
		t.Errorf("SLADueAt changed to %v after resolve", resolved.SLADueAt)
	}
}

func TestResolveSetsClosedAtAndReopenWindow(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 2, 15, 0, 0, 0, time.UTC))
	m := newTestMachine(now)
	request := baseRequest(domain.RequestStatusInProgress)

	updated, err := m.Transition(request, domain.RequestStatusResolved, domain.Actor{ID: "agt-1", Role: domain.RoleFieldAgent}, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if updated.ClosedAt == nil || !updated.ClosedAt.Equal(*now) {
		t.Fatal("ClosedAt not set on resolve")
	}
	wantReopen := now.Add(DefaultReopenWindow)
	if updated.ReopenUntil == nil || !updated.ReopenUntil.Equal(wantReopen) {
		t.Fatalf("ReopenUntil = %v, want %v", updated.ReopenUntil, wantReopen)
	}
}

func TestCitizenReopenInsideWindow(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 2, 15, 0, 0, 0, time.UTC))
	m := newTestMachine(now)
	request := baseRequest(domain.RequestStatusInProgress)
	request.SLADueAt = nil

	resolved, err := m.Transition(request, domain.RequestStatusResolved, domain.Actor{ID: "agt-1", Role: domain.RoleFieldAgent}, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	*now = now.Add(48 * time.Hour)
	reopened, err := m.Transition(resolved, domain.RequestStatusInProgress, domain.Actor{ID: "cit-1", Role: domain.RoleCitizen}, 2)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.ClosedAt != nil {
		t.Error("ClosedAt should be cleared on reopen")
	}
	if reopened.ReopenUntil != nil {
		t.Error("ReopenUntil should be cleared on reopen")
	}
	if reopened.Version != 3 {
		t.Errorf("version = %d, want 3", reopened.Version)
	}
}

func TestCitizenReopenAfterWindowExpires(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 2, 15, 0, 0, 0, time.UTC))
	m := newTestMachine(now)
	request := baseRequest(domain.RequestStatusInProgress)

	resolved, err := m.Transition(request, domain.RequestStatusResolved, domain.Actor{ID: "agt-1", Role: domain.RoleFieldAgent}, 1)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	*now = now.Add(DefaultReopenWindow + time.Hour)
	_, err = m.Transition(resolved, domain.RequestStatusInProgress, domain.Actor{ID: "cit-1", Role: domain.RoleCitizen}, 2)
	if !apperrors.IsCode(err, "INVALID_TRANSITION") {
		t.Fatalf("expected INVALID_TRANSITION after window, got %v", err)
	}

	// Supervisors are not bound by the citizen window.
	if _, err := m.Transition(resolved, domain.RequestStatusInProgress, domain.Actor{ID: "stf-1", Role: domain.RoleSupervisor}, 2); err != nil {
		t.Fatalf("supervisor reopen failed: %v", err)
	}
}

func TestIsBreached(t *testing.T) {
	now := fixedClock(time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC))
	m := newTestMachine(now)

	due := now.Add(-time.Hour)
	request := baseRequest(domain.RequestStatusInProgress)
	request.SLADueAt = &due
	if !m.IsBreached(request) {
		t.Error("expected breach when past due and non-terminal")
	}

	request.Status = domain.RequestStatusResolved
	if m.IsBreached(request) {
		t.Error("terminal requests never report breached")
	}

	request.Status = domain.RequestStatusInProgress
	request.SLADueAt = nil
	if m.IsBreached(request) {
		t.Error("no due date means no breach")
	}
}

func TestSLAWindowFallsBackToMedium(t *testing.T) {
	m := NewMachine(Config{})
	if got := m.SLAWindow("UNKNOWN"); got != 7*24*time.Hour {
		t.Errorf("fallback window = %v, want 168h", got)
	}
}
