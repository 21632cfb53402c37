// Package lifecycle holds the service-request state machine: the
// role-aware transition table, SLA due-date computation and breach
// detection. Everything here is pure; persistence and events live in
// the service layer.
package lifecycle

import (
	"time"

	"github.com/civicgrid/request-service/internal/domain"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// edge is one (from, to) pair in the transition table.
type edge struct {
	from domain.RequestStatus
	to   domain.RequestStatus
}

// transitionTable maps each allowed edge to the roles permitted to
// perform it. An edge absent from the table is an invalid transition
// for every role; an edge present but without the actor's role is
// forbidden. CANCELLED edges are handled separately in allowedRoles
// so supervisors can cancel from any non-final state.
var transitionTable = map[edge][]domain.ActorRole{
	{domain.RequestStatusDraft, domain.RequestStatusSubmitted}:      {domain.RoleCitizen},
	{domain.RequestStatusSubmitted, domain.RequestStatusTriaged}:    {domain.RoleClerk, domain.RoleSupervisor},
	{domain.RequestStatusTriaged, domain.RequestStatusInReview}:     {domain.RoleClerk, domain.RoleSupervisor},
	{domain.RequestStatusInReview, domain.RequestStatusApproved}:    {domain.RoleSupervisor},
	{domain.RequestStatusInReview, domain.RequestStatusRejected}:    {domain.RoleSupervisor},
	{domain.RequestStatusApproved, domain.RequestStatusInProgress}:  {domain.RoleClerk, domain.RoleSupervisor, domain.RoleFieldAgent},
	{domain.RequestStatusInProgress, domain.RequestStatusResolved}:  {domain.RoleFieldAgent, domain.RoleSupervisor},
	{domain.RequestStatusInProgress, domain.RequestStatusRejected}:  {domain.RoleSupervisor},
	{domain.RequestStatusResolved, domain.RequestStatusClosed}:      {domain.RoleCitizen, domain.RoleClerk, domain.RoleSupervisor},
	{domain.RequestStatusRejected, domain.RequestStatusClosed}:      {domain.RoleClerk, domain.RoleSupervisor},
	{domain.RequestStatusResolved, domain.RequestStatusInProgress}:  {domain.RoleCitizen, domain.RoleSupervisor},
	{domain.RequestStatusDraft, domain.RequestStatusCancelled}:      {domain.RoleCitizen, domain.RoleSupervisor},
	{domain.RequestStatusSubmitted, domain.RequestStatusCancelled}:  {domain.RoleCitizen, domain.RoleSupervisor},
	{domain.RequestStatusTriaged, domain.RequestStatusCancelled}:    {domain.RoleSupervisor},
	{domain.RequestStatusInReview, domain.RequestStatusCancelled}:   {domain.RoleSupervisor},
	{domain.RequestStatusApproved, domain.RequestStatusCancelled}:   {domain.RoleSupervisor},
	{domain.RequestStatusInProgress, domain.RequestStatusCancelled}: {domain.RoleSupervisor},
}

// EdgeExists reports whether (from, to) is in the transition table for
// any role.
func EdgeExists(from, to domain.RequestStatus) bool {
	_, ok := transitionTable[edge{from, to}]
	return ok
}

// RoleAllowed reports whether role may perform the (from, to) edge.
func RoleAllowed(from, to domain.RequestStatus, role domain.ActorRole) bool {
	for _, allowed := range transitionTable[edge{from, to}] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Machine validates and applies lifecycle transitions.
type Machine struct {
	slaWindows   map[domain.RequestPriority]time.Duration
	reopenWindow time.Duration
	now          Clock
}

// Config tunes the machine; zero values fall back to defaults.
type Config struct {
	SLAWindows   map[domain.RequestPriority]time.Duration
	ReopenWindow time.Duration
	Now          Clock
}

// DefaultSLAWindows is the priority-keyed duration table for SLA due
// dates, anchored at triage time.
func DefaultSLAWindows() map[domain.RequestPriority]time.Duration {
	return map[domain.RequestPriority]time.Duration{
		domain.RequestPriorityUrgent: 24 * time.Hour,
		domain.RequestPriorityHigh:   72 * time.Hour,
		domain.RequestPriorityMedium: 7 * 24 * time.Hour,
		domain.RequestPriorityLow:    14 * 24 * time.Hour,
	}
}

// DefaultReopenWindow is how long after resolution a citizen may reopen.
const DefaultReopenWindow = 14 * 24 * time.Hour

// NewMachine constructs a machine.
func NewMachine(cfg Config) *Machine {
	m := &Machine{
		slaWindows:   cfg.SLAWindows,
		reopenWindow: cfg.ReopenWindow,
		now:          cfg.Now,
	}
	if len(m.slaWindows) == 0 {
		m.slaWindows = DefaultSLAWindows()
	}
	if m.reopenWindow <= 0 {
		m.reopenWindow = DefaultReopenWindow
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// SLAWindow returns the due-date window for a priority.
func (m *Machine) SLAWindow(priority domain.RequestPriority) time.Duration {
	if window, ok := m.slaWindows[priority]; ok {
		return window
	}
	return m.slaWindows[domain.RequestPriorityMedium]
}

// Transition validates the edge against the table, the actor's role
// and the expected version, then applies it to a copy of the request.
// On success the returned request carries the incremented version and
// all derived timestamps; the caller persists it. The input is never
// mutated.
func (m *Machine) Transition(request *domain.ServiceRequest, target domain.RequestStatus, actor domain.Actor, expectedVersion int64) (*domain.ServiceRequest, error) {
	if request.Version != expectedVersion {
		return nil, apperrors.NewConcurrencyConflict(expectedVersion, request.Version)
	}
	if request.Status.IsFinal() {
		return nil, apperrors.NewAlreadyTerminal(string(request.Status))
	}
	if !EdgeExists(request.Status, target) {
		return nil, apperrors.NewInvalidTransition(string(request.Status), string(target))
	}
	if !RoleAllowed(request.Status, target, actor.Role) {
		return nil, apperrors.NewForbidden("role may not perform this transition")
	}

	now := m.now()

	// Citizen reopen is only valid inside the reopen window.
	if request.Status == domain.RequestStatusResolved && target == domain.RequestStatusInProgress {
		if actor.Role == domain.RoleCitizen {
			if request.ReopenUntil == nil || now.After(*request.ReopenUntil) {
				return nil, apperrors.NewInvalidTransition(string(request.Status), string(target))
			}
		}
	}

	updated := *request
	updated.Status = target
	updated.Version = request.Version + 1
	updated.UpdatedAt = now

	switch target {
	case domain.RequestStatusTriaged:
		triagedAt := now
		updated.TriagedAt = &triagedAt
	case domain.RequestStatusInProgress:
		if updated.SLADueAt == nil {
			due := m.slaAnchor(&updated, now).Add(m.SLAWindow(updated.Priority))
			updated.SLADueAt = &due
		}
		// Reopen: the request is live again.
		updated.ClosedAt = nil
		updated.ReopenUntil = nil
	}

	if target.IsTerminal() {
		closedAt := now
		if updated.ClosedAt == nil || closedAt.After(*updated.ClosedAt) {
			updated.ClosedAt = &closedAt
		}
		if target == domain.RequestStatusResolved {
			reopenUntil := updated.ClosedAt.Add(m.reopenWindow)
			updated.ReopenUntil = &reopenUntil
		}
	}

	return &updated, nil
}

// slaAnchor is the instant the SLA clock starts: triage time when
// known, otherwise the moment work begins.
func (m *Machine) slaAnchor(request *domain.ServiceRequest, fallback time.Time) time.Time {
	if request.TriagedAt != nil {
		return *request.TriagedAt
	}
	return fallback
}

// IsBreached is the read-side SLA breach query. It is never persisted;
// a stored flag could drift from its inputs.
func (m *Machine) IsBreached(request *domain.ServiceRequest) bool {
	if request.SLADueAt == nil || request.Status.IsTerminal() {
		return false
	}
	return m.now().After(*request.SLADueAt)
}
