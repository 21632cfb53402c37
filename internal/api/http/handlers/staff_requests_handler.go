package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/civicgrid/request-service/internal/api/dto"
	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/service"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// StaffRequestsHandler manages the staff-side request workflow: triage,
// review, assignment and closure.
type StaffRequestsHandler struct {
	requests    *service.RequestService
	assignments *service.AssignmentService
}

// NewStaffRequestsHandler constructs handler.
func NewStaffRequestsHandler(requestService *service.RequestService, assignmentService *service.AssignmentService) *StaffRequestsHandler {
	return &StaffRequestsHandler{requests: requestService, assignments: assignmentService}
}

// List GET /staff/requests.
func (h *StaffRequestsHandler) List(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	requests, err := h.requests.ListForStaff(c.Context(), actor, parseRequestQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummaries(requests)})
}

// ListBreached GET /staff/requests/breached.
func (h *StaffRequestsHandler) ListBreached(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	requests, err := h.requests.ListBreached(c.Context(), actor, parseRequestQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummaries(requests)})
}

// Triage POST /staff/requests/:id/triage.
func (h *StaffRequestsHandler) Triage(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusTriaged)
}

// StartReview POST /staff/requests/:id/review/start.
func (h *StaffRequestsHandler) StartReview(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusInReview)
}

// Approve POST /staff/requests/:id/approve.
func (h *StaffRequestsHandler) Approve(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusApproved)
}

// Reject POST /staff/requests/:id/reject.
func (h *StaffRequestsHandler) Reject(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusRejected)
}

// StartWork POST /staff/requests/:id/start.
func (h *StaffRequestsHandler) StartWork(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusInProgress)
}

// Resolve POST /staff/requests/:id/resolve.
func (h *StaffRequestsHandler) Resolve(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusResolved)
}

// Close POST /staff/requests/:id/close.
func (h *StaffRequestsHandler) Close(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusClosed)
}

// Cancel POST /staff/requests/:id/cancel.
func (h *StaffRequestsHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusCancelled)
}

// UpdatePriority PATCH /staff/requests/:id/priority.
func (h *StaffRequestsHandler) UpdatePriority(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.PriorityChangePayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	request, err := h.requests.UpdatePriority(c.Context(), actor, c.Params("id"), req.Priority, req.ExpectedVersion)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(request)})
}

// Assign POST /staff/requests/:id/assign.
func (h *StaffRequestsHandler) Assign(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.AssignPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	record, err := h.assignments.Assign(c.Context(), actor, service.AssignInput{
		RequestID:       c.Params("id"),
		AssigneeID:      req.AssigneeID,
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
		WorkloadScore:   req.WorkloadScore,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": assignmentResponse(record)})
}

// ActiveAssignment GET /staff/requests/:id/assignment.
func (h *StaffRequestsHandler) ActiveAssignment(c *fiber.Ctx) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	record, err := h.assignments.ActiveAssignment(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if record == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(record)})
}

// Ledger GET /staff/requests/:id/assignments.
func (h *StaffRequestsHandler) Ledger(c *fiber.Ctx) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	records, err := h.assignments.Ledger(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AssignmentResponse, 0, len(records))
	for i := range records {
		items = append(items, assignmentResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func (h *StaffRequestsHandler) transition(c *fiber.Ctx, target domain.RequestStatus) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.TransitionPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	request, err := h.requests.Transition(c.Context(), actor, c.Params("id"), target, req.ExpectedVersion, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(request)})
}

func assignmentResponse(record *domain.AssignmentRecord) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		ID:            record.ID,
		RequestID:     record.RequestID,
		AssignedFrom:  record.AssignedFrom,
		AssignedTo:    record.AssignedTo,
		AssignedBy:    record.AssignedBy,
		Reason:        record.Reason,
		WorkloadScore: record.WorkloadScore,
		IsActive:      record.IsActive,
		CompletedAt:   record.CompletedAt,
		CreatedAt:     record.CreatedAt,
	}
}
