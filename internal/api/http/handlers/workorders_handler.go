package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/civicgrid/request-service/internal/api/dto"
	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/service"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// WorkOrdersHandler manages field execution endpoints.
type WorkOrdersHandler struct {
	service *service.WorkOrderService
}

// NewWorkOrdersHandler constructs handler.
func NewWorkOrdersHandler(workOrderService *service.WorkOrderService) *WorkOrdersHandler {
	return &WorkOrdersHandler{service: workOrderService}
}

// List GET /workorders.
func (h *WorkOrdersHandler) List(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	includeClosed := c.Query("include_closed") == "true"
	orders, err := h.service.ListForAgent(c.Context(), actor, includeClosed)
	if err != nil {
		return err
	}
	items := make([]dto.WorkOrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, workOrderResponse(&orders[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /workorders/:id.
func (h *WorkOrdersHandler) Get(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	order, err := h.service.Get(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workOrderResponse(order)})
}

// MarkEnRoute POST /workorders/:id/enroute.
func (h *WorkOrdersHandler) MarkEnRoute(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	order, err := h.service.MarkEnRoute(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workOrderResponse(order)})
}

// CheckIn POST /workorders/:id/checkin.
func (h *WorkOrdersHandler) CheckIn(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CheckInPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	location := domain.GeoPoint{Latitude: req.Latitude, Longitude: req.Longitude}
	order, err := h.service.CheckIn(c.Context(), actor, c.Params("id"), location, req.StartImmediately)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workOrderResponse(order)})
}

// StartWork POST /workorders/:id/start.
func (h *WorkOrdersHandler) StartWork(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	order, err := h.service.StartWork(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workOrderResponse(order)})
}

// CheckOut POST /workorders/:id/checkout.
func (h *WorkOrdersHandler) CheckOut(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CheckOutPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	order, err := h.service.CheckOut(c.Context(), actor, c.Params("id"), req.CompletionNotes, req.FollowUpRequired)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workOrderResponse(order)})
}

// Cancel POST /workorders/:id/cancel.
func (h *WorkOrdersHandler) Cancel(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CancelWorkOrderPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	order, err := h.service.Cancel(c.Context(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workOrderResponse(order)})
}

// StartSegment POST /workorders/:id/segments.
func (h *WorkOrdersHandler) StartSegment(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.SegmentStartPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	entry, err := h.service.StartSegment(c.Context(), actor, c.Params("id"), req.Kind, req.Notes)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": timeEntryResponse(entry)})
}

// StopSegment POST /workorders/segments/stop.
func (h *WorkOrdersHandler) StopSegment(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	entry, err := h.service.StopSegment(c.Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": timeEntryResponse(entry)})
}

// ListSegments GET /workorders/:id/segments.
func (h *WorkOrdersHandler) ListSegments(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	entries, err := h.service.TimeEntries(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TimeEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, timeEntryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func workOrderResponse(order *domain.FieldWorkOrder) dto.WorkOrderResponse {
	resp := dto.WorkOrderResponse{
		ID:               order.ID,
		RequestID:        order.RequestID,
		AssignmentID:     order.AssignmentID,
		AssignedAgentID:  order.AssignedAgentID,
		Status:           order.Status,
		CheckInTime:      order.CheckInTime,
		CheckOutTime:     order.CheckOutTime,
		CompletionNotes:  order.CompletionNotes,
		FollowUpRequired: order.FollowUpRequired,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	if order.CheckInLocation != nil {
		lat := order.CheckInLocation.Latitude
		lng := order.CheckInLocation.Longitude
		resp.CheckInLatitude = &lat
		resp.CheckInLongitude = &lng
	}
	if order.ActualDuration != nil {
		seconds := int64(order.ActualDuration.Seconds())
		resp.ActualDurationSeconds = &seconds
	}
	return resp
}

func timeEntryResponse(entry *domain.TimeEntry) dto.TimeEntryResponse {
	return dto.TimeEntryResponse{
		ID:          entry.ID,
		WorkOrderID: entry.WorkOrderID,
		AgentID:     entry.AgentID,
		Kind:        entry.Kind,
		StartTime:   entry.StartTime,
		EndTime:     entry.EndTime,
		Notes:       entry.Notes,
	}
}
