package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/civicgrid/request-service/internal/api/dto"
	"github.com/civicgrid/request-service/internal/auth"
	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/repository"
	"github.com/civicgrid/request-service/internal/service"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// RequestsHandler manages the citizen-facing request endpoints.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Citizen == nil {
		return apperrors.NewUnauthorized("citizen required")
	}
	var req dto.CreateRequestPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	input := service.SubmitInput{
		DepartmentID: req.DepartmentID,
		Category:     req.Category,
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		Draft:        req.Draft,
	}
	request, err := h.service.Submit(c.Context(), principal.Citizen.ID, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": requestSummary(request)})
}

// List GET /requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Citizen == nil {
		return apperrors.NewUnauthorized("citizen required")
	}
	requests, err := h.service.ListForCitizen(c.Context(), principal.Citizen.ID, parseRequestQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummaries(requests)})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	request, err := h.service.Get(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	breached, err := h.service.IsBreached(c.Context(), actor, request.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(request), "sla_breached": breached})
}

// SubmitDraft POST /requests/:id/submit.
func (h *RequestsHandler) SubmitDraft(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusSubmitted)
}

// Close POST /requests/:id/close.
func (h *RequestsHandler) Close(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusClosed)
}

// Reopen POST /requests/:id/reopen. Only valid within the reopen
// window after resolution.
func (h *RequestsHandler) Reopen(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusInProgress)
}

// Cancel POST /requests/:id/cancel.
func (h *RequestsHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, domain.RequestStatusCancelled)
}

// AddComment POST /requests/:id/comments.
func (h *RequestsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CommentPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = domain.CommentPublic
	}

	attachments := make([]service.CommentAttachmentInput, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, service.CommentAttachmentInput{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	comment, err := h.service.AddComment(c.Context(), actor, c.Params("id"), visibility, req.Body, attachments)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// ListComments GET /requests/:id/comments.
func (h *RequestsHandler) ListComments(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	comments, err := h.service.ListComments(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		items = append(items, commentResponse(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListHistory GET /requests/:id/history.
func (h *RequestsHandler) ListHistory(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	limit := parseInt(c.Query("page_size"), 50)
	offset := (parseInt(c.Query("page"), 1) - 1) * limit
	entries, err := h.service.ListHistory(c.Context(), actor, c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

func (h *RequestsHandler) transition(c *fiber.Ctx, target domain.RequestStatus) error {
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
	request, err := h.service.Transition(c.Context(), actor, c.Params("id"), target, req.ExpectedVersion, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(request)})
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

func parseRequestQuery(c *fiber.Ctx) repository.RequestFilter {
	filter := repository.RequestFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.RequestStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.RequestPriority(strings.TrimSpace(part)))
		}
	}
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		filter.SearchTerm = &search
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func requestSummary(request *domain.ServiceRequest) dto.RequestSummary {
	return dto.RequestSummary{
		ID:           request.ID,
		Code:         request.Code,
		DepartmentID: request.DepartmentID,
		Category:     request.Category,
		Title:        request.Title,
		Status:       request.Status,
		Priority:     request.Priority,
		AssigneeID:   request.AssigneeID,
		Version:      request.Version,
		SLADueAt:     request.SLADueAt,
		CreatedAt:    request.CreatedAt,
		UpdatedAt:    request.UpdatedAt,
	}
}

func requestSummaries(requests []domain.ServiceRequest) []dto.RequestSummary {
	items := make([]dto.RequestSummary, 0, len(requests))
	for i := range requests {
		items = append(items, requestSummary(&requests[i]))
	}
	return items
}

func requestDetail(request *domain.ServiceRequest) dto.RequestDetailResponse {
	return dto.RequestDetailResponse{
		ID:           request.ID,
		Code:         request.Code,
		RequesterID:  request.RequesterID,
		DepartmentID: request.DepartmentID,
		Category:     request.Category,
		Title:        request.Title,
		Description:  request.Description,
		Status:       request.Status,
		Priority:     request.Priority,
		AssigneeID:   request.AssigneeID,
		Version:      request.Version,
		TriagedAt:    request.TriagedAt,
		SLADueAt:     request.SLADueAt,
		ClosedAt:     request.ClosedAt,
		ReopenUntil:  request.ReopenUntil,
		CreatedAt:    request.CreatedAt,
		UpdatedAt:    request.UpdatedAt,
	}
}

func commentResponse(comment *domain.RequestComment) dto.CommentResponse {
	attachments := make([]dto.AttachmentResponse, 0, len(comment.Attachments))
	for _, att := range comment.Attachments {
		attachments = append(attachments, dto.AttachmentResponse{
			ID:        att.ID,
			FileName:  att.FileName,
			MimeType:  att.MimeType,
			SizeBytes: att.SizeBytes,
		})
	}
	return dto.CommentResponse{
		ID:          comment.ID,
		AuthorType:  comment.AuthorType,
		AuthorID:    comment.AuthorID,
		Visibility:  comment.Visibility,
		Body:        comment.Body,
		Attachments: attachments,
		CreatedAt:   comment.CreatedAt,
	}
}

func historyResponses(entries []domain.RequestHistory) []dto.HistoryResponse {
	resp := make([]dto.HistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.HistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}
