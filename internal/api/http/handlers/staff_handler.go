package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civicgrid/request-service/internal/api/dto"
	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/repository"
	"github.com/civicgrid/request-service/internal/service"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// StaffHandler exposes staff auth and directory endpoints.
type StaffHandler struct {
	auth  *service.AuthService
	staff repository.StaffRepository
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService, staffRepo repository.StaffRepository) *StaffHandler {
	return &StaffHandler{auth: authService, staff: staffRepo}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}

	staff, token, exp, err := h.auth.LoginStaff(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": fiber.Map{
				"id":            staff.ID,
				"name":          staff.Name,
				"email":         staff.Email,
				"role":          staff.Role,
				"department_id": staff.DepartmentID,
			},
			"auth": dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// List handles GET /staff/directory, used by supervisors to pick
// assignment candidates.
func (h *StaffHandler) List(c *fiber.Ctx) error {
	filter := repository.StaffFilter{
		Limit:  parseInt(c.Query("page_size"), 50),
		Offset: 0,
	}
	if page := parseInt(c.Query("page"), 1); page > 1 {
		filter.Offset = (page - 1) * filter.Limit
	}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if roleStr := c.Query("role"); roleStr != "" {
		role := domain.ActorRole(roleStr)
		filter.Role = &role
	}
	active := true
	filter.Active = &active

	members, err := h.staff.List(c.Context(), filter)
	if err != nil {
		return apperrors.MapError(err)
	}

	items := make([]fiber.Map, 0, len(members))
	for _, member := range members {
		items = append(items, fiber.Map{
			"id":            member.ID,
			"name":          member.Name,
			"role":          member.Role,
			"department_id": member.DepartmentID,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
