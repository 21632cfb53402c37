package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civicgrid/request-service/internal/api/dto"
	"github.com/civicgrid/request-service/internal/repository"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// DepartmentsHandler lists routing targets for the intake form.
type DepartmentsHandler struct {
	departments repository.DepartmentRepository
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(departmentRepo repository.DepartmentRepository) *DepartmentsHandler {
	return &DepartmentsHandler{departments: departmentRepo}
}

// ListActive GET /departments.
func (h *DepartmentsHandler) ListActive(c *fiber.Ctx) error {
	departments, err := h.departments.ListActive(c.Context())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.DepartmentResponse, 0, len(departments))
	for _, dept := range departments {
		items = append(items, dto.DepartmentResponse{
			ID:           dept.ID,
			Name:         dept.Name,
			Description:  dept.Description,
			ContactEmail: dept.ContactEmail,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
