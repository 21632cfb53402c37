package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/civicgrid/request-service/internal/api/dto"
	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/service"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// PerformanceHandler exposes quality review and goal endpoints for
// supervisor dashboards.
type PerformanceHandler struct {
	service *service.PerformanceService
}

// NewPerformanceHandler constructs handler.
func NewPerformanceHandler(performanceService *service.PerformanceService) *PerformanceHandler {
	return &PerformanceHandler{service: performanceService}
}

// RecordReview POST /staff/requests/:id/review.
func (h *PerformanceHandler) RecordReview(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.ReviewPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	review, err := h.service.RecordReview(c.Context(), actor, c.Params("id"), service.ReviewInput{
		Timeliness:      req.Timeliness,
		Completeness:    req.Completeness,
		Communication:   req.Communication,
		Workmanship:     req.Workmanship,
		CitizenCourtesy: req.CitizenCourtesy,
		Comments:        req.Comments,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": reviewResponse(review)})
}

// GetReview GET /staff/requests/:id/review.
func (h *PerformanceHandler) GetReview(c *fiber.Ctx) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	review, err := h.service.GetReview(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": reviewResponse(review)})
}

// Rollup GET /staff/performance/:staffID/rollup.
func (h *PerformanceHandler) Rollup(c *fiber.Ctx) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	period, err := parsePeriod(c)
	if err != nil {
		return err
	}
	perf, err := h.service.RollupPeriod(c.Context(), c.Params("staffID"), period)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rollupResponse(perf)})
}

// SetGoal POST /staff/performance/goals.
func (h *PerformanceHandler) SetGoal(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.GoalPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	goal, err := h.service.SetGoal(c.Context(), actor, service.GoalInput{
		StaffID:     req.StaffID,
		Metric:      req.Metric,
		TargetValue: req.TargetValue,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": goalResponse(goal)})
}

// UpdateGoalProgress POST /staff/performance/goals/:id/progress.
func (h *PerformanceHandler) UpdateGoalProgress(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.GoalProgressPayload
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(&req); err != nil {
		return err
	}
	goal, err := h.service.UpdateGoalProgress(c.Context(), actor, c.Params("id"), req.CurrentValue)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": goalResponse(goal)})
}

// CancelGoal POST /staff/performance/goals/:id/cancel.
func (h *PerformanceHandler) CancelGoal(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	goal, err := h.service.CancelGoal(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": goalResponse(goal)})
}

// ListGoals GET /staff/performance/:staffID/goals.
func (h *PerformanceHandler) ListGoals(c *fiber.Ctx) error {
	if _, err := requireActor(c); err != nil {
		return err
	}
	goals, err := h.service.ListGoals(c.Context(), c.Params("staffID"))
	if err != nil {
		return err
	}
	items := make([]dto.GoalResponse, 0, len(goals))
	for i := range goals {
		items = append(items, goalResponse(&goals[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parsePeriod(c *fiber.Ctx) (domain.PerformancePeriod, error) {
	start := parseTime(c.Query("period_start"))
	end := parseTime(c.Query("period_end"))
	if start == nil || end == nil {
		return domain.PerformancePeriod{}, apperrors.NewValidationError("period_start and period_end are required RFC3339 timestamps", nil)
	}
	if !end.After(*start) {
		return domain.PerformancePeriod{}, apperrors.NewValidationError("period_end must be after period_start", nil)
	}
	return domain.PerformancePeriod{Start: *start, End: *end}, nil
}

func reviewResponse(review *domain.QualityReview) dto.ReviewResponse {
	return dto.ReviewResponse{
		ID:               review.ID,
		RequestID:        review.RequestID,
		ReviewerID:       review.ReviewerID,
		Timeliness:       review.Timeliness,
		Completeness:     review.Completeness,
		Communication:    review.Communication,
		Workmanship:      review.Workmanship,
		CitizenCourtesy:  review.CitizenCourtesy,
		OverallScore:     review.OverallScore,
		ReviewStatus:     review.ReviewStatus,
		FollowUpRequired: review.FollowUpRequired,
		Comments:         review.Comments,
		CreatedAt:        review.CreatedAt,
	}
}

func goalResponse(goal *domain.PerformanceGoal) dto.GoalResponse {
	return dto.GoalResponse{
		ID:           goal.ID,
		StaffID:      goal.StaffID,
		SetBy:        goal.SetBy,
		Metric:       goal.Metric,
		TargetValue:  goal.TargetValue,
		CurrentValue: goal.CurrentValue,
		DueDate:      goal.DueDate,
		Status:       goal.Status,
		CreatedAt:    goal.CreatedAt,
		UpdatedAt:    goal.UpdatedAt,
	}
}

func rollupResponse(perf *domain.StaffPerformance) dto.RollupResponse {
	return dto.RollupResponse{
		StaffID:            perf.StaffID,
		PeriodStart:        perf.PeriodStart,
		PeriodEnd:          perf.PeriodEnd,
		CompletedCount:     perf.CompletedCount,
		BreachedCount:      perf.BreachedCount,
		AvgHandlingSeconds: int64(perf.AvgHandlingTime / time.Second),
		AvgQualityScore:    perf.AvgQualityScore,
		ReviewedCount:      perf.ReviewedCount,
		FollowUpCount:      perf.FollowUpCount,
		ComputedAt:         perf.ComputedAt,
	}
}
