package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civicgrid/request-service/internal/domain"
	"github.com/civicgrid/request-service/internal/events"
	"github.com/civicgrid/request-service/internal/repository"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// RollupCache caches computed rollups; recomputes are idempotent so
// the cache is purely an optimization.
type RollupCache interface {
	Get(ctx context.Context, staffID string, period domain.PerformancePeriod) (*domain.StaffPerformance, error)
	Set(ctx context.Context, perf *domain.StaffPerformance) error
	InvalidateStaff(ctx context.Context, staffID string) error
}

// PerformanceService aggregates quality reviews and goal progress for
// supervisor dashboards.
type PerformanceService struct {
	requests    repository.RequestRepository
	reviews     repository.ReviewRepository
	goals       repository.GoalRepository
	performance repository.PerformanceRepository
	cache       RollupCache
	dispatcher  events.Dispatcher
	threshold   float64
	now         func() time.Time
}

// PerformanceDependencies bundles collaborators.
type PerformanceDependencies struct {
	RequestRepo       repository.RequestRepository
	ReviewRepo        repository.ReviewRepository
	GoalRepo          repository.GoalRepository
	PerformanceRepo   repository.PerformanceRepository
	Cache             RollupCache
	Dispatcher        events.Dispatcher
	FollowUpThreshold float64
	Now               func() time.Time
}

// ReviewInput carries the five 0-10 sub-scores.
type ReviewInput struct {
	Timeliness      float64
	Completeness    float64
	Communication   float64
	Workmanship     float64
	CitizenCourtesy float64
	Comments        string
}

// GoalInput describes a supervisor-set target.
type GoalInput struct {
	StaffID     string
	Metric      string
	TargetValue float64
	DueDate     time.Time
}

// NewPerformanceService creates the service.
func NewPerformanceService(deps PerformanceDependencies) *PerformanceService {
	threshold := deps.FollowUpThreshold
	if threshold <= 0 {
		threshold = 6.0
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &PerformanceService{
		requests:    deps.RequestRepo,
		reviews:     deps.ReviewRepo,
		goals:       deps.GoalRepo,
		performance: deps.PerformanceRepo,
		cache:       deps.Cache,
		dispatcher:  deps.Dispatcher,
		threshold:   threshold,
		now:         now,
	}
}

// OverallScore is the arithmetic mean of the five sub-scores.
func OverallScore(input ReviewInput) float64 {
	return (input.Timeliness + input.Completeness + input.Communication +
		input.Workmanship + input.CitizenCourtesy) / 5
}

// RecordReview scores a terminal request. The overall score is always
// recomputed from the sub-scores; a low score flags follow-up.
func (s *PerformanceService) RecordReview(ctx context.Context, reviewer domain.Actor, requestID string, input ReviewInput) (*domain.QualityReview, error) {
	if reviewer.Role != domain.RoleSupervisor {
		return nil, apperrors.NewForbidden("supervisor capability required for reviews")
	}
	for _, score := range []float64{input.Timeliness, input.Completeness, input.Communication, input.Workmanship, input.CitizenCourtesy} {
		if score < 0 || score > 10 {
			return nil, apperrors.NewValidationError("sub-scores must be between 0 and 10", nil)
		}
	}

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("service request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.MapError(err)
	}
	if !request.Status.IsTerminal() {
		return nil, apperrors.NewConflict("request is not in a terminal status", map[string]any{"status": request.Status})
	}

	overall := OverallScore(input)
	review := &domain.QualityReview{
		RequestID:        request.ID,
		ReviewerID:       reviewer.ID,
		Timeliness:       input.Timeliness,
		Completeness:     input.Completeness,
		Communication:    input.Communication,
		Workmanship:      input.Workmanship,
		CitizenCourtesy:  input.CitizenCourtesy,
		OverallScore:     overall,
		ReviewStatus:     domain.ReviewStatusCompleted,
		FollowUpRequired: overall < s.threshold,
		Comments:         input.Comments,
	}
	if err := s.reviews.Upsert(ctx, review); err != nil {
		return nil, apperrors.MapError(err)
	}

	if request.AssigneeID != nil && s.cache != nil {
		_ = s.cache.InvalidateStaff(ctx, *request.AssigneeID)
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:      events.EventReviewRecorded,
		RequestID: request.ID,
		Actor:     staffActor(reviewer.ID),
		Payload: events.ReviewRecordedPayload{
			ReviewID:         review.ID,
			OverallScore:     review.OverallScore,
			FollowUpRequired: review.FollowUpRequired,
		},
	})
	return review, nil
}

// GetReview fetches the review for a request.
func (s *PerformanceService) GetReview(ctx context.Context, requestID string) (*domain.QualityReview, error) {
	review, err := s.reviews.GetByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("quality review", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.MapError(err)
	}
	return review, nil
}

// RollupPeriod recomputes a staff member's aggregates for a period
// from stored history. It is a pure function of that history: calling
// it twice with no intervening data change yields identical results,
// which is what makes the cache safe.
func (s *PerformanceService) RollupPeriod(ctx context.Context, staffID string, period domain.PerformancePeriod) (*domain.StaffPerformance, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, staffID, period); err == nil && cached != nil {
			return cached, nil
		}
	}

	completed, err := s.performance.ListCompletedRequests(ctx, staffID, period)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	reviews, err := s.performance.ListReviewsForStaff(ctx, staffID, period)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	perf := ComputeRollup(staffID, period, completed, reviews, s.now())
	if s.cache != nil {
		_ = s.cache.Set(ctx, perf)
	}
	return perf, nil
}

// ComputeRollup derives the aggregates from raw history. Exposed for
// deterministic testing.
func ComputeRollup(staffID string, period domain.PerformancePeriod, completed []domain.ServiceRequest, reviews []domain.QualityReview, computedAt time.Time) *domain.StaffPerformance {
	perf := &domain.StaffPerformance{
		StaffID:     staffID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		ComputedAt:  computedAt,
	}

	var totalHandling time.Duration
	var handled int
	for _, request := range completed {
		perf.CompletedCount++
		if request.ClosedAt != nil {
			totalHandling += request.ClosedAt.Sub(request.CreatedAt)
			handled++
			if request.SLADueAt != nil && request.ClosedAt.After(*request.SLADueAt) {
				perf.BreachedCount++
			}
		}
	}
	if handled > 0 {
		perf.AvgHandlingTime = totalHandling / time.Duration(handled)
	}

	var totalQuality float64
	for _, review := range reviews {
		perf.ReviewedCount++
		totalQuality += review.OverallScore
		if review.FollowUpRequired {
			perf.FollowUpCount++
		}
	}
	if perf.ReviewedCount > 0 {
		perf.AvgQualityScore = totalQuality / float64(perf.ReviewedCount)
	}
	return perf
}

// SetGoal creates an ACTIVE goal for a staff member.
func (s *PerformanceService) SetGoal(ctx context.Context, supervisor domain.Actor, input GoalInput) (*domain.PerformanceGoal, error) {
	if supervisor.Role != domain.RoleSupervisor {
		return nil, apperrors.NewForbidden("supervisor capability required for goals")
	}
	if input.TargetValue <= 0 {
		return nil, apperrors.NewValidationError("target value must be positive", nil)
	}
	goal := &domain.PerformanceGoal{
		StaffID:     input.StaffID,
		SetBy:       supervisor.ID,
		Metric:      input.Metric,
		TargetValue: input.TargetValue,
		DueDate:     input.DueDate,
		Status:      domain.GoalStatusActive,
	}
	if err := s.goals.Create(ctx, goal); err != nil {
		return nil, apperrors.MapError(err)
	}
	return goal, nil
}

// EvaluateGoal recomputes the goal status from a fresh metric value.
// ACHIEVED and MISSED are derived here and nowhere else; the target is
// never mutated.
func EvaluateGoal(goal domain.PerformanceGoal, latestValue float64, now time.Time) domain.GoalStatus {
	if goal.Status == domain.GoalStatusCancelled {
		return domain.GoalStatusCancelled
	}
	if latestValue >= goal.TargetValue {
		return domain.GoalStatusAchieved
	}
	if now.After(goal.DueDate) {
		return domain.GoalStatusMissed
	}
	return domain.GoalStatusActive
}

// UpdateGoalProgress records a new metric value and re-derives status.
func (s *PerformanceService) UpdateGoalProgress(ctx context.Context, actor domain.Actor, goalID string, latestValue float64) (*domain.PerformanceGoal, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("staff required")
	}
	goal, err := s.goals.GetByID(ctx, goalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("performance goal", map[string]any{"goal_id": goalID})
		}
		return nil, apperrors.MapError(err)
	}

	oldStatus := goal.Status
	goal.CurrentValue = latestValue
	goal.Status = EvaluateGoal(*goal, latestValue, s.now())
	if err := s.goals.Update(ctx, goal); err != nil {
		return nil, apperrors.MapError(err)
	}

	if goal.Status != oldStatus {
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:      events.EventGoalUpdated,
			RequestID: "",
			Actor:     staffActor(actor.ID),
			Payload: events.GoalUpdatedPayload{
				GoalID:    goal.ID,
				StaffID:   goal.StaffID,
				OldStatus: oldStatus,
				NewStatus: goal.Status,
			},
		})
	}
	return goal, nil
}

// CancelGoal marks a goal CANCELLED.
func (s *PerformanceService) CancelGoal(ctx context.Context, supervisor domain.Actor, goalID string) (*domain.PerformanceGoal, error) {
	if supervisor.Role != domain.RoleSupervisor {
		return nil, apperrors.NewForbidden("supervisor capability required for goals")
	}
	goal, err := s.goals.GetByID(ctx, goalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("performance goal", map[string]any{"goal_id": goalID})
		}
		return nil, apperrors.MapError(err)
	}
	goal.Status = domain.GoalStatusCancelled
	if err := s.goals.Update(ctx, goal); err != nil {
		return nil, apperrors.MapError(err)
	}
	return goal, nil
}

// ListGoals returns a staff member's goals.
func (s *PerformanceService) ListGoals(ctx context.Context, staffID string) ([]domain.PerformanceGoal, error) {
	goals, err := s.goals.ListByStaff(ctx, staffID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return goals, nil
}
