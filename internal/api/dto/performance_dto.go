package dto

import (
	"time"

	"github.com/civicgrid/request-service/internal/domain"
)

// ReviewPayload carries the five 0-10 sub-scores.
type ReviewPayload struct {
	Timeliness      float64 `json:"timeliness" validate:"gte=0,lte=10"`
	Completeness    float64 `json:"completeness" validate:"gte=0,lte=10"`
	Communication   float64 `json:"communication" validate:"gte=0,lte=10"`
	Workmanship     float64 `json:"workmanship" validate:"gte=0,lte=10"`
	CitizenCourtesy float64 `json:"citizen_courtesy" validate:"gte=0,lte=10"`
	Comments        string  `json:"comments" validate:"omitempty,max=4000"`
}

// GoalPayload creates a supervisor-set target.
type GoalPayload struct {
	StaffID     string    `json:"staff_id" validate:"required"`
	Metric      string    `json:"metric" validate:"required,max=128"`
	TargetValue float64   `json:"target_value" validate:"required,gt=0"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

// GoalProgressPayload records a fresh metric value.
type GoalProgressPayload struct {
	CurrentValue float64 `json:"current_value" validate:"gte=0"`
}

// ReviewResponse describes a recorded quality review.
type ReviewResponse struct {
	ID               string              `json:"id"`
	RequestID        string              `json:"request_id"`
	ReviewerID       string              `json:"reviewer_id"`
	Timeliness       float64             `json:"timeliness"`
	Completeness     float64             `json:"completeness"`
	Communication    float64             `json:"communication"`
	Workmanship      float64             `json:"workmanship"`
	CitizenCourtesy  float64             `json:"citizen_courtesy"`
	OverallScore     float64             `json:"overall_score"`
	ReviewStatus     domain.ReviewStatus `json:"review_status"`
	FollowUpRequired bool                `json:"follow_up_required"`
	Comments         string              `json:"comments"`
	CreatedAt        time.Time           `json:"created_at"`
}

// GoalResponse describes a performance goal.
type GoalResponse struct {
	ID           string            `json:"id"`
	StaffID      string            `json:"staff_id"`
	SetBy        string            `json:"set_by"`
	Metric       string            `json:"metric"`
	TargetValue  float64           `json:"target_value"`
	CurrentValue float64           `json:"current_value"`
	DueDate      time.Time         `json:"due_date"`
	Status       domain.GoalStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RollupResponse is the per-staff, per-period aggregate.
type RollupResponse struct {
	StaffID            string    `json:"staff_id"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	CompletedCount     int       `json:"completed_count"`
	BreachedCount      int       `json:"breached_count"`
	AvgHandlingSeconds int64     `json:"avg_handling_seconds"`
	AvgQualityScore    float64   `json:"avg_quality_score"`
	ReviewedCount      int       `json:"reviewed_count"`
	FollowUpCount      int       `json:"follow_up_count"`
	ComputedAt         time.Time `json:"computed_at"`
}
