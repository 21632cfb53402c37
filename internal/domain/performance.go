package domain

import "time"

// ReviewStatus enumerates supervisor review outcomes.
type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "PENDING"
	ReviewStatusCompleted ReviewStatus = "COMPLETED"
)

// QualityReview scores a closed request on five 0-10 axes. The overall
// score is always the arithmetic mean of the sub-scores, recomputed on
// every edit rather than stored independently.
type QualityReview struct {
	ID               string
	RequestID        string
	ReviewerID       string
	Timeliness       float64
	Completeness     float64
	Communication    float64
	Workmanship      float64
	CitizenCourtesy  float64
	OverallScore     float64
	ReviewStatus     ReviewStatus
	FollowUpRequired bool
	Comments         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SubScores returns the five sub-scores in a fixed order.
func (r *QualityReview) SubScores() [5]float64 {
	return [5]float64{r.Timeliness, r.Completeness, r.Communication, r.Workmanship, r.CitizenCourtesy}
}

// GoalStatus enumerates performance goal states. ACHIEVED and MISSED
// are computed from current value and due date, never set by a client.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "ACTIVE"
	GoalStatusAchieved  GoalStatus = "ACHIEVED"
	GoalStatusMissed    GoalStatus = "MISSED"
	GoalStatusCancelled GoalStatus = "CANCELLED"
)

// PerformanceGoal is a supervisor-set target for a staff member.
type PerformanceGoal struct {
	ID           string
	StaffID      string
	SetBy        string
	Metric       string
	TargetValue  float64
	CurrentValue float64
	DueDate      time.Time
	Status       GoalStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PerformancePeriod identifies a calendar rollup window.
type PerformancePeriod struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside [Start, End).
func (p PerformancePeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// StaffPerformance is the per-staff, per-period aggregate feeding
// supervisor dashboards. It is a pure function of stored history.
type StaffPerformance struct {
	StaffID         string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	CompletedCount  int
	BreachedCount   int
	AvgHandlingTime time.Duration
	AvgQualityScore float64
	ReviewedCount   int
	FollowUpCount   int
	ComputedAt      time.Time
}
