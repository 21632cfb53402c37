package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicgrid/request-service/internal/domain"
)

// ReviewRepository persists quality reviews.
type ReviewRepository interface {
	Upsert(ctx context.Context, review *domain.QualityReview) error
	GetByRequest(ctx context.Context, requestID string) (*domain.QualityReview, error)
}

// GoalRepository persists performance goals.
type GoalRepository interface {
	Create(ctx context.Context, goal *domain.PerformanceGoal) error
	Update(ctx context.Context, goal *domain.PerformanceGoal) error
	GetByID(ctx context.Context, id string) (*domain.PerformanceGoal, error)
	ListByStaff(ctx context.Context, staffID string) ([]domain.PerformanceGoal, error)
}

// PerformanceRepository reads the stored history rollups are computed
// from. Rollups themselves are never persisted; they are recomputed
// (and redis-cached) on demand.
type PerformanceRepository interface {
	ListCompletedRequests(ctx context.Context, staffID string, period domain.PerformancePeriod) ([]domain.ServiceRequest, error)
	ListReviewsForStaff(ctx context.Context, staffID string, period domain.PerformancePeriod) ([]domain.QualityReview, error)
}

type reviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository instantiates repository.
func NewReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &reviewRepository{pool: pool}
}

const reviewColumns = `id, request_id, reviewer_id, timeliness, completeness, communication,
       workmanship, citizen_courtesy, overall_score, review_status, follow_up_required, comments,
       created_at, updated_at`

func (r *reviewRepository) Upsert(ctx context.Context, review *domain.QualityReview) error {
	const query = `
        INSERT INTO quality_reviews (request_id, reviewer_id, timeliness, completeness, communication,
            workmanship, citizen_courtesy, overall_score, review_status, follow_up_required, comments)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (request_id) DO UPDATE SET
            reviewer_id=EXCLUDED.reviewer_id,
            timeliness=EXCLUDED.timeliness,
            completeness=EXCLUDED.completeness,
            communication=EXCLUDED.communication,
            workmanship=EXCLUDED.workmanship,
            citizen_courtesy=EXCLUDED.citizen_courtesy,
            overall_score=EXCLUDED.overall_score,
            review_status=EXCLUDED.review_status,
            follow_up_required=EXCLUDED.follow_up_required,
            comments=EXCLUDED.comments,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		review.RequestID,
		review.ReviewerID,
		review.Timeliness,
		review.Completeness,
		review.Communication,
		review.Workmanship,
		review.CitizenCourtesy,
		review.OverallScore,
		review.ReviewStatus,
		review.FollowUpRequired,
		review.Comments,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)
}

func (r *reviewRepository) GetByRequest(ctx context.Context, requestID string) (*domain.QualityReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM quality_reviews WHERE request_id=$1`
	var review domain.QualityReview
	if err := scanReview(r.pool.QueryRow(ctx, query, requestID), &review); err != nil {
		return nil, err
	}
	return &review, nil
}

type goalRepository struct {
	pool *pgxpool.Pool
}

// NewGoalRepository instantiates repository.
func NewGoalRepository(pool *pgxpool.Pool) GoalRepository {
	return &goalRepository{pool: pool}
}

const goalColumns = `id, staff_id, set_by, metric, target_value, current_value, due_date, status,
       created_at, updated_at`

func (r *goalRepository) Create(ctx context.Context, goal *domain.PerformanceGoal) error {
	const query = `
        INSERT INTO performance_goals (staff_id, set_by, metric, target_value, current_value, due_date, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		goal.StaffID,
		goal.SetBy,
		goal.Metric,
		goal.TargetValue,
		goal.CurrentValue,
		goal.DueDate,
		goal.Status,
	).Scan(&goal.ID, &goal.CreatedAt, &goal.UpdatedAt)
}

func (r *goalRepository) Update(ctx context.Context, goal *domain.PerformanceGoal) error {
	const query = `
        UPDATE performance_goals SET current_value=$1, status=$2, updated_at=NOW()
        WHERE id=$3`
	_, err := r.pool.Exec(ctx, query, goal.CurrentValue, goal.Status, goal.ID)
	return err
}

func (r *goalRepository) GetByID(ctx context.Context, id string) (*domain.PerformanceGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM performance_goals WHERE id=$1`
	var goal domain.PerformanceGoal
	if err := scanGoal(r.pool.QueryRow(ctx, query, id), &goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

func (r *goalRepository) ListByStaff(ctx context.Context, staffID string) ([]domain.PerformanceGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM performance_goals WHERE staff_id=$1 ORDER BY due_date ASC`
	rows, err := r.pool.Query(ctx, query, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PerformanceGoal
	for rows.Next() {
		var goal domain.PerformanceGoal
		if err := scanGoal(rows, &goal); err != nil {
			return nil, err
		}
		result = append(result, goal)
	}
	return result, rows.Err()
}

type performanceRepository struct {
	pool *pgxpool.Pool
}

// NewPerformanceRepository instantiates repository.
func NewPerformanceRepository(pool *pgxpool.Pool) PerformanceRepository {
	return &performanceRepository{pool: pool}
}

func (r *performanceRepository) ListCompletedRequests(ctx context.Context, staffID string, period domain.PerformancePeriod) ([]domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + `
        FROM service_requests
        WHERE assignee_id=$1
          AND status IN ('RESOLVED','CLOSED')
          AND closed_at >= $2 AND closed_at < $3
        ORDER BY closed_at ASC`
	rows, err := r.pool.Query(ctx, query, staffID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *performanceRepository) ListReviewsForStaff(ctx context.Context, staffID string, period domain.PerformancePeriod) ([]domain.QualityReview, error) {
	query := `SELECT qr.id, qr.request_id, qr.reviewer_id, qr.timeliness, qr.completeness, qr.communication,
            qr.workmanship, qr.citizen_courtesy, qr.overall_score, qr.review_status, qr.follow_up_required,
            qr.comments, qr.created_at, qr.updated_at
        FROM quality_reviews qr
        JOIN service_requests sr ON sr.id = qr.request_id
        WHERE sr.assignee_id=$1
          AND sr.closed_at >= $2 AND sr.closed_at < $3
        ORDER BY qr.created_at ASC`
	rows, err := r.pool.Query(ctx, query, staffID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QualityReview
	for rows.Next() {
		var review domain.QualityReview
		if err := scanReview(rows, &review); err != nil {
			return nil, err
		}
		result = append(result, review)
	}
	return result, rows.Err()
}

func scanReview(row rowScanner, review *domain.QualityReview) error {
	return row.Scan(
		&review.ID,
		&review.RequestID,
		&review.ReviewerID,
		&review.Timeliness,
		&review.Completeness,
		&review.Communication,
		&review.Workmanship,
		&review.CitizenCourtesy,
		&review.OverallScore,
		&review.ReviewStatus,
		&review.FollowUpRequired,
		&review.Comments,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
}

func scanGoal(row rowScanner, goal *domain.PerformanceGoal) error {
	return row.Scan(
		&goal.ID,
		&goal.StaffID,
		&goal.SetBy,
		&goal.Metric,
		&goal.TargetValue,
		&goal.CurrentValue,
		&goal.DueDate,
		&goal.Status,
		&goal.CreatedAt,
		&goal.UpdatedAt,
	)
}
