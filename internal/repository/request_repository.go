package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicgrid/request-service/internal/domain"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// RequestFilter captures dashboard search parameters.
type RequestFilter struct {
	RequesterID  *string
	DepartmentID *string
	AssigneeID   *string
	Statuses     []domain.RequestStatus
	Priorities   []domain.RequestPriority
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	OverdueAt    *time.Time
	Limit        int
	Offset       int
}

// RequestRepository encapsulates service-request persistence.
type RequestRepository interface {
	Create(ctx context.Context, request *domain.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error)
	GetByCode(ctx context.Context, code string) (*domain.ServiceRequest, error)
	ListWithFilter(ctx context.Context, filter RequestFilter) ([]domain.ServiceRequest, error)
	// UpdateVersioned persists a mutated request guarded by the
	// caller's expected version. When deactivateAssignment is set the
	// active ledger record (if any) is completed in the same
	// transaction, so a closing transition and its ledger cleanup are
	// never observable apart.
	UpdateVersioned(ctx context.Context, request *domain.ServiceRequest, expectedVersion int64, deactivateAssignment bool) error
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, code, requester_id, department_id, category, title, description,
       status, priority, assignee_id, version, triaged_at, sla_due_at, closed_at, reopen_until,
       created_at, updated_at`

func (r *requestRepository) Create(ctx context.Context, request *domain.ServiceRequest) error {
	const query = `
        INSERT INTO service_requests (code, requester_id, department_id, category, title, description, status, priority, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		request.Code,
		request.RequesterID,
		request.DepartmentID,
		request.Category,
		request.Title,
		request.Description,
		request.Status,
		request.Priority,
	).Scan(&request.ID, &request.Version, &request.CreatedAt, &request.UpdatedAt)
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *requestRepository) GetByCode(ctx context.Context, code string) (*domain.ServiceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM service_requests WHERE code=$1`
	return r.fetchSingle(ctx, query, code)
}

func (r *requestRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.ServiceRequest, error) {
	var request domain.ServiceRequest
	if err := scanRequest(r.pool.QueryRow(ctx, query, arg), &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) UpdateVersioned(ctx context.Context, request *domain.ServiceRequest, expectedVersion int64, deactivateAssignment bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE service_requests SET status=$1, priority=$2, assignee_id=$3, triaged_at=$4,
            sla_due_at=$5, closed_at=$6, reopen_until=$7, version=$8, updated_at=NOW()
        WHERE id=$9 AND version=$10`
	cmd, err := tx.Exec(ctx, query,
		request.Status,
		request.Priority,
		request.AssigneeID,
		request.TriagedAt,
		request.SLADueAt,
		request.ClosedAt,
		request.ReopenUntil,
		request.Version,
		request.ID,
		expectedVersion,
	)
	if err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	if cmd.RowsAffected() == 0 {
		return r.versionConflict(ctx, request.ID, expectedVersion)
	}

	if deactivateAssignment {
		const deactivate = `
            UPDATE assignment_records SET is_active=FALSE, completed_at=NOW()
            WHERE request_id=$1 AND is_active=TRUE`
		if _, err := tx.Exec(ctx, deactivate, request.ID); err != nil {
			return apperrors.NewStorageUnavailable(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	return nil
}

// versionConflict distinguishes a stale version from a missing row.
func (r *requestRepository) versionConflict(ctx context.Context, id string, expectedVersion int64) error {
	var current int64
	err := r.pool.QueryRow(ctx, `SELECT version FROM service_requests WHERE id=$1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("service request", map[string]any{"request_id": id})
		}
		return apperrors.NewStorageUnavailable(err)
	}
	return apperrors.NewConcurrencyConflict(expectedVersion, current)
}

func (r *requestRepository) ListWithFilter(ctx context.Context, filter RequestFilter) ([]domain.ServiceRequest, error) {
	base := `SELECT ` + requestColumns + ` FROM service_requests`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.OverdueAt != nil {
		args = append(args, *filter.OverdueAt)
		clauses = append(clauses, fmt.Sprintf(
			"sla_due_at IS NOT NULL AND sla_due_at < $%d AND status NOT IN ('RESOLVED','REJECTED','CLOSED','CANCELLED')", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner, request *domain.ServiceRequest) error {
	return row.Scan(
		&request.ID,
		&request.Code,
		&request.RequesterID,
		&request.DepartmentID,
		&request.Category,
		&request.Title,
		&request.Description,
		&request.Status,
		&request.Priority,
		&request.AssigneeID,
		&request.Version,
		&request.TriagedAt,
		&request.SLADueAt,
		&request.ClosedAt,
		&request.ReopenUntil,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
}

func scanRequests(rows pgx.Rows) ([]domain.ServiceRequest, error) {
	var result []domain.ServiceRequest
	for rows.Next() {
		var request domain.ServiceRequest
		if err := scanRequest(rows, &request); err != nil {
			return nil, err
		}
		result = append(result, request)
	}
	return result, rows.Err()
}
