package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicgrid/request-service/internal/domain"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// AssignmentRepository owns the append-only assignment ledger.
type AssignmentRepository interface {
	// Assign atomically completes the current active record, inserts
	// the new one and updates the request's assignee projection,
	// guarded by the request's expected version. The ledger and the
	// request never disagree.
	Assign(ctx context.Context, record *domain.AssignmentRecord, expectedVersion int64) error
	GetActiveByRequest(ctx context.Context, requestID string) (*domain.AssignmentRecord, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.AssignmentRecord, error)
	CountActiveByAssignee(ctx context.Context, assigneeID string) (int, error)
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository instantiates repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

const assignmentColumns = `id, request_id, assigned_from, assigned_to, assigned_by, reason,
       workload_score, is_active, completed_at, created_at`

func (r *assignmentRepository) Assign(ctx context.Context, record *domain.AssignmentRecord, expectedVersion int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Guard on the request version first so a losing writer fails
	// before touching the ledger.
	const bump = `
        UPDATE service_requests SET assignee_id=$1, version=version+1, updated_at=NOW()
        WHERE id=$2 AND version=$3`
	cmd, err := tx.Exec(ctx, bump, record.AssignedTo, record.RequestID, expectedVersion)
	if err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	if cmd.RowsAffected() == 0 {
		var current int64
		err := r.pool.QueryRow(ctx, `SELECT version FROM service_requests WHERE id=$1`, record.RequestID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("service request", map[string]any{"request_id": record.RequestID})
			}
			return apperrors.NewStorageUnavailable(err)
		}
		return apperrors.NewConcurrencyConflict(expectedVersion, current)
	}

	var previous *string
	const deactivate = `
        UPDATE assignment_records SET is_active=FALSE, completed_at=NOW()
        WHERE request_id=$1 AND is_active=TRUE
        RETURNING assigned_to`
	var prior string
	err = tx.QueryRow(ctx, deactivate, record.RequestID).Scan(&prior)
	switch {
	case err == nil:
		previous = &prior
	case errors.Is(err, pgx.ErrNoRows):
		// first assignment, nothing to supersede
	default:
		return apperrors.NewStorageUnavailable(err)
	}
	record.AssignedFrom = previous

	const insert = `
        INSERT INTO assignment_records (request_id, assigned_from, assigned_to, assigned_by, reason, workload_score, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,TRUE)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insert,
		record.RequestID,
		record.AssignedFrom,
		record.AssignedTo,
		record.AssignedBy,
		record.Reason,
		record.WorkloadScore,
	).Scan(&record.ID, &record.CreatedAt); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	record.IsActive = true

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	return nil
}

func (r *assignmentRepository) GetActiveByRequest(ctx context.Context, requestID string) (*domain.AssignmentRecord, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignment_records WHERE request_id=$1 AND is_active=TRUE`
	var record domain.AssignmentRecord
	if err := scanAssignment(r.pool.QueryRow(ctx, query, requestID), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *assignmentRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.AssignmentRecord, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignment_records WHERE request_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssignmentRecord
	for rows.Next() {
		var record domain.AssignmentRecord
		if err := scanAssignment(rows, &record); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (r *assignmentRepository) CountActiveByAssignee(ctx context.Context, assigneeID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assignment_records WHERE assigned_to=$1 AND is_active=TRUE`,
		assigneeID).Scan(&count)
	return count, err
}

func scanAssignment(row rowScanner, record *domain.AssignmentRecord) error {
	return row.Scan(
		&record.ID,
		&record.RequestID,
		&record.AssignedFrom,
		&record.AssignedTo,
		&record.AssignedBy,
		&record.Reason,
		&record.WorkloadScore,
		&record.IsActive,
		&record.CompletedAt,
		&record.CreatedAt,
	)
}
