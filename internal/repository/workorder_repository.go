package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicgrid/request-service/internal/domain"
	apperrors "github.com/civicgrid/request-service/pkg/util"
)

// WorkOrderRepository persists field work orders and their time entries.
type WorkOrderRepository interface {
	Create(ctx context.Context, order *domain.FieldWorkOrder) error
	GetByID(ctx context.Context, id string) (*domain.FieldWorkOrder, error)
	Update(ctx context.Context, order *domain.FieldWorkOrder) error
	ListOpenByRequest(ctx context.Context, requestID string) ([]domain.FieldWorkOrder, error)
	ListByAgent(ctx context.Context, agentID string, includeClosed bool) ([]domain.FieldWorkOrder, error)
	// CreateTimeEntry inserts an open segment; the partial unique
	// index on (agent_id) WHERE end_time IS NULL serializes segment
	// starts per agent.
	CreateTimeEntry(ctx context.Context, entry *domain.TimeEntry) error
	GetOpenTimeEntry(ctx context.Context, agentID string) (*domain.TimeEntry, error)
	CloseTimeEntry(ctx context.Context, entryID string, endTime time.Time) error
	ListTimeEntries(ctx context.Context, workOrderID string) ([]domain.TimeEntry, error)
}

type workOrderRepository struct {
	pool *pgxpool.Pool
}

// NewWorkOrderRepository instantiates repository.
func NewWorkOrderRepository(pool *pgxpool.Pool) WorkOrderRepository {
	return &workOrderRepository{pool: pool}
}

const workOrderColumns = `id, request_id, assignment_id, assigned_agent_id, status,
       check_in_time, check_in_lat, check_in_lng, check_out_time, actual_duration_seconds,
       completion_notes, follow_up_required, created_at, updated_at`

func (r *workOrderRepository) Create(ctx context.Context, order *domain.FieldWorkOrder) error {
	const query = `
        INSERT INTO field_work_orders (request_id, assignment_id, assigned_agent_id, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		order.RequestID,
		order.AssignmentID,
		order.AssignedAgentID,
		order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *workOrderRepository) GetByID(ctx context.Context, id string) (*domain.FieldWorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM field_work_orders WHERE id=$1`
	var order domain.FieldWorkOrder
	if err := scanWorkOrder(r.pool.QueryRow(ctx, query, id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *workOrderRepository) Update(ctx context.Context, order *domain.FieldWorkOrder) error {
	const query = `
        UPDATE field_work_orders SET status=$1, check_in_time=$2, check_in_lat=$3, check_in_lng=$4,
            check_out_time=$5, actual_duration_seconds=$6, completion_notes=$7, follow_up_required=$8,
            updated_at=NOW()
        WHERE id=$9`
	var lat, lng *float64
	if order.CheckInLocation != nil {
		lat = &order.CheckInLocation.Latitude
		lng = &order.CheckInLocation.Longitude
	}
	var durationSeconds *int64
	if order.ActualDuration != nil {
		seconds := int64(order.ActualDuration.Seconds())
		durationSeconds = &seconds
	}
	cmd, err := r.pool.Exec(ctx, query,
		order.Status,
		order.CheckInTime,
		lat,
		lng,
		order.CheckOutTime,
		durationSeconds,
		order.CompletionNotes,
		order.FollowUpRequired,
		order.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workOrderRepository) ListOpenByRequest(ctx context.Context, requestID string) ([]domain.FieldWorkOrder, error) {
	query := `SELECT ` + workOrderColumns + `
        FROM field_work_orders
        WHERE request_id=$1 AND status NOT IN ('COMPLETED','CANCELLED')
        ORDER BY created_at ASC`
	return r.list(ctx, query, requestID)
}

func (r *workOrderRepository) ListByAgent(ctx context.Context, agentID string, includeClosed bool) ([]domain.FieldWorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM field_work_orders WHERE assigned_agent_id=$1`
	if !includeClosed {
		query += ` AND status NOT IN ('COMPLETED','CANCELLED')`
	}
	query += ` ORDER BY created_at DESC`
	return r.list(ctx, query, agentID)
}

func (r *workOrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.FieldWorkOrder, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FieldWorkOrder
	for rows.Next() {
		var order domain.FieldWorkOrder
		if err := scanWorkOrder(rows, &order); err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}

func (r *workOrderRepository) CreateTimeEntry(ctx context.Context, entry *domain.TimeEntry) error {
	const query = `
        INSERT INTO work_order_time_entries (work_order_id, agent_id, kind, start_time, notes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		entry.WorkOrderID,
		entry.AgentID,
		entry.Kind,
		entry.StartTime,
		entry.Notes,
	).Scan(&entry.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.NewOpenSegmentConflict(entry.AgentID)
		}
		return err
	}
	return nil
}

func (r *workOrderRepository) GetOpenTimeEntry(ctx context.Context, agentID string) (*domain.TimeEntry, error) {
	const query = `
        SELECT id, work_order_id, agent_id, kind, start_time, end_time, notes
        FROM work_order_time_entries
        WHERE agent_id=$1 AND end_time IS NULL`
	var entry domain.TimeEntry
	err := r.pool.QueryRow(ctx, query, agentID).Scan(
		&entry.ID, &entry.WorkOrderID, &entry.AgentID, &entry.Kind,
		&entry.StartTime, &entry.EndTime, &entry.Notes)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *workOrderRepository) CloseTimeEntry(ctx context.Context, entryID string, endTime time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE work_order_time_entries SET end_time=$1 WHERE id=$2 AND end_time IS NULL`,
		endTime, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workOrderRepository) ListTimeEntries(ctx context.Context, workOrderID string) ([]domain.TimeEntry, error) {
	const query = `
        SELECT id, work_order_id, agent_id, kind, start_time, end_time, notes
        FROM work_order_time_entries
        WHERE work_order_id=$1 ORDER BY start_time ASC`
	rows, err := r.pool.Query(ctx, query, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TimeEntry
	for rows.Next() {
		var entry domain.TimeEntry
		if err := rows.Scan(&entry.ID, &entry.WorkOrderID, &entry.AgentID, &entry.Kind,
			&entry.StartTime, &entry.EndTime, &entry.Notes); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanWorkOrder(row rowScanner, order *domain.FieldWorkOrder) error {
	var lat, lng *float64
	var durationSeconds *int64
	if err := row.Scan(
		&order.ID,
		&order.RequestID,
		&order.AssignmentID,
		&order.AssignedAgentID,
		&order.Status,
		&order.CheckInTime,
		&lat,
		&lng,
		&order.CheckOutTime,
		&durationSeconds,
		&order.CompletionNotes,
		&order.FollowUpRequired,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return err
	}
	if lat != nil && lng != nil {
		order.CheckInLocation = &domain.GeoPoint{Latitude: *lat, Longitude: *lng}
	}
	if durationSeconds != nil {
		duration := time.Duration(*durationSeconds) * time.Second
		order.ActualDuration = &duration
	}
	return nil
}
