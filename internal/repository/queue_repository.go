package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

const queueColumns = `id, application_id, assigned_to, assignment_date, priority, status, risk_score, due_date, version, created_at, updated_at`

// QueueRepository handles persistence of underwriting queue items. Every
// state transition is a conditional UPDATE guarded by the item's version so
// concurrent attempts produce exactly one winner; losers get sql.ErrNoRows.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository constructs the repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Create persists a new queue item. The SLA due date is derived from the
// priority unless explicitly provided; assignment_date auto-populates when
// the item is created pre-assigned.
func (r *QueueRepository) Create(ctx context.Context, item *models.UnderwritingQueue) error {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Priority == "" {
		item.Priority = models.QueuePriorityMedium
	}
	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}
	if item.DueDate.IsZero() {
		item.DueDate = now.Add(time.Duration(item.Priority.SLAHours()) * time.Hour)
	}
	if item.AssignedTo != nil && item.AssignmentDate == nil {
		item.AssignmentDate = &now
	}
	item.Version = 1
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO underwriting_queue (id, application_id, assigned_to, assignment_date, priority, status, risk_score, due_date, version, created_at, updated_at)
        VALUES (:id, :application_id, :assigned_to, :assignment_date, :priority, :status, :risk_score, :due_date, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create queue item: %w", err)
	}
	return nil
}

// FindByID returns a queue item by its ID.
func (r *QueueRepository) FindByID(ctx context.Context, id string) (*models.UnderwritingQueue, error) {
	query := fmt.Sprintf(`SELECT %s FROM underwriting_queue WHERE id = $1`, queueColumns)
	var item models.UnderwritingQueue
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindActiveByApplication returns the application's live queue entry.
func (r *QueueRepository) FindActiveByApplication(ctx context.Context, applicationID string) (*models.UnderwritingQueue, error) {
	query := fmt.Sprintf(`SELECT %s FROM underwriting_queue
        WHERE application_id = $1 AND status IN ($2, $3, $4, $5)
        ORDER BY created_at DESC LIMIT 1`, queueColumns)
	var item models.UnderwritingQueue
	if err := r.db.GetContext(ctx, &item, query, applicationID,
		models.QueueStatusPending, models.QueueStatusAssigned, models.QueueStatusInProgress,
		models.QueueStatusReturned); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns queue items filtered by the provided criteria.
func (r *QueueRepository) List(ctx context.Context, filter models.QueueFilter) ([]models.UnderwritingQueue, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", len(args)+1))
		args = append(args, filter.Priority)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, fmt.Sprintf("assigned_to = $%d", len(args)+1))
		args = append(args, filter.AssignedTo)
	}
	if filter.Overdue != nil && *filter.Overdue {
		conditions = append(conditions, fmt.Sprintf("due_date < $%d AND status <> $%d", len(args)+1, len(args)+2))
		args = append(args, time.Now().UTC(), models.QueueStatusCompleted)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"due_date":   "due_date",
		"priority":   "priority",
		"risk_score": "risk_score",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "due_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM underwriting_queue%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		queueColumns, clause, orderBy, order, size, offset)

	var items []models.UnderwritingQueue
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list queue items: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM underwriting_queue" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count queue items: %w", err)
	}
	return items, total, nil
}

// Assign claims the item for an underwriter. The version guard ensures two
// concurrent assignments cannot both succeed.
func (r *QueueRepository) Assign(ctx context.Context, id string, version int, underwriterID string, at time.Time) error {
	const query = `UPDATE underwriting_queue
        SET assigned_to = $3, assignment_date = $4, status = $5, version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $2 AND status IN ($6, $7, $8)`
	return r.transition(ctx, query, id, version, underwriterID, at, models.QueueStatusAssigned,
		models.QueueStatusPending, models.QueueStatusReturned, models.QueueStatusAssigned)
}

// StartReview moves an assigned item into review.
func (r *QueueRepository) StartReview(ctx context.Context, id string, version int, at time.Time) error {
	const query = `UPDATE underwriting_queue
        SET status = $3, version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $2 AND status = $5 AND assigned_to IS NOT NULL`
	return r.transition(ctx, query, id, version, models.QueueStatusInProgress, at, models.QueueStatusAssigned)
}

// Complete closes an in-progress item.
func (r *QueueRepository) Complete(ctx context.Context, id string, version int, at time.Time) error {
	const query = `UPDATE underwriting_queue
        SET status = $3, version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $2 AND status = $5`
	return r.transition(ctx, query, id, version, models.QueueStatusCompleted, at, models.QueueStatusInProgress)
}

// ReturnToQueue sends an active item back, clearing the assignment.
func (r *QueueRepository) ReturnToQueue(ctx context.Context, id string, version int, at time.Time) error {
	const query = `UPDATE underwriting_queue
        SET status = $3, assigned_to = NULL, assignment_date = NULL, version = version + 1, updated_at = $4
        WHERE id = $1 AND version = $2 AND status IN ($5, $6, $7)`
	return r.transition(ctx, query, id, version, models.QueueStatusReturned, at,
		models.QueueStatusPending, models.QueueStatusAssigned, models.QueueStatusInProgress)
}

func (r *QueueRepository) transition(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("queue transition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check queue transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByStatus aggregates queue depth per status.
func (r *QueueRepository) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM underwriting_queue GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count queue by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int)
	for rows.Next() {
		var status models.QueueStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan queue count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}

// CountOverdue returns the number of items past due and not completed.
func (r *QueueRepository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM underwriting_queue WHERE due_date < $1 AND status <> $2`
	var total int
	if err := r.db.GetContext(ctx, &total, query, now, models.QueueStatusCompleted); err != nil {
		return 0, fmt.Errorf("count overdue queue items: %w", err)
	}
	return total, nil
}
