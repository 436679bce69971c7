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

const stipulationColumns = `id, application_id, stipulation_type, description, required_by_date, status,
       created_by, satisfied_by, satisfied_at, created_at, updated_at`

// StipulationRepository persists funding stipulations. Resolution methods
// are conditional on the PENDING status so a stipulation resolves once.
type StipulationRepository struct {
	db *sqlx.DB
}

// NewStipulationRepository constructs the repository.
func NewStipulationRepository(db *sqlx.DB) *StipulationRepository {
	return &StipulationRepository{db: db}
}

// CreateTx inserts a batch of stipulations within an existing transaction.
func (r *StipulationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, stipulations []models.Stipulation) error {
	if len(stipulations) == 0 {
		return nil
	}
	now := time.Now().UTC()
	const query = `INSERT INTO stipulations
        (id, application_id, stipulation_type, description, required_by_date, status, created_by, satisfied_by, satisfied_at, created_at, updated_at)
        VALUES (:id, :application_id, :stipulation_type, :description, :required_by_date, :status, :created_by, :satisfied_by, :satisfied_at, :created_at, :updated_at)`
	for i := range stipulations {
		s := &stipulations[i]
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.Status == "" {
			s.Status = models.StipulationStatusPending
		}
		s.CreatedAt = now
		s.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, s); err != nil {
			return fmt.Errorf("create stipulation %s: %w", s.Type, err)
		}
	}
	return nil
}

// FindByID fetches a stipulation by identifier.
func (r *StipulationRepository) FindByID(ctx context.Context, id string) (*models.Stipulation, error) {
	query := `SELECT ` + stipulationColumns + ` FROM stipulations WHERE id = $1`
	var s models.Stipulation
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns stipulations matching the filter, soonest due first.
func (r *StipulationRepository) List(ctx context.Context, filter models.StipulationFilter) ([]models.Stipulation, error) {
	var conditions []string
	var args []interface{}

	if filter.ApplicationID != "" {
		conditions = append(conditions, fmt.Sprintf("application_id = $%d", len(args)+1))
		args = append(args, filter.ApplicationID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("stipulation_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Overdue != nil && *filter.Overdue {
		conditions = append(conditions, fmt.Sprintf("required_by_date < $%d AND status NOT IN ($%d, $%d)", len(args)+1, len(args)+2, len(args)+3))
		args = append(args, time.Now().UTC(), models.StipulationStatusSatisfied, models.StipulationStatusWaived)
	}

	query := `SELECT ` + stipulationColumns + ` FROM stipulations`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY required_by_date ASC"

	var stipulations []models.Stipulation
	if err := r.db.SelectContext(ctx, &stipulations, query, args...); err != nil {
		return nil, fmt.Errorf("list stipulations: %w", err)
	}
	return stipulations, nil
}

// Satisfy marks a pending stipulation satisfied, stamping actor and time
// together. Returns sql.ErrNoRows when the stipulation already resolved.
func (r *StipulationRepository) Satisfy(ctx context.Context, id string, userID string, at time.Time) error {
	const query = `UPDATE stipulations
        SET status = $3, satisfied_by = $4, satisfied_at = $5, updated_at = $5
        WHERE id = $1 AND status = $2`
	return r.resolve(ctx, query, id, models.StipulationStatusPending, models.StipulationStatusSatisfied, userID, at)
}

// Waive marks a pending stipulation waived by the given user.
func (r *StipulationRepository) Waive(ctx context.Context, id string, userID string, at time.Time) error {
	const query = `UPDATE stipulations
        SET status = $3, satisfied_by = $4, satisfied_at = $5, updated_at = $5
        WHERE id = $1 AND status = $2`
	return r.resolve(ctx, query, id, models.StipulationStatusPending, models.StipulationStatusWaived, userID, at)
}

func (r *StipulationRepository) resolve(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("resolve stipulation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check stipulation rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExpireOverdue flips pending stipulations past their deadline to EXPIRED
// and returns how many rows were swept.
func (r *StipulationRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE stipulations SET status = $1, updated_at = $2
        WHERE status = $3 AND required_by_date < $2`
	result, err := r.db.ExecContext(ctx, query, models.StipulationStatusExpired, now, models.StipulationStatusPending)
	if err != nil {
		return 0, fmt.Errorf("expire stipulations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check expired rows: %w", err)
	}
	return rows, nil
}

// CountOpenByApplication returns how many stipulations still block funding.
func (r *StipulationRepository) CountOpenByApplication(ctx context.Context, applicationID string) (int, error) {
	const query = `SELECT COUNT(*) FROM stipulations
        WHERE application_id = $1 AND status NOT IN ($2, $3)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, applicationID,
		models.StipulationStatusSatisfied, models.StipulationStatusWaived); err != nil {
		return 0, fmt.Errorf("count open stipulations: %w", err)
	}
	return total, nil
}
