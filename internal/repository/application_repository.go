package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

// ApplicationRepository reads loan applications and writes back their status.
// The underwriting core never mutates any other application column.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// FindByID fetches an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.LoanApplication, error) {
	const query = `SELECT id, borrower_id, co_borrower_id, school_id, program_id, requested_amount, status, submitted_at, created_at, updated_at
        FROM loan_applications WHERE id = $1`
	var app models.LoanApplication
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindDetailByID fetches an application joined with its borrower profile and
// program. The program is optional so the join stays on the application side.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	app, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.ApplicationDetail{LoanApplication: *app}

	const borrowerQuery = `SELECT id, full_name, citizenship_status, annual_income, monthly_income, monthly_housing_payment,
        employment_months, employer_name, employment_verified_at
        FROM borrower_profiles WHERE id = $1`
	if err := r.db.GetContext(ctx, &detail.Borrower, borrowerQuery, app.BorrowerID); err != nil {
		return nil, fmt.Errorf("load borrower %s: %w", app.BorrowerID, err)
	}

	if app.ProgramID != nil {
		const programQuery = `SELECT id, school_id, name, status FROM programs WHERE id = $1`
		var program models.Program
		if err := r.db.GetContext(ctx, &program, programQuery, *app.ProgramID); err != nil {
			if err != sql.ErrNoRows {
				return nil, fmt.Errorf("load program %s: %w", *app.ProgramID, err)
			}
		} else {
			detail.Program = &program
		}
	}

	return detail, nil
}

// UpdateStatus moves the application to a new lifecycle state.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error {
	const query = `UPDATE loan_applications SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatusTx is UpdateStatus inside an existing transaction.
func (r *ApplicationRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus) error {
	const query = `UPDATE loan_applications SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
