package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

const creditColumns = `id, application_id, borrower_id, is_co_borrower, credit_score, debt_to_income_ratio, monthly_debt,
       report_reference, report_path, report_date, created_at`

// CreditRepository reads bureau snapshots. Rows are written by the
// credit-pull workflow; underwriting only consumes them.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// FindPrimaryByApplication returns the latest primary-borrower snapshot.
func (r *CreditRepository) FindPrimaryByApplication(ctx context.Context, applicationID string) (*models.CreditInformation, error) {
	query := `SELECT ` + creditColumns + `
        FROM credit_information
        WHERE application_id = $1 AND is_co_borrower = FALSE
        ORDER BY report_date DESC LIMIT 1`
	var info models.CreditInformation
	if err := r.db.GetContext(ctx, &info, query, applicationID); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListByApplication returns every snapshot for the application, newest first.
func (r *CreditRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.CreditInformation, error) {
	query := `SELECT ` + creditColumns + `
        FROM credit_information WHERE application_id = $1 ORDER BY report_date DESC`
	var infos []models.CreditInformation
	if err := r.db.SelectContext(ctx, &infos, query, applicationID); err != nil {
		return nil, err
	}
	return infos, nil
}
