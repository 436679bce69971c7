package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

const decisionColumns = `id, application_id, underwriter_id, decision, decision_date, comments,
       approved_amount, interest_rate, term_months, weighted_score, created_at, updated_at`

// DecisionRepository persists underwriting decisions and their reasons.
// A decision plus its reasons, stipulations and the application status flip
// are written inside one transaction owned by the service layer.
type DecisionRepository struct {
	db *sqlx.DB
}

// NewDecisionRepository constructs the repository.
func NewDecisionRepository(db *sqlx.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// BeginTx opens a transaction for a multi-write decision recording.
func (r *DecisionRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// CreateTx inserts the decision and its reasons within the transaction.
func (r *DecisionRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, decision *models.UnderwritingDecision) error {
	now := time.Now().UTC()
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.DecisionDate.IsZero() {
		decision.DecisionDate = now
	}
	decision.CreatedAt = now
	decision.UpdatedAt = now

	const query = `INSERT INTO underwriting_decisions
        (id, application_id, underwriter_id, decision, decision_date, comments, approved_amount, interest_rate, term_months, weighted_score, created_at, updated_at)
        VALUES (:id, :application_id, :underwriter_id, :decision, :decision_date, :comments, :approved_amount, :interest_rate, :term_months, :weighted_score, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, decision); err != nil {
		return fmt.Errorf("create decision: %w", err)
	}

	const reasonQuery = `INSERT INTO decision_reasons (id, decision_id, reason_code, description, is_primary, created_at)
        VALUES (:id, :decision_id, :reason_code, :description, :is_primary, :created_at)`
	for i := range decision.Reasons {
		reason := &decision.Reasons[i]
		if reason.ID == "" {
			reason.ID = uuid.NewString()
		}
		reason.DecisionID = decision.ID
		if reason.Description == "" {
			reason.Description = reason.ReasonCode.Description()
		}
		reason.CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, reasonQuery, reason); err != nil {
			return fmt.Errorf("create decision reason %s: %w", reason.ReasonCode, err)
		}
	}
	return nil
}

// FindByApplication returns the application's decision with reasons attached.
func (r *DecisionRepository) FindByApplication(ctx context.Context, applicationID string) (*models.UnderwritingDecision, error) {
	query := `SELECT ` + decisionColumns + ` FROM underwriting_decisions WHERE application_id = $1`
	var decision models.UnderwritingDecision
	if err := r.db.GetContext(ctx, &decision, query, applicationID); err != nil {
		return nil, err
	}

	const reasonQuery = `SELECT id, decision_id, reason_code, description, is_primary, created_at
        FROM decision_reasons WHERE decision_id = $1 ORDER BY is_primary DESC, created_at ASC`
	if err := r.db.SelectContext(ctx, &decision.Reasons, reasonQuery, decision.ID); err != nil {
		return nil, fmt.Errorf("load decision reasons: %w", err)
	}
	return &decision, nil
}

// ExistsForApplication reports whether a decision is already on file.
func (r *DecisionRepository) ExistsForApplication(ctx context.Context, applicationID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM underwriting_decisions WHERE application_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, applicationID); err != nil {
		return false, fmt.Errorf("check decision exists: %w", err)
	}
	return exists, nil
}

// UpdateComments amends the underwriter narrative without re-running the
// status flip or touching the decision itself.
func (r *DecisionRepository) UpdateComments(ctx context.Context, id string, comments string) error {
	const query = `UPDATE underwriting_decisions SET comments = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, comments, time.Now().UTC()); err != nil {
		return fmt.Errorf("update decision comments: %w", err)
	}
	return nil
}
