package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

func newDecisionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDecisionRepositoryCreateTxWithReasons(t *testing.T) {
	db, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	repo := NewDecisionRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO underwriting_decisions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decision_reasons")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTx(context.Background())
	require.NoError(t, err)

	decision := &models.UnderwritingDecision{
		ApplicationID: "app-1",
		UnderwriterID: "uw-1",
		Decision:      models.DecisionDeny,
		Reasons: []models.DecisionReason{
			{ReasonCode: models.ReasonCreditScore, IsPrimary: true},
		},
	}
	require.NoError(t, repo.CreateTx(context.Background(), tx, decision))
	require.NoError(t, tx.Commit())

	require.NotEmpty(t, decision.ID)
	require.Equal(t, decision.ID, decision.Reasons[0].DecisionID)
	// Blank descriptions pick up the default text for the code.
	require.Equal(t, models.ReasonCreditScore.Description(), decision.Reasons[0].Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionRepositoryExistsForApplication(t *testing.T) {
	db, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	repo := NewDecisionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForApplication(context.Background(), "app-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionRepositoryFindByApplicationLoadsReasons(t *testing.T) {
	db, mock, cleanup := newDecisionRepoMock(t)
	defer cleanup()

	repo := NewDecisionRepository(db)
	now := time.Now()
	decisionRows := sqlmock.NewRows([]string{"id", "application_id", "underwriter_id", "decision", "decision_date", "comments", "approved_amount", "interest_rate", "term_months", "weighted_score", "created_at", "updated_at"}).
		AddRow("dec-1", "app-1", "uw-1", "DENY", now, "weak profile", nil, nil, nil, 0.32, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, underwriter_id")).
		WithArgs("app-1").
		WillReturnRows(decisionRows)

	reasonRows := sqlmock.NewRows([]string{"id", "decision_id", "reason_code", "description", "is_primary", "created_at"}).
		AddRow("r-1", "dec-1", "CREDIT_SCORE", "credit score below program requirements", true, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, decision_id, reason_code")).
		WithArgs("dec-1").
		WillReturnRows(reasonRows)

	decision, err := repo.FindByApplication(context.Background(), "app-1")
	require.NoError(t, err)
	require.Equal(t, models.DecisionDeny, decision.Decision)
	require.Len(t, decision.Reasons, 1)
	require.Equal(t, models.ReasonCreditScore, decision.Reasons[0].ReasonCode)
	require.NoError(t, mock.ExpectationsWereMet())
}
