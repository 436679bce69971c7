package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/models"
)

func newStipulationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStipulationRepositorySatisfyOnce(t *testing.T) {
	db, mock, cleanup := newStipulationRepoMock(t)
	defer cleanup()

	repo := NewStipulationRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE stipulations")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Satisfy(context.Background(), "stip-1", "uw-1", now))

	// Already satisfied, the conditional update matches nothing.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stipulations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Satisfy(context.Background(), "stip-1", "uw-2", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStipulationRepositoryWaive(t *testing.T) {
	db, mock, cleanup := newStipulationRepoMock(t)
	defer cleanup()

	repo := NewStipulationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stipulations")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Waive(context.Background(), "stip-1", "admin-1", time.Now().UTC()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStipulationRepositoryListOverdue(t *testing.T) {
	db, mock, cleanup := newStipulationRepoMock(t)
	defer cleanup()

	repo := NewStipulationRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "application_id", "stipulation_type", "description", "required_by_date", "status", "created_by", "satisfied_by", "satisfied_at", "created_at", "updated_at"}).
		AddRow("stip-1", "app-1", "PROOF_OF_INCOME", "recent pay stubs", now.Add(-48*time.Hour), "PENDING", "uw-1", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, stipulation_type")).
		WillReturnRows(rows)

	overdue := true
	list, err := repo.List(context.Background(), models.StipulationFilter{
		ApplicationID: "app-1",
		Overdue:       &overdue,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].IsOverdue(time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStipulationRepositoryExpireOverdue(t *testing.T) {
	db, mock, cleanup := newStipulationRepoMock(t)
	defer cleanup()

	repo := NewStipulationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE stipulations SET status")).
		WillReturnResult(sqlmock.NewResult(0, 4))

	swept, err := repo.ExpireOverdue(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 4, swept)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStipulationRepositoryCreateTxDefaults(t *testing.T) {
	db, mock, cleanup := newStipulationRepoMock(t)
	defer cleanup()

	repo := NewStipulationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stipulations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	stipulations := []models.Stipulation{{
		ApplicationID:  "app-1",
		Type:           models.StipulationProofOfIncome,
		Description:    "recent pay stubs",
		RequiredByDate: time.Now().Add(30 * 24 * time.Hour),
		CreatedBy:      "uw-1",
	}}
	require.NoError(t, repo.CreateTx(context.Background(), tx, stipulations))
	require.NoError(t, tx.Commit())

	require.NotEmpty(t, stipulations[0].ID)
	require.Equal(t, models.StipulationStatusPending, stipulations[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
