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

func newQueueRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestQueueRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO underwriting_queue")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	item := &models.UnderwritingQueue{
		ApplicationID: "app-1",
		Priority:      models.QueuePriorityHigh,
	}
	require.NoError(t, repo.Create(context.Background(), item))

	require.NotEmpty(t, item.ID)
	require.Equal(t, models.QueueStatusPending, item.Status)
	require.Equal(t, 1, item.Version)
	require.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), item.DueDate, time.Minute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryCreatePreAssignedStampsAssignmentDate(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO underwriting_queue")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	underwriter := "uw-1"
	item := &models.UnderwritingQueue{
		ApplicationID: "app-1",
		AssignedTo:    &underwriter,
		Status:        models.QueueStatusAssigned,
	}
	require.NoError(t, repo.Create(context.Background(), item))
	require.NotNil(t, item.AssignmentDate)
	require.Equal(t, models.QueuePriorityMedium, item.Priority)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryAssignConcurrencyLoser(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE underwriting_queue")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Assign(context.Background(), "q-1", 1, "uw-1", now))

	// Second attempt with the stale version matches zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE underwriting_queue")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Assign(context.Background(), "q-1", 1, "uw-2", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryCompleteRequiresInProgress(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE underwriting_queue")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), "q-1", 2, time.Now().UTC())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "application_id", "assigned_to", "assignment_date", "priority", "status", "risk_score", "due_date", "version", "created_at", "updated_at"}).
		AddRow("q-1", "app-1", nil, nil, "HIGH", "PENDING", 35.0, now.Add(24*time.Hour), 1, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, assigned_to")).
		WithArgs("PENDING", "HIGH").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM underwriting_queue")).
		WithArgs("PENDING", "HIGH").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.QueueFilter{
		Status:   models.QueueStatusPending,
		Priority: models.QueuePriorityHigh,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, total)
	require.Equal(t, "q-1", items[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newQueueRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow("PENDING", 3).
		AddRow("IN_PROGRESS", 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*)")).WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, counts[models.QueueStatusPending])
	require.Equal(t, 2, counts[models.QueueStatusInProgress])
	require.NoError(t, mock.ExpectationsWereMet())
}
