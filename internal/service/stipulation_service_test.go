package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
)

type mockStipulationRepo struct {
	stipulations map[string]*models.Stipulation
	raceOnce     bool
}

func (m *mockStipulationRepo) FindByID(ctx context.Context, id string) (*models.Stipulation, error) {
	if s, ok := m.stipulations[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStipulationRepo) List(ctx context.Context, filter models.StipulationFilter) ([]models.Stipulation, error) {
	var list []models.Stipulation
	for _, s := range m.stipulations {
		if filter.ApplicationID != "" && s.ApplicationID != filter.ApplicationID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		list = append(list, *s)
	}
	return list, nil
}

func (m *mockStipulationRepo) resolve(id string, status models.StipulationStatus, userID string, at time.Time) error {
	if m.raceOnce {
		m.raceOnce = false
		return sql.ErrNoRows
	}
	s, ok := m.stipulations[id]
	if !ok || s.Status != models.StipulationStatusPending {
		return sql.ErrNoRows
	}
	s.Status = status
	s.SatisfiedBy = &userID
	s.SatisfiedAt = &at
	return nil
}

func (m *mockStipulationRepo) Satisfy(ctx context.Context, id string, userID string, at time.Time) error {
	return m.resolve(id, models.StipulationStatusSatisfied, userID, at)
}

func (m *mockStipulationRepo) Waive(ctx context.Context, id string, userID string, at time.Time) error {
	return m.resolve(id, models.StipulationStatusWaived, userID, at)
}

func (m *mockStipulationRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	var swept int64
	for _, s := range m.stipulations {
		if s.Status == models.StipulationStatusPending && s.RequiredByDate.Before(now) {
			s.Status = models.StipulationStatusExpired
			swept++
		}
	}
	return swept, nil
}

func (m *mockStipulationRepo) CountOpenByApplication(ctx context.Context, applicationID string) (int, error) {
	open := 0
	for _, s := range m.stipulations {
		if s.ApplicationID == applicationID && !s.Resolved() {
			open++
		}
	}
	return open, nil
}

func newStipulationFixture() (*StipulationService, *mockStipulationRepo, *mockEventPublisher) {
	repo := &mockStipulationRepo{stipulations: map[string]*models.Stipulation{
		"stip-1": {
			ID:             "stip-1",
			ApplicationID:  "app-1",
			Type:           models.StipulationProofOfIncome,
			Status:         models.StipulationStatusPending,
			RequiredByDate: time.Now().Add(72 * time.Hour),
		},
	}}
	events := &mockEventPublisher{}
	svc := NewStipulationService(repo, &mockAuditWriter{}, events, nil, nil)
	return svc, repo, events
}

func TestSatisfyStampsActorAndTimeTogether(t *testing.T) {
	svc, _, events := newStipulationFixture()

	resolved, err := svc.Satisfy(context.Background(), "stip-1", "uw-1")
	require.NoError(t, err)
	assert.Equal(t, models.StipulationStatusSatisfied, resolved.Status)
	require.NotNil(t, resolved.SatisfiedBy)
	require.NotNil(t, resolved.SatisfiedAt)
	assert.Equal(t, "uw-1", *resolved.SatisfiedBy)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventStipulationSatisfied, events.events[0].Type)
}

func TestSatisfyAlreadyResolvedConflicts(t *testing.T) {
	svc, _, _ := newStipulationFixture()

	_, err := svc.Satisfy(context.Background(), "stip-1", "uw-1")
	require.NoError(t, err)

	_, err = svc.Satisfy(context.Background(), "stip-1", "uw-2")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestSatisfyRaceLoserGetsPreconditionFailed(t *testing.T) {
	svc, repo, _ := newStipulationFixture()

	repo.raceOnce = true
	_, err := svc.Satisfy(context.Background(), "stip-1", "uw-2")
	require.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

func TestWaiveClearsStipulation(t *testing.T) {
	svc, _, _ := newStipulationFixture()

	resolved, err := svc.Waive(context.Background(), "stip-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.StipulationStatusWaived, resolved.Status)

	done, err := svc.AllResolved(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestAllResolvedFalseWhilePending(t *testing.T) {
	svc, _, _ := newStipulationFixture()

	done, err := svc.AllResolved(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestExpireOverdueSweeps(t *testing.T) {
	svc, repo, _ := newStipulationFixture()
	repo.stipulations["stip-1"].RequiredByDate = time.Now().Add(-time.Hour)

	swept, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)
	assert.Equal(t, models.StipulationStatusExpired, repo.stipulations["stip-1"].Status)

	// Expired stipulations still block funding.
	done, err := svc.AllResolved(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestGetMissingStipulation(t *testing.T) {
	svc, _, _ := newStipulationFixture()

	_, err := svc.Get(context.Background(), "missing")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
