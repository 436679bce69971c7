package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
)

type stipulationRepo interface {
	FindByID(ctx context.Context, id string) (*models.Stipulation, error)
	List(ctx context.Context, filter models.StipulationFilter) ([]models.Stipulation, error)
	Satisfy(ctx context.Context, id string, userID string, at time.Time) error
	Waive(ctx context.Context, id string, userID string, at time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	CountOpenByApplication(ctx context.Context, applicationID string) (int, error)
}

// StipulationService manages the life of funding stipulations. Resolution is
// conditional on the pending status, so two operators clearing the same
// stipulation produce one winner.
type StipulationService struct {
	stipulations stipulationRepo
	audit        auditWriter
	events       eventPublisher
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewStipulationService constructs StipulationService.
func NewStipulationService(stipulations stipulationRepo, audit auditWriter, events eventPublisher, validate *validator.Validate, logger *zap.Logger) *StipulationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StipulationService{
		stipulations: stipulations,
		audit:        audit,
		events:       events,
		validator:    validate,
		logger:       logger,
	}
}

// List returns stipulations for the filter.
func (s *StipulationService) List(ctx context.Context, filter models.StipulationFilter) ([]models.Stipulation, error) {
	return s.stipulations.List(ctx, filter)
}

// Get fetches one stipulation.
func (s *StipulationService) Get(ctx context.Context, id string) (*models.Stipulation, error) {
	stipulation, err := s.stipulations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stipulation not found")
		}
		return nil, fmt.Errorf("load stipulation: %w", err)
	}
	return stipulation, nil
}

// Satisfy marks a pending stipulation satisfied by the acting user. The
// satisfied_by and satisfied_at stamps always land together.
func (s *StipulationService) Satisfy(ctx context.Context, id, userID string) (*models.Stipulation, error) {
	stipulation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if stipulation.Resolved() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "stipulation already resolved")
	}

	if err := s.stipulations.Satisfy(ctx, id, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPreconditionFailed
		}
		return nil, err
	}

	s.writeAudit(ctx, userID, models.AuditActionStipulationSatisfy, id)
	if s.events != nil {
		event := models.DomainEvent{
			Type:          models.EventStipulationSatisfied,
			ApplicationID: stipulation.ApplicationID,
			ActorID:       userID,
			Payload: models.StipulationSatisfiedPayload{
				StipulationID: stipulation.ID,
				Type:          stipulation.Type,
			},
		}
		if err := s.events.Publish(event); err != nil {
			s.logger.Sugar().Warnw("failed to publish stipulation event", "stipulation_id", id, "error", err)
		}
	}
	return s.Get(ctx, id)
}

// Waive clears a pending stipulation without documentation.
func (s *StipulationService) Waive(ctx context.Context, id, userID string) (*models.Stipulation, error) {
	stipulation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if stipulation.Resolved() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "stipulation already resolved")
	}

	if err := s.stipulations.Waive(ctx, id, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPreconditionFailed
		}
		return nil, err
	}

	s.writeAudit(ctx, userID, models.AuditActionStipulationWaive, id)
	return s.Get(ctx, id)
}

// AllResolved reports whether nothing blocks funding for the application.
func (s *StipulationService) AllResolved(ctx context.Context, applicationID string) (bool, error) {
	open, err := s.stipulations.CountOpenByApplication(ctx, applicationID)
	if err != nil {
		return false, err
	}
	return open == 0, nil
}

// ExpireOverdue sweeps pending stipulations past their deadline. Intended to
// run on a ticker from main.
func (s *StipulationService) ExpireOverdue(ctx context.Context) (int64, error) {
	swept, err := s.stipulations.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Sugar().Infow("expired overdue stipulations", "count", swept)
	}
	return swept, nil
}

func (s *StipulationService) writeAudit(ctx context.Context, userID, action, stipulationID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "stipulation",
		ResourceID: &stipulationID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Sugar().Warnw("failed to write stipulation audit log", "stipulation_id", stipulationID, "error", err)
	}
}
