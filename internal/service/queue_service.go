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

const queueSummaryCacheKey = "underwriting:queue:summary"

type queueRepo interface {
	Create(ctx context.Context, item *models.UnderwritingQueue) error
	FindByID(ctx context.Context, id string) (*models.UnderwritingQueue, error)
	FindActiveByApplication(ctx context.Context, applicationID string) (*models.UnderwritingQueue, error)
	List(ctx context.Context, filter models.QueueFilter) ([]models.UnderwritingQueue, int, error)
	Assign(ctx context.Context, id string, version int, underwriterID string, at time.Time) error
	StartReview(ctx context.Context, id string, version int, at time.Time) error
	ReturnToQueue(ctx context.Context, id string, version int, at time.Time) error
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
	CountOverdue(ctx context.Context, now time.Time) (int, error)
}

type applicationStatusWriter interface {
	FindByID(ctx context.Context, id string) (*models.LoanApplication, error)
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error
}

type queueUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type eventPublisher interface {
	Publish(event models.DomainEvent) error
}

// EnqueueRequest places an application into the underwriting queue.
type EnqueueRequest struct {
	ApplicationID string   `json:"application_id" validate:"required"`
	RiskScore     *float64 `json:"risk_score" validate:"omitempty,gte=0,lte=100"`
}

// AssignRequest claims a queue item for an underwriter.
type AssignRequest struct {
	UnderwriterID string `json:"underwriter_id" validate:"required"`
}

// QueueListResult bundles items with pagination metadata.
type QueueListResult struct {
	Items      []models.UnderwritingQueue `json:"items"`
	Pagination models.Pagination          `json:"pagination"`
}

// QueueService owns the underwriting queue workflow. Transitions rely on
// version-guarded updates, so concurrent operators racing for the same item
// get a precondition failure instead of a double assignment.
type QueueService struct {
	queue        queueRepo
	applications applicationStatusWriter
	users        queueUserReader
	events       eventPublisher
	cache        *CacheService
	metrics      *MetricsService
	summaryTTL   time.Duration
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewQueueService constructs QueueService.
func NewQueueService(queue queueRepo, applications applicationStatusWriter, users queueUserReader, events eventPublisher, cache *CacheService, metrics *MetricsService, summaryTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *QueueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if summaryTTL <= 0 {
		summaryTTL = 5 * time.Minute
	}
	return &QueueService{
		queue:        queue,
		applications: applications,
		users:        users,
		events:       events,
		cache:        cache,
		metrics:      metrics,
		summaryTTL:   summaryTTL,
		validator:    validate,
		logger:       logger,
	}
}

// PriorityForRiskScore derives queue priority from the 0-100 risk score.
// Lower scores mean riskier applications and jump the line.
func PriorityForRiskScore(score *float64) models.QueuePriority {
	if score == nil {
		return models.QueuePriorityMedium
	}
	switch {
	case *score < 40:
		return models.QueuePriorityHigh
	case *score < 70:
		return models.QueuePriorityMedium
	default:
		return models.QueuePriorityLow
	}
}

// Enqueue creates a queue item for a submitted application and moves the
// application into review. An application already holding an active item is
// a conflict.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (*models.UnderwritingQueue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	app, err := s.applications.FindByID(ctx, req.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	if app.Status != models.ApplicationStatusSubmitted && app.Status != models.ApplicationStatusRevisionRequested {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application is not awaiting underwriting")
	}

	if existing, err := s.queue.FindActiveByApplication(ctx, req.ApplicationID); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application already queued")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check active queue item: %w", err)
	}

	item := &models.UnderwritingQueue{
		ApplicationID: req.ApplicationID,
		Priority:      PriorityForRiskScore(req.RiskScore),
		RiskScore:     req.RiskScore,
	}
	if err := s.queue.Create(ctx, item); err != nil {
		return nil, err
	}

	if err := s.applications.UpdateStatus(ctx, app.ID, models.ApplicationStatusInReview); err != nil {
		s.logger.Sugar().Errorw("failed to move application into review", "application_id", app.ID, "error", err)
	}

	s.invalidateSummary(ctx)
	s.logger.Sugar().Infow("application enqueued",
		"application_id", req.ApplicationID, "queue_id", item.ID, "priority", item.Priority)
	return item, nil
}

// Assign claims the item for an underwriter.
func (s *QueueService) Assign(ctx context.Context, queueID string, req AssignRequest) (*models.UnderwritingQueue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	underwriter, err := s.users.FindByID(ctx, req.UnderwriterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "underwriter not found")
		}
		return nil, fmt.Errorf("load underwriter: %w", err)
	}
	if !underwriter.Active || (underwriter.Role != models.RoleUnderwriter && underwriter.Role != models.RoleAdmin && underwriter.Role != models.RoleSuperAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user cannot take underwriting assignments")
	}

	item, err := s.loadItem(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !item.Assignable() {
		return nil, appErrors.ErrQueueInactive
	}

	if err := s.queue.Assign(ctx, item.ID, item.Version, req.UnderwriterID, time.Now().UTC()); err != nil {
		return nil, s.mapTransitionErr(err)
	}

	s.publish(models.DomainEvent{
		Type:          models.EventQueueItemAssigned,
		ApplicationID: item.ApplicationID,
		ActorID:       req.UnderwriterID,
		Payload: models.QueueItemPayload{
			QueueID:    item.ID,
			AssignedTo: req.UnderwriterID,
			Status:     models.QueueStatusAssigned,
		},
	})
	s.invalidateSummary(ctx)
	return s.loadItem(ctx, queueID)
}

// StartReview moves an assigned item into active review.
func (s *QueueService) StartReview(ctx context.Context, queueID string) (*models.UnderwritingQueue, error) {
	item, err := s.loadItem(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if item.Status != models.QueueStatusAssigned {
		return nil, appErrors.Clone(appErrors.ErrConflict, "queue item is not assigned")
	}
	if err := s.queue.StartReview(ctx, item.ID, item.Version, time.Now().UTC()); err != nil {
		return nil, s.mapTransitionErr(err)
	}
	s.invalidateSummary(ctx)
	return s.loadItem(ctx, queueID)
}

// ReturnToQueue sends an active item back to the pool, clearing assignment.
func (s *QueueService) ReturnToQueue(ctx context.Context, queueID string, actorID string) (*models.UnderwritingQueue, error) {
	item, err := s.loadItem(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !item.Active() {
		return nil, appErrors.ErrQueueInactive
	}
	if err := s.queue.ReturnToQueue(ctx, item.ID, item.Version, time.Now().UTC()); err != nil {
		return nil, s.mapTransitionErr(err)
	}

	s.publish(models.DomainEvent{
		Type:          models.EventQueueItemReturned,
		ApplicationID: item.ApplicationID,
		ActorID:       actorID,
		Payload: models.QueueItemPayload{
			QueueID: item.ID,
			Status:  models.QueueStatusReturned,
		},
	})
	s.invalidateSummary(ctx)
	return s.loadItem(ctx, queueID)
}

// Get fetches one queue item.
func (s *QueueService) Get(ctx context.Context, queueID string) (*models.UnderwritingQueue, error) {
	return s.loadItem(ctx, queueID)
}

// List returns queue items with pagination.
func (s *QueueService) List(ctx context.Context, filter models.QueueFilter) (*QueueListResult, error) {
	items, total, err := s.queue.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return &QueueListResult{
		Items: items,
		Pagination: models.Pagination{
			Page:       page,
			PageSize:   size,
			TotalCount: total,
		},
	}, nil
}

// Summary returns queue depth aggregates, served from Redis when fresh.
func (s *QueueService) Summary(ctx context.Context) (*models.QueueSummary, error) {
	if s.cache.Enabled() {
		var cached models.QueueSummary
		hit, err := s.cache.Get(ctx, queueSummaryCacheKey, &cached)
		if err != nil {
			s.logger.Sugar().Warnw("queue summary cache read failed", "error", err)
		} else if hit {
			return &cached, nil
		}
	}

	now := time.Now().UTC()
	counts, err := s.queue.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.queue.CountOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	summary := &models.QueueSummary{
		Pending:     counts[models.QueueStatusPending],
		Assigned:    counts[models.QueueStatusAssigned],
		InProgress:  counts[models.QueueStatusInProgress],
		Completed:   counts[models.QueueStatusCompleted],
		Returned:    counts[models.QueueStatusReturned],
		Overdue:     overdue,
		GeneratedAt: now,
	}

	for status, depth := range counts {
		s.metrics.SetQueueDepth(status, depth)
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, queueSummaryCacheKey, summary, s.summaryTTL); err != nil {
			s.logger.Sugar().Warnw("queue summary cache write failed", "error", err)
		}
	}
	return summary, nil
}

func (s *QueueService) loadItem(ctx context.Context, queueID string) (*models.UnderwritingQueue, error) {
	item, err := s.queue.FindByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "queue item not found")
		}
		return nil, fmt.Errorf("load queue item: %w", err)
	}
	return item, nil
}

func (s *QueueService) mapTransitionErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrPreconditionFailed
	}
	return err
}

func (s *QueueService) publish(event models.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(event); err != nil {
		s.logger.Sugar().Warnw("failed to publish queue event", "type", event.Type, "error", err)
	}
}

func (s *QueueService) invalidateSummary(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, queueSummaryCacheKey); err != nil {
		s.logger.Sugar().Warnw("queue summary cache invalidation failed", "error", err)
	}
}
