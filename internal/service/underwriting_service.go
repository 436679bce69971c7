package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/internal/rules"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
)

type decisionRepo interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, decision *models.UnderwritingDecision) error
	FindByApplication(ctx context.Context, applicationID string) (*models.UnderwritingDecision, error)
	ExistsForApplication(ctx context.Context, applicationID string) (bool, error)
	UpdateComments(ctx context.Context, id string, comments string) error
}

type stipulationTxWriter interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, stipulations []models.Stipulation) error
}

type applicationDetailRepo interface {
	FindByID(ctx context.Context, id string) (*models.LoanApplication, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus) error
}

type creditReader interface {
	FindPrimaryByApplication(ctx context.Context, applicationID string) (*models.CreditInformation, error)
}

type queueCompleter interface {
	FindActiveByApplication(ctx context.Context, applicationID string) (*models.UnderwritingQueue, error)
	Complete(ctx context.Context, id string, version int, at time.Time) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RecordDecisionRequest is the underwriter's decision payload. Reasons and
// stipulations default to the rule engine's derivation when omitted.
type RecordDecisionRequest struct {
	ApplicationID  string                   `json:"application_id" validate:"required"`
	UnderwriterID  string                   `json:"underwriter_id" validate:"required"`
	Decision       models.DecisionKind      `json:"decision" validate:"required,oneof=APPROVE DENY REVISE"`
	Comments       string                   `json:"comments"`
	ApprovedAmount *float64                 `json:"approved_amount" validate:"omitempty,gt=0"`
	InterestRate   *float64                 `json:"interest_rate" validate:"omitempty,gt=0"`
	TermMonths     *int                     `json:"term_months" validate:"omitempty,gt=0"`
	Reasons        []models.ReasonCode      `json:"reasons" validate:"omitempty,dive,required"`
	Stipulations   []models.StipulationType `json:"stipulations" validate:"omitempty,dive,required"`
}

// EvaluationResult is the engine's verdict enriched with the risk score.
type EvaluationResult struct {
	ApplicationID string                   `json:"application_id"`
	Decision      models.DecisionKind      `json:"decision"`
	Auto          bool                     `json:"auto"`
	Score         float64                  `json:"score"`
	RiskScore     float64                  `json:"risk_score"`
	Reasons       []models.ReasonCode      `json:"reasons,omitempty"`
	Stipulations  []models.StipulationType `json:"stipulations,omitempty"`
	Factors       rules.FactorSet          `json:"factors"`
}

// UnderwritingService orchestrates rule evaluation and decision recording.
// Recording is transactional: decision, reasons, stipulations and the
// application status flip land together or not at all, and exactly one
// DECISION_RECORDED event follows a successful commit.
type UnderwritingService struct {
	engine       *rules.Engine
	decisions    decisionRepo
	stipulations stipulationTxWriter
	applications applicationDetailRepo
	credit       creditReader
	queue        queueCompleter
	audit        auditWriter
	events       eventPublisher
	metrics      *MetricsService

	autoDecisionEnabled bool
	stipulationDueDays  int

	validator *validator.Validate
	logger    *zap.Logger
}

// NewUnderwritingService constructs UnderwritingService.
func NewUnderwritingService(engine *rules.Engine, decisions decisionRepo, stipulations stipulationTxWriter, applications applicationDetailRepo, credit creditReader, queue queueCompleter, audit auditWriter, events eventPublisher, metrics *MetricsService, autoDecisionEnabled bool, stipulationDueDays int, validate *validator.Validate, logger *zap.Logger) *UnderwritingService {
	if engine == nil {
		engine = rules.NewEngine()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if stipulationDueDays <= 0 {
		stipulationDueDays = 30
	}
	return &UnderwritingService{
		engine:              engine,
		decisions:           decisions,
		stipulations:        stipulations,
		applications:        applications,
		credit:              credit,
		queue:               queue,
		audit:               audit,
		events:              events,
		metrics:             metrics,
		autoDecisionEnabled: autoDecisionEnabled,
		stipulationDueDays:  stipulationDueDays,
		validator:           validate,
		logger:              logger,
	}
}

// Evaluate runs the rule engine against the application's current data and
// returns the verdict without persisting anything. The fast path only fires
// when the profile is unambiguous; everything else gets the full pass.
func (s *UnderwritingService) Evaluate(ctx context.Context, applicationID string) (*EvaluationResult, error) {
	input, err := s.buildInput(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveEvaluation(time.Since(start)) }()

	if s.autoDecisionEnabled {
		if auto := s.engine.AutoDecision(*input); auto != nil {
			return s.toResult(applicationID, auto, *input, true), nil
		}
	}
	evaluation := s.engine.Evaluate(*input)
	return s.toResult(applicationID, &evaluation, *input, false), nil
}

// RecordDecision persists the underwriter's verdict. A second decision for
// the same application is rejected, never overwritten.
func (s *UnderwritingService) RecordDecision(ctx context.Context, req RecordDecisionRequest) (*models.UnderwritingDecision, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if req.Decision == models.DecisionApprove {
		if req.ApprovedAmount == nil || req.InterestRate == nil || req.TermMonths == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approval requires amount, rate and term")
		}
	}
	if req.Decision == models.DecisionDeny && len(req.Reasons) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "denial requires at least one reason")
	}

	newStatus, ok := models.StatusForDecision(req.Decision)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown decision kind")
	}

	detail, err := s.applications.FindDetailByID(ctx, req.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	if detail.Status != models.ApplicationStatusInReview && detail.Status != models.ApplicationStatusSubmitted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application is not under review")
	}

	exists, err := s.decisions.ExistsForApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, appErrors.ErrDecisionExists
	}

	evaluation, input := s.evaluateDetail(ctx, detail)

	decision := &models.UnderwritingDecision{
		ApplicationID:  req.ApplicationID,
		UnderwriterID:  req.UnderwriterID,
		Decision:       req.Decision,
		Comments:       req.Comments,
		ApprovedAmount: req.ApprovedAmount,
		InterestRate:   req.InterestRate,
		TermMonths:     req.TermMonths,
	}
	score := s.engine.RiskScore(input) / 100
	decision.WeightedScore = &score

	reasonCodes := req.Reasons
	if len(reasonCodes) == 0 && req.Decision != models.DecisionApprove {
		reasonCodes = evaluation.Reasons
	}
	for i, code := range reasonCodes {
		decision.Reasons = append(decision.Reasons, models.DecisionReason{
			ReasonCode: code,
			IsPrimary:  i == 0,
		})
	}

	stipulationTypes := req.Stipulations
	if len(stipulationTypes) == 0 && req.Decision != models.DecisionDeny {
		stipulationTypes = evaluation.Stipulations
	}
	if req.Decision == models.DecisionDeny {
		stipulationTypes = nil
	}

	tx, err := s.decisions.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin decision tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if err := s.decisions.CreateTx(ctx, tx, decision); err != nil {
		return nil, err
	}

	dueDate := time.Now().UTC().AddDate(0, 0, s.stipulationDueDays)
	stipulations := make([]models.Stipulation, 0, len(stipulationTypes))
	for _, st := range stipulationTypes {
		stipulations = append(stipulations, models.Stipulation{
			ApplicationID:  req.ApplicationID,
			Type:           st,
			Description:    stipulationDescription(st),
			RequiredByDate: dueDate,
			CreatedBy:      req.UnderwriterID,
		})
	}
	if err := s.stipulations.CreateTx(ctx, tx, stipulations); err != nil {
		return nil, err
	}

	if err := s.applications.UpdateStatusTx(ctx, tx, req.ApplicationID, newStatus); err != nil {
		return nil, fmt.Errorf("flip application status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decision: %w", err)
	}
	tx = nil

	s.completeQueueItem(ctx, req.ApplicationID)
	s.metrics.RecordDecision(req.Decision, false)
	s.writeAudit(ctx, req, decision)

	if s.events != nil {
		event := models.DomainEvent{
			Type:          models.EventDecisionRecorded,
			ApplicationID: req.ApplicationID,
			ActorID:       req.UnderwriterID,
			Payload: models.DecisionRecordedPayload{
				DecisionID:   decision.ID,
				Decision:     decision.Decision,
				NewStatus:    newStatus,
				Reasons:      reasonCodes,
				Stipulations: stipulationTypes,
			},
		}
		if err := s.events.Publish(event); err != nil {
			s.logger.Sugar().Errorw("decision recorded but event publish failed",
				"application_id", req.ApplicationID, "decision_id", decision.ID, "error", err)
		}
	}

	s.logger.Sugar().Infow("decision recorded",
		"application_id", req.ApplicationID, "decision", req.Decision, "new_status", newStatus)
	return decision, nil
}

// GetDecision returns the decision on file for an application.
func (s *UnderwritingService) GetDecision(ctx context.Context, applicationID string) (*models.UnderwritingDecision, error) {
	decision, err := s.decisions.FindByApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no decision on file")
		}
		return nil, fmt.Errorf("load decision: %w", err)
	}
	return decision, nil
}

// AmendComments updates the underwriter narrative on an existing decision.
// The decision itself and the application status are immutable.
func (s *UnderwritingService) AmendComments(ctx context.Context, applicationID, comments string) (*models.UnderwritingDecision, error) {
	decision, err := s.GetDecision(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := s.decisions.UpdateComments(ctx, decision.ID, comments); err != nil {
		return nil, err
	}
	decision.Comments = comments
	return decision, nil
}

func (s *UnderwritingService) buildInput(ctx context.Context, applicationID string) (*rules.Input, error) {
	detail, err := s.applications.FindDetailByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	input := s.inputForDetail(ctx, detail)
	return &input, nil
}

func (s *UnderwritingService) inputForDetail(ctx context.Context, detail *models.ApplicationDetail) rules.Input {
	credit, err := s.credit.FindPrimaryByApplication(ctx, detail.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("credit lookup failed, evaluating without bureau data",
				"application_id", detail.ID, "error", err)
		}
		credit = nil
	}
	return rules.NewInput(detail, credit)
}

func (s *UnderwritingService) evaluateDetail(ctx context.Context, detail *models.ApplicationDetail) (rules.Evaluation, rules.Input) {
	input := s.inputForDetail(ctx, detail)
	start := time.Now()
	evaluation := s.engine.Evaluate(input)
	s.metrics.ObserveEvaluation(time.Since(start))
	return evaluation, input
}

func (s *UnderwritingService) toResult(applicationID string, evaluation *rules.Evaluation, input rules.Input, auto bool) *EvaluationResult {
	return &EvaluationResult{
		ApplicationID: applicationID,
		Decision:      evaluation.Decision,
		Auto:          auto,
		Score:         evaluation.Score,
		RiskScore:     s.engine.RiskScore(input),
		Reasons:       evaluation.Reasons,
		Stipulations:  evaluation.Stipulations,
		Factors:       evaluation.Factors,
	}
}

func (s *UnderwritingService) completeQueueItem(ctx context.Context, applicationID string) {
	if s.queue == nil {
		return
	}
	item, err := s.queue.FindActiveByApplication(ctx, applicationID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("queue lookup failed after decision", "application_id", applicationID, "error", err)
		}
		return
	}
	if err := s.queue.Complete(ctx, item.ID, item.Version, time.Now().UTC()); err != nil {
		s.logger.Sugar().Warnw("failed to complete queue item after decision",
			"application_id", applicationID, "queue_id", item.ID, "error", err)
	}
}

func (s *UnderwritingService) writeAudit(ctx context.Context, req RecordDecisionRequest, decision *models.UnderwritingDecision) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &req.UnderwriterID,
		Action:     models.AuditActionDecisionRecord,
		Resource:   "underwriting_decision",
		ResourceID: &decision.ID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Sugar().Warnw("failed to write decision audit log", "decision_id", decision.ID, "error", err)
	}
}

var stipulationDescriptions = map[models.StipulationType]string{
	models.StipulationEnrollmentAgreement: "signed enrollment agreement from the school",
	models.StipulationProofOfIncome:       "recent pay stubs or tax transcript",
	models.StipulationProofOfIdentity:     "government-issued photo identification",
	models.StipulationProofOfResidence:    "utility bill or lease showing current address",
	models.StipulationAdditionalDocuments: "additional documentation requested by the underwriter",
}

func stipulationDescription(st models.StipulationType) string {
	if desc, ok := stipulationDescriptions[st]; ok {
		return desc
	}
	return "documentation required before funding"
}
