package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/internal/service"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
	"github.com/noah-isme/edufund-loan-api/pkg/response"
)

type underwritingService interface {
	Evaluate(ctx context.Context, applicationID string) (*service.EvaluationResult, error)
	RecordDecision(ctx context.Context, req service.RecordDecisionRequest) (*models.UnderwritingDecision, error)
	GetDecision(ctx context.Context, applicationID string) (*models.UnderwritingDecision, error)
	AmendComments(ctx context.Context, applicationID, comments string) (*models.UnderwritingDecision, error)
}

type decisionLetterService interface {
	DecisionLetterPDF(ctx context.Context, applicationID string) ([]byte, string, error)
	DecisionLetterLink(ctx context.Context, applicationID string) (string, time.Time, error)
	OpenArchivedLetter(token string) (*os.File, string, error)
}

// UnderwritingHandler exposes REST endpoints for evaluation and decisions.
type UnderwritingHandler struct {
	service underwritingService
	letters decisionLetterService
}

// NewUnderwritingHandler constructs the handler.
func NewUnderwritingHandler(service underwritingService, letters decisionLetterService) *UnderwritingHandler {
	return &UnderwritingHandler{service: service, letters: letters}
}

// Evaluate godoc
// @Summary Run the rule engine against an application
// @Tags Underwriting
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/evaluate [post]
func (h *UnderwritingHandler) Evaluate(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "underwriting service not configured"))
		return
	}
	result, err := h.service.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type recordDecisionPayload struct {
	Decision       models.DecisionKind      `json:"decision"`
	Comments       string                   `json:"comments"`
	ApprovedAmount *float64                 `json:"approved_amount"`
	InterestRate   *float64                 `json:"interest_rate"`
	TermMonths     *int                     `json:"term_months"`
	Reasons        []models.ReasonCode      `json:"reasons"`
	Stipulations   []models.StipulationType `json:"stipulations"`
}

// RecordDecision godoc
// @Summary Record an underwriting decision
// @Tags Underwriting
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body recordDecisionPayload true "Decision payload"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/decision [post]
func (h *UnderwritingHandler) RecordDecision(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "underwriting service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload recordDecisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	decision, err := h.service.RecordDecision(c.Request.Context(), service.RecordDecisionRequest{
		ApplicationID:  c.Param("id"),
		UnderwriterID:  claims.UserID,
		Decision:       payload.Decision,
		Comments:       payload.Comments,
		ApprovedAmount: payload.ApprovedAmount,
		InterestRate:   payload.InterestRate,
		TermMonths:     payload.TermMonths,
		Reasons:        payload.Reasons,
		Stipulations:   payload.Stipulations,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, decision)
}

// GetDecision godoc
// @Summary Get the decision on file for an application
// @Tags Underwriting
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/decision [get]
func (h *UnderwritingHandler) GetDecision(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "underwriting service not configured"))
		return
	}
	decision, err := h.service.GetDecision(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

type amendCommentsPayload struct {
	Comments string `json:"comments" binding:"required"`
}

// AmendComments godoc
// @Summary Amend underwriter comments on an existing decision
// @Tags Underwriting
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body amendCommentsPayload true "Comments payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/decision/comments [patch]
func (h *UnderwritingHandler) AmendComments(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "underwriting service not configured"))
		return
	}
	var payload amendCommentsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid comments payload"))
		return
	}
	decision, err := h.service.AmendComments(c.Request.Context(), c.Param("id"), payload.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// DecisionLetter godoc
// @Summary Download the decision letter PDF
// @Tags Underwriting
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} binary
// @Router /applications/{id}/decision/letter [get]
func (h *UnderwritingHandler) DecisionLetter(c *gin.Context) {
	if h.letters == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	payload, filename, err := h.letters.DecisionLetterPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/pdf", payload)
}

// DecisionLetterLink godoc
// @Summary Create a signed download link for the decision letter
// @Tags Underwriting
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/decision/letter-link [post]
func (h *UnderwritingHandler) DecisionLetterLink(c *gin.Context) {
	if h.letters == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	token, expiresAt, err := h.letters.DecisionLetterLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"download_url": "/files/" + token,
		"expires_at":   expiresAt.UTC(),
	}, nil)
}

// DownloadLetter serves an archived letter for a valid signed token. The token
// itself carries authentication, so the route is mounted outside the JWT group.
func (h *UnderwritingHandler) DownloadLetter(c *gin.Context) {
	if h.letters == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	file, filename, err := h.letters.OpenArchivedLetter(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	stat, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "letter unavailable"))
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.DataFromReader(http.StatusOK, stat.Size(), "application/pdf", file, nil)
}
