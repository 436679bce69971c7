package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
	"github.com/noah-isme/edufund-loan-api/pkg/response"
)

type stipulationService interface {
	List(ctx context.Context, filter models.StipulationFilter) ([]models.Stipulation, error)
	Get(ctx context.Context, id string) (*models.Stipulation, error)
	Satisfy(ctx context.Context, id, userID string) (*models.Stipulation, error)
	Waive(ctx context.Context, id, userID string) (*models.Stipulation, error)
	AllResolved(ctx context.Context, applicationID string) (bool, error)
}

// StipulationHandler exposes REST endpoints for funding stipulations.
type StipulationHandler struct {
	service stipulationService
}

// NewStipulationHandler constructs the handler.
func NewStipulationHandler(service stipulationService) *StipulationHandler {
	return &StipulationHandler{service: service}
}

// List godoc
// @Summary List stipulations
// @Tags Stipulations
// @Produce json
// @Param application_id query string false "Application ID"
// @Param status query string false "Stipulation status"
// @Param type query string false "Stipulation type"
// @Param overdue query bool false "Only overdue stipulations"
// @Success 200 {object} response.Envelope
// @Router /stipulations [get]
func (h *StipulationHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "stipulation service not configured"))
		return
	}
	filter := models.StipulationFilter{
		ApplicationID: strings.TrimSpace(c.Query("application_id")),
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = models.StipulationStatus(strings.ToUpper(raw))
	}
	if raw := c.Query("type"); raw != "" {
		filter.Type = models.StipulationType(strings.ToUpper(raw))
	}
	if raw := c.Query("overdue"); raw != "" {
		if overdue, err := strconv.ParseBool(raw); err == nil {
			filter.Overdue = &overdue
		}
	}
	stipulations, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stipulations, nil)
}

// Get godoc
// @Summary Get a stipulation
// @Tags Stipulations
// @Produce json
// @Param id path string true "Stipulation ID"
// @Success 200 {object} response.Envelope
// @Router /stipulations/{id} [get]
func (h *StipulationHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "stipulation service not configured"))
		return
	}
	stipulation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stipulation, nil)
}

// Satisfy godoc
// @Summary Mark a stipulation satisfied
// @Tags Stipulations
// @Produce json
// @Param id path string true "Stipulation ID"
// @Success 200 {object} response.Envelope
// @Router /stipulations/{id}/satisfy [post]
func (h *StipulationHandler) Satisfy(c *gin.Context) {
	h.resolve(c, func(ctx context.Context, id, userID string) (*models.Stipulation, error) {
		return h.service.Satisfy(ctx, id, userID)
	})
}

// Waive godoc
// @Summary Waive a stipulation
// @Tags Stipulations
// @Produce json
// @Param id path string true "Stipulation ID"
// @Success 200 {object} response.Envelope
// @Router /stipulations/{id}/waive [post]
func (h *StipulationHandler) Waive(c *gin.Context) {
	h.resolve(c, func(ctx context.Context, id, userID string) (*models.Stipulation, error) {
		return h.service.Waive(ctx, id, userID)
	})
}

func (h *StipulationHandler) resolve(c *gin.Context, fn func(context.Context, string, string) (*models.Stipulation, error)) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "stipulation service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stipulation, err := fn(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stipulation, nil)
}

// FundingReadiness godoc
// @Summary Check whether all stipulations are resolved for an application
// @Tags Stipulations
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/stipulations/readiness [get]
func (h *StipulationHandler) FundingReadiness(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "stipulation service not configured"))
		return
	}
	ready, err := h.service.AllResolved(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"application_id": c.Param("id"), "ready_to_fund": ready}, nil)
}
