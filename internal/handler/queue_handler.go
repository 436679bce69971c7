package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/internal/service"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
	"github.com/noah-isme/edufund-loan-api/pkg/response"
)

type queueService interface {
	Enqueue(ctx context.Context, req service.EnqueueRequest) (*models.UnderwritingQueue, error)
	Assign(ctx context.Context, queueID string, req service.AssignRequest) (*models.UnderwritingQueue, error)
	StartReview(ctx context.Context, queueID string) (*models.UnderwritingQueue, error)
	ReturnToQueue(ctx context.Context, queueID string, actorID string) (*models.UnderwritingQueue, error)
	Get(ctx context.Context, queueID string) (*models.UnderwritingQueue, error)
	List(ctx context.Context, filter models.QueueFilter) (*service.QueueListResult, error)
	Summary(ctx context.Context) (*models.QueueSummary, error)
}

type queueExportService interface {
	QueueReportCSV(ctx context.Context, filter models.QueueFilter) ([]byte, string, error)
	QueueReportPDF(ctx context.Context, filter models.QueueFilter) ([]byte, string, error)
}

// QueueHandler exposes REST endpoints for the underwriting queue.
type QueueHandler struct {
	service queueService
	exports queueExportService
}

// NewQueueHandler constructs the handler.
func NewQueueHandler(service queueService, exports queueExportService) *QueueHandler {
	return &QueueHandler{service: service, exports: exports}
}

// Enqueue godoc
// @Summary Place an application into the underwriting queue
// @Tags Queue
// @Accept json
// @Produce json
// @Param payload body service.EnqueueRequest true "Enqueue payload"
// @Success 201 {object} response.Envelope
// @Router /queue [post]
func (h *QueueHandler) Enqueue(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "queue service not configured"))
		return
	}
	var req service.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enqueue payload"))
		return
	}
	item, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// List godoc
// @Summary List queue items
// @Tags Queue
// @Produce json
// @Param status query string false "Queue status"
// @Param priority query string false "Priority"
// @Param assigned_to query string false "Underwriter ID"
// @Param overdue query bool false "Only overdue items"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /queue [get]
func (h *QueueHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "queue service not configured"))
		return
	}
	result, err := h.service.List(c.Request.Context(), queueFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Items, &result.Pagination)
}

// Get godoc
// @Summary Get a queue item
// @Tags Queue
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id} [get]
func (h *QueueHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "queue service not configured"))
		return
	}
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Assign godoc
// @Summary Assign a queue item to an underwriter
// @Tags Queue
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param payload body service.AssignRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/assign [post]
func (h *QueueHandler) Assign(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "queue service not configured"))
		return
	}
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Missing body defaults to self-assignment.
		req = service.AssignRequest{}
	}
	if req.UnderwriterID == "" {
		claims := claimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		req.UnderwriterID = claims.UserID
	}
	item, err := h.service.Assign(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// StartReview godoc
// @Summary Move an assigned queue item into review
// @Tags Queue
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/start [post]
func (h *QueueHandler) StartReview(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "queue service not configured"))
		return
	}
	item, err := h.service.StartReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Return godoc
// @Summary Return a queue item to the pool
// @Tags Queue
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} response.Envelope
// @Router /queue/{id}/return [post]
func (h *QueueHandler) Return(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "queue service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	item, err := h.service.ReturnToQueue(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Summary godoc
// @Summary Queue depth summary
// @Tags Queue
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /queue/summary [get]
func (h *QueueHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "queue service not configured"))
		return
	}
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export the queue as CSV or PDF
// @Tags Queue
// @Produce application/octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /queue/export [get]
func (h *QueueHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	filter := queueFilterFromQuery(c)
	format := strings.ToLower(c.DefaultQuery("format", "csv"))

	var payload []byte
	var filename, contentType string
	var err error
	switch format {
	case "csv":
		payload, filename, err = h.exports.QueueReportCSV(c.Request.Context(), filter)
		contentType = "text/csv"
	case "pdf":
		payload, filename, err = h.exports.QueueReportPDF(c.Request.Context(), filter)
		contentType = "application/pdf"
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported export format"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, payload)
}

func queueFilterFromQuery(c *gin.Context) models.QueueFilter {
	filter := models.QueueFilter{
		AssignedTo: strings.TrimSpace(c.Query("assigned_to")),
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.Query("sort_order"),
	}
	if raw := c.Query("status"); raw != "" {
		filter.Status = models.QueueStatus(strings.ToUpper(raw))
	}
	if raw := c.Query("priority"); raw != "" {
		filter.Priority = models.QueuePriority(strings.ToUpper(raw))
	}
	if raw := c.Query("overdue"); raw != "" {
		if overdue, err := strconv.ParseBool(raw); err == nil {
			filter.Overdue = &overdue
		}
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.Query("page_size")); err == nil {
		filter.PageSize = size
	}
	return filter
}
