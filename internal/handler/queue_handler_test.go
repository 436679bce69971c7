package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/middleware"
	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/internal/service"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
)

type queueServiceMock struct {
	item       *models.UnderwritingQueue
	listResult *service.QueueListResult
	summary    *models.QueueSummary
	err        error
	lastAssign service.AssignRequest
	lastFilter models.QueueFilter
}

func (m *queueServiceMock) Enqueue(ctx context.Context, req service.EnqueueRequest) (*models.UnderwritingQueue, error) {
	return m.item, m.err
}

func (m *queueServiceMock) Assign(ctx context.Context, queueID string, req service.AssignRequest) (*models.UnderwritingQueue, error) {
	m.lastAssign = req
	return m.item, m.err
}

func (m *queueServiceMock) StartReview(ctx context.Context, queueID string) (*models.UnderwritingQueue, error) {
	return m.item, m.err
}

func (m *queueServiceMock) ReturnToQueue(ctx context.Context, queueID string, actorID string) (*models.UnderwritingQueue, error) {
	return m.item, m.err
}

func (m *queueServiceMock) Get(ctx context.Context, queueID string) (*models.UnderwritingQueue, error) {
	return m.item, m.err
}

func (m *queueServiceMock) List(ctx context.Context, filter models.QueueFilter) (*service.QueueListResult, error) {
	m.lastFilter = filter
	return m.listResult, m.err
}

func (m *queueServiceMock) Summary(ctx context.Context) (*models.QueueSummary, error) {
	return m.summary, m.err
}

func TestQueueHandlerListParsesFilter(t *testing.T) {
	mockSvc := &queueServiceMock{
		listResult: &service.QueueListResult{
			Items:      []models.UnderwritingQueue{{ID: "q-1"}},
			Pagination: models.Pagination{Page: 2, PageSize: 10, TotalCount: 11},
		},
	}
	handler := NewQueueHandler(mockSvc, nil)

	c, w := newTestContext(t, http.MethodGet, "/queue?status=pending&priority=high&overdue=true&page=2&page_size=10", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.QueueStatusPending, mockSvc.lastFilter.Status)
	assert.Equal(t, models.QueuePriorityHigh, mockSvc.lastFilter.Priority)
	require.NotNil(t, mockSvc.lastFilter.Overdue)
	assert.True(t, *mockSvc.lastFilter.Overdue)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)

	var envelope struct {
		Pagination models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 11, envelope.Pagination.TotalCount)
}

func TestQueueHandlerAssignDefaultsToSelf(t *testing.T) {
	mockSvc := &queueServiceMock{item: &models.UnderwritingQueue{ID: "q-1", Status: models.QueueStatusAssigned}}
	handler := NewQueueHandler(mockSvc, nil)

	c, w := newTestContext(t, http.MethodPost, "/queue/q-1/assign", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "q-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "uw-7", Role: models.RoleUnderwriter})

	handler.Assign(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uw-7", mockSvc.lastAssign.UnderwriterID)
}

func TestQueueHandlerAssignPreconditionFailed(t *testing.T) {
	mockSvc := &queueServiceMock{err: appErrors.ErrPreconditionFailed}
	handler := NewQueueHandler(mockSvc, nil)

	c, w := newTestContext(t, http.MethodPost, "/queue/q-1/assign", []byte(`{"underwriter_id":"uw-1"}`))
	c.Params = gin.Params{{Key: "id", Value: "q-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "uw-1", Role: models.RoleUnderwriter})

	handler.Assign(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestQueueHandlerSummary(t *testing.T) {
	mockSvc := &queueServiceMock{summary: &models.QueueSummary{Pending: 3, Overdue: 1}}
	handler := NewQueueHandler(mockSvc, nil)

	c, w := newTestContext(t, http.MethodGet, "/queue/summary", nil)

	handler.Summary(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.QueueSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 3, envelope.Data.Pending)
	assert.Equal(t, 1, envelope.Data.Overdue)
}

func TestQueueHandlerExportRejectsUnknownFormat(t *testing.T) {
	handler := NewQueueHandler(&queueServiceMock{}, &queueExportMock{})

	c, w := newTestContext(t, http.MethodGet, "/queue/export?format=xlsx", nil)

	handler.Export(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

type queueExportMock struct{}

func (m *queueExportMock) QueueReportCSV(ctx context.Context, filter models.QueueFilter) ([]byte, string, error) {
	return []byte("header\n"), "queue.csv", nil
}

func (m *queueExportMock) QueueReportPDF(ctx context.Context, filter models.QueueFilter) ([]byte, string, error) {
	return []byte("%PDF"), "queue.pdf", nil
}
