package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/middleware"
	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/internal/service"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
)

type underwritingServiceMock struct {
	evalResp     *service.EvaluationResult
	evalErr      error
	recordResp   *models.UnderwritingDecision
	recordErr    error
	getResp      *models.UnderwritingDecision
	getErr       error
	lastRecord   service.RecordDecisionRequest
	recordCalled bool
}

func (m *underwritingServiceMock) Evaluate(ctx context.Context, applicationID string) (*service.EvaluationResult, error) {
	return m.evalResp, m.evalErr
}

func (m *underwritingServiceMock) RecordDecision(ctx context.Context, req service.RecordDecisionRequest) (*models.UnderwritingDecision, error) {
	m.recordCalled = true
	m.lastRecord = req
	return m.recordResp, m.recordErr
}

func (m *underwritingServiceMock) GetDecision(ctx context.Context, applicationID string) (*models.UnderwritingDecision, error) {
	return m.getResp, m.getErr
}

func (m *underwritingServiceMock) AmendComments(ctx context.Context, applicationID, comments string) (*models.UnderwritingDecision, error) {
	return m.getResp, m.getErr
}

func newTestContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != nil {
		reader = bytes.NewBuffer(body)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestUnderwritingHandlerEvaluate(t *testing.T) {
	mockSvc := &underwritingServiceMock{
		evalResp: &service.EvaluationResult{
			ApplicationID: "app-1",
			Decision:      models.DecisionApprove,
			Score:         0.92,
		},
	}
	handler := NewUnderwritingHandler(mockSvc, nil)

	c, w := newTestContext(t, http.MethodPost, "/applications/app-1/evaluate", nil)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}

	handler.Evaluate(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data service.EvaluationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, models.DecisionApprove, envelope.Data.Decision)
}

func TestUnderwritingHandlerRecordDecisionUsesClaims(t *testing.T) {
	mockSvc := &underwritingServiceMock{
		recordResp: &models.UnderwritingDecision{ID: "dec-1", Decision: models.DecisionApprove},
	}
	handler := NewUnderwritingHandler(mockSvc, nil)

	body := []byte(`{"decision":"APPROVE","approved_amount":20000,"interest_rate":6.5,"term_months":120}`)
	c, w := newTestContext(t, http.MethodPost, "/applications/app-1/decision", body)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "uw-1", Role: models.RoleUnderwriter})

	handler.RecordDecision(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.recordCalled)
	assert.Equal(t, "app-1", mockSvc.lastRecord.ApplicationID)
	assert.Equal(t, "uw-1", mockSvc.lastRecord.UnderwriterID)
}

func TestUnderwritingHandlerRecordDecisionUnauthenticated(t *testing.T) {
	handler := NewUnderwritingHandler(&underwritingServiceMock{}, nil)

	c, w := newTestContext(t, http.MethodPost, "/applications/app-1/decision", []byte(`{"decision":"DENY"}`))
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}

	handler.RecordDecision(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnderwritingHandlerRecordDecisionConflict(t *testing.T) {
	mockSvc := &underwritingServiceMock{recordErr: appErrors.ErrDecisionExists}
	handler := NewUnderwritingHandler(mockSvc, nil)

	c, w := newTestContext(t, http.MethodPost, "/applications/app-1/decision", []byte(`{"decision":"APPROVE"}`))
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "uw-1", Role: models.RoleUnderwriter})

	handler.RecordDecision(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestUnderwritingHandlerGetDecisionNotFound(t *testing.T) {
	mockSvc := &underwritingServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "no decision on file")}
	handler := NewUnderwritingHandler(mockSvc, nil)

	c, w := newTestContext(t, http.MethodGet, "/applications/app-1/decision", nil)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}

	handler.GetDecision(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
