package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	"github.com/noah-isme/edufund-loan-api/pkg/storage"
)

type exportQueueStub struct {
	pages [][]models.UnderwritingQueue
	total int
	calls int
}

func (s *exportQueueStub) List(ctx context.Context, filter models.QueueFilter) ([]models.UnderwritingQueue, int, error) {
	page := filter.Page - 1
	s.calls++
	if page < 0 || page >= len(s.pages) {
		return nil, s.total, nil
	}
	return s.pages[page], s.total, nil
}

type exportDecisionStub struct {
	decision *models.UnderwritingDecision
	err      error
}

func (s *exportDecisionStub) FindByApplication(ctx context.Context, applicationID string) (*models.UnderwritingDecision, error) {
	return s.decision, s.err
}

type exportApplicationStub struct {
	detail *models.ApplicationDetail
}

func (s *exportApplicationStub) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	return s.detail, nil
}

type exportStipulationStub struct {
	stipulations []models.Stipulation
}

func (s *exportStipulationStub) List(ctx context.Context, filter models.StipulationFilter) ([]models.Stipulation, error) {
	return s.stipulations, nil
}

func queueItem(id string) models.UnderwritingQueue {
	assigned := "uw-1"
	score := 55.0
	return models.UnderwritingQueue{
		ID:            id,
		ApplicationID: "app-" + id,
		Status:        models.QueueStatusAssigned,
		Priority:      models.QueuePriorityMedium,
		AssignedTo:    &assigned,
		RiskScore:     &score,
		DueDate:       time.Now().Add(24 * time.Hour),
	}
}

func approvedDecision() *models.UnderwritingDecision {
	amount := 20000.0
	rate := 6.5
	term := 120
	return &models.UnderwritingDecision{
		ID:             "dec-1",
		ApplicationID:  "app-1",
		Decision:       models.DecisionApprove,
		DecisionDate:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		ApprovedAmount: &amount,
		InterestRate:   &rate,
		TermMonths:     &term,
	}
}

func borrowerDetail() *models.ApplicationDetail {
	return &models.ApplicationDetail{
		LoanApplication: models.LoanApplication{ID: "app-1", Status: models.ApplicationStatusApproved},
		Borrower:        models.BorrowerProfile{ID: "b-1", FullName: "Jordan Rivera"},
	}
}

func TestQueueReportCSVPagesThroughResults(t *testing.T) {
	queue := &exportQueueStub{
		pages: [][]models.UnderwritingQueue{
			{queueItem("q-1"), queueItem("q-2")},
		},
		total: 2,
	}
	svc := NewExportService(queue, nil, nil, nil, nil, nil, "", nil)

	payload, filename, err := svc.QueueReportCSV(context.Background(), models.QueueFilter{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "queue_report_"))
	assert.True(t, strings.HasSuffix(filename, ".csv"))

	content := string(payload)
	assert.Contains(t, content, "Queue ID")
	assert.Contains(t, content, "app-q-1")
	assert.Contains(t, content, "app-q-2")
	assert.Equal(t, 1, queue.calls)
}

func TestDecisionLetterIncludesStipulations(t *testing.T) {
	svc := NewExportService(
		&exportQueueStub{},
		&exportDecisionStub{decision: approvedDecision()},
		&exportApplicationStub{detail: borrowerDetail()},
		&exportStipulationStub{stipulations: []models.Stipulation{{
			ID:             "st-1",
			ApplicationID:  "app-1",
			Type:           models.StipulationProofOfIncome,
			Description:    "Recent pay stubs covering 30 days",
			RequiredByDate: time.Now().Add(7 * 24 * time.Hour),
			Status:         models.StipulationStatusPending,
		}}},
		nil, nil, "EduFund Lending Operations", nil,
	)

	payload, filename, err := svc.DecisionLetterPDF(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "decision_letter_app-1.pdf", filename)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestDecisionLetterLinkRoundTrip(t *testing.T) {
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("letter-secret", time.Hour)

	svc := NewExportService(
		&exportQueueStub{},
		&exportDecisionStub{decision: approvedDecision()},
		&exportApplicationStub{detail: borrowerDetail()},
		&exportStipulationStub{},
		archive, signer, "", nil,
	)

	token, expiresAt, err := svc.DecisionLetterLink(context.Background(), "app-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	file, filename, err := svc.OpenArchivedLetter(token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "decision_letter_app-1.pdf", filename)

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("%PDF")))
}

func TestOpenArchivedLetterRejectsTamperedToken(t *testing.T) {
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("letter-secret", time.Hour)

	svc := NewExportService(
		&exportQueueStub{},
		&exportDecisionStub{decision: approvedDecision()},
		&exportApplicationStub{detail: borrowerDetail()},
		&exportStipulationStub{},
		archive, signer, "", nil,
	)

	token, _, err := svc.DecisionLetterLink(context.Background(), "app-1")
	require.NoError(t, err)

	_, _, err = svc.OpenArchivedLetter(token + "x")
	require.Error(t, err)
}
