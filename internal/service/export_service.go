package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edufund-loan-api/internal/models"
	appErrors "github.com/noah-isme/edufund-loan-api/pkg/errors"
	"github.com/noah-isme/edufund-loan-api/pkg/export"
	"github.com/noah-isme/edufund-loan-api/pkg/storage"
)

type exportQueueReader interface {
	List(ctx context.Context, filter models.QueueFilter) ([]models.UnderwritingQueue, int, error)
}

type exportDecisionReader interface {
	FindByApplication(ctx context.Context, applicationID string) (*models.UnderwritingDecision, error)
}

type exportApplicationReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
}

type exportStipulationReader interface {
	List(ctx context.Context, filter models.StipulationFilter) ([]models.Stipulation, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type letterRenderer interface {
	Render(letter export.Letter) ([]byte, error)
}

// ExportService renders queue reports and decision letters.
type ExportService struct {
	queue        exportQueueReader
	decisions    exportDecisionReader
	applications exportApplicationReader
	stipulations exportStipulationReader
	csv          csvRenderer
	pdf          pdfRenderer
	letters      letterRenderer
	archive      *storage.LocalStorage
	signer       *storage.SignedURLSigner
	letterFrom   string
	logger       *zap.Logger
}

// NewExportService constructs an ExportService. Archive and signer are
// optional; without them letters are rendered on demand only.
func NewExportService(queue exportQueueReader, decisions exportDecisionReader, applications exportApplicationReader, stipulations exportStipulationReader, archive *storage.LocalStorage, signer *storage.SignedURLSigner, letterFrom string, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if letterFrom == "" {
		letterFrom = "Lending Operations"
	}
	return &ExportService{
		queue:        queue,
		decisions:    decisions,
		applications: applications,
		stipulations: stipulations,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		letters:      export.NewLetterExporter(),
		archive:      archive,
		signer:       signer,
		letterFrom:   letterFrom,
		logger:       logger,
	}
}

// QueueReportCSV renders the filtered queue as CSV.
func (s *ExportService) QueueReportCSV(ctx context.Context, filter models.QueueFilter) ([]byte, string, error) {
	dataset, err := s.queueDataset(ctx, filter)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", err
	}
	return payload, s.reportFilename("csv"), nil
}

// QueueReportPDF renders the filtered queue as a tabular PDF.
func (s *ExportService) QueueReportPDF(ctx context.Context, filter models.QueueFilter) ([]byte, string, error) {
	dataset, err := s.queueDataset(ctx, filter)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.pdf.Render(dataset, "Underwriting Queue Report")
	if err != nil {
		return nil, "", err
	}
	return payload, s.reportFilename("pdf"), nil
}

// DecisionLetterPDF renders the borrower-facing letter for the application's
// decision, listing outstanding stipulations for approvals and revisions.
func (s *ExportService) DecisionLetterPDF(ctx context.Context, applicationID string) ([]byte, string, error) {
	decision, err := s.decisions.FindByApplication(ctx, applicationID)
	if err != nil {
		return nil, "", err
	}
	detail, err := s.applications.FindDetailByID(ctx, applicationID)
	if err != nil {
		return nil, "", err
	}

	letter := export.Letter{
		Title:     "Loan Application Decision",
		Recipient: detail.Borrower.FullName,
		Date:      decision.DecisionDate.Format("January 2, 2006"),
		Signature: s.letterFrom,
	}

	switch decision.Decision {
	case models.DecisionApprove:
		letter.Paragraphs = append(letter.Paragraphs,
			fmt.Sprintf("We are pleased to inform you that your loan application has been approved for %s.", formatAmount(decision.ApprovedAmount)))
		if decision.InterestRate != nil && decision.TermMonths != nil {
			letter.Paragraphs = append(letter.Paragraphs,
				fmt.Sprintf("The approved terms are an annual rate of %.2f%% over %d months.", *decision.InterestRate, *decision.TermMonths))
		}
	case models.DecisionDeny:
		letter.Paragraphs = append(letter.Paragraphs,
			"After careful review, we are unable to approve your loan application at this time.")
		for _, reason := range decision.Reasons {
			letter.Items = append(letter.Items, reason.Description)
		}
	case models.DecisionRevise:
		letter.Paragraphs = append(letter.Paragraphs,
			"Your loan application requires additional information before a final decision can be made.")
	}

	if decision.Decision != models.DecisionDeny {
		stipulations, err := s.stipulations.List(ctx, models.StipulationFilter{
			ApplicationID: applicationID,
			Status:        models.StipulationStatusPending,
		})
		if err != nil {
			s.logger.Sugar().Warnw("failed to load stipulations for letter", "application_id", applicationID, "error", err)
		}
		if len(stipulations) > 0 {
			letter.Paragraphs = append(letter.Paragraphs, "The following items are required before funding:")
			for _, st := range stipulations {
				letter.Items = append(letter.Items,
					fmt.Sprintf("%s (due %s)", st.Description, st.RequiredByDate.Format("January 2, 2006")))
			}
		}
	}

	payload, err := s.letters.Render(letter)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("decision_letter_%s.pdf", applicationID)
	if s.archive != nil {
		if _, err := s.archive.Save(path.Join("letters", filename), payload); err != nil {
			s.logger.Sugar().Warnw("failed to archive decision letter", "application_id", applicationID, "error", err)
		}
	}
	return payload, filename, nil
}

// DecisionLetterLink renders and archives the letter, then returns a signed
// download token so the borrower portal can fetch it without an API session.
func (s *ExportService) DecisionLetterLink(ctx context.Context, applicationID string) (string, time.Time, error) {
	if s.archive == nil || s.signer == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "letter archive not configured")
	}
	_, filename, err := s.DecisionLetterPDF(ctx, applicationID)
	if err != nil {
		return "", time.Time{}, err
	}
	relPath := path.Join("letters", filename)
	return s.signer.Generate(applicationID, relPath)
}

// OpenArchivedLetter validates the signed token and opens the archived file.
func (s *ExportService) OpenArchivedLetter(token string) (*os.File, string, error) {
	if s.archive == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrInternal, "letter archive not configured")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.archive.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "letter no longer available")
	}
	return file, path.Base(relPath), nil
}

func (s *ExportService) queueDataset(ctx context.Context, filter models.QueueFilter) (export.Dataset, error) {
	// Reports always want the full filtered set, not a UI page.
	filter.PageSize = 100
	filter.Page = 1

	var rows []map[string]string
	now := time.Now().UTC()
	for {
		items, total, err := s.queue.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, err
		}
		for _, item := range items {
			rows = append(rows, map[string]string{
				"Queue ID":       item.ID,
				"Application ID": item.ApplicationID,
				"Status":         string(item.Status),
				"Priority":       string(item.Priority),
				"Assigned To":    derefString(item.AssignedTo),
				"Risk Score":     formatRisk(item.RiskScore),
				"Due Date":       item.DueDate.UTC().Format(time.RFC3339),
				"Overdue":        fmt.Sprintf("%t", item.IsOverdue(now)),
			})
		}
		if len(rows) >= total || len(items) == 0 {
			break
		}
		filter.Page++
	}

	return export.Dataset{
		Headers: []string{"Queue ID", "Application ID", "Status", "Priority", "Assigned To", "Risk Score", "Due Date", "Overdue"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) reportFilename(ext string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("queue_report_%s.%s", timestamp, strings.ToLower(ext))
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatRisk(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *score)
}

func formatAmount(amount *float64) string {
	if amount == nil {
		return "the requested amount"
	}
	return fmt.Sprintf("$%.2f", *amount)
}
