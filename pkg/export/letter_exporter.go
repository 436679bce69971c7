package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Letter defines a simple one-page prose document.
type Letter struct {
	Title      string
	Recipient  string
	Date       string
	Paragraphs []string
	Items      []string
	Signature  string
}

// LetterExporter renders letters into PDF bytes.
type LetterExporter struct{}

// NewLetterExporter builds a letter exporter.
func NewLetterExporter() *LetterExporter {
	return &LetterExporter{}
}

// Render creates the PDF document for the letter.
func (e *LetterExporter) Render(letter Letter) ([]byte, error) {
	if letter.Title == "" {
		return nil, fmt.Errorf("letter requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, letter.Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	if letter.Date != "" {
		pdf.CellFormat(0, 6, letter.Date, "", 1, "R", false, 0, "")
	}
	if letter.Recipient != "" {
		pdf.CellFormat(0, 6, letter.Recipient, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	for _, paragraph := range letter.Paragraphs {
		pdf.MultiCell(0, 6, paragraph, "", "L", false)
		pdf.Ln(3)
	}

	if len(letter.Items) > 0 {
		pdf.SetFont("Arial", "", 11)
		for _, item := range letter.Items {
			pdf.MultiCell(0, 6, "  - "+item, "", "L", false)
		}
		pdf.Ln(3)
	}

	if letter.Signature != "" {
		pdf.Ln(6)
		pdf.MultiCell(0, 6, letter.Signature, "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render letter: %w", err)
	}
	return buf.Bytes(), nil
}
