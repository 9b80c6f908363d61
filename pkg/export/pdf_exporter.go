package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a Dataset as a landscape A4 table. Landscape fits
// a full school week of periods across the page.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const pdfTableWidth = 277.0

// Render draws the title and one bordered row per dataset row, shading
// alternate rows for readability.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf export needs headers")
	}
	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetMargins(10, 15, 10)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.Ln(4)
	}

	colWidth := pdfTableWidth / float64(len(data.Headers))
	doc.SetFont("Arial", "B", 10)
	doc.SetFillColor(230, 230, 230)
	for _, h := range data.Headers {
		doc.CellFormat(colWidth, 8, h, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Arial", "", 9)
	doc.SetFillColor(245, 245, 245)
	for i, row := range data.Rows {
		shade := i%2 == 1
		for _, h := range data.Headers {
			doc.CellFormat(colWidth, 7, row[h], "1", 0, "", shade, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
