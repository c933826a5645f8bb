package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth  = 277.0 // A4 landscape minus margins
	lineHeight = 5.0
)

// PDFExporter renders tables into a landscape PDF with wrapped cells.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType implements the renderer contract.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render lays out the table, wrapping long cells and repeating the header on each page.
func (e *PDFExporter) Render(table Table) ([]byte, error) {
	if err := table.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)
	widths := columnWidths(table.Columns)
	_, pageHeight := pdf.GetPageSize()
	bottom := pageHeight - 12

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, column := range table.Columns {
			pdf.CellFormat(widths[i], 7, column.Title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}

	pdf.AddPage()
	if table.Title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 9, table.Title, "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}
	header()

	for _, row := range table.Rows {
		lines := make([][][]byte, len(row))
		height := lineHeight
		for i, cell := range row {
			lines[i] = pdf.SplitLines([]byte(cell), widths[i]-2)
			if h := float64(len(lines[i])) * lineHeight; h > height {
				height = h
			}
		}
		if pdf.GetY()+height > bottom {
			pdf.AddPage()
			header()
		}
		x, y := pdf.GetXY()
		for i := range row {
			pdf.Rect(x, y, widths[i], height, "D")
			for n, line := range lines[i] {
				pdf.SetXY(x+1, y+float64(n)*lineHeight)
				pdf.CellFormat(widths[i]-2, lineHeight, string(line), "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(10, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(columns []Column) []float64 {
	total := 0.0
	for _, column := range columns {
		total += weightOf(column)
	}
	widths := make([]float64, len(columns))
	for i, column := range columns {
		widths[i] = pageWidth * weightOf(column) / total
	}
	return widths
}

func weightOf(column Column) float64 {
	if column.Weight <= 0 {
		return 1
	}
	return column.Weight
}
