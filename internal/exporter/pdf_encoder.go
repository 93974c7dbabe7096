package exporter

import (
	"io"

	"github.com/go-pdf/fpdf"
)

// PDFEncoder implements RowEncoder for PDF generation.
// It creates a simple grid layout for exported data.
// WARNING: PDF generation is memory intensive and slower than CSV/JSON.
type PDFEncoder struct {
	pdf     *fpdf.Fpdf
	tr      func(string) string
	w       io.Writer
	err     error
	written bool
}

// NewPDFEncoder creates a new PDF encoder.
func NewPDFEncoder(w io.Writer) *PDFEncoder {
	pdf := fpdf.New("L", "mm", "A4", "") // Landscape, mm, A4
	pdf.SetFont("Arial", "", 10)
	pdf.AddPage()
	return &PDFEncoder{
		pdf: pdf,
		// Core fonts are latin-1, translate what can be translated.
		tr: pdf.UnicodeTranslatorFromDescriptor(""),
		w:  w,
	}
}

// WriteHeader writes the table headers.
func (e *PDFEncoder) WriteHeader(columns []string) error {
	if e.err != nil {
		return e.err
	}

	e.pdf.SetFont("Arial", "B", 10)
	// Simple assumption: distribute width equally
	// A4 Landscape width is ~297mm. Left/Right margins default to 10mm each.
	// Usable width ~277mm.
	pageWidth, _ := e.pdf.GetPageSize()
	left, _, right, _ := e.pdf.GetMargins()
	usableWidth := pageWidth - left - right

	colWidth := usableWidth / float64(max(len(columns), 1))

	for _, col := range columns {
		e.pdf.CellFormat(colWidth, 7, e.tr(col), "1", 0, "C", false, 0, "")
	}
	e.pdf.Ln(-1)
	e.pdf.SetFont("Arial", "", 10) // Reset font
	return nil
}

// WriteRow writes a single row of data.
func (e *PDFEncoder) WriteRow(values []any) error {
	if e.err != nil {
		return e.err
	}

	pageWidth, _ := e.pdf.GetPageSize()
	left, _, right, _ := e.pdf.GetMargins()
	usableWidth := pageWidth - left - right
	colWidth := usableWidth / float64(max(len(values), 1))

	// Single line cells, long values are clipped by the cell border.
	rowHeight := 7.0

	for _, v := range values {
		e.pdf.CellFormat(colWidth, rowHeight, e.tr(pdfText(v)), "1", 0, "L", false, 0, "")
	}
	e.pdf.Ln(-1)
	return nil
}

// Flush writes the PDF to the underlying writer. The document is complete
// afterwards, later calls do nothing.
func (e *PDFEncoder) Flush() error {
	if e.err != nil || e.written {
		return e.err
	}
	e.written = true
	e.err = e.pdf.Output(e.w)
	return e.err
}

// Error returns any stored error.
func (e *PDFEncoder) Error() error {
	return e.err
}

// Close flushes and satisfies io.Closer.
func (e *PDFEncoder) Close() error {
	return e.Flush()
}

// pdfText formats like CSV. A PDF cell is never evaluated, so text is kept
// as is.
func pdfText(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return csvText(v)
	}
}
