package export

import (
	"bytes"

	"github.com/go-pdf/fpdf"
)

// renderPDF renders the transcript as an A4 PDF: centered title, one
// multi-cell block per paragraph.
func renderPDF(text string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	// The core fonts are cp1252; translate so accented characters in
	// transcripts survive.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr("Transcription"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 12)
	for _, para := range paragraphs(text) {
		pdf.MultiCell(0, 6, tr(para), "", "L", false)
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
