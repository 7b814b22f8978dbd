package export

import (
	"bytes"

	"github.com/fumiama/go-docx"
)

// renderDOCX renders the transcript as a Word document: centered
// title, one paragraph per blank-line-separated block.
func renderDOCX(text string) ([]byte, error) {
	doc := docx.New().WithDefaultTheme()

	title := doc.AddParagraph().Justification("center")
	title.AddText("Transcription").Size("32")

	for _, para := range paragraphs(text) {
		doc.AddParagraph().AddText(para)
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
