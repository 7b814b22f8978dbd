package export

import (
	"bytes"
	"html/template"
)

var htmlTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Transcription</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 20px; }
        h1 { color: #333; text-align: center; }
        p { margin-bottom: 16px; }
    </style>
</head>
<body>
    <h1>Transcription</h1>
{{- range .Paragraphs}}
    <p>{{.}}</p>
{{- end}}
</body>
</html>
`))

// renderHTML renders the transcript as a standalone HTML document.
// Paragraph text is escaped by the template engine.
func renderHTML(text string) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlTemplate.Execute(&buf, struct {
		Paragraphs []string
	}{Paragraphs: paragraphs(text)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
