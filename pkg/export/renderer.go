package export

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/avaldes/scribeflow/pkg/models"
	"github.com/avaldes/scribeflow/pkg/storage"
)

const (
	FormatTXT  = "txt"
	FormatDOCX = "docx"
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// ErrUnsupportedFormat is returned for any format token outside the
// supported set. There is no default fallback.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ErrNotReady is returned when the job has no transcript yet.
var ErrNotReady = errors.New("transcript not ready")

var contentTypes = map[string]string{
	FormatTXT:  "text/plain; charset=utf-8",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatPDF:  "application/pdf",
	FormatHTML: "text/html; charset=utf-8",
}

// ContentType returns the media type for a supported format token.
func ContentType(format string) (string, bool) {
	ct, ok := contentTypes[format]
	return ct, ok
}

// Renderer converts a ready job's transcript into export documents.
// Rendered bytes are cached in the blob store keyed by the job's
// transcript revision, so an edit via save makes every older cache
// entry unreachable instead of requiring explicit invalidation.
type Renderer struct {
	blobs storage.BlobStore

	mu    sync.Mutex
	cache map[string]string // cache key -> blob ref
}

// NewRenderer creates a renderer backed by the given blob store.
func NewRenderer(blobs storage.BlobStore) *Renderer {
	return &Renderer{
		blobs: blobs,
		cache: make(map[string]string),
	}
}

// Render produces the export document and its content type. It never
// mutates the job. TXT output is the transcript byte-for-byte; the
// other formats apply the fixed document template (title plus
// paragraphs split on blank lines).
func (r *Renderer) Render(job *models.Job, format string) ([]byte, string, error) {
	contentType, ok := ContentType(format)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if job.State != models.StateReady {
		return nil, "", ErrNotReady
	}

	cacheKey := fmt.Sprintf("%s:%s:%d", job.ID, format, job.TranscriptRev)
	if data, ok := r.lookup(cacheKey); ok {
		return data, contentType, nil
	}

	var data []byte
	var err error
	switch format {
	case FormatTXT:
		data = []byte(job.Transcript)
	case FormatDOCX:
		data, err = renderDOCX(job.Transcript)
	case FormatPDF:
		data, err = renderPDF(job.Transcript)
	case FormatHTML:
		data, err = renderHTML(job.Transcript)
	}
	if err != nil {
		return nil, "", fmt.Errorf("render %s: %w", format, err)
	}

	r.remember(cacheKey, format, data)
	return data, contentType, nil
}

func (r *Renderer) lookup(cacheKey string) ([]byte, bool) {
	r.mu.Lock()
	ref, ok := r.cache[cacheKey]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	data, err := r.blobs.Get(ref)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (r *Renderer) remember(cacheKey, format string, data []byte) {
	ref, err := r.blobs.Put(data, format)
	if err != nil {
		// Caching is best effort; the render already succeeded.
		log.Printf("export cache write failed: %v", err)
		return
	}

	r.mu.Lock()
	r.cache[cacheKey] = ref
	r.mu.Unlock()
}

// paragraphs splits the transcript on blank lines, trimming each
// block, matching the layout every non-TXT format uses.
func paragraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
