package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/avaldes/scribeflow/pkg/export"
	"github.com/avaldes/scribeflow/pkg/models"
	"github.com/avaldes/scribeflow/pkg/queue"
	"github.com/avaldes/scribeflow/pkg/storage"
)

// Advisory upload allow-list, mirroring the client. The container is
// re-validated server-side by the prober regardless of extension.
var supportedExts = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
	".mp3": true,
	".wav": true,
	".m4a": true,
}

// TranscribeResponse is the wire shape of POST /transcribe/.
type TranscribeResponse struct {
	Success       bool   `json:"success"`
	FileID        string `json:"file_id"`
	Transcription string `json:"transcription,omitempty"`
	Message       string `json:"message"`
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"version": version,
	})
}

// handleTranscribe accepts the upload, submits a job and blocks until
// the job reaches a terminal state or the request deadline passes.
// The client awaits a single response containing the transcription,
// so the submit+poll pipeline is hidden behind this one call; if the
// deadline passes first the client gets a 202 with the file_id to
// poll /jobs/:file_id.
func (s *Server) handleTranscribe(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No file provided"})
		return
	}
	language := c.PostForm("language")

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !supportedExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail": fmt.Sprintf("Unsupported file format %s. Supported formats: %s", ext, strings.Join(supportedExtList(), ", ")),
		})
		return
	}

	if fileHeader.Size > s.cfg.Server.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"detail": fmt.Sprintf("File too large. Maximum size is %dMB", s.cfg.Server.MaxUploadSize/1024/1024),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not read upload"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not read upload"})
		return
	}

	ref, err := s.blobs.Put(data, ext)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not store upload"})
		return
	}

	// Never trust the client-declared type: probe the actual container.
	path, err := s.blobs.Path(ref)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not store upload"})
		return
	}
	info, err := s.prober.Probe(path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Unsupported media: not a decodable audio/video file"})
		return
	}

	job := &models.Job{
		ID:           uuid.New().String(),
		Filename:     fileHeader.Filename,
		MediaRef:     ref,
		State:        models.StateReceived,
		Progress:     5,
		LanguageHint: language,
		Duration:     info.Duration,
		CreatedAt:    time.Now(),
	}

	if err := s.store.Save(job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not save job"})
		return
	}

	if err := s.queue.Enqueue(job); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"detail": "Could not queue job"})
		return
	}

	final := s.waitForTerminal(c, job.ID)
	switch {
	case final == nil:
		c.JSON(http.StatusAccepted, TranscribeResponse{
			Success: true,
			FileID:  job.ID,
			Message: "Transcription still processing. Poll /jobs/" + job.ID,
		})
	case final.State == models.StateReady:
		c.JSON(http.StatusOK, TranscribeResponse{
			Success:       true,
			FileID:        job.ID,
			Transcription: final.Transcript,
			Message:       "Transcription completed successfully",
		})
	default:
		c.JSON(http.StatusInternalServerError, TranscribeResponse{
			Success: false,
			FileID:  job.ID,
			Message: "Transcription failed: " + final.Error,
		})
	}
}

// waitForTerminal polls the store until the job is terminal, the
// request deadline passes, or the client goes away. Returns nil when
// the job is still running.
func (s *Server) waitForTerminal(c *gin.Context, jobID string) *models.Job {
	deadline := time.After(time.Duration(s.cfg.Server.RequestDeadline) * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return nil
		case <-c.Request.Context().Done():
			// Client gone; the pipeline still runs to completion and
			// the result stays discoverable by id.
			return nil
		case <-ticker.C:
			job, err := s.store.Get(jobID)
			if err != nil {
				return nil
			}
			if job.State.Terminal() {
				return job
			}
		}
	}
}

func (s *Server) handleDownload(c *gin.Context) {
	job, ok := s.getJobOr404(c)
	if !ok {
		return
	}
	if job.State != models.StateReady {
		c.JSON(http.StatusConflict, gin.H{"detail": "Transcription not ready"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcription_%s.txt", job.ID))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(job.Transcript))
}

func (s *Server) handleExport(c *gin.Context) {
	job, ok := s.getJobOr404(c)
	if !ok {
		return
	}

	// PDF is the historical default when no format is given.
	format := c.DefaultQuery("format", export.FormatPDF)

	data, contentType, err := s.renderer.Render(job, format)
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Unsupported format %q. Supported: txt, docx, pdf, html", format)})
		return
	case errors.Is(err, export.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"detail": "Transcription not ready"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Export failed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcription_%s.%s", job.ID, format))
	c.Data(http.StatusOK, contentType, data)
}

// SaveRequest is the wire shape of POST /save/:file_id.
type SaveRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSave(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No text provided"})
		return
	}
	s.saveTranscript(c, req.Text)
}

// handleEdit is the form-encoded variant of save kept for older
// clients.
func (s *Server) handleEdit(c *gin.Context) {
	text := c.PostForm("text")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No text provided"})
		return
	}
	s.saveTranscript(c, text)
}

// saveTranscript overwrites the transcript (last write wins) and bumps
// the revision so cached exports of the old text are never served.
func (s *Server) saveTranscript(c *gin.Context, text string) {
	job, ok := s.getJobOr404(c)
	if !ok {
		return
	}
	if job.State != models.StateReady {
		c.JSON(http.StatusConflict, gin.H{"detail": "Transcription not ready"})
		return
	}

	if err := s.store.Update(job.ID, func(j *models.Job) {
		j.Transcript = text
		j.TranscriptRev++
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not save transcription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Transcription saved."})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.getJobOr404(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

func (s *Server) getJobOr404(c *gin.Context) (*models.Job, bool) {
	job, err := s.store.Get(c.Param("file_id"))
	if errors.Is(err, storage.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Transcription not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Storage error"})
		return nil, false
	}
	return job, true
}

func supportedExtList() []string {
	return []string{".mp4", ".mov", ".avi", ".mkv", ".mp3", ".wav", ".m4a"}
}
