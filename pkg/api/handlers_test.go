package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaldes/scribeflow/pkg/config"
	"github.com/avaldes/scribeflow/pkg/export"
	"github.com/avaldes/scribeflow/pkg/media"
	"github.com/avaldes/scribeflow/pkg/models"
	"github.com/avaldes/scribeflow/pkg/queue"
	"github.com/avaldes/scribeflow/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeProber skips ffprobe so handler tests run on arbitrary bytes.
type fakeProber struct {
	err error
}

func (f fakeProber) Probe(path string) (media.Info, error) {
	if f.err != nil {
		return media.Info{}, f.err
	}
	return media.Info{Duration: 12.5, Format: "mp3", HasAudio: true}, nil
}

type testServer struct {
	router *gin.Engine
	store  storage.Store
	queue  *queue.MemoryQueue
	cfg    *config.Config
}

func newTestServer(t *testing.T, prober media.Prober) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.MaxUploadSize = 1024 * 1024
	cfg.Server.RequestDeadline = 1

	store := storage.NewJobStore()
	q := queue.NewMemoryQueue(4)
	t.Cleanup(func() { q.Close() })
	blobs, err := storage.NewFSBlobStore(t.TempDir())
	require.NoError(t, err)
	renderer := export.NewRenderer(blobs)

	srv := NewServer(cfg, store, blobs, q, renderer, prober)
	return &testServer{router: srv.Router(), store: store, queue: q, cfg: cfg}
}

// runWorker drains the queue and finishes each job the way the real
// pipeline would, ending ready or failed.
func (ts *testServer) runWorker(t *testing.T, transcript, failure string) {
	t.Helper()
	go func() {
		for {
			job, err := ts.queue.Dequeue()
			if err != nil {
				return
			}
			ts.store.Update(job.ID, func(j *models.Job) {
				j.Transition(models.StateExtracting)
				j.Transition(models.StateTranscribing)
				if failure != "" {
					j.Transition(models.StateFailed)
					j.Error = failure
				} else {
					j.Transition(models.StateReady)
					j.Transcript = transcript
					j.DetectedLanguage = "english"
				}
				j.SetProgress(100)
				j.CompletedAt = time.Now()
			})
			ts.queue.Ack(job)
		}
	}()
}

func (ts *testServer) seedReadyJob(t *testing.T, id, transcript string) {
	t.Helper()
	require.NoError(t, ts.store.Save(&models.Job{
		ID:         id,
		Filename:   "clip.mp3",
		State:      models.StateReady,
		Progress:   100,
		Transcript: transcript,
		CreatedAt:  time.Now(),
	}))
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func uploadBody(t *testing.T, filename, language string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake media bytes"))
	require.NoError(t, err)
	if language != "" {
		require.NoError(t, mw.WriteField("language", language))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPing(t *testing.T) {
	ts := newTestServer(t, fakeProber{})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", decodeJSON(t, w)["message"])
}

func TestTranscribeCompletes(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.runWorker(t, "hello from the engine", "")

	body, contentType := uploadBody(t, "meeting.mp3", "en")
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeJSON(t, w)
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["file_id"])
	assert.Equal(t, "hello from the engine", resp["transcription"])
}

func TestTranscribeReportsFailure(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.runWorker(t, "", "engine unavailable")

	body, contentType := uploadBody(t, "meeting.mp3", "")
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decodeJSON(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["message"], "engine unavailable")
}

// TestTranscribeFallsBackTo202 submits with no worker running, so the
// deadline passes and the client gets the id to poll.
func TestTranscribeFallsBackTo202(t *testing.T) {
	ts := newTestServer(t, fakeProber{})

	body, contentType := uploadBody(t, "meeting.mp3", "")
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	require.Equal(t, http.StatusAccepted, w.Code)

	resp := decodeJSON(t, w)
	fileID, _ := resp["file_id"].(string)
	require.NotEmpty(t, fileID)

	// The job record is still there for polling.
	job, err := ts.store.Get(fileID)
	require.NoError(t, err)
	assert.False(t, job.State.Terminal())
}

func TestTranscribeRejectsMissingFile(t *testing.T) {
	ts := newTestServer(t, fakeProber{})

	req := httptest.NewRequest(http.MethodPost, "/transcribe/", strings.NewReader(""))
	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file provided", decodeJSON(t, w)["detail"])
}

func TestTranscribeRejectsUnsupportedExtension(t *testing.T) {
	ts := newTestServer(t, fakeProber{})

	body, contentType := uploadBody(t, "notes.txt", "")
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeJSON(t, w)["detail"], "Unsupported file format")
}

func TestTranscribeRejectsOversizedUpload(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.cfg.Server.MaxUploadSize = 4

	body, contentType := uploadBody(t, "meeting.mp3", "")
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// TestTranscribeRejectsUndecodableMedia covers a renamed file that
// passes the extension check but fails the server-side probe.
func TestTranscribeRejectsUndecodableMedia(t *testing.T) {
	ts := newTestServer(t, fakeProber{err: media.ErrUnsupportedMedia})

	body, contentType := uploadBody(t, "really_a_pdf.mp3", "")
	req := httptest.NewRequest(http.MethodPost, "/transcribe/", body)
	req.Header.Set("Content-Type", contentType)

	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeJSON(t, w)["detail"], "Unsupported media")
}

func TestDownload(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.seedReadyJob(t, "job-1", "the transcript")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/download/job-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "the transcript", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "transcription_job-1.txt")
}

func TestDownloadUnknownJob(t *testing.T) {
	ts := newTestServer(t, fakeProber{})

	w := ts.do(httptest.NewRequest(http.MethodGet, "/download/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Transcription not found", decodeJSON(t, w)["detail"])
}

func TestDownloadNotReady(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	require.NoError(t, ts.store.Save(&models.Job{
		ID:        "job-1",
		State:     models.StateTranscribing,
		CreatedAt: time.Now(),
	}))

	w := ts.do(httptest.NewRequest(http.MethodGet, "/download/job-1", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestExportDefaultsToPDF(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.seedReadyJob(t, "job-1", "some text")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/export/job-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "transcription_job-1.pdf")
}

func TestExportUnsupportedFormat(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.seedReadyJob(t, "job-1", "some text")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/export/job-1?format=srt", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeJSON(t, w)["detail"], "Unsupported format")
}

func TestExportNotReady(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	require.NoError(t, ts.store.Save(&models.Job{
		ID:        "job-1",
		State:     models.StateExtracting,
		CreatedAt: time.Now(),
	}))

	w := ts.do(httptest.NewRequest(http.MethodGet, "/export/job-1?format=txt", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

// TestSaveThenExportServesEditedText is the edit round trip: save new
// text, then check the next export carries it instead of a stale
// cached artifact.
func TestSaveThenExportServesEditedText(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.seedReadyJob(t, "job-1", "original text")

	// Warm the export cache with the original.
	w := ts.do(httptest.NewRequest(http.MethodGet, "/export/job-1?format=txt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "original text", w.Body.String())

	payload := bytes.NewBufferString(`{"text": "edited text"}`)
	req := httptest.NewRequest(http.MethodPost, "/save/job-1", payload)
	req.Header.Set("Content-Type", "application/json")
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeJSON(t, w)["success"])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/export/job-1?format=txt", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "edited text", w.Body.String())

	w = ts.do(httptest.NewRequest(http.MethodGet, "/download/job-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "edited text", w.Body.String())
}

func TestSaveRejectsEmptyText(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.seedReadyJob(t, "job-1", "original")

	for _, payload := range []string{`{"text": ""}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/save/job-1", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := ts.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %q", payload)
		assert.Equal(t, "No text provided", decodeJSON(t, w)["detail"])
	}
}

func TestSaveUnknownJob(t *testing.T) {
	ts := newTestServer(t, fakeProber{})

	req := httptest.NewRequest(http.MethodPost, "/save/nope", strings.NewReader(`{"text": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveNotReady(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	require.NoError(t, ts.store.Save(&models.Job{
		ID:        "job-1",
		State:     models.StateTranscribing,
		CreatedAt: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodPost, "/save/job-1", strings.NewReader(`{"text": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEditFormVariant(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.seedReadyJob(t, "job-1", "original")

	form := "text=edited+via+form"
	req := httptest.NewRequest(http.MethodPost, "/edit/job-1", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	job, err := ts.store.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, "edited via form", job.Transcript)
	assert.Equal(t, 1, job.TranscriptRev)
}

func TestJobStatusEndpoints(t *testing.T) {
	ts := newTestServer(t, fakeProber{})
	ts.seedReadyJob(t, "job-1", "text")

	w := ts.do(httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeJSON(t, w)
	assert.Equal(t, "job-1", resp["file_id"])
	assert.Equal(t, string(models.StateReady), resp["state"])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeJSON(t, w)
	assert.Equal(t, float64(1), list["total"])
}
