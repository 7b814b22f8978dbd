package api

import (
	"github.com/gin-gonic/gin"

	"github.com/avaldes/scribeflow/pkg/config"
	"github.com/avaldes/scribeflow/pkg/export"
	"github.com/avaldes/scribeflow/pkg/media"
	"github.com/avaldes/scribeflow/pkg/queue"
	"github.com/avaldes/scribeflow/pkg/storage"
)

const version = "0.3.0"

// Server holds the injected dependencies behind the HTTP surface.
type Server struct {
	cfg      *config.Config
	store    storage.Store
	blobs    storage.BlobStore
	queue    queue.Queue
	renderer *export.Renderer
	prober   media.Prober
}

// NewServer wires the API surface.
func NewServer(
	cfg *config.Config,
	store storage.Store,
	blobs storage.BlobStore,
	q queue.Queue,
	renderer *export.Renderer,
	prober media.Prober,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		queue:    q,
		renderer: renderer,
		prober:   prober,
	}
}

// Router builds the gin engine with all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/ping", s.handlePing)
	r.POST("/transcribe/", s.handleTranscribe)
	r.GET("/download/:file_id", s.handleDownload)
	r.GET("/export/:file_id", s.handleExport)
	r.POST("/save/:file_id", s.handleSave)
	r.POST("/edit/:file_id", s.handleEdit)
	r.GET("/jobs", s.handleListJobs)
	r.GET("/jobs/:file_id", s.handleGetJob)

	return r
}
