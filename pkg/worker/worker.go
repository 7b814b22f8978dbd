package worker

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/avaldes/scribeflow/pkg/media"
	"github.com/avaldes/scribeflow/pkg/models"
	"github.com/avaldes/scribeflow/pkg/queue"
	"github.com/avaldes/scribeflow/pkg/storage"
	"github.com/avaldes/scribeflow/pkg/transcriber"
)

// Transcriber is what the pool needs from the engine adapter.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string, onProgress func(int)) (*transcriber.Result, error)
}

// Progress milestones. The engine's own chunk progress is mapped into
// the span between transcribe start and completion.
const (
	progressExtracting   = 10
	progressTranscribing = 40
	progressDone         = 100
)

// Pool runs the job pipeline: it pulls submitted jobs off the queue
// and drives each one through extracting -> transcribing ->
// ready/failed. Jobs are independent; one stuck job never blocks
// another worker.
type Pool struct {
	queue      queue.Queue
	store      storage.Store
	blobs      storage.BlobStore
	engine     Transcriber
	size       int
	jobTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool of the given size.
func NewPool(q queue.Queue, store storage.Store, blobs storage.BlobStore, engine Transcriber, size int, jobTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 2
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:      q,
		store:      store,
		blobs:      blobs,
		engine:     engine,
		size:       size,
		jobTimeout: jobTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	log.Printf("worker pool started (%d workers)", p.size)
}

// Stop cancels in-flight work and waits for the workers to exit.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	log.Println("worker pool stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue()
		if err == queue.ErrQueueClosed {
			return
		}
		if err != nil {
			log.Printf("worker %d: dequeue failed: %v", id, err)
			time.Sleep(time.Second)
			continue
		}

		p.processJob(job)
	}
}

// processJob advances one job to a terminal state. Pipeline errors are
// captured into the job record, never propagated; the caller
// discovers them on the next status read.
func (p *Pool) processJob(job *models.Job) {
	log.Printf("processing job %s (%s)", job.ID, job.Filename)
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.jobTimeout)
	defer cancel()

	mediaPath, err := p.blobs.Path(job.MediaRef)
	if err != nil {
		p.failJob(job, "uploaded media missing from storage")
		return
	}

	p.advance(job.ID, models.StateExtracting, progressExtracting)

	audioPath := mediaPath
	if media.IsVideoFile(job.Filename) {
		tempDir, err := os.MkdirTemp("", "scribeflow-extract-")
		if err != nil {
			p.failJob(job, "audio extraction failed: "+err.Error())
			return
		}
		defer os.RemoveAll(tempDir)

		audioPath, err = media.ExtractAudio(ctx, mediaPath, tempDir)
		if err != nil {
			p.failJob(job, "audio extraction failed: "+err.Error())
			return
		}
	}

	p.advance(job.ID, models.StateTranscribing, progressTranscribing)

	onProgress := func(chunkPct int) {
		p.store.Update(job.ID, func(j *models.Job) {
			// Map chunk completion into the 40-95 band; 100 is
			// reserved for terminal states.
			j.SetProgress(progressTranscribing + chunkPct*55/100)
		})
	}

	result, err := p.engine.Transcribe(ctx, audioPath, job.LanguageHint, onProgress)
	if err != nil {
		p.failJob(job, err.Error())
		return
	}

	if err := p.store.Update(job.ID, func(j *models.Job) {
		j.Transition(models.StateReady)
		j.Transcript = result.Text
		j.DetectedLanguage = result.Language
		if result.Duration > 0 {
			j.Duration = result.Duration
		}
		j.SetProgress(progressDone)
		j.CompletedAt = time.Now()
	}); err != nil {
		log.Printf("job %s: persisting transcript failed: %v", job.ID, err)
		p.queue.Nack(job, true)
		return
	}

	p.queue.Ack(job)
	log.Printf("job %s ready in %.1fs (%d chars)", job.ID, time.Since(start).Seconds(), len(result.Text))
}

func (p *Pool) advance(jobID string, state models.JobState, progress int) {
	if err := p.store.Update(jobID, func(j *models.Job) {
		j.Transition(state)
		j.SetProgress(progress)
	}); err != nil {
		log.Printf("job %s: state update failed: %v", jobID, err)
	}
}

func (p *Pool) failJob(job *models.Job, detail string) {
	log.Printf("job %s failed: %s", job.ID, detail)
	if err := p.store.Update(job.ID, func(j *models.Job) {
		j.Transition(models.StateFailed)
		j.Error = detail
		j.SetProgress(progressDone)
		j.CompletedAt = time.Now()
	}); err != nil {
		log.Printf("job %s: recording failure failed: %v", job.ID, err)
	}
	// The failure is recorded; the message is done either way.
	p.queue.Ack(job)
}
