package storage

import (
	"errors"

	"github.com/avaldes/scribeflow/pkg/models"
)

// ErrJobNotFound is returned when a job id is unknown to the store.
var ErrJobNotFound = errors.New("job not found")

// Store persists job records keyed by file_id.
//
// Update runs the callback as a read-modify-write under the store's
// lock, so concurrent mutations of the same job never interleave into
// a torn transcript.
type Store interface {
	// Save inserts or replaces a job record.
	Save(job *models.Job) error

	// Get returns a snapshot of the job, or ErrJobNotFound.
	Get(jobID string) (*models.Job, error)

	// Update applies updateFn atomically to the stored job.
	Update(jobID string, updateFn func(*models.Job)) error

	// List returns recent jobs, newest first.
	List() ([]*models.Job, error)

	// Delete removes a job record.
	Delete(jobID string) error

	// Close releases the backing connection, if any.
	Close() error
}
