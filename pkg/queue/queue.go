package queue

import (
	"errors"

	"github.com/avaldes/scribeflow/pkg/models"
)

// ErrQueueClosed is returned by Dequeue once the queue is shut down.
var ErrQueueClosed = errors.New("queue closed")

// ErrQueueFull is returned by Enqueue when the queue cannot accept
// more jobs.
var ErrQueueFull = errors.New("queue full")

// Queue hands submitted jobs to the worker pool. Implementations are
// safe for concurrent producers and consumers.
type Queue interface {
	// Enqueue adds a job to the queue.
	Enqueue(job *models.Job) error

	// Dequeue blocks until a job is available or the queue closes.
	Dequeue() (*models.Job, error)

	// Ack confirms the job was processed to a terminal state.
	Ack(job *models.Job) error

	// Nack rejects the job; requeue controls redelivery.
	Nack(job *models.Job, requeue bool) error

	// Close shuts the queue down.
	Close() error
}
