package queue

import (
	"sync"

	"github.com/avaldes/scribeflow/pkg/models"
)

// MemoryQueue is a buffered-channel queue for single-process
// deployments.
type MemoryQueue struct {
	queue     chan *models.Job
	closeOnce sync.Once
}

// NewMemoryQueue creates a memory queue with the given buffer size.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return &MemoryQueue{
		queue: make(chan *models.Job, bufferSize),
	}
}

// Enqueue adds a job without blocking; a full buffer is an error so
// the API can push back instead of stalling the request.
func (mq *MemoryQueue) Enqueue(job *models.Job) error {
	select {
	case mq.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a job arrives or the queue closes.
func (mq *MemoryQueue) Dequeue() (*models.Job, error) {
	job, ok := <-mq.queue
	if !ok {
		return nil, ErrQueueClosed
	}
	return job, nil
}

// Ack is a no-op; channel delivery is already at-most-once.
func (mq *MemoryQueue) Ack(job *models.Job) error {
	return nil
}

// Nack re-enqueues the job when requeue is set.
func (mq *MemoryQueue) Nack(job *models.Job, requeue bool) error {
	if requeue {
		return mq.Enqueue(job)
	}
	return nil
}

// Close closes the channel; pending jobs are still drained by
// consumers.
func (mq *MemoryQueue) Close() error {
	mq.closeOnce.Do(func() {
		close(mq.queue)
	})
	return nil
}
