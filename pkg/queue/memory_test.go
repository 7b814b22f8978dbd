package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaldes/scribeflow/pkg/models"
)

func TestMemoryQueueEnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue(2)

	require.NoError(t, q.Enqueue(&models.Job{ID: "a"}))
	require.NoError(t, q.Enqueue(&models.Job{ID: "b"}))

	job, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)

	job, err = q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "b", job.ID)
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)

	require.NoError(t, q.Enqueue(&models.Job{ID: "a"}))
	assert.ErrorIs(t, q.Enqueue(&models.Job{ID: "b"}), ErrQueueFull)
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Enqueue(&models.Job{ID: "a"}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "double close must be safe")

	// Buffered jobs drain before the closed error surfaces.
	job, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", job.ID)

	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueueNackRequeue(t *testing.T) {
	q := NewMemoryQueue(1)
	job := &models.Job{ID: "a"}

	require.NoError(t, q.Nack(job, true))
	got, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	require.NoError(t, q.Nack(job, false))
	require.NoError(t, q.Ack(job))
}
