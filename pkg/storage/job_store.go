package storage

import (
	"sort"
	"sync"

	"github.com/avaldes/scribeflow/pkg/models"
)

// JobStore is the in-memory Store implementation. Jobs live for the
// process lifetime; retention is an external policy.
type JobStore struct {
	jobs map[string]*models.Job
	mu   sync.RWMutex
}

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*models.Job),
	}
}

// Save inserts or replaces a job record.
func (js *JobStore) Save(job *models.Job) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	clone := *job
	js.jobs[job.ID] = &clone
	return nil
}

// Get returns a snapshot of the job so callers never observe
// concurrent updates mid-read.
func (js *JobStore) Get(jobID string) (*models.Job, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return nil, ErrJobNotFound
	}

	clone := *job
	return &clone, nil
}

// Update applies updateFn while holding the write lock.
func (js *JobStore) Update(jobID string, updateFn func(*models.Job)) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	updateFn(job)
	return nil
}

// List returns all jobs, newest first.
func (js *JobStore) List() ([]*models.Job, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(js.jobs))
	for _, job := range js.jobs {
		clone := *job
		jobs = append(jobs, &clone)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	return jobs, nil
}

// Delete removes a job record.
func (js *JobStore) Delete(jobID string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if _, exists := js.jobs[jobID]; !exists {
		return ErrJobNotFound
	}
	delete(js.jobs, jobID)
	return nil
}

// Close is a no-op for the in-memory store.
func (js *JobStore) Close() error {
	return nil
}
