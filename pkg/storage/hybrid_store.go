package storage

import (
	"log"
	"time"

	"github.com/avaldes/scribeflow/pkg/models"
)

// HybridJobStore layers Redis (hot, TTL-bound) over PostgreSQL (cold,
// durable). Reads prefer Redis and fall back to the database;
// terminal jobs are synced to the database by a background worker in
// batches.
type HybridJobStore struct {
	redis     Store
	db        Store
	syncQueue chan *models.Job
	stopCh    chan struct{}
}

// NewHybridJobStore wires the two stores and starts the sync worker.
func NewHybridJobStore(redis, db Store) *HybridJobStore {
	store := &HybridJobStore{
		redis:     redis,
		db:        db,
		syncQueue: make(chan *models.Job, 100),
		stopCh:    make(chan struct{}),
	}

	go store.syncWorker()

	return store
}

// Save writes Redis immediately; terminal jobs are queued for the
// database as well.
func (s *HybridJobStore) Save(job *models.Job) error {
	if err := s.redis.Save(job); err != nil {
		log.Printf("hybrid store: redis save failed: %v", err)
		// Redis being down must not lose the record.
		return s.db.Save(job)
	}

	if job.State.Terminal() {
		s.asyncSyncToDB(job)
	}

	return nil
}

// Get prefers Redis; on a miss the database copy is returned and
// rewarmed into Redis.
func (s *HybridJobStore) Get(jobID string) (*models.Job, error) {
	job, err := s.redis.Get(jobID)
	if err == nil {
		return job, nil
	}

	job, err = s.db.Get(jobID)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := s.redis.Save(job); err != nil {
			log.Printf("hybrid store: cache rewarm failed: %v", err)
		}
	}()

	return job, nil
}

// Update mutates the Redis copy; terminal results are synced to the
// database.
func (s *HybridJobStore) Update(jobID string, updateFn func(*models.Job)) error {
	if err := s.redis.Update(jobID, updateFn); err != nil {
		if err == ErrJobNotFound {
			// Expired from Redis; the database may still hold it.
			if job, dbErr := s.db.Get(jobID); dbErr == nil {
				updateFn(job)
				return s.Save(job)
			}
		}
		return err
	}

	job, _ := s.redis.Get(jobID)
	if job != nil && job.State.Terminal() {
		s.asyncSyncToDB(job)
	}

	return nil
}

// List prefers Redis and degrades to the database.
func (s *HybridJobStore) List() ([]*models.Job, error) {
	jobs, err := s.redis.List()
	if err != nil {
		log.Printf("hybrid store: redis list failed: %v, falling back to database", err)
		return s.db.List()
	}

	return jobs, nil
}

// Delete removes the job from both layers.
func (s *HybridJobStore) Delete(jobID string) error {
	redisErr := s.redis.Delete(jobID)
	dbErr := s.db.Delete(jobID)

	// Deleting succeeds if either layer held the record.
	if redisErr != nil && dbErr != nil {
		return dbErr
	}
	return nil
}

// Close drains the sync queue (bounded wait) and closes both layers.
func (s *HybridJobStore) Close() error {
	close(s.stopCh)

	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

drain:
	for {
		select {
		case <-timeout:
			log.Printf("hybrid store: sync queue drain timed out, %d jobs left", len(s.syncQueue))
			break drain
		case <-ticker.C:
			if len(s.syncQueue) == 0 {
				break drain
			}
		}
	}

	s.redis.Close()
	s.db.Close()
	return nil
}

func (s *HybridJobStore) asyncSyncToDB(job *models.Job) {
	select {
	case s.syncQueue <- job:
	default:
		// Queue full; write through synchronously rather than drop.
		if err := s.db.Save(job); err != nil {
			log.Printf("hybrid store: database write-through failed: %v", err)
		}
	}
}

// syncWorker batches database writes: 50 jobs or 5 seconds, whichever
// comes first.
func (s *HybridJobStore) syncWorker() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	batch := make([]*models.Job, 0, 50)

	for {
		select {
		case job, ok := <-s.syncQueue:
			if !ok {
				s.batchSave(batch)
				return
			}
			batch = append(batch, job)
			if len(batch) >= 50 {
				s.batchSave(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.batchSave(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			s.batchSave(batch)
			return
		}
	}
}

func (s *HybridJobStore) batchSave(jobs []*models.Job) {
	for _, job := range jobs {
		if err := s.db.Save(job); err != nil {
			log.Printf("hybrid store: sync of job %s failed: %v", job.ID, err)
		}
	}
}
