package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avaldes/scribeflow/pkg/models"
)

const jobIndexKey = "scribeflow:jobs:index"

// RedisJobStore keeps job records in Redis with a TTL, which doubles
// as the retention policy for finished jobs. A sorted set indexed by
// creation time backs List.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
	ctx    context.Context

	// Serializes Update's read-modify-write so concurrent saves on the
	// same job cannot interleave.
	mu sync.Mutex
}

// NewRedisJobStore connects to Redis and verifies the connection.
func NewRedisJobStore(addr, password string, db int, ttl time.Duration) (*RedisJobStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisJobStore{
		client: client,
		ttl:    ttl,
		ctx:    ctx,
	}, nil
}

func (rs *RedisJobStore) getKey(jobID string) string {
	return fmt.Sprintf("scribeflow:job:%s", jobID)
}

// Save writes the job as JSON with the store TTL and indexes it.
func (rs *RedisJobStore) Save(job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	key := rs.getKey(job.ID)
	if err := rs.client.Set(rs.ctx, key, data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("save job to redis: %w", err)
	}

	score := float64(job.CreatedAt.Unix())
	if err := rs.client.ZAdd(rs.ctx, jobIndexKey, redis.Z{
		Score:  score,
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("index job: %w", err)
	}

	return nil
}

// Get fetches and unmarshals the job record.
func (rs *RedisJobStore) Get(jobID string) (*models.Job, error) {
	data, err := rs.client.Get(rs.ctx, rs.getKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job from redis: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	return &job, nil
}

// Update reads, mutates and writes back under the store mutex.
func (rs *RedisJobStore) Update(jobID string, updateFn func(*models.Job)) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	job, err := rs.Get(jobID)
	if err != nil {
		return err
	}

	updateFn(job)
	return rs.Save(job)
}

// List returns indexed jobs newest first, pruning expired entries from
// the index as it goes.
func (rs *RedisJobStore) List() ([]*models.Job, error) {
	jobIDs, err := rs.client.ZRevRange(rs.ctx, jobIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read job index: %w", err)
	}

	jobs := make([]*models.Job, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		job, err := rs.Get(jobID)
		if err != nil {
			// Expired record; drop it from the index.
			rs.client.ZRem(rs.ctx, jobIndexKey, jobID)
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// Delete removes the record and its index entry.
func (rs *RedisJobStore) Delete(jobID string) error {
	deleted, err := rs.client.Del(rs.ctx, rs.getKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if deleted == 0 {
		return ErrJobNotFound
	}

	rs.client.ZRem(rs.ctx, jobIndexKey, jobID)
	return nil
}

// Close closes the Redis connection.
func (rs *RedisJobStore) Close() error {
	return rs.client.Close()
}
