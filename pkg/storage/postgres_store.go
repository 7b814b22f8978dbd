package storage

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/avaldes/scribeflow/pkg/models"
)

// PostgresJobStore persists job records in PostgreSQL.
type PostgresJobStore struct {
	db *sql.DB
	mu sync.Mutex
}

const createJobsTable = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
    file_id           TEXT PRIMARY KEY,
    filename          TEXT NOT NULL,
    media_ref         TEXT NOT NULL DEFAULT '',
    state             TEXT NOT NULL,
    progress          INT NOT NULL DEFAULT 0,
    language_hint     TEXT NOT NULL DEFAULT '',
    detected_language TEXT NOT NULL DEFAULT '',
    transcript        TEXT NOT NULL DEFAULT '',
    transcript_rev    INT NOT NULL DEFAULT 0,
    duration          DOUBLE PRECISION NOT NULL DEFAULT 0,
    error             TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL,
    completed_at      TIMESTAMPTZ
)`

// NewPostgresJobStore opens the connection pool and ensures the jobs
// table exists.
func NewPostgresJobStore(dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(createJobsTable); err != nil {
		return nil, fmt.Errorf("create jobs table: %w", err)
	}

	return &PostgresJobStore{db: db}, nil
}

// Save upserts the job record.
func (s *PostgresJobStore) Save(job *models.Job) error {
	query := `
	INSERT INTO transcription_jobs (
	    file_id, filename, media_ref, state, progress,
	    language_hint, detected_language, transcript, transcript_rev,
	    duration, error, created_at, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (file_id)
	DO UPDATE SET
	    state = EXCLUDED.state,
	    progress = EXCLUDED.progress,
	    detected_language = EXCLUDED.detected_language,
	    transcript = EXCLUDED.transcript,
	    transcript_rev = EXCLUDED.transcript_rev,
	    duration = EXCLUDED.duration,
	    error = EXCLUDED.error,
	    completed_at = EXCLUDED.completed_at
	`

	var completedAt sql.NullTime
	if !job.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: job.CompletedAt, Valid: true}
	}

	_, err := s.db.Exec(query,
		job.ID,
		job.Filename,
		job.MediaRef,
		string(job.State),
		job.Progress,
		job.LanguageHint,
		job.DetectedLanguage,
		job.Transcript,
		job.TranscriptRev,
		job.Duration,
		job.Error,
		job.CreatedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("save job to database: %w", err)
	}

	return nil
}

// Get fetches the job record by file_id.
func (s *PostgresJobStore) Get(jobID string) (*models.Job, error) {
	query := `
	SELECT file_id, filename, media_ref, state, progress,
	       language_hint, detected_language, transcript, transcript_rev,
	       duration, error, created_at, completed_at
	FROM transcription_jobs
	WHERE file_id = $1
	`

	job, err := scanJob(s.db.QueryRow(query, jobID))
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}

	return job, nil
}

// Update reads, mutates and writes back under the store mutex.
func (s *PostgresJobStore) Update(jobID string, updateFn func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(jobID)
	if err != nil {
		return err
	}

	updateFn(job)
	return s.Save(job)
}

// List returns the 100 most recent jobs.
func (s *PostgresJobStore) List() ([]*models.Job, error) {
	query := `
	SELECT file_id, filename, media_ref, state, progress,
	       language_hint, detected_language, transcript, transcript_rev,
	       duration, error, created_at, completed_at
	FROM transcription_jobs
	ORDER BY created_at DESC
	LIMIT 100
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// Delete removes the job record.
func (s *PostgresJobStore) Delete(jobID string) error {
	result, err := s.db.Exec(`DELETE FROM transcription_jobs WHERE file_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Close closes the connection pool.
func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var state string
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Filename,
		&job.MediaRef,
		&state,
		&job.Progress,
		&job.LanguageHint,
		&job.DetectedLanguage,
		&job.Transcript,
		&job.TranscriptRev,
		&job.Duration,
		&job.Error,
		&job.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = models.JobState(state)
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}

	return &job, nil
}
