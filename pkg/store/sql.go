package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/regionocr/pkg/models"
)

// sqlStore holds the query logic shared by the SQLite and PostgreSQL
// backends. Jobs are stored as a JSON document plus the columns needed for
// listing and the optimistic version check.
type sqlStore struct {
	db *sql.DB
	// dollar selects $N placeholders (PostgreSQL) instead of ?
	dollar bool
}

const jobsSchema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		document TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

// bind rewrites ? placeholders for the target dialect
func (s *sqlStore) bind(query string) string {
	if !s.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, jobsSchema)
	return err
}

func (s *sqlStore) CreateJob(ctx context.Context, job *models.Job) error {
	prevUpdated := job.UpdatedAt
	job.Version = 1
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	_, err = s.db.ExecContext(ctx, s.bind(`
		INSERT INTO jobs (id, status, version, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), job.ID, string(job.Status), job.Version, string(doc), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		job.Version = 0
		job.UpdatedAt = prevUpdated
		if _, getErr := s.GetJob(ctx, job.ID); getErr == nil {
			return ErrJobExists
		}
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *sqlStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT document FROM jobs WHERE id = ?`), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job %s: %w", id, err)
	}
	return decodeJob(doc)
}

func (s *sqlStore) UpdateJob(ctx context.Context, job *models.Job) error {
	expected := job.Version
	prevUpdated := job.UpdatedAt
	stampUpdate(job)

	doc, err := json.Marshal(job)
	if err != nil {
		job.Version, job.UpdatedAt = expected, prevUpdated
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	res, err := s.db.ExecContext(ctx, s.bind(`
		UPDATE jobs SET status = ?, version = ?, document = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`), string(job.Status), job.Version, string(doc), job.UpdatedAt, job.ID, expected)
	if err != nil {
		job.Version, job.UpdatedAt = expected, prevUpdated
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		job.Version, job.UpdatedAt = expected, prevUpdated
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if rows == 0 {
		job.Version, job.UpdatedAt = expected, prevUpdated
		if _, err := s.GetJob(ctx, job.ID); err != nil {
			return err
		}
		return models.ErrVersionConflict
	}
	return nil
}

func (s *sqlStore) ListJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM jobs ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job, err := decodeJob(doc)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *sqlStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func decodeJob(doc string) (*models.Job, error) {
	var job models.Job
	if err := json.Unmarshal([]byte(doc), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job document: %w", err)
	}
	return &job, nil
}
