package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/psantana5/regionocr/pkg/models"
)

// FileStore keeps one JSON document per job inside the job's directory.
// The version check and the write happen under a store-wide mutex, so writers
// in the same process never clobber each other; records are replaced with an
// atomic rename.
type FileStore struct {
	layout *Layout
	mu     sync.Mutex
}

// NewFileStore creates a file-backed store rooted at the layout's data root
func NewFileStore(layout *Layout) (*FileStore, error) {
	if layout == nil {
		return nil, errors.New("file store requires a layout")
	}
	if err := os.MkdirAll(layout.Root(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data root %s: %w", layout.Root(), err)
	}
	return &FileStore{layout: layout}, nil
}

// CreateJob writes the first version of a job record
func (s *FileStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.layout.JobFile(job.ID)); err == nil {
		return ErrJobExists
	}

	prevUpdated := job.UpdatedAt
	job.Version = 1
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now().UTC()
	}
	if err := s.write(job); err != nil {
		job.Version = 0
		job.UpdatedAt = prevUpdated
		return err
	}
	return nil
}

// GetJob reads a job record from disk
func (s *FileStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return s.read(id)
}

// UpdateJob rewrites the job record if the caller holds the latest version
func (s *FileStore) UpdateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(job.ID)
	if err != nil {
		return err
	}
	if current.Version != job.Version {
		return models.ErrVersionConflict
	}

	prevVersion, prevUpdated := job.Version, job.UpdatedAt
	stampUpdate(job)
	if err := s.write(job); err != nil {
		job.Version, job.UpdatedAt = prevVersion, prevUpdated
		return err
	}
	return nil
}

// ListJobs scans the data root for job records, newest first
func (s *FileStore) ListJobs(ctx context.Context) ([]*models.Job, error) {
	entries, err := os.ReadDir(s.layout.Root())
	if err != nil {
		return nil, fmt.Errorf("failed to read data root: %w", err)
	}

	jobs := make([]*models.Job, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		job, err := s.read(entry.Name())
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

// HealthCheck verifies the data root is present and writable
func (s *FileStore) HealthCheck(ctx context.Context) error {
	probe, err := os.CreateTemp(s.layout.Root(), ".health-*")
	if err != nil {
		return fmt.Errorf("data root not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) read(id string) (*models.Job, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", models.ErrJobNotFound, id)
	}
	data, err := os.ReadFile(s.layout.JobFile(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *FileStore) write(job *models.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := WriteFileAtomic(s.layout.JobFile(job.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write job %s: %w", job.ID, err)
	}
	return nil
}
