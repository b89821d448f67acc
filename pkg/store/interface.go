package store

import (
	"context"
	"errors"
	"time"

	"github.com/psantana5/regionocr/pkg/models"
)

// Store defines the interface for job persistence.
// Every implementation stores the full job record and enforces optimistic
// concurrency through Job.Version.
type Store interface {
	// CreateJob persists a new job. The job's Version is set to 1.
	CreateJob(ctx context.Context, job *models.Job) error

	// GetJob returns a copy of the stored job or models.ErrJobNotFound.
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// UpdateJob replaces the stored record if job.Version matches the stored
	// version. On success job.Version is incremented and job.UpdatedAt stamped.
	UpdateJob(ctx context.Context, job *models.Job) error

	// ListJobs returns all jobs, newest first.
	ListJobs(ctx context.Context) ([]*models.Job, error)

	// Lifecycle
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config holds store configuration
type Config struct {
	Type string // "file", "memory", "sqlite" or "postgres"
	DSN  string // Connection string (sqlite path or postgres DSN)

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

var (
	ErrUnsupportedDatabase = errors.New("unsupported database type")
	ErrJobExists           = errors.New("job already exists")
)

// NewStore creates a store based on configuration. The file backend keeps
// job.json next to the job's artifacts inside layout.
func NewStore(config Config, layout *Layout) (Store, error) {
	switch config.Type {
	case "file", "":
		return NewFileStore(layout)
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		path := config.DSN
		if path == "" {
			path = "regionocr.db"
		}
		return NewSQLiteStore(path)
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

// stampUpdate applies the bookkeeping shared by every backend after a
// successful version check.
func stampUpdate(job *models.Job) {
	job.Version++
	job.UpdatedAt = time.Now().UTC()
}
