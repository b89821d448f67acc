package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/psantana5/regionocr/pkg/models"
)

func newTestJob(id string, created time.Time) *models.Job {
	return &models.Job{
		ID:        id,
		Status:    models.JobStatusRegionsPending,
		ImageURL:  "jobs/" + id + "/input/sheet.png",
		Regions:   []models.Region{},
		CreatedAt: created,
	}
}

// testStoreContract exercises the behaviour every backend must share
func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("CreateAndGet", func(t *testing.T) {
		job := newTestJob("job_create", base)
		if err := s.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		if job.Version != 1 {
			t.Errorf("expected version 1 after create, got %d", job.Version)
		}

		got, err := s.GetJob(ctx, "job_create")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Status != models.JobStatusRegionsPending || got.ImageURL != job.ImageURL {
			t.Errorf("unexpected job: %+v", got)
		}
		if got.UpdatedAt.IsZero() {
			t.Error("expected updated_at to be stamped")
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		job := newTestJob("job_dup", base)
		if err := s.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		if err := s.CreateJob(ctx, newTestJob("job_dup", base)); !errors.Is(err, ErrJobExists) {
			t.Errorf("expected ErrJobExists, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.GetJob(ctx, "job_missing"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateIncrementsVersion", func(t *testing.T) {
		job := newTestJob("job_update", base)
		if err := s.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		job.Status = models.JobStatusQueued
		job.Regions = []models.Region{{
			ID:      "q1",
			Status:  models.RegionStatusPending,
			Type:    models.RegionTypeMixed,
			Order:   1,
			Polygon: models.Polygon{{10, 10}, {220, 10}, {220, 140}, {10, 140}},
		}}
		if err := s.UpdateJob(ctx, job); err != nil {
			t.Fatalf("UpdateJob failed: %v", err)
		}
		if job.Version != 2 {
			t.Errorf("expected version 2, got %d", job.Version)
		}

		got, err := s.GetJob(ctx, "job_update")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Version != 2 || got.Status != models.JobStatusQueued || len(got.Regions) != 1 {
			t.Errorf("update not persisted: %+v", got)
		}
		if got.Regions[0].Polygon[2][0] != 220 {
			t.Errorf("polygon not persisted: %v", got.Regions[0].Polygon)
		}
	})

	t.Run("UpdateStaleVersion", func(t *testing.T) {
		job := newTestJob("job_stale", base)
		if err := s.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		first, _ := s.GetJob(ctx, "job_stale")
		second, _ := s.GetJob(ctx, "job_stale")

		first.Status = models.JobStatusQueued
		if err := s.UpdateJob(ctx, first); err != nil {
			t.Fatalf("first writer failed: %v", err)
		}

		second.Status = models.JobStatusFailed
		err := s.UpdateJob(ctx, second)
		if !errors.Is(err, models.ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
		if second.Version != 1 {
			t.Errorf("rejected update must not bump caller version, got %d", second.Version)
		}

		got, _ := s.GetJob(ctx, "job_stale")
		if got.Status != models.JobStatusQueued {
			t.Errorf("stale writer clobbered record: status %s", got.Status)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		job := newTestJob("job_never_created", base)
		job.Version = 1
		if err := s.UpdateJob(ctx, job); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		older := newTestJob("job_list_old", base.Add(-time.Hour))
		newer := newTestJob("job_list_new", base.Add(time.Hour))
		if err := s.CreateJob(ctx, older); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		if err := s.CreateJob(ctx, newer); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}

		jobs, err := s.ListJobs(ctx)
		if err != nil {
			t.Fatalf("ListJobs failed: %v", err)
		}
		if len(jobs) < 2 {
			t.Fatalf("expected at least 2 jobs, got %d", len(jobs))
		}
		if jobs[0].ID != "job_list_new" {
			t.Errorf("expected newest job first, got %s", jobs[0].ID)
		}
		if jobs[len(jobs)-1].ID != "job_list_old" {
			t.Errorf("expected oldest job last, got %s", jobs[len(jobs)-1].ID)
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		if err := s.HealthCheck(ctx); err != nil {
			t.Errorf("HealthCheck failed: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(NewLayout(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	testStoreContract(t, s)
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	layout := NewLayout(root)
	s, err := NewFileStore(layout)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := s.CreateJob(context.Background(), newTestJob("job_layout", time.Now())); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(root, "job_layout", "*"))
	if len(matches) != 1 || filepath.Base(matches[0]) != "job.json" {
		t.Errorf("expected only job.json in job dir, got %v", matches)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "regionocr.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()
	testStoreContract(t, s)
}

func TestNewStoreUnsupported(t *testing.T) {
	if _, err := NewStore(Config{Type: "mongo"}, NewLayout(t.TempDir())); !errors.Is(err, ErrUnsupportedDatabase) {
		t.Errorf("expected ErrUnsupportedDatabase, got %v", err)
	}
}

func TestNewStoreSelectsBackend(t *testing.T) {
	layout := NewLayout(t.TempDir())

	s, err := NewStore(Config{}, layout)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected file store by default, got %T", s)
	}

	s, err = NewStore(Config{Type: "memory"}, layout)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", s)
	}
}
