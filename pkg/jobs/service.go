package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/regionocr/pkg/export"
	"github.com/psantana5/regionocr/pkg/logging"
	"github.com/psantana5/regionocr/pkg/metrics"
	"github.com/psantana5/regionocr/pkg/models"
	"github.com/psantana5/regionocr/pkg/pipeline"
	"github.com/psantana5/regionocr/pkg/store"
	"github.com/psantana5/regionocr/pkg/tracing"
)

// Options wires a Service. Metrics and Tracing are optional.
type Options struct {
	Store    store.Store
	Layout   *store.Layout
	Runner   *pipeline.Runner
	Exporter *export.Exporter
	Metrics  *metrics.Metrics
	Tracing  *tracing.Provider
	Logger   *logging.Logger
}

// Service drives a job through upload, region assignment, pipeline run and
// export. It is the only component that reads and writes job records.
type Service struct {
	store    store.Store
	layout   *store.Layout
	runner   *pipeline.Runner
	exporter *export.Exporter
	metrics  *metrics.Metrics
	tracing  *tracing.Provider
	logger   *logging.Logger
	newID    func() string
}

// NewService creates a job service
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	tp := opts.Tracing
	if tp == nil {
		tp = tracing.NewNoopProvider("regionocr")
	}
	runner := opts.Runner
	if runner == nil {
		runner = pipeline.NewRunner(opts.Store, opts.Layout, nil, 1, logger)
	}
	exporter := opts.Exporter
	if exporter == nil {
		exporter = export.New(opts.Layout, nil)
	}
	return &Service{
		store:    opts.Store,
		layout:   opts.Layout,
		runner:   runner,
		exporter: exporter,
		metrics:  opts.Metrics,
		tracing:  tp,
		logger:   logger.WithField("component", "jobs"),
		newID:    NewJobID,
	}
}

// NewJobID returns an opaque identifier of the form job_<12 hex digits>
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create stores the uploaded image and a new job awaiting regions
func (s *Service) Create(ctx context.Context, filename string, data []byte) (job *models.Job, err error) {
	ctx, span := s.tracing.StartSpan(ctx, "jobs.Create", attribute.Int("upload.bytes", len(data)))
	defer func() { tracing.EndSpan(span, err) }()

	id := s.newID()
	span.SetAttributes(attribute.String("job.id", id))

	imageURL, err := s.layout.SaveInput(id, filename, data)
	if err != nil {
		return nil, err
	}

	job = &models.Job{
		ID:        id,
		Status:    models.JobStatusCreated,
		ImageURL:  imageURL,
		Regions:   []models.Region{},
		CreatedAt: time.Now().UTC(),
	}
	if err := job.Transition(models.JobStatusRegionsPending, "image uploaded"); err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job %s: %w", id, err)
	}

	if s.metrics != nil {
		s.metrics.RecordJobCreated(len(data))
		s.metrics.RecordTransition(string(job.Status))
	}
	s.logger.Info("Job created", map[string]interface{}{
		"job_id":    id,
		"image_url": imageURL,
		"bytes":     len(data),
	})
	return job, nil
}

// SetRegions validates and replaces the job's region set, returning how many
// regions were stored
func (s *Service) SetRegions(ctx context.Context, id string, reqs []models.RegionRequest) (n int, err error) {
	ctx, span := s.tracing.StartSpan(ctx, "jobs.SetRegions",
		attribute.String("job.id", id), attribute.Int("regions", len(reqs)))
	defer func() { tracing.EndSpan(span, err) }()

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return 0, err
	}
	regions, err := models.NormalizeRegions(reqs)
	if err != nil {
		return 0, err
	}
	if err := job.Transition(models.JobStatusQueued, "regions saved"); err != nil {
		return 0, err
	}
	job.Regions = regions
	job.Error = ""
	job.ExportURL = ""

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return 0, fmt.Errorf("failed to save regions for job %s: %w", id, err)
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(job.Status))
	}
	s.logger.Info("Regions saved", map[string]interface{}{
		"job_id":  id,
		"regions": len(regions),
	})
	return len(regions), nil
}

// Run executes the pipeline for every region of the job
func (s *Service) Run(ctx context.Context, id string) (job *models.Job, err error) {
	ctx, span := s.tracing.StartSpan(ctx, "jobs.Run", attribute.String("job.id", id))
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	job, err = s.runner.Run(ctx, id)
	elapsed := time.Since(start)

	if s.metrics != nil && job != nil {
		result := "success"
		if err != nil {
			result = "failure"
		}
		s.metrics.ObservePipeline(result, elapsed)
		s.metrics.RecordTransition(string(job.Status))
		for _, reg := range job.Regions {
			s.metrics.RecordRegion(string(reg.Status))
		}
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("regions", len(job.Regions)))
	s.logger.Info("Job completed", map[string]interface{}{
		"job_id":      id,
		"regions":     len(job.Regions),
		"duration_ms": elapsed.Milliseconds(),
	})
	return job, nil
}

// Get returns the current job record
func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// List returns every job, newest first
func (s *Service) List(ctx context.Context) ([]*models.Job, error) {
	return s.store.ListJobs(ctx)
}

// Export packages a completed job and records the archive reference on it.
// The archive is moved into place before the reference is saved, so when the
// save fails with ErrVersionConflict the new archive has still replaced the
// previous one; the job keeps its old export_url until a later Export succeeds.
func (s *Service) Export(ctx context.Context, id string) (res *export.Result, err error) {
	ctx, span := s.tracing.StartSpan(ctx, "jobs.Export", attribute.String("job.id", id))
	defer func() {
		if s.metrics != nil {
			var size int64
			if res != nil {
				if info, statErr := os.Stat(res.Path); statErr == nil {
					size = info.Size()
				}
			}
			result := "success"
			if err != nil {
				result = "failure"
			}
			s.metrics.RecordExport(result, size)
		}
		tracing.EndSpan(span, err)
	}()

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err = s.exporter.Export(ctx, job)
	if err != nil {
		return nil, err
	}

	job.ExportURL = res.DownloadURL
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record export for job %s: %w", id, err)
	}

	s.logger.Info("Job exported", map[string]interface{}{
		"job_id":       id,
		"download_url": res.DownloadURL,
		"entries":      res.Entries,
	})
	return res, nil
}

// OpenExport opens the archive recorded on the job by the last Export. A job
// whose regions changed since then has no export. The caller closes the file.
func (s *Service) OpenExport(ctx context.Context, id string) (*os.File, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.ExportURL == "" {
		return nil, fmt.Errorf("%w: job %s", models.ErrExportNotFound, id)
	}
	p, err := s.layout.Resolve(job.ExportURL)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: job %s", models.ErrExportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open export for job %s: %w", id, err)
	}
	return f, nil
}

// HealthCheck reports whether the store is reachable
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// DataRoot returns the directory holding job data
func (s *Service) DataRoot() string {
	return s.layout.Root()
}
