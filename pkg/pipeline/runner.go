package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/psantana5/regionocr/pkg/logging"
	"github.com/psantana5/regionocr/pkg/models"
	"github.com/psantana5/regionocr/pkg/store"
)

// Runner executes the per-region pipeline of a job
type Runner struct {
	store       store.Store
	layout      *store.Layout
	recognizer  Recognizer
	concurrency int
	logger      *logging.Logger
}

// NewRunner creates a runner. A nil recognizer selects MockRecognizer and a
// concurrency below 1 processes regions one at a time.
func NewRunner(s store.Store, layout *store.Layout, rec Recognizer, concurrency int, logger *logging.Logger) *Runner {
	if rec == nil {
		rec = MockRecognizer{}
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Runner{
		store:       s,
		layout:      layout,
		recognizer:  rec,
		concurrency: concurrency,
		logger:      logger.WithField("component", "pipeline"),
	}
}

// Run processes every region of the job and returns the completed record.
//
// The job and all regions are persisted as running before any work starts.
// A job left running by an interrupted run starts again from the top.
// If a region fails, that region is marked failed, regions that did not
// finish go back to pending, and the job is persisted as failed.
func (r *Runner) Run(ctx context.Context, id string) (*models.Job, error) {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(job.Regions) == 0 {
		return nil, fmt.Errorf("%w (job %s)", models.ErrNoRegions, id)
	}
	if !models.CanRun(job.Status) {
		return nil, fmt.Errorf("%w: job %s cannot run while %s", models.ErrInvalidTransition, id, job.Status)
	}

	if err := job.Transition(models.JobStatusRunning, "pipeline started"); err != nil {
		return nil, err
	}
	job.Error = ""
	for i := range job.Regions {
		reg := &job.Regions[i]
		reg.Status = models.RegionStatusRunning
		reg.OCRText, reg.SVGURL, reg.CropURL, reg.Error = "", "", "", ""
	}
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job %s running: %w", id, err)
	}

	logger := r.logger.WithField("job_id", id)
	logger.Info("Pipeline started", map[string]interface{}{
		"regions":     len(job.Regions),
		"concurrency": r.concurrency,
	})

	snapshot := job.Clone()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range job.Regions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			reg := &job.Regions[i]
			if err := r.processRegion(gctx, snapshot, reg); err != nil {
				reg.Status = models.RegionStatusFailed
				reg.Error = err.Error()
				return fmt.Errorf("region %s: %w", reg.ID, err)
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return job, r.fail(ctx, job, err)
	}

	if err := job.Transition(models.JobStatusCompleted, "pipeline finished"); err != nil {
		return nil, err
	}
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save completed job %s: %w", id, err)
	}

	logger.Info("Pipeline completed")
	return job, nil
}

func (r *Runner) processRegion(ctx context.Context, job *models.Job, reg *models.Region) error {
	text, err := r.recognizer.Recognize(ctx, job, *reg)
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}

	textPath := r.layout.TextPath(job.ID, reg.ID)
	svgPath := r.layout.SVGPath(job.ID, reg.ID)
	cropPath := r.layout.CropPath(job.ID, reg.ID)

	artifacts := []struct {
		path string
		data string
	}{
		{textPath, text},
		{svgPath, RenderSVG(*reg)},
		{cropPath, CropPlaceholder},
	}
	for _, a := range artifacts {
		if err := store.WriteFileAtomic(a.path, []byte(a.data), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", a.path, err)
		}
	}

	svgURL, err := r.layout.URL(svgPath)
	if err != nil {
		return err
	}
	cropURL, err := r.layout.URL(cropPath)
	if err != nil {
		return err
	}

	reg.OCRText = text
	reg.SVGURL = svgURL
	reg.CropURL = cropURL
	reg.Status = models.RegionStatusCompleted

	r.logger.Debug("Region completed", map[string]interface{}{
		"job_id":    job.ID,
		"region_id": reg.ID,
	})
	return nil
}

// fail persists the failed state. The store write ignores cancellation of
// ctx so a disconnected client still leaves a consistent record.
func (r *Runner) fail(ctx context.Context, job *models.Job, cause error) error {
	for i := range job.Regions {
		if job.Regions[i].Status == models.RegionStatusRunning {
			job.Regions[i].Status = models.RegionStatusPending
		}
	}
	job.Error = cause.Error()
	if err := job.Transition(models.JobStatusFailed, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}

	if err := r.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		r.logger.Error("Failed to persist failed job", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return errors.Join(cause, err)
	}

	r.logger.Warn("Pipeline failed", map[string]interface{}{
		"job_id": job.ID,
		"error":  cause.Error(),
	})
	return cause
}
