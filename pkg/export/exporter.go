package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zip"

	"github.com/psantana5/regionocr/pkg/models"
	"github.com/psantana5/regionocr/pkg/store"
)

// MimeType is written as the first, uncompressed entry of every archive
const MimeType = "application/haansoft-hwpx"

// ContentType is served with archive downloads
const ContentType = "application/hwp+zip"

// Result describes a finished export
type Result struct {
	Path        string // absolute archive location
	DownloadURL string // reference relative to the data root's parent
	Entries     int    // number of Contents/ entries written
}

// Exporter packages completed jobs into HWPX archives
type Exporter struct {
	layout   *store.Layout
	template *Template
}

// New creates an exporter writing under layout. A nil template selects the
// built-in one.
func New(layout *store.Layout, tpl *Template) *Exporter {
	if tpl == nil {
		tpl = DefaultTemplate()
	}
	return &Exporter{layout: layout, template: tpl}
}

// Export writes exports/<job_id>.hwpx for a completed job. The archive is
// assembled in a temp file and renamed into place.
func (e *Exporter) Export(ctx context.Context, job *models.Job) (*Result, error) {
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w (job %s is %s)", models.ErrNotCompleted, job.ID, job.Status)
	}

	regions := make([]models.Region, len(job.Regions))
	copy(regions, job.Regions)
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Order < regions[j].Order
	})

	dest := e.layout.ExportPath(job.ID)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+job.ID+".*.hwpx.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := e.writeArchive(ctx, tmp, job, regions); err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to move export into place: %w", err)
	}

	url, err := e.layout.URL(dest)
	if err != nil {
		return nil, err
	}
	return &Result{Path: dest, DownloadURL: url, Entries: len(regions)}, nil
}

func (e *Exporter) writeArchive(ctx context.Context, f *os.File, job *models.Job, regions []models.Region) error {
	zw := zip.NewWriter(f)

	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to write mimetype entry: %w", err)
	}
	if _, err := mt.Write([]byte(MimeType)); err != nil {
		return fmt.Errorf("failed to write mimetype entry: %w", err)
	}

	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := e.template.Render(blockValues(job.ID, region))
		if err != nil {
			return fmt.Errorf("failed to render region %s: %w", region.ID, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   "Contents/" + region.ID + ".xml",
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("failed to add region %s: %w", region.ID, err)
		}
		if _, err := w.Write([]byte(block)); err != nil {
			return fmt.Errorf("failed to write region %s: %w", region.ID, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func blockValues(jobID string, region models.Region) map[string]string {
	order := region.Order
	if order == 0 {
		order = 1
	}
	regionType := string(region.Type)
	if regionType == "" {
		regionType = string(models.RegionTypeMixed)
	}
	return map[string]string{
		TagProblemID:     region.ID,
		TagProblemTitle:  fmt.Sprintf("문제 %d", order),
		TagOCRText:       region.OCRText,
		TagSVGPath:       region.SVGURL,
		TagCropImagePath: region.CropURL,
		TagJobID:         jobID,
		TagRegionType:    regionType,
	}
}
