package store

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// URLPrefix is prepended to every artifact reference stored in a job record
const URLPrefix = "jobs"

// DefaultInputName is used when an upload carries no usable filename
const DefaultInputName = "uploaded_image"

// Layout owns the on-disk tree of a job:
//
//	<root>/<job_id>/job.json
//	<root>/<job_id>/input/<filename>
//	<root>/<job_id>/outputs/<region_id>.{txt,svg}, <region_id>_crop.txt
//	<root>/<job_id>/exports/<job_id>.hwpx
type Layout struct {
	root string
}

// NewLayout creates a layout rooted at dir
func NewLayout(dir string) *Layout {
	return &Layout{root: filepath.Clean(dir)}
}

// Root returns the data root directory
func (l *Layout) Root() string { return l.root }

// JobDir returns the directory holding everything for one job
func (l *Layout) JobDir(jobID string) string {
	return filepath.Join(l.root, jobID)
}

// JobFile returns the path of the job record
func (l *Layout) JobFile(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "job.json")
}

func (l *Layout) InputDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "input")
}

func (l *Layout) OutputsDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "outputs")
}

func (l *Layout) ExportsDir(jobID string) string {
	return filepath.Join(l.JobDir(jobID), "exports")
}

// TextPath, SVGPath and CropPath name the pipeline artifacts of a region
func (l *Layout) TextPath(jobID, regionID string) string {
	return filepath.Join(l.OutputsDir(jobID), regionID+".txt")
}

func (l *Layout) SVGPath(jobID, regionID string) string {
	return filepath.Join(l.OutputsDir(jobID), regionID+".svg")
}

func (l *Layout) CropPath(jobID, regionID string) string {
	return filepath.Join(l.OutputsDir(jobID), regionID+"_crop.txt")
}

// ExportPath returns the HWPX archive location for a job
func (l *Layout) ExportPath(jobID string) string {
	return filepath.Join(l.ExportsDir(jobID), jobID+".hwpx")
}

// URL converts a path inside the layout into the slash-separated reference
// stored in job records, e.g. "jobs/job_x/outputs/q1.svg".
func (l *Layout) URL(p string) (string, error) {
	rel, err := filepath.Rel(l.root, p)
	if err != nil {
		return "", fmt.Errorf("path %s outside data root: %w", p, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s outside data root %s", p, l.root)
	}
	return path.Join(URLPrefix, filepath.ToSlash(rel)), nil
}

// Resolve is the inverse of URL
func (l *Layout) Resolve(url string) (string, error) {
	clean := path.Clean(url)
	rel := strings.TrimPrefix(clean, URLPrefix+"/")
	if rel == clean || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", fmt.Errorf("invalid artifact reference %q", url)
	}
	return filepath.Join(l.root, filepath.FromSlash(rel)), nil
}

// SaveInput stores the uploaded image for a job and returns its reference
func (l *Layout) SaveInput(jobID, filename string, data []byte) (string, error) {
	dir := l.InputDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create input directory: %w", err)
	}
	p := filepath.Join(dir, SanitizeFilename(filename))
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write input image: %w", err)
	}
	return l.URL(p)
}

// SanitizeFilename strips any directory components from a client filename
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return DefaultInputName
	}
	return name
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func WriteFileAtomic(p string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
