package models

import (
	"time"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusCreated        JobStatus = "created"
	JobStatusRegionsPending JobStatus = "regions_pending"
	JobStatusQueued         JobStatus = "queued"
	JobStatusRunning        JobStatus = "running"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
)

// RegionStatus represents the processing status of a single region
type RegionStatus string

const (
	RegionStatusPending   RegionStatus = "pending"
	RegionStatusRunning   RegionStatus = "running"
	RegionStatusCompleted RegionStatus = "completed"
	RegionStatusFailed    RegionStatus = "failed"
)

// RegionType classifies the content of a region
type RegionType string

const (
	RegionTypeText    RegionType = "text"
	RegionTypeDiagram RegionType = "diagram"
	RegionTypeMixed   RegionType = "mixed"
)

// Valid reports whether t is one of the known region types
func (t RegionType) Valid() bool {
	switch t {
	case RegionTypeText, RegionTypeDiagram, RegionTypeMixed:
		return true
	}
	return false
}

// Point is a single polygon vertex. It is kept as a slice so that
// malformed input (1 or 3 coordinates) survives decoding and can be rejected
// by ValidatePolygon instead of being silently truncated.
type Point []float64

// Polygon is an ordered sequence of points outlining a region
type Polygon []Point

// Job is one end-to-end unit of work from upload to export
type Job struct {
	ID               string            `json:"job_id"`
	Status           JobStatus         `json:"status"`
	ImageURL         string            `json:"image_url,omitempty"`
	Regions          []Region          `json:"regions"`
	ExportURL        string            `json:"export_url,omitempty"`
	Error            string            `json:"error,omitempty"`
	Version          int               `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	StateTransitions []StateTransition `json:"state_transitions,omitempty"`
}

// Region is one user-delineated polygon area within a job's image
type Region struct {
	ID      string       `json:"id"`
	Status  RegionStatus `json:"status"`
	Type    RegionType   `json:"type"`
	Order   int          `json:"order"`
	Polygon Polygon      `json:"polygon"`
	OCRText string       `json:"ocr_text,omitempty"`
	SVGURL  string       `json:"svg_url,omitempty"`
	CropURL string       `json:"crop_url,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// RegionRequest is a client-supplied region definition
type RegionRequest struct {
	ID      string     `json:"id" yaml:"id"`
	Polygon Polygon    `json:"polygon" yaml:"polygon"`
	Type    RegionType `json:"type" yaml:"type"`
	Order   int        `json:"order,omitempty" yaml:"order,omitempty"`
}

// RegionSetRequest is the body of PUT /jobs/{id}/regions
type RegionSetRequest struct {
	Regions []RegionRequest `json:"regions" yaml:"regions"`
}

// RegionSetResponse acknowledges a region assignment
type RegionSetResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// RunResponse is returned after a pipeline run
type RunResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// ExportResponse points at a produced archive
type ExportResponse struct {
	DownloadURL string `json:"download_url"`
}

// StateTransition tracks job state changes with timestamps
type StateTransition struct {
	From      JobStatus `json:"from"`
	To        JobStatus `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Clone returns a deep copy of the job so stores never share mutable state
// with callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Regions != nil {
		c.Regions = make([]Region, len(j.Regions))
		for i, r := range j.Regions {
			c.Regions[i] = r
			c.Regions[i].Polygon = r.Polygon.Clone()
		}
	}
	if j.StateTransitions != nil {
		c.StateTransitions = append([]StateTransition(nil), j.StateTransitions...)
	}
	return &c
}

// Clone returns a deep copy of the polygon
func (p Polygon) Clone() Polygon {
	if p == nil {
		return nil
	}
	c := make(Polygon, len(p))
	for i, pt := range p {
		c[i] = append(Point(nil), pt...)
	}
	return c
}
