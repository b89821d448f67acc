package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/psantana5/regionocr/pkg/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"job not found", fmt.Errorf("%w: job_x", models.ErrJobNotFound), http.StatusNotFound, "job not found"},
		{"export not found", fmt.Errorf("%w: job job_x", models.ErrExportNotFound), http.StatusNotFound, "export not found"},
		{"no regions", fmt.Errorf("%w (job job_x)", models.ErrNoRegions), http.StatusBadRequest, "regions not set"},
		{"not completed", models.ErrNotCompleted, http.StatusBadRequest, "job is not completed"},
		{"invalid polygon", fmt.Errorf("%w: region q1 has 3 points", models.ErrInvalidPolygon), http.StatusBadRequest, "invalid polygon: region q1 has 3 points"},
		{"transition", fmt.Errorf("%w: running -> queued", models.ErrInvalidTransition), http.StatusConflict, "invalid status transition: running -> queued"},
		{"version", fmt.Errorf("failed to save: %w", models.ErrVersionConflict), http.StatusConflict, "failed to save: job was modified concurrently"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := statusFor(tt.err)
			if status != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, status)
			}
			if detail != tt.detail {
				t.Errorf("Expected detail %q, got %q", tt.detail, detail)
			}
		})
	}
}
