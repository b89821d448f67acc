package models

import (
	"fmt"
	"strings"
)

// MinPolygonPoints is the smallest number of vertices a region outline may have
const MinPolygonPoints = 4

// ValidatePolygon enforces the structural shape of a polygon: at least four
// points, each with exactly two coordinates. No geometric checks are made.
func ValidatePolygon(polygon Polygon) error {
	if len(polygon) < MinPolygonPoints {
		return fmt.Errorf("%w: polygon must contain at least %d points, got %d",
			ErrInvalidPolygon, MinPolygonPoints, len(polygon))
	}
	for i, pt := range polygon {
		if len(pt) != 2 {
			return fmt.Errorf("%w: point %d must have exactly two coordinates, got %d",
				ErrInvalidPolygon, i, len(pt))
		}
	}
	return nil
}

// NormalizeRegions validates a client region set and converts it into
// pending regions, preserving input order.
func NormalizeRegions(reqs []RegionRequest) ([]Region, error) {
	seen := make(map[string]struct{}, len(reqs))
	regions := make([]Region, 0, len(reqs))

	for i, req := range reqs {
		if req.ID == "" {
			return nil, fmt.Errorf("%w: id is required (index %d)", ErrInvalidRegionID, i)
		}
		if req.ID == "." || req.ID == ".." || strings.ContainsAny(req.ID, `/\`) {
			return nil, fmt.Errorf("%w: %q must not contain path separators", ErrInvalidRegionID, req.ID)
		}
		if _, dup := seen[req.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRegion, req.ID)
		}
		seen[req.ID] = struct{}{}

		if err := ValidatePolygon(req.Polygon); err != nil {
			return nil, fmt.Errorf("region %q: %w", req.ID, err)
		}
		if !req.Type.Valid() {
			return nil, fmt.Errorf("%w: region %q has type %q (want text, diagram or mixed)",
				ErrInvalidRegionType, req.ID, req.Type)
		}

		order := req.Order
		if order == 0 {
			order = 1
		}
		if order < 1 {
			return nil, fmt.Errorf("%w: region %q order must be >= 1, got %d",
				ErrInvalidOrder, req.ID, req.Order)
		}

		regions = append(regions, Region{
			ID:      req.ID,
			Status:  RegionStatusPending,
			Type:    req.Type,
			Order:   order,
			Polygon: req.Polygon.Clone(),
		})
	}
	return regions, nil
}
