package models

import (
	"errors"
)

// Error families. Callers match with errors.Is; the HTTP layer maps each
// family to a status code.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrConflict           = errors.New("conflict")
)

// kindError is a sentinel that belongs to a family but prints only its own
// message.
type kindError struct {
	family error
	msg    string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.family }

func newKind(family error, msg string) error {
	return &kindError{family: family, msg: msg}
}

var (
	ErrJobNotFound    = newKind(ErrNotFound, "job not found")
	ErrExportNotFound = newKind(ErrNotFound, "export not found")

	ErrInvalidPolygon    = newKind(ErrInvalidInput, "invalid polygon")
	ErrDuplicateRegion   = newKind(ErrInvalidInput, "duplicate region id")
	ErrInvalidRegionType = newKind(ErrInvalidInput, "invalid region type")
	ErrInvalidOrder      = newKind(ErrInvalidInput, "invalid region order")
	ErrInvalidRegionID   = newKind(ErrInvalidInput, "invalid region id")

	ErrNoRegions    = newKind(ErrPreconditionFailed, "regions not set")
	ErrNotCompleted = newKind(ErrPreconditionFailed, "job is not completed")

	ErrInvalidTransition = newKind(ErrConflict, "invalid status transition")
	ErrVersionConflict   = newKind(ErrConflict, "job was modified concurrently")
)
