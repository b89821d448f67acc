package models

import (
	"fmt"
	"time"
)

// validTransitions maps from-state to allowed to-states
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusCreated: {
		JobStatusRegionsPending: true, // Created → RegionsPending (image stored)
	},
	JobStatusRegionsPending: {
		JobStatusQueued: true, // RegionsPending → Queued (regions attached)
	},
	JobStatusQueued: {
		JobStatusQueued:  true, // Queued → Queued (regions replaced)
		JobStatusRunning: true, // Queued → Running (pipeline started)
	},
	JobStatusRunning: {
		JobStatusCompleted: true, // Running → Completed (all regions done)
		JobStatusFailed:    true, // Running → Failed (region processing error)
		JobStatusRunning:   true, // Running → Running (rerun of an interrupted run)
		JobStatusQueued:    true, // Running → Queued (regions replaced)
	},
	JobStatusCompleted: {
		JobStatusQueued:  true, // Completed → Queued (regions replaced)
		JobStatusRunning: true, // Completed → Running (rerun regenerates outputs)
	},
	JobStatusFailed: {
		JobStatusQueued:  true, // Failed → Queued (regions replaced)
		JobStatusRunning: true, // Failed → Running (rerun)
	},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to JobStatus) error {
	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("%w: unknown source state %q", ErrInvalidTransition, from)
	}
	if !allowedStates[to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// CanRun returns true if the pipeline may be started from this state
func CanRun(state JobStatus) bool {
	return validTransitions[state][JobStatusRunning]
}

// Transition moves the job to a new status, recording the change.
// The job is left untouched when the transition is not allowed.
func (j *Job) Transition(to JobStatus, reason string) error {
	if err := ValidateTransition(j.Status, to); err != nil {
		return err
	}
	j.StateTransitions = append(j.StateTransitions, StateTransition{
		From:      j.Status,
		To:        to,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
	j.Status = to
	return nil
}
