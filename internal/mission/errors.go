package mission

import (
	"errors"
	"fmt"

	"focus-walker/internal/engine"
)

// PersistenceError wraps a storage failure. The in-memory mission keeps
// running when one occurs.
type PersistenceError struct {
	Op        string
	MissionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for mission %s: %v", e.Op, e.MissionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

var (
	// ErrNoMission is returned when an operation needs a planned mission
	ErrNoMission = errors.New("no mission planned")
	// ErrMissionInProgress is returned when the current mission blocks the operation
	ErrMissionInProgress = engine.ErrMissionInProgress
	// ErrNotInProgress is returned when ending a mission that is not running
	ErrNotInProgress = errors.New("no mission in progress")
	// ErrNotPaused is returned when acknowledging while not at a checkpoint
	ErrNotPaused = errors.New("mission is not paused at a checkpoint")
	// ErrCannotStart is returned when the engine refuses to start
	ErrCannotStart = errors.New("mission cannot be started")
)
