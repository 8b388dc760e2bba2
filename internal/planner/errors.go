package planner

import (
	"errors"
	"fmt"
)

// ErrSnapshotRequired is returned when planning is requested before any DOM
// snapshot is known for the session.
var ErrSnapshotRequired = errors.New("DOM data is required")

// ModelError reports that the model call failed or its output could not be
// used. Transient failures may be retried by the caller as-is.
type ModelError struct {
	Transient bool
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("planner error: %v", e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }
