package pipeline

import (
	"errors"
	"fmt"

	"murmur/internal/services"
)

// StageError reports the state a job failed in. It unwraps to the cause, so
// errors.Is against the services markers classifies it.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Kind returns the taxonomy class of the underlying cause.
func (e *StageError) Kind() services.Kind {
	return services.KindOf(e.Err)
}

// AsStageError extracts the StageError from err's chain.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr, true
	}
	return nil, false
}
