package transcode

import (
	"fmt"

	"murmur/internal/services"
)

// TranscodeError reports a failed sub-stage.
type TranscodeError struct {
	Stage      string
	StderrTail string
	Err        error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Is matches services.ErrExecution.
func (e *TranscodeError) Is(target error) bool {
	return target == services.ErrExecution
}
