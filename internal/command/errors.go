package command

import (
	"errors"
	"fmt"
	"strings"

	"murmur/internal/services"
)

// ExecutionError reports a program that could not be spawned, exited non-zero,
// or exceeded its timeout.
type ExecutionError struct {
	Program    string
	Args       []string
	ExitCode   int
	StderrTail string
	TimedOut   bool
	Err        error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Program)
	switch {
	case e.TimedOut:
		b.WriteString(": timed out")
	case e.ExitCode > 0:
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if tail := strings.TrimSpace(e.StderrTail); tail != "" {
		last := tail
		if idx := strings.LastIndexByte(tail, '\n'); idx >= 0 {
			last = tail[idx+1:]
		}
		b.WriteString(": ")
		b.WriteString(last)
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is matches the execution marker, and the timeout marker for timed-out runs.
func (e *ExecutionError) Is(target error) bool {
	switch target {
	case services.ErrExecution:
		return true
	case services.ErrTimeout:
		return e.TimedOut
	}
	return false
}

// AsExecutionError extracts the ExecutionError from err's chain.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}
