package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"murmur/internal/logging"
)

// DefaultTailLines is the number of stderr lines kept on ExecutionError.
const DefaultTailLines = 20

// Invocation describes a single external program run.
type Invocation struct {
	Program string
	Args    []string
	Timeout time.Duration
	Stdin   []byte
	Dir     string
}

// Result captures the buffered output of a finished program.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Elapsed  time.Duration
}

// Executor spawns external programs. Implementations must honour ctx
// cancellation and Invocation.Timeout.
type Executor interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// OSExecutor runs programs on the host with os/exec.
type OSExecutor struct {
	logger *slog.Logger
}

// NewExecutor constructs an OSExecutor. A nil logger discards debug output.
func NewExecutor(logger *slog.Logger) *OSExecutor {
	return &OSExecutor{logger: logging.NewComponentLogger(logger, "command")}
}

// Run executes inv and waits for it to finish. Any outcome other than exit
// code zero is returned as *ExecutionError alongside the partial Result.
func (e *OSExecutor) Run(ctx context.Context, inv Invocation) (Result, error) {
	program := strings.TrimSpace(inv.Program)
	if program == "" {
		return Result{ExitCode: -1}, &ExecutionError{ExitCode: -1, Err: errors.New("program is required")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, program, inv.Args...) //nolint:gosec
	cmd.Dir = inv.Dir
	if len(inv.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(cmd, runErr),
		Elapsed:  time.Since(started),
	}

	e.logger.Debug("command finished",
		logging.String("program", program),
		logging.Int("exit_code", result.ExitCode),
		logging.Duration("elapsed", result.Elapsed),
	)

	if runErr == nil {
		return result, nil
	}

	execErr := &ExecutionError{
		Program:    program,
		Args:       append([]string(nil), inv.Args...),
		ExitCode:   result.ExitCode,
		StderrTail: Tail(result.Stderr, DefaultTailLines),
		Err:        runErr,
	}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		execErr.TimedOut = true
		execErr.Err = fmt.Errorf("timed out after %s: %w", inv.Timeout, runErr)
	case ctx.Err() != nil:
		execErr.Err = fmt.Errorf("%w: %w", ctx.Err(), runErr)
	}
	return result, execErr
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// Run is a convenience wrapper returning stdout and the exit code.
func Run(ctx context.Context, executor Executor, program string, args []string, timeout time.Duration) ([]byte, int, error) {
	result, err := executor.Run(ctx, Invocation{Program: program, Args: args, Timeout: timeout})
	return result.Stdout, result.ExitCode, err
}

// Tail returns the last n non-empty lines of output.
func Tail(output []byte, n int) string {
	if n <= 0 {
		n = DefaultTailLines
	}
	trimmed := strings.TrimRight(string(output), "\r\n\t ")
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
