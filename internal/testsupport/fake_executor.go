package testsupport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"murmur/internal/command"
)

// DefaultFragmentSeconds is the duration FakeExecutor assumes for audio it
// did not produce itself (for example TTS fragments).
const DefaultFragmentSeconds = 2.0

type failRule struct {
	match    func(command.Invocation) bool
	exitCode int
	stderr   string
}

// FakeExecutor simulates ffmpeg and ffprobe. ffmpeg invocations write their
// output file and record a simulated duration and gain for it so later
// stages and ffprobe see consistent values. Other programs succeed with empty
// output unless Handler is set.
type FakeExecutor struct {
	mu        sync.Mutex
	calls     []command.Invocation
	durations map[string]float64
	gains     map[string]float64
	rules     []failRule

	// Handler, when set, handles programs other than ffmpeg and ffprobe.
	Handler func(ctx context.Context, inv command.Invocation) (command.Result, error)
}

// NewFakeExecutor constructs an empty simulator.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		durations: make(map[string]float64),
		gains:     make(map[string]float64),
	}
}

// SetDuration declares the duration of an existing media file.
func (f *FakeExecutor) SetDuration(path string, seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations[filepath.Clean(path)] = seconds
}

// Duration returns the simulated duration of path.
func (f *FakeExecutor) Duration(path string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.durationLocked(path)
}

// Gain returns the cumulative linear gain applied to path (1 when untouched).
func (f *FakeExecutor) Gain(path string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gainLocked(path)
}

// FailWhen makes matching invocations exit with exitCode and stderr.
func (f *FakeExecutor) FailWhen(match func(command.Invocation) bool, exitCode int, stderr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, failRule{match: match, exitCode: exitCode, stderr: stderr})
}

// Calls returns a snapshot of every recorded invocation.
func (f *FakeExecutor) Calls() []command.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Invocation(nil), f.calls...)
}

// CallsFor returns recorded invocations whose program base name matches.
func (f *FakeExecutor) CallsFor(program string) []command.Invocation {
	var out []command.Invocation
	for _, call := range f.Calls() {
		if filepath.Base(call.Program) == program {
			out = append(out, call)
		}
	}
	return out
}

// HasArg reports whether inv contains value among its arguments.
func HasArg(inv command.Invocation, value string) bool {
	for _, arg := range inv.Args {
		if arg == value || strings.Contains(arg, value) {
			return true
		}
	}
	return false
}

// Run implements command.Executor.
func (f *FakeExecutor) Run(ctx context.Context, inv command.Invocation) (command.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	rules := append([]failRule(nil), f.rules...)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return command.Result{ExitCode: -1}, &command.ExecutionError{Program: inv.Program, Args: inv.Args, ExitCode: -1, Err: err}
	}
	for _, rule := range rules {
		if rule.match(inv) {
			return f.fail(inv, rule.exitCode, rule.stderr)
		}
	}

	switch filepath.Base(inv.Program) {
	case "ffmpeg":
		return f.ffmpeg(inv)
	case "ffprobe":
		return f.ffprobe(inv)
	}
	if f.Handler != nil {
		return f.Handler(ctx, inv)
	}
	return command.Result{}, nil
}

func (f *FakeExecutor) fail(inv command.Invocation, exitCode int, stderr string) (command.Result, error) {
	result := command.Result{Stderr: []byte(stderr), ExitCode: exitCode, Elapsed: time.Millisecond}
	return result, &command.ExecutionError{
		Program:    inv.Program,
		Args:       append([]string(nil), inv.Args...),
		ExitCode:   exitCode,
		StderrTail: command.Tail(result.Stderr, command.DefaultTailLines),
		Err:        fmt.Errorf("exit status %d", exitCode),
	}
}

func (f *FakeExecutor) ffprobe(inv command.Invocation) (command.Result, error) {
	if len(inv.Args) == 0 {
		return f.fail(inv, 1, "no input")
	}
	path := inv.Args[len(inv.Args)-1]
	if _, err := os.Stat(path); err != nil {
		return f.fail(inv, 1, fmt.Sprintf("%s: No such file or directory", path))
	}
	duration := f.Duration(path)
	payload := fmt.Sprintf(`{"streams":[{"index":0,"codec_type":"audio","codec_name":"pcm_s16le","sample_rate":"44100","channels":2}],"format":{"filename":%q,"nb_streams":1,"duration":"%.6f","format_name":"wav"}}`, path, duration)
	return command.Result{Stdout: []byte(payload)}, nil
}

func (f *FakeExecutor) ffmpeg(inv command.Invocation) (command.Result, error) {
	args := inv.Args
	if len(args) == 0 {
		return f.fail(inv, 1, "no output file")
	}
	output := args[len(args)-1]

	var (
		inputs     []string
		concatList bool
		limit      = -1.0
		filter     string
		complexMix bool
	)
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-f":
			if args[i+1] == "concat" {
				concatList = true
			}
		case "-i":
			inputs = append(inputs, args[i+1])
			i++
		case "-t":
			value, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return f.fail(inv, 1, "invalid -t value")
			}
			limit = value
			i++
		case "-filter:a", "-af":
			filter = args[i+1]
			i++
		case "-filter_complex":
			complexMix = strings.Contains(args[i+1], "amix")
			i++
		}
	}
	if len(inputs) == 0 {
		return f.fail(inv, 1, "no inputs")
	}
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return f.fail(inv, 1, fmt.Sprintf("%s: No such file or directory", in))
		}
	}

	f.mu.Lock()
	duration, gain, err := f.simulateLocked(inputs, concatList, complexMix, filter, limit)
	f.mu.Unlock()
	if err != nil {
		return f.fail(inv, 1, err.Error())
	}

	if err := os.WriteFile(output, []byte(fmt.Sprintf("fake audio %.3fs gain=%.4f\n", duration, gain)), 0o644); err != nil {
		return f.fail(inv, 1, err.Error())
	}

	f.mu.Lock()
	f.durations[filepath.Clean(output)] = duration
	f.gains[filepath.Clean(output)] = gain
	f.mu.Unlock()
	return command.Result{Elapsed: time.Millisecond}, nil
}

func (f *FakeExecutor) simulateLocked(inputs []string, concatList, mix bool, filter string, limit float64) (float64, float64, error) {
	var duration float64
	gain := 1.0
	switch {
	case concatList:
		parts, err := readConcatList(inputs[0])
		if err != nil {
			return 0, 0, err
		}
		for _, part := range parts {
			duration += f.durationLocked(part)
		}
	case mix:
		for _, in := range inputs {
			if d := f.durationLocked(in); d > duration {
				duration = d
			}
		}
	default:
		duration = f.durationLocked(inputs[0])
		gain = f.gainLocked(inputs[0])
	}

	for _, part := range strings.Split(filter, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		factor, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid %s value %q", name, value)
		}
		switch name {
		case "atempo":
			if factor < 0.5 || factor > 2.0 {
				return 0, 0, fmt.Errorf("atempo value %g out of range", factor)
			}
			duration /= factor
		case "volume":
			gain *= factor
		}
	}

	if limit >= 0 {
		duration = limit
	}
	return duration, gain, nil
}

func (f *FakeExecutor) durationLocked(path string) float64 {
	if d, ok := f.durations[filepath.Clean(path)]; ok {
		return d
	}
	return DefaultFragmentSeconds
}

func (f *FakeExecutor) gainLocked(path string) float64 {
	if g, ok := f.gains[filepath.Clean(path)]; ok {
		return g
	}
	return 1
}

func readConcatList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var parts []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rest, ok := strings.CutPrefix(line, "file ")
		if !ok || len(rest) < 2 || rest[0] != '\'' || rest[len(rest)-1] != '\'' {
			return nil, fmt.Errorf("malformed concat entry %q", line)
		}
		parts = append(parts, strings.ReplaceAll(rest[1:len(rest)-1], `'\''`, `'`))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, errors.New("empty concat list")
	}
	return parts, nil
}
