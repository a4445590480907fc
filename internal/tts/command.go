package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"murmur/internal/command"
)

// CommandProvider runs a local synthesizer binary per request. The request
// JSON is written to stdin; audio is read from the {output} file when the
// command line references it, otherwise from stdout.
type CommandProvider struct {
	exec    command.Executor
	argv    []string
	timeout time.Duration
}

// NewCommandProvider parses commandLine with shell quoting rules.
func NewCommandProvider(commandLine string, exec command.Executor, timeout time.Duration) (*CommandProvider, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(commandLine)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("tts command empty")
	}
	return &CommandProvider{exec: exec, argv: args, timeout: timeout}, nil
}

// Name implements Provider.
func (p *CommandProvider) Name() string { return "command" }

// Synthesize runs the command for one request.
func (p *CommandProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &ProviderError{Provider: p.Name(), Detail: "text cannot be empty"}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	var outputPath string
	if p.usesOutput() {
		file, err := os.CreateTemp("", "murmur-tts-*.audio")
		if err != nil {
			return nil, fmt.Errorf("create tts output file: %w", err)
		}
		outputPath = file.Name()
		_ = file.Close()
		defer os.Remove(outputPath)
	}

	args := p.expand(req, outputPath)
	res, err := p.exec.Run(ctx, command.Invocation{
		Program: args[0],
		Args:    args[1:],
		Timeout: p.timeout,
		Stdin:   payload,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		detail := err.Error()
		if execErr, ok := command.AsExecutionError(err); ok {
			detail = fmt.Sprintf("%s exited with code %d", execErr.Program, execErr.ExitCode)
			if execErr.TimedOut {
				detail = fmt.Sprintf("%s timed out after %s", execErr.Program, p.timeout)
			}
			if execErr.StderrTail != "" {
				detail += ": " + execErr.StderrTail
			}
		}
		return nil, &ProviderError{Provider: p.Name(), Detail: detail}
	}

	audio := res.Stdout
	if outputPath != "" {
		audio, err = os.ReadFile(outputPath)
		if err != nil {
			return nil, &ProviderError{Provider: p.Name(), Detail: fmt.Sprintf("read output: %v", err)}
		}
	}
	if len(audio) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Detail: "received empty audio data"}
	}
	return audio, nil
}

// HealthCheck verifies the binary resolves on PATH.
func (p *CommandProvider) HealthCheck(context.Context) error {
	if _, err := exec.LookPath(p.argv[0]); err != nil {
		return fmt.Errorf("tts command %q not found: %w", p.argv[0], err)
	}
	return nil
}

func (p *CommandProvider) usesOutput() bool {
	for _, arg := range p.argv {
		if strings.Contains(arg, "{output}") {
			return true
		}
	}
	return false
}

func (p *CommandProvider) expand(req Request, outputPath string) []string {
	replacer := strings.NewReplacer(
		"{output}", outputPath,
		"{voice}", req.VoiceID,
		"{language}", req.Language,
		"{pitch}", strconv.FormatFloat(req.Pitch, 'f', 2, 64),
		"{rate}", strconv.FormatFloat(req.SpeakingRate, 'f', 2, 64),
	)
	out := make([]string, len(p.argv))
	for i, arg := range p.argv {
		out[i] = replacer.Replace(arg)
	}
	return out
}
