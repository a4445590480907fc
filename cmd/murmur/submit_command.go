package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/api"
	"murmur/internal/pipeline"
	"murmur/internal/queueaccess"
)

// requestFlags collects the synthesis request shared by submit and render.
type requestFlags struct {
	affirmations []string
	file         string
	voice        string
	track        string
	language     string
	volume       float64
	pitch        float64
	speed        float64
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.affirmations, "affirmation", "a", nil, "Affirmation text (repeatable)")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read affirmations from a file, one per line (- for stdin)")
	cmd.Flags().StringVar(&f.voice, "voice", "", "Voice id from the catalog")
	cmd.Flags().StringVar(&f.track, "track", "", "Music track id from the catalog")
	cmd.Flags().StringVar(&f.language, "language", "", "BCP 47 language tag (defaults to the voice language)")
	cmd.Flags().Float64Var(&f.volume, "volume", 0.1, "Speech volume relative to the music, 0 to 1")
	cmd.Flags().Float64Var(&f.pitch, "pitch", 0, "Pitch multiplier, 1.0 is neutral")
	cmd.Flags().Float64Var(&f.speed, "speed", 0, "Speaking rate multiplier, 1.0 is neutral")
	_ = cmd.MarkFlagRequired("voice")
	_ = cmd.MarkFlagRequired("track")
}

func (f *requestFlags) request(stdin io.Reader) (pipeline.SynthesisRequest, error) {
	affirmations := append([]string(nil), f.affirmations...)
	if path := strings.TrimSpace(f.file); path != "" {
		lines, err := readAffirmations(path, stdin)
		if err != nil {
			return pipeline.SynthesisRequest{}, err
		}
		affirmations = append(affirmations, lines...)
	}
	return pipeline.SynthesisRequest{
		Affirmations: affirmations,
		VoiceID:      f.voice,
		Language:     f.language,
		Pitch:        f.pitch,
		Speed:        f.speed,
		Volume:       f.volume,
		TrackID:      f.track,
	}, nil
}

// readAffirmations returns the non-blank lines of path, skipping # comments.
func readAffirmations(path string, stdin io.Reader) ([]string, error) {
	var reader io.Reader
	if path == "-" {
		reader = stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open affirmations file: %w", err)
		}
		defer file.Close()
		reader = file
	}
	var lines []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read affirmations file: %w", err)
	}
	return lines, nil
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags requestFlags
	var wait bool
	var waitTimeout time.Duration
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a synthesis job",
		Long:  "Validate a synthesis request and queue it for the daemon. Without a running daemon the job is written to the queue database and picked up on the next start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withSession(cmd, func(session queueaccess.Session) error {
				job, err := session.Access.Submit(cmd.Context(), req)
				if err != nil {
					return describeValidation(err)
				}
				if wait {
					job, err = waitForJob(cmd.Context(), session.Access, job.JobID, waitTimeout, func(j *api.Job) {
						if !jsonOut {
							fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", formatPercent(j.Progress.Percent), j.Progress.Message)
						}
					})
					if err != nil {
						return err
					}
				}
				if jsonOut {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %s %s\n", job.JobID, job.Status)
				if !session.Remote && !wait {
					fmt.Fprintln(out, "Daemon not running; the job will start once `murmur start` runs")
				}
				if job.Result != nil {
					fmt.Fprintf(out, "Result: %s\n", job.Result.Location)
				}
				if job.Error != nil {
					return fmt.Errorf("job failed at %s (%s): %s", job.Error.Stage, job.Error.Kind, job.Error.Message)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&waitTimeout, "timeout", 30*time.Minute, "Maximum time to wait with --wait")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the job as JSON")
	return cmd
}

// waitForJob polls until the job reaches a terminal status. progress is called
// whenever the pipeline state changes.
func waitForJob(ctx context.Context, access queueaccess.Access, jobID string, timeout time.Duration, progress func(*api.Job)) (*api.Job, error) {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastState := ""
	for {
		job, err := access.Describe(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("job %s disappeared from the queue", jobID)
		}
		if job.Progress.State != lastState {
			lastState = job.Progress.State
			if progress != nil {
				progress(job)
			}
		}
		if isTerminalStatus(job.Status) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func isTerminalStatus(status string) bool {
	return status == "completed" || status == "failed"
}
