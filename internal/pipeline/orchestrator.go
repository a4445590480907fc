package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"murmur/internal/artifacts"
	"murmur/internal/catalog"
	"murmur/internal/logging"
	"murmur/internal/services"
	"murmur/internal/transcode"
	"murmur/internal/tts"
)

// DefaultTempoMultiplier speeds speech up before it is mixed under music.
const DefaultTempoMultiplier = 1.5

// Catalog resolves request references to voices and tracks.
type Catalog interface {
	VoiceLookup
	Track(ctx context.Context, id string) (catalog.MusicTrack, error)
}

// Synthesizer turns affirmations into fragment files.
type Synthesizer interface {
	SynthesizeAll(ctx context.Context, texts []string, params tts.VoiceParams, pathFor func(int) string) ([]tts.Fragment, error)
}

// Transcoder runs the five transcode sub-stages.
type Transcoder interface {
	Concat(ctx context.Context, inputs []string, output string) error
	Tempo(ctx context.Context, input, output string, multiplier float64) error
	Volume(ctx context.Context, input, output string, gain float64) error
	Loop(ctx context.Context, input, output string, seconds float64) error
	Mix(ctx context.Context, speech, music, output string) error
	Encoding() transcode.Encoding
}

// Publisher moves the final file somewhere durable and returns its new location.
type Publisher interface {
	Publish(ctx context.Context, jobID, path string) (string, error)
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Catalog     Catalog
	Artifacts   *artifacts.Store
	Synthesizer Synthesizer
	Transcoder  Transcoder
	Publisher   Publisher
}

// Options tune an Orchestrator.
type Options struct {
	TempoMultiplier float64
	Limits          Limits
	FragmentFormat  string
	JobTimeout      time.Duration
	Observer        Observer
	Logger          *slog.Logger
}

// Orchestrator drives one job at a time through the pipeline states. It
// holds no per-job state and can run jobs concurrently.
type Orchestrator struct {
	deps Dependencies
	opts Options
	log  *slog.Logger
}

// New validates deps and returns an Orchestrator.
func New(deps Dependencies, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("pipeline: catalog is required")
	case deps.Artifacts == nil:
		return nil, errors.New("pipeline: artifact store is required")
	case deps.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer is required")
	case deps.Transcoder == nil:
		return nil, errors.New("pipeline: transcoder is required")
	case deps.Publisher == nil:
		return nil, errors.New("pipeline: publisher is required")
	}
	if opts.TempoMultiplier <= 0 {
		opts.TempoMultiplier = DefaultTempoMultiplier
	}
	opts.FragmentFormat = strings.TrimPrefix(strings.TrimSpace(opts.FragmentFormat), ".")
	if opts.FragmentFormat == "" {
		opts.FragmentFormat = "wav"
	}
	return &Orchestrator{
		deps: deps,
		opts: opts,
		log:  logging.NewComponentLogger(opts.Logger, "pipeline"),
	}, nil
}

// Validate checks req against the orchestrator's catalog and limits.
func (o *Orchestrator) Validate(req SynthesisRequest) (SynthesisRequest, error) {
	return Validate(req, o.deps.Catalog, o.opts.Limits)
}

// Run executes the pipeline for jobID. On success the final file has been
// published and the JobResult points at its published location. On failure
// the error is a *StageError naming the failed state. The job workspace is
// released on every path.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req SynthesisRequest, observers ...Observer) (JobResult, error) {
	ctx = services.WithJobID(ctx, jobID)
	if o.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.JobTimeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, o.log)

	observer := Observers(append([]Observer{o.opts.Observer}, observers...))
	job := &Job{ID: jobID, Request: req, Created: time.Now()}
	job.Machine = NewMachine(func(t Transition) {
		observer.OnTransition(ctx, jobID, t)
	})

	fail := func(err error) (JobResult, error) {
		state := job.Machine.State()
		_ = job.Machine.Fail(err)
		stageErr := &StageError{State: state, Err: err}
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String(logging.FieldStage, string(state)),
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, failureHint(err)),
			logging.String(logging.FieldImpact, "no audio produced for this job"),
		)
		return JobResult{}, stageErr
	}

	normalized, err := o.Validate(req)
	if err != nil {
		return fail(err)
	}
	job.Request = normalized
	job.Voice, err = o.deps.Catalog.Voice(normalized.VoiceID)
	if err != nil {
		return fail(&ValidationError{Field: "voice_id", Reason: err.Error()})
	}

	// Only caller errors fail in Validating. Resolving the track and
	// acquiring the workspace belong to synthesis.
	if err := job.Machine.Advance(); err != nil {
		return fail(err)
	}
	job.Track, err = o.deps.Catalog.Track(ctx, normalized.TrackID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownTrack) {
			err = services.Wrap(services.ErrNotFound, "catalog", "track", normalized.TrackID, err)
		}
		return fail(err)
	}
	if job.Track.DurationSeconds <= 0 {
		return fail(services.Wrap(services.ErrStorage, "catalog", "track duration", fmt.Sprintf("track %q has no usable duration", job.Track.ID), nil))
	}

	workspace, err := o.deps.Artifacts.Open(jobID)
	if err != nil {
		return fail(err)
	}
	job.Workspace = workspace
	outcome := artifacts.OutcomeFailed
	defer func() {
		if err := workspace.Release(context.WithoutCancel(ctx), outcome); err != nil {
			logging.WarnWithContext(logger, "workspace release failed", "workspace_release_failed",
				logging.Error(err),
				logging.String("path", workspace.Dir()),
				logging.String(logging.FieldErrorHint, "run murmur cleanup to remove the directory"),
				logging.String(logging.FieldImpact, "disk space held until the stale sweep"),
			)
		}
	}()

	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_started"),
		logging.Int("affirmations", len(normalized.Affirmations)),
		logging.String("voice", job.Voice.ID),
		logging.String("track", job.Track.ID),
		logging.Float64("track_seconds", job.Track.DurationSeconds),
	)

	if err := o.synthesize(ctx, job); err != nil {
		return fail(err)
	}

	var (
		fragmentPaths = make([]string, len(job.Fragments))
		concatenated  = workspace.PathFor("concatenated.wav")
		tempoShifted  = workspace.PathFor("tempo.wav")
		adjusted      = workspace.PathFor("volume.wav")
		looped        = workspace.PathFor("looped.wav")
		final         = workspace.PathFor("final." + o.deps.Transcoder.Encoding().Extension())
	)
	for i, fragment := range job.Fragments {
		fragmentPaths[i] = fragment.Path
	}

	steps := []struct {
		state  State
		inputs []string
		output string
		run    func(context.Context) error
	}{
		{StateConcatenating, fragmentPaths, concatenated, func(ctx context.Context) error {
			return o.deps.Transcoder.Concat(ctx, fragmentPaths, concatenated)
		}},
		{StateTempoShifting, []string{concatenated}, tempoShifted, func(ctx context.Context) error {
			return o.deps.Transcoder.Tempo(ctx, concatenated, tempoShifted, o.opts.TempoMultiplier)
		}},
		{StateVolumeAdjusting, []string{tempoShifted}, adjusted, func(ctx context.Context) error {
			return o.deps.Transcoder.Volume(ctx, tempoShifted, adjusted, normalized.Volume)
		}},
		{StateLooping, []string{adjusted}, looped, func(ctx context.Context) error {
			return o.deps.Transcoder.Loop(ctx, adjusted, looped, job.Track.DurationSeconds)
		}},
		{StateMixing, []string{looped, job.Track.Path}, final, func(ctx context.Context) error {
			return o.deps.Transcoder.Mix(ctx, looped, job.Track.Path, final)
		}},
	}
	for _, step := range steps {
		if err := job.Machine.AdvanceTo(step.state); err != nil {
			return fail(err)
		}
		if err := o.runStage(ctx, job, step.state, step.inputs, step.output, step.run); err != nil {
			return fail(err)
		}
	}

	location, err := o.deps.Publisher.Publish(ctx, jobID, final)
	if err != nil {
		return fail(services.Wrap(services.ErrStorage, string(StateMixing), "publish", "deliver final audio", err))
	}
	if err := job.Machine.AdvanceTo(StateCompleted); err != nil {
		return fail(err)
	}
	outcome = artifacts.OutcomeSucceeded

	result := JobResult{
		JobID:           jobID,
		FinalPath:       location,
		DurationSeconds: job.Track.DurationSeconds,
		FragmentCount:   len(job.Fragments),
		Stages:          job.summaries(),
	}
	job.Result = &result
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_completed"),
		logging.String("final_path", location),
		logging.Float64("duration_seconds", result.DurationSeconds),
		logging.Int("fragments", result.FragmentCount),
		logging.Duration("elapsed", time.Since(job.Created)),
	)
	return result, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, job *Job) error {
	stage := NewPipelineStage(StateSynthesizing, nil, job.Workspace.Dir())
	job.Stages = append(job.Stages, stage)
	_ = stage.Start()

	params := tts.VoiceParams{
		VoiceID:  job.Voice.ProviderVoice,
		Language: job.Request.Language,
		Pitch:    job.Request.Pitch,
		Speed:    job.Request.Speed,
	}
	fragments, err := o.deps.Synthesizer.SynthesizeAll(ctx, job.Request.Affirmations, params, func(i int) string {
		return job.Workspace.FragmentPath(i, o.opts.FragmentFormat)
	})
	if err == nil && len(fragments) != len(job.Request.Affirmations) {
		err = services.Wrap(services.ErrSynthesis, string(StateSynthesizing), "collect fragments",
			fmt.Sprintf("expected %d fragments, got %d", len(job.Request.Affirmations), len(fragments)), nil)
	}
	if err == nil {
		paths := make([]string, len(fragments))
		for i, fragment := range fragments {
			paths[i] = fragment.Path
		}
		err = requireFiles(StateSynthesizing, paths, services.ErrSynthesis)
	}
	if err != nil {
		_ = stage.Fail(err)
		return err
	}
	job.Fragments = fragments
	return stage.Succeed()
}

// runStage executes one transcode step. The step starts only after every
// input exists, and succeeds only when it produced its output.
func (o *Orchestrator) runStage(ctx context.Context, job *Job, state State, inputs []string, output string, run func(context.Context) error) error {
	stage := NewPipelineStage(state, inputs, output)
	job.Stages = append(job.Stages, stage)
	_ = stage.Start()

	ctx = services.WithStage(ctx, string(state))
	if err := requireFiles(state, inputs, services.ErrStorage); err != nil {
		_ = stage.Fail(err)
		return err
	}
	if err := run(ctx); err != nil {
		_ = stage.Fail(err)
		return err
	}
	if err := requireFiles(state, []string{output}, services.ErrExecution); err != nil {
		_ = stage.Fail(err)
		return err
	}
	logging.WithContext(ctx, o.log).Debug("stage finished",
		logging.String("output", output),
		logging.Duration("elapsed", stage.Elapsed()),
	)
	return stage.Succeed()
}

func requireFiles(state State, paths []string, marker error) error {
	if len(paths) == 0 {
		return services.Wrap(marker, string(state), "check inputs", "no files", nil)
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return services.Wrap(marker, string(state), "check file", path, err)
		}
		if info.IsDir() || info.Size() == 0 {
			return services.Wrap(marker, string(state), "check file", fmt.Sprintf("%s is empty or not a file", path), nil)
		}
	}
	return nil
}

func failureHint(err error) string {
	switch services.KindOf(err) {
	case services.KindValidation:
		return "fix the request and submit again"
	case services.KindSynthesis:
		return "check the TTS provider and its credentials"
	case services.KindExecution:
		return "inspect the ffmpeg stderr in the job log"
	case services.KindStorage:
		return "check disk space and permissions under the staging directory"
	case services.KindNotFound:
		return "verify the catalog track file exists"
	case services.KindCanceled:
		return "job was canceled; retry it when ready"
	default:
		return "see the job log for details"
	}
}
