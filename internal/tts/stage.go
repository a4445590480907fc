package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"murmur/internal/logging"
)

// DefaultConcurrency bounds simultaneous provider calls for one job.
const DefaultConcurrency = 4

// Fragment is the synthesized audio for one affirmation.
type Fragment struct {
	Index int
	Text  string
	Path  string
}

// Stage synthesizes affirmations into fragment files.
type Stage struct {
	provider    Provider
	concurrency int
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithConcurrency bounds concurrent provider calls. Values below one fall
// back to DefaultConcurrency.
func WithConcurrency(n int) StageOption {
	return func(s *Stage) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetry enables retries of transient provider failures.
func WithRetry(maxAttempts int, backoff time.Duration) StageOption {
	return func(s *Stage) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		s.backoff = backoff
	}
}

// WithLogger sets the stage logger.
func WithLogger(logger *slog.Logger) StageOption {
	return func(s *Stage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStage constructs a synthesis stage around provider.
func NewStage(provider Provider, opts ...StageOption) *Stage {
	s := &Stage{
		provider:    provider,
		concurrency: DefaultConcurrency,
		maxAttempts: 1,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Concurrency returns the configured bound.
func (s *Stage) Concurrency() int { return s.concurrency }

// Synthesize renders text into outputPath. The file appears only once the
// audio has been written completely.
func (s *Stage) Synthesize(ctx context.Context, text string, params VoiceParams, outputPath string) (Fragment, error) {
	return s.synthesizeAt(ctx, 0, text, params, outputPath)
}

// SynthesizeAll renders every text concurrently, at most Concurrency at a
// time. The first failure cancels outstanding calls. Fragments are returned
// in input order.
func (s *Stage) SynthesizeAll(ctx context.Context, texts []string, params VoiceParams, pathFor func(int) string) ([]Fragment, error) {
	if len(texts) == 0 {
		return nil, newSynthesisError(0, "", errors.New("no affirmations to synthesize"))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		results  = make([]Fragment, len(texts))
		sem      = make(chan struct{}, s.concurrency)
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

dispatch:
	for i, text := range texts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(index int, text string) {
			defer wg.Done()
			defer func() { <-sem }()
			fragment, err := s.synthesizeAt(ctx, index, text, params, pathFor(index))
			if err != nil {
				fail(err)
				return
			}
			results[index] = fragment
		}(i, text)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, newSynthesisError(0, "", err)
	}
	s.logger.Info("speech synthesized",
		logging.Int("fragments", len(results)),
		logging.String("provider", s.provider.Name()),
		logging.Int("concurrency", s.concurrency),
	)
	return results, nil
}

func (s *Stage) synthesizeAt(ctx context.Context, index int, text string, params VoiceParams, outputPath string) (Fragment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fragment{}, newSynthesisError(index, text, errors.New("text cannot be empty"))
	}
	if strings.TrimSpace(outputPath) == "" {
		return Fragment{}, newSynthesisError(index, text, errors.New("output path cannot be empty"))
	}

	req := BuildRequest(text, params)
	audio, err := s.callWithRetry(ctx, index, req)
	if err != nil {
		return Fragment{}, newSynthesisError(index, text, err)
	}
	if err := writeFileAtomic(outputPath, audio); err != nil {
		return Fragment{}, newSynthesisError(index, text, err)
	}

	s.logger.Debug("fragment synthesized",
		logging.Int("index", index),
		logging.String("path", outputPath),
		logging.Int("bytes", len(audio)),
	)
	return Fragment{Index: index, Text: text, Path: outputPath}, nil
}

func (s *Stage) callWithRetry(ctx context.Context, index int, req Request) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		audio, err := s.provider.Synthesize(ctx, req)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if attempt == s.maxAttempts || !retryable(err) {
			break
		}
		delay := backoffDelay(s.backoff, attempt)
		s.logger.Warn("tts call failed; retrying",
			logging.Int("index", index),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "tts_retry"),
			logging.String(logging.FieldErrorHint, "check the TTS provider status"),
			logging.String(logging.FieldImpact, "fragment synthesis delayed"),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write fragment: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close fragment: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("finalize fragment: %w", err)
	}
	return nil
}
