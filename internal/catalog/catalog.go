package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"murmur/internal/logging"
	"murmur/internal/services"
)

// Voice is a selectable speaker offered by the TTS provider.
type Voice struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	ProviderVoice string `yaml:"provider_voice" json:"provider_voice"`
	Language      string `yaml:"language" json:"language"`
	Gender        string `yaml:"gender,omitempty" json:"gender,omitempty"`
}

// MusicTrack is a background track. DurationSeconds is zero until resolved.
type MusicTrack struct {
	ID              string  `yaml:"id" json:"id"`
	Title           string  `yaml:"title" json:"title"`
	Path            string  `yaml:"path" json:"path"`
	DurationSeconds float64 `yaml:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
}

var (
	// ErrUnknownVoice is returned for voice ids missing from the catalog.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrUnknownTrack is returned for track ids missing from the catalog.
	ErrUnknownTrack = errors.New("unknown track")
)

// Prober measures the duration of a media file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// DurationCache persists probe results across restarts.
type DurationCache interface {
	LookupDuration(ctx context.Context, path string, size int64, modTime time.Time) (float64, bool, error)
	StoreDuration(ctx context.Context, path string, size int64, modTime time.Time, seconds float64) error
}

type document struct {
	Voices []Voice      `yaml:"voices"`
	Tracks []MusicTrack `yaml:"tracks"`
}

// Catalog holds the voices and background tracks a job may reference.
type Catalog struct {
	path   string
	voices map[string]Voice
	tracks map[string]MusicTrack
	prober Prober
	cache  DurationCache
	logger *slog.Logger

	mu     sync.Mutex
	probed map[string]float64
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithProber sets the prober used for tracks without a declared duration.
func WithProber(p Prober) Option {
	return func(c *Catalog) { c.prober = p }
}

// WithDurationCache sets the persistent duration cache.
func WithDurationCache(cache DurationCache) Option {
	return func(c *Catalog) { c.cache = cache }
}

// WithLogger sets the catalog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Load reads the catalog file at path. Relative track paths resolve against
// the catalog's directory.
func Load(path string, opts ...Option) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "catalog", "load", fmt.Sprintf("catalog file %q not found", path), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "load", "read catalog", err)
	}
	cat, err := Parse(data, filepath.Dir(path), opts...)
	if err != nil {
		return nil, err
	}
	cat.path = path
	return cat, nil
}

// Parse decodes catalog YAML.
func Parse(data []byte, baseDir string, opts ...Option) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "parse", "decode yaml", err)
	}

	cat := &Catalog{
		voices: make(map[string]Voice, len(doc.Voices)),
		tracks: make(map[string]MusicTrack, len(doc.Tracks)),
		logger: logging.NewNop(),
		probed: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(cat)
	}

	for i, voice := range doc.Voices {
		voice.ID = strings.TrimSpace(voice.ID)
		if voice.ID == "" {
			return nil, catalogError(fmt.Sprintf("voices[%d]: id is required", i))
		}
		if _, dup := cat.voices[voice.ID]; dup {
			return nil, catalogError(fmt.Sprintf("voices[%d]: duplicate id %q", i, voice.ID))
		}
		tag, err := language.Parse(strings.TrimSpace(voice.Language))
		if err != nil {
			return nil, catalogError(fmt.Sprintf("voice %q: invalid language %q", voice.ID, voice.Language))
		}
		voice.Language = tag.String()
		if strings.TrimSpace(voice.ProviderVoice) == "" {
			voice.ProviderVoice = voice.ID
		}
		if voice.Name == "" {
			voice.Name = voice.ID
		}
		cat.voices[voice.ID] = voice
	}

	for i, track := range doc.Tracks {
		track.ID = strings.TrimSpace(track.ID)
		if track.ID == "" {
			return nil, catalogError(fmt.Sprintf("tracks[%d]: id is required", i))
		}
		if _, dup := cat.tracks[track.ID]; dup {
			return nil, catalogError(fmt.Sprintf("tracks[%d]: duplicate id %q", i, track.ID))
		}
		track.Path = strings.TrimSpace(track.Path)
		if track.Path == "" {
			return nil, catalogError(fmt.Sprintf("track %q: path is required", track.ID))
		}
		if !filepath.IsAbs(track.Path) && baseDir != "" {
			track.Path = filepath.Join(baseDir, track.Path)
		}
		if track.DurationSeconds < 0 {
			return nil, catalogError(fmt.Sprintf("track %q: duration_seconds must not be negative", track.ID))
		}
		if track.Title == "" {
			track.Title = track.ID
		}
		cat.tracks[track.ID] = track
	}
	return cat, nil
}

func catalogError(msg string) error {
	return services.Wrap(services.ErrConfiguration, "catalog", "parse", msg, nil)
}

// Path returns the file the catalog was loaded from, if any.
func (c *Catalog) Path() string { return c.path }

// Voice returns the voice registered under id.
func (c *Catalog) Voice(id string) (Voice, error) {
	voice, ok := c.voices[strings.TrimSpace(id)]
	if !ok {
		return Voice{}, fmt.Errorf("%w %q", ErrUnknownVoice, id)
	}
	return voice, nil
}

// Voices lists every voice sorted by id.
func (c *Catalog) Voices() []Voice {
	out := make([]Voice, 0, len(c.voices))
	for _, v := range c.voices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasTrack reports whether id is a registered track without probing it.
func (c *Catalog) HasTrack(id string) bool {
	_, ok := c.tracks[strings.TrimSpace(id)]
	return ok
}

// Tracks lists every track sorted by id, as declared in the file.
func (c *Catalog) Tracks() []MusicTrack {
	out := make([]MusicTrack, 0, len(c.tracks))
	for _, t := range c.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Track returns the track registered under id with its duration resolved.
// Durations come from the catalog file, then memory, then the persistent
// cache, and finally a probe whose result is cached.
func (c *Catalog) Track(ctx context.Context, id string) (MusicTrack, error) {
	track, ok := c.tracks[strings.TrimSpace(id)]
	if !ok {
		return MusicTrack{}, fmt.Errorf("%w %q", ErrUnknownTrack, id)
	}

	info, err := os.Stat(track.Path)
	if err != nil {
		return MusicTrack{}, services.Wrap(services.ErrNotFound, "catalog", "stat track", fmt.Sprintf("track %q audio %q unavailable", track.ID, track.Path), err)
	}
	if info.IsDir() {
		return MusicTrack{}, services.Wrap(services.ErrNotFound, "catalog", "stat track", fmt.Sprintf("track %q path %q is a directory", track.ID, track.Path), nil)
	}
	if track.DurationSeconds > 0 {
		return track, nil
	}

	seconds, err := c.resolveDuration(ctx, track.Path, info)
	if err != nil {
		return MusicTrack{}, err
	}
	track.DurationSeconds = seconds
	return track, nil
}

func (c *Catalog) resolveDuration(ctx context.Context, path string, info os.FileInfo) (float64, error) {
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())

	// c.mu guards the memory map only and is never held across a probe.
	c.mu.Lock()
	seconds, ok := c.probed[key]
	c.mu.Unlock()
	if ok {
		return seconds, nil
	}
	if c.cache != nil {
		seconds, ok, err := c.cache.LookupDuration(ctx, path, info.Size(), info.ModTime())
		if err != nil {
			c.logger.Warn("track duration cache lookup failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "duration_cache_lookup_failed"),
				logging.String(logging.FieldErrorHint, "delete queue.db if the cache is corrupt"),
				logging.String(logging.FieldImpact, "track will be probed again"),
			)
		} else if ok {
			c.remember(key, seconds)
			return seconds, nil
		}
	}
	if c.prober == nil {
		return 0, services.Wrap(services.ErrConfiguration, "catalog", "probe track", "no prober configured and track has no duration_seconds", nil)
	}

	seconds, err := c.prober.Duration(ctx, path)
	if err != nil {
		return 0, services.Wrap(services.ErrExecution, "catalog", "probe track", fmt.Sprintf("probe %q", path), err)
	}
	c.remember(key, seconds)
	if c.cache != nil {
		if err := c.cache.StoreDuration(ctx, path, info.Size(), info.ModTime(), seconds); err != nil {
			c.logger.Warn("track duration cache store failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "duration_cache_store_failed"),
				logging.String(logging.FieldErrorHint, "check queue database permissions"),
				logging.String(logging.FieldImpact, "track will be probed after restart"),
			)
		}
	}
	c.logger.Debug("track duration probed", logging.String("path", path), logging.Float64("seconds", seconds))
	return seconds, nil
}

func (c *Catalog) remember(key string, seconds float64) {
	c.mu.Lock()
	c.probed[key] = seconds
	c.mu.Unlock()
}
