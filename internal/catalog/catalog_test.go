package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/catalog"
	"murmur/internal/media/ffprobe"
	"murmur/internal/services"
	"murmur/internal/testsupport"
)

func TestLoadResolvesVoicesAndTracks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	paths := testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 200})

	cat, err := catalog.Load(cfg.Paths.CatalogFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	voice, err := cat.Voice("aria")
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	if voice.ProviderVoice != "en-US-AriaNeural" || voice.Language != "en-US" {
		t.Fatalf("unexpected voice: %#v", voice)
	}
	if got := len(cat.Voices()); got != 2 {
		t.Fatalf("expected 2 voices, got %d", got)
	}

	track, err := cat.Track(context.Background(), "rain")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if track.Path != paths["rain"] || track.DurationSeconds != 200 {
		t.Fatalf("unexpected track: %#v", track)
	}
}

func TestUnknownIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 10})
	cat, err := catalog.Load(cfg.Paths.CatalogFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cat.Voice("nobody"); !errors.Is(err, catalog.ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
	if _, err := cat.Track(context.Background(), "silence"); !errors.Is(err, catalog.ErrUnknownTrack) {
		t.Fatalf("expected ErrUnknownTrack, got %v", err)
	}
	if cat.HasTrack("silence") || !cat.HasTrack("rain") {
		t.Fatal("HasTrack reported wrong membership")
	}
}

func TestTrackMissingAudioIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	paths := testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 10})
	if err := os.Remove(paths["rain"]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	cat, err := catalog.Load(cfg.Paths.CatalogFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cat.Track(context.Background(), "rain"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestTrackDurationProbedOnceAndCached(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	paths := testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"ocean": 0})
	store := testsupport.MustOpenStore(t, cfg)

	fake := testsupport.NewFakeExecutor()
	fake.SetDuration(paths["ocean"], 180.5)
	prober := ffprobe.NewProber(fake, "ffprobe", time.Second)

	cat, err := catalog.Load(cfg.Paths.CatalogFile, catalog.WithProber(prober), catalog.WithDurationCache(store))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		track, err := cat.Track(ctx, "ocean")
		if err != nil {
			t.Fatalf("Track: %v", err)
		}
		if track.DurationSeconds != 180.5 {
			t.Fatalf("expected probed duration, got %v", track.DurationSeconds)
		}
	}
	if calls := len(fake.CallsFor("ffprobe")); calls != 1 {
		t.Fatalf("expected a single probe, got %d", calls)
	}

	// A fresh catalog sharing the store reuses the persisted result.
	reloaded, err := catalog.Load(cfg.Paths.CatalogFile, catalog.WithProber(prober), catalog.WithDurationCache(store))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := reloaded.Track(ctx, "ocean"); err != nil {
		t.Fatalf("Track after reload: %v", err)
	}
	if calls := len(fake.CallsFor("ffprobe")); calls != 1 {
		t.Fatalf("expected cached duration after reload, got %d probes", calls)
	}
}

type gatedProber struct {
	slow    string
	entered chan struct{}
	release chan struct{}
}

func (p *gatedProber) Duration(ctx context.Context, path string) (float64, error) {
	if path == p.slow {
		close(p.entered)
		select {
		case <-p.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 42, nil
}

func TestTrackLookupDoesNotWaitOnOtherTrack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	paths := testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"ocean": 0, "storm": 0})
	prober := &gatedProber{slow: paths["storm"], entered: make(chan struct{}), release: make(chan struct{})}
	cat, err := catalog.Load(cfg.Paths.CatalogFile, catalog.WithProber(prober))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()
	if _, err := cat.Track(ctx, "ocean"); err != nil {
		t.Fatalf("Track ocean: %v", err)
	}

	slowDone := make(chan error, 1)
	go func() {
		_, err := cat.Track(ctx, "storm")
		slowDone <- err
	}()
	<-prober.entered

	fast := make(chan error, 1)
	go func() {
		_, err := cat.Track(ctx, "ocean")
		fast <- err
	}()
	select {
	case err := <-fast:
		if err != nil {
			t.Fatalf("Track ocean during probe: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cached lookup blocked behind an unrelated probe")
	}

	close(prober.release)
	if err := <-slowDone; err != nil {
		t.Fatalf("Track storm: %v", err)
	}
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing voice id":   "voices:\n  - name: x\n    language: en\n",
		"bad language":       "voices:\n  - id: x\n    language: not a tag!\n",
		"duplicate voice":    "voices:\n  - id: x\n    language: en\n  - id: x\n    language: en\n",
		"track without path": "tracks:\n  - id: rain\n",
		"negative duration":  "tracks:\n  - id: rain\n    path: rain.mp3\n    duration_seconds: -1\n",
		"malformed yaml":     "voices: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := catalog.Parse([]byte(doc), t.TempDir()); !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestParseResolvesRelativeTrackPaths(t *testing.T) {
	base := t.TempDir()
	cat, err := catalog.Parse([]byte("tracks:\n  - id: rain\n    path: music/rain.mp3\n"), base)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tracks := cat.Tracks()
	if len(tracks) != 1 || tracks[0].Path != filepath.Join(base, "music", "rain.mp3") {
		t.Fatalf("unexpected tracks: %#v", tracks)
	}
	if tracks[0].Title != "rain" {
		t.Fatalf("expected title to default to id, got %q", tracks[0].Title)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := catalog.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
