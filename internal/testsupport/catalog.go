package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteCatalog writes a catalog file with one voice ("aria", en-US) and one
// track per entry in tracks (id -> seconds). Track audio files are created
// next to the catalog and their paths returned by id.
func WriteCatalog(t testing.TB, path string, tracks map[string]float64) map[string]string {
	t.Helper()

	dir := filepath.Dir(path)
	var b strings.Builder
	b.WriteString("voices:\n")
	b.WriteString("  - id: aria\n    name: Aria\n    provider_voice: en-US-AriaNeural\n    language: en-US\n    gender: female\n")
	b.WriteString("  - id: klaus\n    name: Klaus\n    provider_voice: de-DE-KlausNeural\n    language: de-DE\n    gender: male\n")
	b.WriteString("tracks:\n")
	paths := make(map[string]string, len(tracks))
	for id, seconds := range tracks {
		audio := filepath.Join(dir, "music", id+".mp3")
		WriteFile(t, audio, 256)
		paths[id] = audio
		fmt.Fprintf(&b, "  - id: %s\n    title: %s\n    path: %s\n", id, strings.ToUpper(id), audio)
		if seconds > 0 {
			fmt.Fprintf(&b, "    duration_seconds: %g\n", seconds)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir catalog dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return paths
}
