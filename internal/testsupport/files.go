package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, and any missing parents, filled with size bytes of
// filler. Sizes below one write a single byte so the file is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(max(size, 1))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
