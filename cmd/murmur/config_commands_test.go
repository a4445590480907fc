package main

import (
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/engine"
	"murmur/internal/testsupport"
)

func TestConfigInitWritesSampleOnce(t *testing.T) {
	target := filepath.Join(t.TempDir(), "murmur", "config.toml")

	stdout, _, err := runCLI(t, engine.Options{}, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)
	if info, err := os.Stat(target); err != nil || info.Size() == 0 {
		t.Fatalf("expected sample config at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, engine.Options{}, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	if _, _, err := runCLI(t, engine.Options{}, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 3
	testsupport.WriteCatalog(t, cfg.Paths.CatalogFile, map[string]float64{"rain": 60})
	path := writeTestConfig(t, cfg)

	stdout, _, err := runCLI(t, engine.Options{}, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Config path: "+path, "Workers: 3", "Catalog: 2 voices, 1 tracks", "Configuration valid")
}

func TestConfigValidateRequiresCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	if _, _, err := runCLI(t, engine.Options{}, "--config", path, "config", "validate"); err == nil {
		t.Fatal("expected missing catalog to fail validation")
	}
}

func TestConfigValidateRejectsInvalidFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.CleanupPolicy = "sometimes"
	path := writeTestConfig(t, cfg)

	if _, _, err := runCLI(t, engine.Options{}, "--config", path, "config", "validate"); err == nil {
		t.Fatal("expected invalid cleanup policy to fail validation")
	}
}
