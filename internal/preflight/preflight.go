package preflight

import (
	"context"
	"fmt"
	"strings"

	"murmur/internal/config"
	"murmur/internal/tts"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Required bool   `json:"required"`
	Detail   string `json:"detail"`
}

// RunAll executes every preflight check that applies to cfg. provider may be
// nil, in which case the TTS check is skipped.
func RunAll(ctx context.Context, cfg *config.Config, provider tts.Provider) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir)),
		required(CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, cfg.Paths.MinFreeMB)),
		required(CheckCatalog(cfg.Paths.CatalogFile)),
	}
	if cfg.Publish.Target == config.PublishLocal {
		results = append(results, required(CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir)))
	}
	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Required: !status.Optional, Detail: status.Path}
		if !status.Available {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	if provider != nil {
		results = append(results, CheckTTS(ctx, provider))
	}
	if cfg.Publish.Target == config.PublishNATS {
		results = append(results, CheckNATS(ctx, cfg.Publish.NATS.URL, cfg.NATSConnectTimeout()))
	}
	return results
}

// RequiredFailures joins the details of failed required checks, or returns
// nil when none failed.
func RequiredFailures(results []Result) error {
	var failures []string
	for _, r := range results {
		if r.Required && !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
}

func required(r Result) Result {
	r.Required = true
	return r
}
