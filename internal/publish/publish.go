package publish

import (
	"context"
	"fmt"
	"log/slog"

	"murmur/internal/config"
)

// Publisher delivers a finished audio file for a job and returns where it
// can be found afterwards.
type Publisher interface {
	Publish(ctx context.Context, jobID, path string) (string, error)
	Close() error
}

// New builds the publisher selected by [publish] target.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	switch cfg.Publish.Target {
	case config.PublishLocal, "":
		return NewLocal(cfg.Paths.OutputDir, logger), nil
	case config.PublishNATS:
		return ConnectNATS(ctx, NATSOptions{
			URL:            cfg.Publish.NATS.URL,
			Bucket:         cfg.Publish.NATS.Bucket,
			Subject:        cfg.Publish.NATS.Subject,
			ConnectTimeout: cfg.NATSConnectTimeout(),
		}, logger)
	default:
		return nil, fmt.Errorf("publish: unsupported target %q", cfg.Publish.Target)
	}
}

// CompletionEvent is announced after a result has been stored.
type CompletionEvent struct {
	JobID       string `json:"job_id"`
	Location    string `json:"location"`
	Bucket      string `json:"bucket,omitempty"`
	Object      string `json:"object,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
	PublishedAt string `json:"published_at"`
}
