package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/fileutil"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/publish"
)

// describeValidation rewrites validation failures from either access path
// into a message naming the offending field.
func describeValidation(err error) error {
	var validation *pipeline.ValidationError
	if errors.As(err, &validation) {
		return fmt.Errorf("request rejected: %w", err)
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Body.Field != "" {
		return fmt.Errorf("request rejected: %s", apiErr.Body.Error)
	}
	return err
}

func formatPercent(value float64) string {
	return fmt.Sprintf("[%3.0f%%]", math.Max(0, math.Min(100, value)))
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func formatAge(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// fetchResult copies a published result to dest. Local results are copied
// with checksum verification; NATS results are downloaded from the bucket.
func fetchResult(ctx context.Context, cfg *config.Config, location, dest string) (int64, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return 0, errors.New("job has no published result")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create destination directory: %w", err)
	}

	if bucket, object, ok := parseNATSLocation(location); ok {
		store, err := publish.ConnectNATS(ctx, publish.NATSOptions{
			URL:            cfg.Publish.NATS.URL,
			Bucket:         bucket,
			Subject:        cfg.Publish.NATS.Subject,
			ConnectTimeout: cfg.NATSConnectTimeout(),
		}, logging.NewNop())
		if err != nil {
			return 0, err
		}
		defer store.Close()

		file, err := os.Create(dest)
		if err != nil {
			return 0, fmt.Errorf("create %s: %w", dest, err)
		}
		written, fetchErr := store.Fetch(ctx, object, file)
		closeErr := file.Close()
		if fetchErr != nil {
			_ = os.Remove(dest)
			return 0, fetchErr
		}
		if closeErr != nil {
			return 0, fmt.Errorf("close %s: %w", dest, closeErr)
		}
		return written, nil
	}

	if err := fileutil.CopyFileVerified(location, dest); err != nil {
		return 0, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// parseNATSLocation splits "nats://<bucket>/<object>".
func parseNATSLocation(location string) (string, string, bool) {
	rest, ok := strings.CutPrefix(location, "nats://")
	if !ok {
		return "", "", false
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}
