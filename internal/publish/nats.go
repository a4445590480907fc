package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"murmur/internal/fileutil"
	"murmur/internal/logging"
	"murmur/internal/services"
)

// NATSOptions configures the JetStream object store publisher.
type NATSOptions struct {
	URL            string
	Bucket         string
	Subject        string
	ConnectTimeout time.Duration
}

// NATS stores results in a JetStream object store bucket and announces
// each one with a CompletionEvent on Subject.
type NATS struct {
	conn    *nats.Conn
	store   nats.ObjectStore
	bucket  string
	subject string
	owned   bool
	logger  *slog.Logger
}

// ConnectNATS dials the server and binds the bucket, creating it when missing.
func ConnectNATS(ctx context.Context, opts NATSOptions, logger *slog.Logger) (*NATS, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	conn, err := nats.Connect(opts.URL,
		nats.Name("murmur"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "publish", "nats connect", opts.URL, err)
	}
	publisher, err := NewNATS(conn, opts.Bucket, opts.Subject, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	publisher.owned = true
	return publisher, nil
}

// NewNATS wraps an existing connection. The caller keeps ownership of conn.
func NewNATS(conn *nats.Conn, bucket, subject string, logger *slog.Logger) (*NATS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "nats", "bucket is required", nil)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "publish", "jetstream", bucket, err)
	}
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Rendered murmur audio.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		bound, bindErr := js.ObjectStore(bucket)
		if bindErr != nil {
			return nil, services.Wrap(services.ErrStorage, "publish", "object store", bucket, errors.Join(err, bindErr))
		}
		store = bound
	}
	return &NATS{
		conn:    conn,
		store:   store,
		bucket:  bucket,
		subject: strings.TrimSpace(subject),
		logger:  logging.NewComponentLogger(logger, "publish"),
	}, nil
}

// ObjectName returns the object key used for a job's result.
func ObjectName(jobID, path string) string {
	return jobID + strings.ToLower(filepath.Ext(path))
}

// Publish uploads path and announces it. The local file is removed once the
// upload has been acknowledged.
func (n *NATS) Publish(ctx context.Context, jobID, path string) (string, error) {
	sum, size, err := fileutil.SHA256File(path)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "publish", "hash result", path, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "publish", "open result", path, err)
	}
	defer file.Close()

	name := ObjectName(jobID, path)
	_, err = n.store.Put(&nats.ObjectMeta{
		Name:        name,
		Description: "murmur job " + jobID,
		Metadata: map[string]string{
			"job_id": jobID,
			"sha256": sum,
		},
	}, file, nats.Context(ctx))
	if err != nil {
		return "", services.Wrap(services.ErrStorage, "publish", "object put", name, err)
	}
	location := fmt.Sprintf("nats://%s/%s", n.bucket, name)

	if n.subject != "" {
		event := CompletionEvent{
			JobID:       jobID,
			Location:    location,
			Bucket:      n.bucket,
			Object:      name,
			SizeBytes:   size,
			SHA256:      sum,
			PublishedAt: time.Now().UTC().Format(time.RFC3339),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return "", fmt.Errorf("encode completion event: %w", err)
		}
		if err := n.conn.Publish(n.subject, payload); err != nil {
			return "", services.Wrap(services.ErrStorage, "publish", "announce", n.subject, err)
		}
		if err := n.conn.FlushWithContext(ctx); err != nil {
			return "", services.Wrap(services.ErrStorage, "publish", "flush", n.subject, err)
		}
	}

	_ = file.Close()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logging.WithContext(ctx, n.logger), "local result not removed", "publish_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "workspace release will remove it"),
		)
	}
	logging.WithContext(ctx, n.logger).Info("result published",
		logging.String(logging.FieldEventType, "result_published"),
		logging.String("location", location),
		logging.Int64("size_bytes", size),
	)
	return location, nil
}

// Fetch downloads a job's object into w.
func (n *NATS) Fetch(ctx context.Context, name string, w io.Writer) (int64, error) {
	obj, err := n.store.Get(name, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return 0, services.Wrap(services.ErrNotFound, "publish", "object get", name, err)
		}
		return 0, services.Wrap(services.ErrStorage, "publish", "object get", name, err)
	}
	written, copyErr := io.Copy(w, obj)
	closeErr := obj.Close()
	if copyErr != nil {
		return written, fmt.Errorf("read object %q: %w", name, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("close object %q: %w", name, closeErr)
	}
	return written, nil
}

// Close drains the connection when the publisher opened it.
func (n *NATS) Close() error {
	if n.owned && n.conn != nil {
		return n.conn.Drain()
	}
	return nil
}
