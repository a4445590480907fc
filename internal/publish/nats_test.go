package publish_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"murmur/internal/publish"
	"murmur/internal/services"
)

func startJetStream(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return srv, conn
}

func writeResult(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNATSPublishUploadsAndAnnounces(t *testing.T) {
	t.Parallel()
	_, conn := startJetStream(t)

	sub, err := conn.SubscribeSync("murmur.jobs.completed")
	require.NoError(t, err)

	publisher, err := publish.NewNATS(conn, "murmur-test", "murmur.jobs.completed", nil)
	require.NoError(t, err)

	ctx := context.Background()
	path := writeResult(t, "mixed audio bytes")
	location, err := publisher.Publish(ctx, "0b9f3c1e-1111-4222-8333-444455556666", path)
	require.NoError(t, err)
	require.Equal(t, "nats://murmur-test/0b9f3c1e-1111-4222-8333-444455556666.mp3", location)

	_, statErr := os.Stat(path)
	require.True(t, errors.Is(statErr, os.ErrNotExist), "local result should be removed after upload")

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var event publish.CompletionEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	require.Equal(t, "0b9f3c1e-1111-4222-8333-444455556666", event.JobID)
	require.Equal(t, location, event.Location)
	require.Equal(t, int64(len("mixed audio bytes")), event.SizeBytes)
	require.Len(t, event.SHA256, 64)

	var buf bytes.Buffer
	n, err := publisher.Fetch(ctx, event.Object, &buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, "mixed audio bytes", buf.String())
}

func TestNATSBindsExistingBucket(t *testing.T) {
	t.Parallel()
	_, conn := startJetStream(t)

	first, err := publish.NewNATS(conn, "shared", "", nil)
	require.NoError(t, err)
	_, err = first.Publish(context.Background(), "job-a", writeResult(t, "a"))
	require.NoError(t, err)

	second, err := publish.NewNATS(conn, "shared", "", nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = second.Fetch(context.Background(), "job-a.mp3", &buf)
	require.NoError(t, err)
	require.Equal(t, "a", buf.String())
}

func TestNATSFetchMissingObject(t *testing.T) {
	t.Parallel()
	_, conn := startJetStream(t)

	publisher, err := publish.NewNATS(conn, "empty", "", nil)
	require.NoError(t, err)
	_, err = publisher.Fetch(context.Background(), "nope.mp3", &bytes.Buffer{})
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestConnectNATSUnreachable(t *testing.T) {
	t.Parallel()
	_, err := publish.ConnectNATS(context.Background(), publish.NATSOptions{
		URL:            "nats://127.0.0.1:1",
		Bucket:         "murmur",
		ConnectTimeout: 200 * time.Millisecond,
	}, nil)
	require.ErrorIs(t, err, services.ErrStorage)
}
