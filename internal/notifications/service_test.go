package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{"job_id": "x"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "job completed",
			event: notifications.EventJobCompleted,
			payload: notifications.Payload{
				"job_id":    "0b9f3c1e-1111-4222-8333-444455556666",
				"fragments": 2,
				"track":     "Rain",
				"location":  "/srv/murmur/0b9f3c1e.mp3",
			},
			expectTitle:   "murmur - Job Complete",
			expectMessage: "Rendered 2 affirmations over Rain\nOutput: /srv/murmur/0b9f3c1e.mp3",
			expectTags:    "murmur,job,completed",
		},
		{
			name:  "job failed",
			event: notifications.EventJobFailed,
			payload: notifications.Payload{
				"job_id": "0b9f3c1e-1111-4222-8333-444455556666",
				"stage":  "tempo_shifting",
				"kind":   "execution",
				"error":  errors.New("ffmpeg: exit status 1"),
			},
			expectTitle:    "murmur - Job Failed",
			expectMessage:  "Job 0b9f3c1e failed while tempo shifting: ffmpeg: exit status 1",
			expectTags:     "murmur,error,execution",
			expectPriority: "high",
		},
		{
			name:  "queue completed with failures",
			event: notifications.EventQueueCompleted,
			payload: notifications.Payload{
				"processed": 3,
				"failed":    1,
				"duration":  90 * time.Second,
			},
			expectTitle:   "murmur - Queue Complete (with errors)",
			expectMessage: "Queue drained: 3 succeeded, 1 failed in 1m30s",
			expectTags:    "murmur,queue,completed",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "murmur - Test",
			expectMessage:  "Notification system test",
			expectTags:     "murmur,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobCompleted = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventQueueStarted, notifications.EventJobCompleted} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"value": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is read-only", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
