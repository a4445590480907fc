package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

const userAgent = "murmur/0.1.0"

// Event names a notification milestone.
type Event string

const (
	EventJobCompleted   Event = "job_completed"
	EventJobFailed      Event = "job_failed"
	EventQueueStarted   Event = "queue_started"
	EventQueueCompleted Event = "queue_completed"
	EventTest           Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		jobCompleted: cfg.Notifications.JobCompleted,
		jobFailed:    cfg.Notifications.JobFailed,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	jobCompleted bool
	jobFailed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		if !n.jobCompleted {
			return message{}, false
		}
		body := fmt.Sprintf("Rendered %d affirmations over %s", payload.count("fragments"), payload.text("track"))
		if location := payload.text("location"); location != "" {
			body += "\nOutput: " + location
		}
		return message{
			title: "murmur - Job Complete",
			body:  body,
			tags:  []string{"murmur", "job", "completed"},
		}, true
	case EventJobFailed:
		if !n.jobFailed {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("Job ")
		b.WriteString(shortID(payload.text("job_id")))
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" failed while ")
			b.WriteString(strings.ReplaceAll(stage, "_", " "))
		} else {
			b.WriteString(" failed")
		}
		b.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "murmur - Job Failed",
			body:     b.String(),
			tags:     []string{"murmur", "error", payload.text("kind")},
			priority: "high",
		}, true
	case EventQueueCompleted:
		processed := payload.count("processed")
		failed := payload.count("failed")
		duration := payload.duration("duration").Round(time.Second)
		if failed == 0 {
			return message{
				title: "murmur - Queue Complete",
				body:  fmt.Sprintf("Queue drained: %d jobs rendered in %s", processed, duration),
				tags:  []string{"murmur", "queue", "completed"},
			}, true
		}
		return message{
			title: "murmur - Queue Complete (with errors)",
			body:  fmt.Sprintf("Queue drained: %d succeeded, %d failed in %s", processed, failed, duration),
			tags:  []string{"murmur", "queue", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "murmur - Test",
			body:     "Notification system test",
			tags:     []string{"murmur", "test"},
			priority: "low",
		}, true
	default:
		// Queue start is logged but too chatty to push.
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if tags := compact(msg.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) duration(key string) time.Duration {
	if d, ok := p[key].(time.Duration); ok && d > 0 {
		return d
	}
	return 0
}

func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
