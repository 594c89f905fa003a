package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"quire/internal/config"
)

const userAgent = "quire/1"

// Event names an alert the daemon can raise.
type Event string

const (
	EventBackendRestarted     Event = "backend_restarted"
	EventBackendRestartFailed Event = "backend_restart_failed"
	EventTest                 Event = "test"
)

// Payload carries event details. Recognized keys: "reason", "command",
// "address".
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed notifier, or a noop when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: cfg.NotifyTimeout()},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	address := payload["address"]
	switch event {
	case EventBackendRestarted:
		body := fmt.Sprintf("Backend %s was restarted", address)
		if reason := payload["reason"]; reason != "" {
			body += " after " + reason
		}
		return message{
			title: "quire - Backend Restarted",
			body:  body,
			tags:  []string{"quire", "backend", "restart"},
		}, true
	case EventBackendRestartFailed:
		body := fmt.Sprintf("Restarting backend %s failed; conversions are blocked", address)
		if command := payload["command"]; command != "" {
			body += "\nCommand: " + command
		}
		return message{
			title:    "quire - Backend Stuck",
			body:     body,
			tags:     []string{"quire", "backend", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "quire - Test",
			body:     "Notification system test",
			tags:     []string{"quire", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
