// Package notify posts release and monitoring events to Discord and
// Slack incoming webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Severity colors the notification where the target supports it.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one notification.
type Event struct {
	Title    string
	Message  string
	Severity Severity
}

// Notifier delivers events to a set of webhooks.
type Notifier struct {
	discordURL string
	slackURL   string
	client     *http.Client
	retries    int
}

// New creates a notifier. Empty URLs disable the corresponding target.
func New(discordURL, slackURL string) *Notifier {
	return &Notifier{
		discordURL: discordURL,
		slackURL:   slackURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		retries:    2,
	}
}

// Enabled reports whether at least one webhook target is configured.
func (n *Notifier) Enabled() bool {
	return n.discordURL != "" || n.slackURL != ""
}

// Send delivers the event to every configured target, returning the
// first delivery error after all targets were attempted.
func (n *Notifier) Send(ctx context.Context, ev Event) error {
	var firstErr error
	if n.discordURL != "" {
		if err := n.post(ctx, n.discordURL, discordPayload(ev)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("discord webhook: %w", err)
		}
	}
	if n.slackURL != "" {
		if err := n.post(ctx, n.slackURL, slackPayload(ev)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("slack webhook: %w", err)
		}
	}
	return firstErr
}

func (n *Notifier) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned %s", resp.Status)
		// Client errors won't improve on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return lastErr
		}
	}
	return lastErr
}

func severityColor(s Severity) int {
	switch s {
	case SeverityError:
		return 0xE74C3C
	case SeverityWarning:
		return 0xF1C40F
	default:
		return 0x2ECC71
	}
}

func discordPayload(ev Event) any {
	return map[string]any{
		"embeds": []map[string]any{{
			"title":       ev.Title,
			"description": ev.Message,
			"color":       severityColor(ev.Severity),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}},
	}
}

func slackPayload(ev Event) any {
	prefix := ":white_check_mark:"
	switch ev.Severity {
	case SeverityWarning:
		prefix = ":warning:"
	case SeverityError:
		prefix = ":rotating_light:"
	}
	return map[string]any{
		"text": fmt.Sprintf("%s *%s*\n%s", prefix, ev.Title, ev.Message),
	}
}
