// Package notify delivers pipeline failure and summary notifications.
// The default sink posts Discord-shaped JSON to a configured webhook;
// without a webhook URL every notification is a no-op.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vigia/internal/config"
	"vigia/internal/logger"
)

// Event kinds emitted by the pipeline.
const (
	KindTaskFailure = "task_failure"
	KindRunSummary  = "run_summary"
)

// Event is one structured notification.
type Event struct {
	Kind     string            `json:"kind"`
	Stage    string            `json:"stage,omitempty"`
	RecordID string            `json:"record_id,omitempty"`
	Message  string            `json:"message"`
	Error    string            `json:"error,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	At       time.Time         `json:"at"`
}

// Notifier is a notification sink.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Noop discards every event.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(ctx context.Context, event Event) error { return nil }

// WebhookMessage is the wire shape posted to the webhook.
type WebhookMessage struct {
	Content  string  `json:"content,omitempty"`
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// Embed carries the structured part of a webhook message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

const (
	colorFailure = 0xdc2626
	colorSummary = 0x2563eb
)

// Webhook posts events to a single webhook URL.
type Webhook struct {
	url      string
	username string
	client   *http.Client
	log      *slog.Logger
}

// NewWebhook builds a Webhook sink from configuration.
func NewWebhook(cfg config.Notify) *Webhook {
	return &Webhook{
		url:      cfg.WebhookURL,
		username: cfg.Username,
		client:   &http.Client{Timeout: cfg.TimeoutDuration()},
		log:      logger.Component("notify"),
	}
}

// FromConfig returns a Webhook when a webhook URL is configured and a
// Noop otherwise.
func FromConfig(cfg config.Notify) Notifier {
	if cfg.WebhookURL == "" {
		return Noop{}
	}
	return NewWebhook(cfg)
}

// Notify posts the event. Delivery failures are returned to the caller
// and never interrupt the pipeline; callers log and move on.
func (w *Webhook) Notify(ctx context.Context, event Event) error {
	if w.url == "" {
		return fmt.Errorf("webhook URL not configured")
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(w.message(event))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	w.log.Debug("notification delivered", "kind", event.Kind, "stage", event.Stage)
	return nil
}

// message converts an event into the webhook wire shape.
func (w *Webhook) message(event Event) *WebhookMessage {
	color := colorSummary
	title := event.Message
	if event.Kind == KindTaskFailure {
		color = colorFailure
		title = fmt.Sprintf("Task failure in %s", event.Stage)
	}

	var fields []EmbedField
	if event.Stage != "" {
		fields = append(fields, EmbedField{Name: "stage", Value: event.Stage, Inline: true})
	}
	if event.RecordID != "" {
		fields = append(fields, EmbedField{Name: "record_id", Value: event.RecordID, Inline: true})
	}
	if event.Error != "" {
		fields = append(fields, EmbedField{Name: "error", Value: event.Error})
	}
	for name, value := range event.Fields {
		fields = append(fields, EmbedField{Name: name, Value: value, Inline: true})
	}

	return &WebhookMessage{
		Username: w.username,
		Embeds: []Embed{
			{
				Title:       title,
				Description: event.Message,
				Color:       color,
				Fields:      fields,
				Timestamp:   event.At.Format(time.RFC3339),
			},
		},
	}
}
