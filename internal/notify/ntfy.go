package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aerial/internal/config"
)

const userAgent = "Aerial/0.1.0"

const defaultNtfyServer = "https://ntfy.sh"

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// NtfySink pushes events to an ntfy topic. A bare topic name targets the
// public ntfy.sh server; a full URL targets a self-hosted instance.
type NtfySink struct {
	endpoint string
	client   *http.Client
}

// NewNtfy builds the ntfy sink. It reports itself disabled when no topic
// is configured.
func NewNtfy(cfg config.Ntfy) *NtfySink {
	topic := strings.TrimSpace(cfg.Topic)
	endpoint := topic
	if topic != "" && !strings.Contains(topic, "://") {
		endpoint = defaultNtfyServer + "/" + topic
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NtfySink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *NtfySink) Name() string { return "ntfy" }

func (n *NtfySink) Enabled() bool { return n.endpoint != "" }

func (n *NtfySink) NotifyRetrieved(ctx context.Context, batch []Retrieved) error {
	var builder strings.Builder
	for i, item := range batch {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(item.Series)
		builder.WriteString(" ")
		builder.WriteString(item.Episode.Code())
		if title := strings.TrimSpace(item.Episode.Title); title != "" {
			builder.WriteString(" - ")
			builder.WriteString(title)
		}
	}

	data := payload{
		title:   fmt.Sprintf("Aerial - Retrieved %d episode(s)", len(batch)),
		message: builder.String(),
		tags:    []string{"aerial", "retrieved"},
	}
	return n.send(ctx, data)
}

func (n *NtfySink) NotifyAlert(ctx context.Context, title, message string) error {
	data := payload{
		title:    "Aerial - " + strings.TrimSpace(title),
		message:  strings.TrimSpace(message),
		tags:     []string{"aerial", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *NtfySink) send(ctx context.Context, data payload) error {
	if n == nil || n.endpoint == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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
