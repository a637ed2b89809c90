package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aerial/internal/config"
)

// LibrarySink asks the media server to rescan its library after new
// episodes land. Jellyfin and Emby accept a plain POST to
// /Library/Refresh with an api_key parameter; the configured URL carries
// the full endpoint so other servers work too.
type LibrarySink struct {
	url    string
	apiKey string
	client *http.Client
}

// NewLibraryRefresh builds the refresh sink. It reports itself disabled
// when no URL is configured.
func NewLibraryRefresh(cfg config.LibraryRefresh) *LibrarySink {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LibrarySink{
		url:    strings.TrimSpace(cfg.URL),
		apiKey: strings.TrimSpace(cfg.APIKey),
		client: &http.Client{Timeout: timeout},
	}
}

func (l *LibrarySink) Name() string { return "library" }

func (l *LibrarySink) Enabled() bool { return l.url != "" }

// NotifyRetrieved triggers one refresh per batch regardless of how many
// episodes it holds.
func (l *LibrarySink) NotifyRetrieved(ctx context.Context, batch []Retrieved) error {
	endpoint := l.url
	if l.apiKey != "" {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("parse refresh url: %w", err)
		}
		query := parsed.Query()
		query.Set("api_key", l.apiKey)
		parsed.RawQuery = query.Encode()
		endpoint = parsed.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("send refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("library refresh returned %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NotifyAlert is a no-op: the media server has no use for operator
// alerts.
func (l *LibrarySink) NotifyAlert(context.Context, string, string) error {
	return nil
}
