package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/socify/socify_downloader/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 10 * time.Second

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type DiscordNotifier struct {
	WebhookURL string

	httpClient *http.Client
	telemetry  *telemetry.Telemetry
}

// NewDiscordNotifier posts to a Discord webhook. A nil httpClient gets an instrumented
// client with a short timeout.
func NewDiscordNotifier(webhookURL string, httpClient *http.Client, tel *telemetry.Telemetry) *DiscordNotifier {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		}
	}

	return &DiscordNotifier{WebhookURL: webhookURL, httpClient: httpClient, telemetry: tel}
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	err := d.notify(ctx, content)
	if err != nil {
		d.telemetry.RecordNotification(ctx, "error")
	} else {
		d.telemetry.RecordNotification(ctx, "success")
	}

	return err
}

func (d *DiscordNotifier) notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}
