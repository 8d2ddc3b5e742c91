package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	// Discord caps message content at 2000 chars; previews stay well under.
	maxPreviewChars = 900

	defaultUsername = "trading-coach"
	defaultTimeout  = 60 * time.Second
)

// DiscordWebhook sends review notifications to a Discord channel webhook.
// The short summary goes in the message content; the full markdown report
// rides along as a file attachment.
type DiscordWebhook struct {
	url      string
	username string
	client   *http.Client
}

// DiscordOption configures a DiscordWebhook.
type DiscordOption func(*DiscordWebhook)

// WithUsername overrides the webhook display name.
func WithUsername(name string) DiscordOption {
	return func(d *DiscordWebhook) { d.username = name }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(d *DiscordWebhook) { d.client = c }
}

// NewDiscordWebhook creates a webhook sender. url must be a full Discord
// webhook URL.
func NewDiscordWebhook(url string, opts ...DiscordOption) (*DiscordWebhook, error) {
	if url == "" {
		return nil, fmt.Errorf("notify: discord webhook url is required")
	}
	d := &DiscordWebhook{
		url:      url,
		username: defaultUsername,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Send posts a summary message with the full document attached as a
// markdown file. The summary is truncated to Discord's safe preview size.
func (d *DiscordWebhook) Send(ctx context.Context, summary, filename, attachment string) error {
	payload := map[string]string{
		"username": d.username,
		"content":  truncate(summary, maxPreviewChars),
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("payload_json", string(payloadJSON)); err != nil {
		return fmt.Errorf("write payload_json: %w", err)
	}
	part, err := w.CreateFormFile("files[0]", filename)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	if _, err := io.WriteString(part, attachment); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// SendText posts a plain message with no attachment. The review runner
// uses it for sync failure alerts.
func (d *DiscordWebhook) SendText(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{
		"username": d.username,
		"content":  truncate(content, 2000),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
