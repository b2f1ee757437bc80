package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// SlackProvider posts messages to a Slack incoming webhook.
type SlackProvider struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewSlackProvider creates a new Slack webhook provider.
func NewSlackProvider(webhookURL string, client *http.Client, logger *slog.Logger) *SlackProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SlackProvider{
		webhookURL: webhookURL,
		client:     client,
		logger:     logger,
	}
}

type slackMessage struct {
	Text string `json:"text"`
}

// Send posts the message body to the webhook. Slack messages have no subject.
func (p *SlackProvider) Send(ctx context.Context, subject, body string) error {
	jsonData, err := json.Marshal(slackMessage{Text: body})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			p.logger.Info("Slack webhook request starting",
				"method", "POST",
				"subject", subject,
				"body_length", len(body))

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(jsonData))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := p.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				p.logger.Warn("Slack webhook request failed, will retry",
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					p.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				p.logger.Warn("Slack webhook returned non-2xx status",
					"status_code", resp.StatusCode)
				statusErr := fmt.Errorf("HTTP %d", resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}

			p.logger.Info("Slack webhook request completed",
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Info("Retrying Slack message after error", "attempt", n, "error", err)
		}),
	)
}
