// Package slack posts broadcast notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/cbwatch/internal/dispatch"
)

const (
	maxBodyLen  = 3000
	httpTimeout = 10 * time.Second
)

// Notifier posts notifications to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Post logs and returns nil.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Post sends n to the configured webhook. Client errors other than 429 are
// marked permanent so the dispatcher stops retrying them.
func (n *Notifier) Post(ctx context.Context, note dispatch.Notification) error {
	if n.webhookURL == "" {
		n.logger.Info(ctx, "slack webhook not configured, skipping notification", "notification_id", note.ID)
		return nil
	}

	body, err := json.Marshal(buildMessage(note))
	if err != nil {
		return dispatch.Permanent(fmt.Errorf("slack: marshal message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return dispatch.Permanent(fmt.Errorf("slack: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return dispatch.Permanent(err)
		}
		return err
	}
	return nil
}

func buildMessage(n dispatch.Notification) map[string]any {
	return map[string]any{
		"text": fmt.Sprintf("%s: %s", n.Title, truncate(n.Body, maxBodyLen)),
		"blocks": []map[string]any{
			headerBlock(n),
			bodyBlock(n),
			{"type": "divider"},
			contextBlock(n),
		},
	}
}

func headerBlock(n dispatch.Notification) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s %s", presentationEmoji(n.Presentation), n.Title),
		},
	}
}

func bodyBlock(n dispatch.Notification) map[string]any {
	text := truncate(n.Body, maxBodyLen)
	if text == "" {
		text = "_No message text._"
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func contextBlock(n dispatch.Notification) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("cbwatch • #%d • %s • %s", n.ID, n.TitleKey, n.DeliveryTime.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}
	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func presentationEmoji(p dispatch.Presentation) string {
	if p == dispatch.PresentationFullScreen {
		return "\U0001f6a8" // rotating light
	}
	return "\U0001f4e2" // loudspeaker
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && s[cut]&0xc0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
