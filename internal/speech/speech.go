// Package speech plays alert audio: an attention tone of a fixed duration,
// optionally followed by the alert text read aloud.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/cbwatch/internal/dispatch"
)

const httpTimeout = 30 * time.Second

// playRequest is the body accepted by the text-to-speech gateway.
type playRequest struct {
	Text       string `json:"text,omitempty"`
	Language   string `json:"language,omitempty"`
	DurationMS int64  `json:"tone_duration_ms"`
}

// Gateway sends audio alerts to an HTTP text-to-speech gateway.
type Gateway struct {
	url    string
	client *http.Client
	logger log.Logger
}

// NewGateway returns a Player that posts to url.
func NewGateway(url string, logger log.Logger) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	return &Gateway{
		url: url,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Play asks the gateway to sound the tone for d and then speak body in language.
// An empty body means tone only.
func (g *Gateway) Play(ctx context.Context, body, language string, d time.Duration) error {
	payload, err := json.Marshal(playRequest{Text: body, Language: language, DurationMS: d.Milliseconds()})
	if err != nil {
		return dispatch.Permanent(fmt.Errorf("speech: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return dispatch.Permanent(fmt.Errorf("speech: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req) //nolint:gosec // G704: gateway url is from trusted config
	if err != nil {
		return fmt.Errorf("speech: post gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("speech: gateway returned %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return dispatch.Permanent(err)
		}
		return err
	}

	g.logger.Info(ctx, "alert audio played", "language", language, "tone_duration", d, "speech", body != "")
	return nil
}

// LogPlayer records audio alerts in the log instead of playing them.
type LogPlayer struct {
	logger log.Logger
}

func NewLogPlayer(logger log.Logger) *LogPlayer {
	if logger == nil {
		logger = log.Nop()
	}
	return &LogPlayer{logger: logger}
}

func (p *LogPlayer) Play(ctx context.Context, body, language string, d time.Duration) error {
	p.logger.Info(ctx, "alert audio", "tone_duration", d, "language", language, "body", body)
	return nil
}
