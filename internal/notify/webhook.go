package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookNotifier POSTs events as JSON to an operator-supplied endpoint.
// Payloads are HMAC-SHA256 signed so the receiver can verify origin.
type WebhookNotifier struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger

	// retryDelays[i] is slept before attempt i+1; index 0 is unused.
	retryDelays []time.Duration
}

// NewWebhookNotifier creates a WebhookNotifier. secret may be empty to
// disable signing.
func NewWebhookNotifier(url, secret string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:         url,
		secret:      secret,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		retryDelays: []time.Duration{0, 1 * time.Second, 5 * time.Second},
	}
}

// Notify delivers the event, retrying twice with short backoff. The last
// error is returned if every attempt fails.
func (w *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < len(w.retryDelays); attempt++ {
		if delay := w.retryDelays[attempt]; delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = w.deliver(ctx, body); lastErr == nil {
			return nil
		}
		w.logger.Warn("webhook delivery failed",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return fmt.Errorf("webhook delivery to %s: %w", w.url, lastErr)
}

func (w *WebhookNotifier) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set("X-Sentinel-Signature", signPayload(body, w.secret))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()                              //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// signPayload returns "sha256=<hex hmac>" over the payload.
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
