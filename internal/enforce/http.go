package enforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// HTTPAdapter talks to a firewall controller over its JSON API.
// POST /v1/rules installs a deny rule; DELETE /v1/rules/{handle} removes it.
type HTTPAdapter struct {
	baseURL string
	apiKey  string
	http    *http.Client

	// handle bookkeeping so Unblock can be called with just a subject
	mu      sync.Mutex
	handles map[string]string
}

// NewHTTPAdapter creates an HTTPAdapter targeting baseURL. apiKey may be
// empty. timeout bounds every call; zero means 10s.
func NewHTTPAdapter(baseURL, apiKey string, timeout time.Duration) *HTTPAdapter {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		handles: make(map[string]string),
	}
}

type createRuleRequest struct {
	Subject string `json:"subject"`
	Action  string `json:"action"`
}

type createRuleResponse struct {
	Handle string `json:"handle"`
}

// Block implements Adapter.
func (a *HTTPAdapter) Block(ctx context.Context, subject string) (string, error) {
	body, err := json.Marshal(createRuleRequest{Subject: subject, Action: "deny"})
	if err != nil {
		return "", fmt.Errorf("marshal rule request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/rules", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build rule request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("block %s: %w", subject, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("firewall controller returned status %d for block of %s", resp.StatusCode, subject)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read rule response: %w", err)
	}
	var out createRuleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode rule response: %w", err)
	}
	if out.Handle == "" {
		return "", fmt.Errorf("firewall controller returned empty rule handle for %s", subject)
	}

	a.mu.Lock()
	a.handles[subject] = out.Handle
	a.mu.Unlock()
	return out.Handle, nil
}

// Unblock implements Adapter.
func (a *HTTPAdapter) Unblock(ctx context.Context, subject string) error {
	a.mu.Lock()
	handle, ok := a.handles[subject]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("no rule handle recorded for %s", subject)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		a.baseURL+"/v1/rules/"+url.PathEscape(handle), nil)
	if err != nil {
		return fmt.Errorf("build unblock request: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("unblock %s: %w", subject, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("firewall controller returned status %d for unblock of %s", resp.StatusCode, subject)
	}

	a.mu.Lock()
	delete(a.handles, subject)
	a.mu.Unlock()
	return nil
}
