package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider queries a detector service over its JSON API.
// GET /v1/subjects lists observed subjects; GET /v1/score?subject=X returns
// the subject's current score. It implements both NetworkProvider and
// BehaviorProvider; behavior deployments simply never call Subjects.
type HTTPProvider struct {
	baseURL string
	http    *http.Client
}

// NewHTTPProvider creates an HTTPProvider targeting baseURL. timeout bounds
// every call; zero means 5s.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type subjectsResponse struct {
	Subjects []string `json:"subjects"`
}

type scoreResponse struct {
	Subject string  `json:"subject"`
	Score   float64 `json:"score"`
}

// Subjects implements NetworkProvider.
func (p *HTTPProvider) Subjects(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/subjects", nil)
	if err != nil {
		return nil, fmt.Errorf("build subjects request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subjects request to %s: %w", p.baseURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned status %d for subjects", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read subjects response: %w", err)
	}
	var out subjectsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode subjects response: %w", err)
	}
	return out.Subjects, nil
}

// Sample implements NetworkProvider and BehaviorProvider.
func (p *HTTPProvider) Sample(ctx context.Context, subject string) (float64, error) {
	u, err := url.Parse(p.baseURL + "/v1/score")
	if err != nil {
		return 0, fmt.Errorf("build score URL: %w", err)
	}
	q := u.Query()
	q.Set("subject", subject)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build score request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("score request for %s: %w", subject, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("detector has no score for %s", subject)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("detector returned status %d for %s", resp.StatusCode, subject)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read score response: %w", err)
	}
	var out scoreResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode score response: %w", err)
	}
	return out.Score, nil
}
