package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrYouTubeNotConfigured is returned when no API key is set.
var ErrYouTubeNotConfigured = errors.New("youtube api key not configured")

// YouTubeChecker reports whether the YouTube Data API is usable: a key is
// configured and the API host answers. It never spends quota.
type YouTubeChecker struct {
	url        string
	configured bool
	client     *http.Client
}

// NewYouTubeChecker creates a checker for the API at baseURL.
func NewYouTubeChecker(baseURL string, configured bool) *YouTubeChecker {
	return &YouTubeChecker{
		url:        baseURL,
		configured: configured,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck makes an unauthenticated request to the API host. Any response
// below 500 means the host is reachable; the API rejects keyless calls with 4xx.
func (y *YouTubeChecker) HealthCheck(ctx context.Context) error {
	if !y.configured {
		return ErrYouTubeNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach youtube api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("youtube api unhealthy: unexpected status code %d", resp.StatusCode)
	}
	return nil
}
