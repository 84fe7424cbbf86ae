package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/studyplus/tracker/internal/tracing"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"
	defaultTimeout = 10 * time.Second

	// MaxIDsPerRequest is the videos endpoint's limit on ids per call.
	MaxIDsPerRequest = 50
	// DefaultPlaylistPages bounds PlaylistItems at 150 items.
	DefaultPlaylistPages = 3
	playlistPageSize     = 50
)

var (
	// ErrQuotaExceeded is returned when the API key has used up its quota.
	ErrQuotaExceeded = errors.New("youtube api quota exceeded")
	// ErrNotConfigured is returned when the client has no API key.
	ErrNotConfigured = errors.New("youtube api key not configured")
	// ErrNotFound is returned when the requested playlist does not exist or is private.
	ErrNotFound = errors.New("youtube resource not found")
	// ErrUnavailable is returned for network failures and 5xx responses.
	ErrUnavailable = errors.New("youtube api unavailable")
)

// APIError is a non-200 response from the API.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube api error (status %d, %s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube api error (status %d)", e.StatusCode)
}

// Is maps API errors onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.StatusCode == http.StatusForbidden &&
			(e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" || e.Reason == "rateLimitExceeded")
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnavailable:
		return e.StatusCode >= 500
	}
	return false
}

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client is an API-key authenticated YouTube Data API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	metrics    *Metrics
}

// NewClient creates a client for apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// GetVideos fetches metadata for ids in chunks of MaxIDsPerRequest. Unknown
// ids are absent from the result; order follows the API responses.
func (c *Client) GetVideos(ctx context.Context, ids []string) ([]Video, error) {
	out := make([]Video, 0, len(ids))
	for start := 0; start < len(ids); start += MaxIDsPerRequest {
		chunk := ids[start:min(start+MaxIDsPerRequest, len(ids))]

		q := url.Values{}
		q.Set("part", "snippet,contentDetails")
		q.Set("id", strings.Join(chunk, ","))

		var resp videosResponse
		if err := c.get(ctx, "videos", q, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			out = append(out, Video{
				ID:          item.ID,
				Title:       item.Snippet.Title,
				Description: item.Snippet.Description,
				Thumbnail:   item.Snippet.Thumbnails.best(),
				Duration:    ParseDuration(item.ContentDetails.Duration),
				Channel:     item.Snippet.ChannelTitle,
			})
		}
	}
	return out, nil
}

// GetVideo fetches one video. It returns ErrNotFound if the video does not exist.
func (c *Client) GetVideo(ctx context.Context, id string) (*Video, error) {
	videos, err := c.GetVideos(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, ErrNotFound
	}
	return &videos[0], nil
}

// Search runs a video search and returns the hits with full details, in
// relevance order.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Video, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(maxResults))

	var resp searchResponse
	if err := c.get(ctx, "search", q, &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return []Video{}, nil
	}

	details, err := c.GetVideos(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Video, len(details))
	for _, v := range details {
		byID[v.ID] = v
	}
	out := make([]Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// PlaylistItems reads up to maxPages pages of a playlist.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string, maxPages int) ([]PlaylistItem, error) {
	if maxPages <= 0 {
		maxPages = DefaultPlaylistPages
	}

	var out []PlaylistItem
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("part", "snippet,contentDetails")
		q.Set("playlistId", playlistID)
		q.Set("maxResults", strconv.Itoa(playlistPageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var resp playlistItemsResponse
		if err := c.get(ctx, "playlistItems", q, &resp); err != nil {
			return nil, err
		}
		if len(resp.Items) == 0 {
			break
		}
		for _, item := range resp.Items {
			videoID := item.ContentDetails.VideoID
			if videoID == "" {
				videoID = item.Snippet.ResourceID.VideoID
			}
			out = append(out, PlaylistItem{
				VideoID:     videoID,
				Title:       item.Snippet.Title,
				Description: item.Snippet.Description,
				Thumbnail:   item.Snippet.Thumbnails.best(),
				Channel:     item.Snippet.ChannelTitle,
			})
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) (err error) {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	ctx, endSpan := tracing.StartSpan(ctx, "youtube."+endpoint)
	defer func() { endSpan(err) }()

	start := time.Now()
	status := 0
	defer func() { c.metrics.observe(endpoint, status, time.Since(start).Seconds()) }()

	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	tracing.SetAttributes(ctx, attribute.Int("http.response.status_code", status))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	var env errorResponse
	if json.Unmarshal(body, &env) == nil {
		apiErr.Message = env.Error.Message
		if len(env.Error.Errors) > 0 {
			apiErr.Reason = env.Error.Errors[0].Reason
		}
	}
	return apiErr
}

// API response types

type thumbnails struct {
	Default struct {
		URL string `json:"url"`
	} `json:"default"`
	Medium struct {
		URL string `json:"url"`
	} `json:"medium"`
	High struct {
		URL string `json:"url"`
	} `json:"high"`
}

func (t thumbnails) best() string {
	switch {
	case t.High.URL != "":
		return t.High.URL
	case t.Medium.URL != "":
		return t.Medium.URL
	default:
		return t.Default.URL
	}
}

type snippet struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ChannelTitle string     `json:"channelTitle"`
	Thumbnails   thumbnails `json:"thumbnails"`
	ResourceID   struct {
		VideoID string `json:"videoId"`
	} `json:"resourceId"`
}

type videosResponse struct {
	Items []struct {
		ID             string  `json:"id"`
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}
