// Package integrations wraps the read-only third-party stat APIs the
// profile page embeds. Every client is fetch-and-forward: upstream JSON
// is passed through mostly verbatim, and upstream failures degrade to a
// normalized error instead of breaking the page.
package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSteamBaseURL    = "http://api.steampowered.com"
	defaultLeetCodeBaseURL = "https://leetcode-stats-api.herokuapp.com"
	defaultWakaTimeBaseURL = "https://wakatime.com/api/v1"
	defaultMihomoBaseURL   = "https://api.mihomo.me"
	defaultEnkaBaseURL     = "https://enka.network/api"

	defaultUserAgent = "8w6s-Profile/1.0"
	defaultTimeout   = 10 * time.Second
)

// UpstreamError reports a third-party API failure with the status the
// HTTP layer should forward.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("integrations: upstream status %d: %s", e.Status, e.Message)
}

// ClientConfig configures the integrations client. Base URLs exist so
// tests can point the client at local servers.
type ClientConfig struct {
	HTTPClient *http.Client
	Logger     *zap.Logger

	SteamBaseURL    string
	LeetCodeBaseURL string
	WakaTimeBaseURL string
	MihomoBaseURL   string
	EnkaBaseURL     string
	UserAgent       string
}

// Client calls the third-party stat APIs.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger

	steamBaseURL    string
	leetCodeBaseURL string
	wakaTimeBaseURL string
	mihomoBaseURL   string
	enkaBaseURL     string
	userAgent       string
}

// NewClient returns a Client with defaults applied.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &Client{
		httpClient:      httpClient,
		logger:          logger,
		steamBaseURL:    cfg.SteamBaseURL,
		leetCodeBaseURL: cfg.LeetCodeBaseURL,
		wakaTimeBaseURL: cfg.WakaTimeBaseURL,
		mihomoBaseURL:   cfg.MihomoBaseURL,
		enkaBaseURL:     cfg.EnkaBaseURL,
		userAgent:       cfg.UserAgent,
	}
	if client.steamBaseURL == "" {
		client.steamBaseURL = defaultSteamBaseURL
	}
	if client.leetCodeBaseURL == "" {
		client.leetCodeBaseURL = defaultLeetCodeBaseURL
	}
	if client.wakaTimeBaseURL == "" {
		client.wakaTimeBaseURL = defaultWakaTimeBaseURL
	}
	if client.mihomoBaseURL == "" {
		client.mihomoBaseURL = defaultMihomoBaseURL
	}
	if client.enkaBaseURL == "" {
		client.enkaBaseURL = defaultEnkaBaseURL
	}
	if client.userAgent == "" {
		client.userAgent = defaultUserAgent
	}
	return client
}

// get fetches a URL and returns the body. Non-2xx statuses map to
// UpstreamError carrying the upstream status.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("integrations: build request: %w", err)
	}
	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &UpstreamError{
			Status:  response.StatusCode,
			Message: fmt.Sprintf("unexpected status %d", response.StatusCode),
		}
	}
	return body, nil
}

// IsUpstreamError reports whether err is an upstream failure and, if so,
// returns it.
func IsUpstreamError(err error) (*UpstreamError, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream, true
	}
	return nil, false
}

func decode(body []byte, target any) error {
	if err := json.Unmarshal(body, target); err != nil {
		return &UpstreamError{Status: http.StatusBadGateway, Message: "malformed upstream response"}
	}
	return nil
}
