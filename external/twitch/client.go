package twitch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/dotapulse/matches-service/internal/platform/logging"
	"github.com/dotapulse/matches-service/internal/platform/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHelixURL = "https://api.twitch.tv/helix"
	defaultAuthURL  = "https://id.twitch.tv/oauth2/token"

	// Helix caps page size at 100; three pages is plenty for one game's
	// live list ordered by viewers.
	pageSize = 100
	maxPages = 3

	tokenExpiryMargin = time.Minute
)

var errTwitchTransient = crerr.New("twitch transient failure")

// Stream is one live broadcast as reported by the platform.
type Stream struct {
	UserLogin    string `json:"user_login"`
	UserName     string `json:"user_name"`
	GameID       string `json:"game_id"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	Language     string `json:"language"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	AuthURL        string
	ClientID       string
	ClientSecret   string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to the Helix API with an app access token, refreshing it
// lazily. Token refreshes are collapsed through singleflight.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	authURL        string
	clientID       string
	clientSecret   string
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultHelixURL
	}
	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = defaultAuthURL
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		authURL:        authURL,
		clientID:       strings.TrimSpace(cfg.ClientID),
		clientSecret:   strings.TrimSpace(cfg.ClientSecret),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// ResolveGameID looks up the platform's identifier for a game by name.
func (c *Client) ResolveGameID(ctx context.Context, name string) (string, error) {
	var envelope struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}

	query := url.Values{}
	query.Set("name", name)
	if err := c.getJSON(ctx, "/games", query, &envelope); err != nil {
		return "", fmt.Errorf("resolve game %q: %w", name, err)
	}
	if len(envelope.Data) == 0 {
		return "", fmt.Errorf("game %q not found on platform", name)
	}
	return envelope.Data[0].ID, nil
}

// ListLiveStreams loads the full current live-stream list for a game.
func (c *Client) ListLiveStreams(ctx context.Context, gameID string) ([]Stream, error) {
	out := make([]Stream, 0, pageSize)
	cursor := ""

	for page := 0; page < maxPages; page++ {
		var envelope struct {
			Data       []Stream `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}

		query := url.Values{}
		query.Set("game_id", gameID)
		query.Set("first", fmt.Sprintf("%d", pageSize))
		if cursor != "" {
			query.Set("after", cursor)
		}

		if err := c.getJSON(ctx, "/streams", query, &envelope); err != nil {
			return nil, fmt.Errorf("list streams game_id=%s: %w", gameID, err)
		}

		out = append(out, envelope.Data...)
		cursor = envelope.Pagination.Cursor
		if cursor == "" || len(envelope.Data) < pageSize {
			break
		}
	}

	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "twitch circuit breaker rejected request", "state", c.breaker.State())
			return err
		}
	}

	body, err := c.doHelix(ctx, path, query)
	if c.circuitEnabled {
		if err != nil && crerr.Is(err, errTwitchTransient) {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	if err != nil {
		return err
	}

	if err := sonic.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode platform payload: %w", err)
	}
	return nil
}

func (c *Client) doHelix(ctx context.Context, path string, query url.Values) ([]byte, error) {
	token, err := c.appToken(ctx)
	if err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	status, body, err := c.send(ctx, fullURL, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// Token revoked server-side; refresh once and retry.
		c.invalidateToken()
		token, err = c.appToken(ctx)
		if err != nil {
			return nil, err
		}
		status, body, err = c.send(ctx, fullURL, token)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		if status >= 500 || status == http.StatusTooManyRequests {
			return nil, crerr.Wrapf(errTwitchTransient, "platform status=%d", status)
		}
		return nil, fmt.Errorf("platform status=%d body=%s", status, truncate(body))
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, fullURL, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, crerr.Wrapf(errTwitchTransient, "send request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, crerr.Wrapf(errTwitchTransient, "read response body: %v", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) appToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	valid := token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpiryMargin))
	c.mu.Unlock()
	if valid {
		return token, nil
	}

	out, err, _ := c.flight.Do("app-token", func() (any, error) {
		return c.requestToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *Client) requestToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", crerr.Wrapf(errTwitchTransient, "request app token: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", crerr.Wrapf(errTwitchTransient, "read token response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint status=%d body=%s", resp.StatusCode, truncate(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	c.mu.Lock()
	c.token = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.mu.Unlock()

	return payload.AccessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
