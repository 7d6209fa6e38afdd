package liquipedia

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/dotapulse/matches-service/internal/domain/match"
	"github.com/dotapulse/matches-service/internal/platform/cache"
	"github.com/dotapulse/matches-service/internal/platform/logging"
	"github.com/dotapulse/matches-service/internal/platform/resilience"
	"github.com/dotapulse/matches-service/internal/platform/throttle"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Call classes and their default minimum periods, per the source's API
// terms of use.
const (
	ClassParse throttle.Class = "parse"
	ClassRaw   throttle.Class = "raw"

	DefaultParsePeriod = 30 * time.Second
	DefaultRawPeriod   = time.Second

	defaultBaseURL = "https://liquipedia.net"
	apiPath        = "/dota2/api.php"
)

var errLiquipediaTransient = crerr.New("liquipedia transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	AppName        string // User-Agent identifying this deployment, required by the source
	ParsePeriod    time.Duration
	RawPeriod      time.Duration
	Parser         PageParser
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client fetches structured pages and raw assets from the source while
// honoring one minimum period per call class. All waits happen on the
// calling goroutine.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	appName        string
	pacer          *throttle.Pacer
	parser         PageParser
	icons          *cache.Store
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Parser == nil {
		return nil, fmt.Errorf("liquipedia client needs a page parser")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	parsePeriod := cfg.ParsePeriod
	if parsePeriod <= 0 {
		parsePeriod = DefaultParsePeriod
	}
	rawPeriod := cfg.RawPeriod
	if rawPeriod <= 0 {
		rawPeriod = DefaultRawPeriod
	}

	pacer, err := throttle.NewPacer(map[throttle.Class]time.Duration{
		ClassParse: parsePeriod,
		ClassRaw:   rawPeriod,
	})
	if err != nil {
		return nil, err
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		appName:        strings.TrimSpace(cfg.AppName),
		pacer:          pacer,
		parser:         cfg.Parser,
		icons:          cache.NewStore(time.Hour),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}, nil
}

// FetchPage performs a structured fetch of the named page on the parse
// class. A redirect stub is followed once, without a second pacer wait,
// and the redirect target is reported alongside the final content.
func (c *Client) FetchPage(ctx context.Context, page string) (PageContent, error) {
	if err := c.pacer.Wait(ctx, ClassParse); err != nil {
		return PageContent{}, err
	}

	html, err := c.fetchParsedHTML(ctx, page)
	if err != nil {
		return PageContent{}, err
	}

	target, redirected := c.parser.DetectRedirect(html)
	if !redirected {
		return PageContent{HTML: html}, nil
	}

	c.logger.InfoContext(ctx, "following page redirect", "page", page, "target", target)
	html, err = c.fetchParsedHTML(ctx, target)
	if err != nil {
		return PageContent{}, err
	}
	return PageContent{HTML: html, RedirectTarget: target}, nil
}

// FetchIcon fetches a raw binary asset by source path on the raw class.
// Assets barely ever change, so they are cached for an hour to spare the
// tightly paced raw class.
func (c *Client) FetchIcon(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("asset path must start with /, got %q", path)
	}

	value, err := c.icons.GetOrLoad(ctx, path, func(ctx context.Context) (any, error) {
		if err := c.pacer.Wait(ctx, ClassRaw); err != nil {
			return nil, err
		}

		status, body, err := c.get(ctx, c.baseURL+path)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, &RequestError{StatusCode: status, Body: body}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	body, ok := value.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected cached asset type %T", value)
	}
	return body, nil
}

// FetchMatches fetches and decodes the upcoming-matches page. Row-level
// parse failures come back separately so callers can drop just those rows.
func (c *Client) FetchMatches(ctx context.Context) ([]match.Match, []error, error) {
	content, err := c.FetchPage(ctx, PageMatches)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch matches page: %w", err)
	}
	matches, rowErrs := c.parser.ParseMatches(content.HTML)
	return matches, rowErrs, nil
}

func (c *Client) FetchTeams(ctx context.Context) ([]match.Team, error) {
	content, err := c.FetchPage(ctx, PageTeams)
	if err != nil {
		return nil, fmt.Errorf("fetch teams page: %w", err)
	}
	teams, err := c.parser.ParseTeams(content.HTML)
	if err != nil {
		return nil, fmt.Errorf("decode teams page: %w", err)
	}
	return teams, nil
}

func (c *Client) FetchTournaments(ctx context.Context) ([]match.Tournament, error) {
	content, err := c.FetchPage(ctx, PageTournaments)
	if err != nil {
		return nil, fmt.Errorf("fetch tournaments page: %w", err)
	}
	tournaments, err := c.parser.ParseTournaments(content.HTML)
	if err != nil {
		return nil, fmt.Errorf("decode tournaments page: %w", err)
	}
	return tournaments, nil
}

type parseEnvelope struct {
	Parse struct {
		Text map[string]string `json:"text"`
	} `json:"parse"`
}

func (c *Client) fetchParsedHTML(ctx context.Context, page string) (string, error) {
	fullURL := c.baseURL + apiPath + "?action=parse&format=json&page=" + url.QueryEscape(page)

	status, body, err := c.get(ctx, fullURL)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &RequestError{StatusCode: status, Body: body}
	}

	var envelope parseEnvelope
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return "", &RequestError{StatusCode: status, Body: body}
	}
	html, ok := envelope.Parse.Text["*"]
	if !ok {
		return "", &RequestError{StatusCode: status, Body: body}
	}
	return html, nil
}

func (c *Client) get(ctx context.Context, fullURL string) (int, []byte, error) {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "liquipedia circuit breaker rejected request", "state", c.breaker.State())
			return 0, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if c.appName != "" {
		req.Header.Set("User-Agent", c.appName)
	}
	// The transport negotiates gzip itself; setting Accept-Encoding here
	// would switch off its transparent decompression.

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordOutcome(false)
		return 0, nil, crerr.Wrapf(errLiquipediaTransient, "send request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.recordOutcome(false)
		return 0, nil, crerr.Wrapf(errLiquipediaTransient, "read response body: %v", err)
	}

	c.recordOutcome(resp.StatusCode < 500)
	return resp.StatusCode, body, nil
}

func (c *Client) recordOutcome(ok bool) {
	if !c.circuitEnabled {
		return
	}
	if ok {
		c.breaker.RecordSuccess()
	} else {
		c.breaker.RecordFailure()
	}
}
