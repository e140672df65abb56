// Package analytics is the HTTP client for the external aggregation
// service. Only the request/response contract lives here; the
// service's internals are someone else's problem.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrTransport marks an HTTP-level failure (network error or
	// non-2xx). The orchestrator backs off longer and retries; it is
	// never a hard failure.
	ErrTransport = errors.New("aggregation transport failure")

	// ErrPending marks a poll that came back before the aggregation
	// finished.
	ErrPending = errors.New("aggregation pending")
)

const (
	statusSuccess = "SUCCESS"

	defaultPollInterval = 5 * time.Second
	defaultErrorBackoff = 10 * time.Second
)

// Config tunes the client's polling behavior. Zero values fall back to
// the service defaults.
type Config struct {
	BaseURL string

	// PollInterval separates successive polls of a pending
	// aggregation; ErrorBackoff is used instead after a transport
	// failure.
	PollInterval time.Duration
	ErrorBackoff time.Duration

	// MaxPollAttempts bounds one polling loop so a stuck aggregation
	// cannot wedge the run forever.
	MaxPollAttempts uint

	// RequestsPerSecond limits trigger calls against the service.
	RequestsPerSecond float64
}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	cb           *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
	logger       *zap.Logger
	pollInterval time.Duration
	errorBackoff time.Duration
	maxAttempts  uint
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if cfg.MaxPollAttempts == 0 {
		cfg.MaxPollAttempts = 720
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "AnalyticsService",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		cb:           cb,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:       logger.Named("analytics"),
		pollInterval: cfg.PollInterval,
		errorBackoff: cfg.ErrorBackoff,
		maxAttempts:  cfg.MaxPollAttempts,
	}
}

type analyseResponse struct {
	Result string `json:"result"`
}

type pollResponse struct {
	Status string `json:"status"`
}

// Analyse triggers aggregation for one geographic unit
// (GET /api/v1/analyse/{scope}/{id}) and returns the polling URL from
// the response.
func (c *Client) Analyse(ctx context.Context, scope, id string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/api/v1/analyse/%s/%s", c.baseURL, scope, neturl.PathEscape(id))
	result, err := c.cb.Execute(func() (interface{}, error) {
		var out analyseResponse
		if err := c.getJSON(ctx, url, &out); err != nil {
			return nil, err
		}
		return out.Result, nil
	})
	if err != nil {
		return "", err
	}

	pollURL := result.(string)
	c.logger.Debug("aggregation triggered",
		zap.String("scope", scope), zap.String("id", id), zap.String("poll_url", pollURL))
	return c.absolute(pollURL), nil
}

// AwaitCompletion polls pollURL until the aggregation reports SUCCESS.
// PENDING waits the poll interval, transport failures wait the longer
// error backoff, and the whole loop is bounded by the attempt budget
// and the context.
func (c *Client) AwaitCompletion(ctx context.Context, pollURL string) error {
	return retry.Do(
		func() error {
			var out pollResponse
			if err := c.getJSON(ctx, pollURL, &out); err != nil {
				return err
			}
			if out.Status == statusSuccess {
				return nil
			}
			return fmt.Errorf("%w: status %s", ErrPending, out.Status)
		},
		retry.Context(ctx),
		retry.Attempts(c.maxAttempts),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			if errors.Is(err, ErrTransport) {
				return c.errorBackoff
			}
			return c.pollInterval
		}),
	)
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d from %s", ErrTransport, resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, url, err)
	}
	return nil
}

func (c *Client) absolute(pollURL string) string {
	if strings.HasPrefix(pollURL, "/") {
		return c.baseURL + pollURL
	}
	return pollURL
}
