package shortener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"telegram-link-shortener/internal/config"
	"telegram-link-shortener/internal/domain"
	"telegram-link-shortener/internal/domain/ports/adapter"
	"telegram-link-shortener/internal/infra/logging"
	"telegram-link-shortener/internal/infra/metrics"
)

// Compile-time check
var _ adapter.Shortener = (*AdLinkFlyClient)(nil)

const (
	maxResponseSize = 1 << 20

	defaultMaxAttempts = 3
	defaultTimeout     = 20 * time.Second
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// Doer is the HTTP dependency; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AdLinkFlyClient calls the AdLinkFly "quick link" API:
// GET {base}{path}?api=<key>&url=<long>[&alias=<alias>].
type AdLinkFlyClient struct {
	endpoint    string
	apiKey      string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	http    Doer
	sleeper Sleeper
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[string]
	log     *zerolog.Logger
}

type Option func(*AdLinkFlyClient)

func WithHTTPClient(d Doer) Option { return func(c *AdLinkFlyClient) { c.http = d } }

func WithSleeper(s Sleeper) Option { return func(c *AdLinkFlyClient) { c.sleeper = s } }

func WithLogger(l *zerolog.Logger) Option { return func(c *AdLinkFlyClient) { c.log = l } }

// WithRateLimit replaces the outbound token bucket. rps <= 0 disables it.
func WithRateLimit(rps float64) Option {
	return func(c *AdLinkFlyClient) { c.limiter = newLimiter(rps) }
}

func NewAdLinkFlyClient(cfg config.AdLinkFlyConfig, opts ...Option) (*AdLinkFlyClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("adlinkfly base url empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid adlinkfly base url: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("adlinkfly api key empty")
	}
	path := cfg.APIPath
	if path == "" {
		path = "/api"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	c := &AdLinkFlyClient{
		endpoint:    base + path,
		apiKey:      cfg.APIKey,
		maxAttempts: attempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		http:        &http.Client{Timeout: timeout},
		sleeper:     realSleeper{},
		limiter:     newLimiter(cfg.RPS),
		log:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "adlinkfly",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(int(to))
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return c, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), int(math.Ceil(rps)))
}

// Shorten returns the short link for longURL, retrying transient failures
// with exponential backoff.
func (c *AdLinkFlyClient) Shorten(ctx context.Context, longURL, alias string) (string, error) {
	l := logging.With(ctx, c.log)
	defer logging.TraceDuration(l, "AdLinkFlyClient.Shorten")()

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		short, err := c.breaker.Execute(func() (string, error) {
			return c.do(ctx, longURL, alias)
		})
		if err == nil {
			metrics.IncShortenerAttempt("ok")
			metrics.ObserveShorten(true, time.Since(start))
			l.Debug().Int("attempt", attempt).Str("short_url", short).Msg("shortened")
			return short, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", domain.ErrCircuitOpen, err)
		}
		lastErr = err

		if !isRetryable(err) {
			metrics.IncShortenerAttempt("permanent")
			metrics.ObserveShorten(false, time.Since(start))
			l.Debug().Err(err).Int("attempt", attempt).Msg("shorten failed")
			return "", err
		}
		metrics.IncShortenerAttempt("transient")
		if attempt == c.maxAttempts {
			break
		}

		delay := Backoff(attempt, c.baseDelay, c.maxDelay)
		l.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("shorten attempt failed, retrying")
		if err := c.sleeper.Sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	metrics.ObserveShorten(false, time.Since(start))
	return "", fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, c.maxAttempts, lastErr)
}

// do performs one attempt.
func (c *AdLinkFlyClient) do(ctx context.Context, longURL, alias string) (string, error) {
	q := url.Values{}
	q.Set("api", c.apiKey)
	q.Set("url", longURL)
	if alias != "" {
		q.Set("alias", alias)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", &domain.ShortenerError{Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &domain.ShortenerError{Message: "request failed", Transient: true, Err: scrubKey(err, c.apiKey)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return "", &domain.ShortenerError{Status: resp.StatusCode, Message: "read response", Transient: true, Err: err}
	}
	if len(body) > maxResponseSize {
		return "", &domain.ShortenerError{Status: resp.StatusCode, Message: "response too large"}
	}
	return parseResponse(resp.StatusCode, body)
}

// isBreakerSuccess counts only transient failures against the breaker.
// API refusals (4xx, status=error) and caller cancellation are not service degradation.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrTransient) {
		return false
	}
	return true
}

// scrubKey removes the API key from transport errors, which embed the request URL.
func scrubKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "***"))
}
