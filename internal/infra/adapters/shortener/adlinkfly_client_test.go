//go:build !integration

package shortener

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-link-shortener/internal/config"
	"telegram-link-shortener/internal/domain"
)

type fakeSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeSleeper) Calls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.calls...)
}

// stubAPI answers each request with the next scripted status/body; the last
// entry repeats once the script runs out.
type stubAPI struct {
	t      *testing.T
	script []stubReply
	hits   atomic.Int32
	mu     sync.Mutex
	last   url.Values
}

type stubReply struct {
	status int
	body   string
}

func (s *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(s.hits.Add(1))
	s.mu.Lock()
	s.last = r.URL.Query()
	s.mu.Unlock()

	reply := s.script[len(s.script)-1]
	if n <= len(s.script) {
		reply = s.script[n-1]
	}
	w.WriteHeader(reply.status)
	_, _ = fmt.Fprint(w, reply.body)
}

func (s *stubAPI) Query() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func newTestClient(t *testing.T, api *stubAPI) (*AdLinkFlyClient, *fakeSleeper) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	sl := &fakeSleeper{}
	c, err := NewAdLinkFlyClient(config.AdLinkFlyConfig{
		BaseURL:        srv.URL + "/",
		APIKey:         "secret-key",
		APIPath:        "api",
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  5 * time.Second,
	}, WithSleeper(sl), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, sl
}

const okBody = `{"status":"success","shortenedUrl":"https://sho.rt/abc"}`

func TestShorten_SuccessAfterTransientFailures(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{
		{http.StatusInternalServerError, "oops"},
		{http.StatusInternalServerError, "oops"},
		{http.StatusOK, okBody},
	}}
	c, sl := newTestClient(t, api)

	short, err := c.Shorten(context.Background(), "https://example.com/long", "")
	require.NoError(t, err)
	assert.Equal(t, "https://sho.rt/abc", short)
	assert.EqualValues(t, 3, api.hits.Load())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sl.Calls())
}

func TestShorten_AlwaysServerErrorStopsAtMaxAttempts(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusInternalServerError, ""}}}
	c, sl := newTestClient(t, api)

	_, err := c.Shorten(context.Background(), "https://example.com/long", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.EqualValues(t, 3, api.hits.Load())
	assert.Len(t, sl.Calls(), 2)
}

func TestShorten_ClientErrorIsNotRetried(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusBadRequest, `{"status":"error","message":"Invalid URL"}`}}}
	c, sl := newTestClient(t, api)

	_, err := c.Shorten(context.Background(), "https://example.com/long", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPermanent)
	assert.NotErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.EqualValues(t, 1, api.hits.Load())
	assert.Empty(t, sl.Calls())

	var se *domain.ShortenerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "Invalid URL", se.Message)
}

func TestShorten_SendsQueryParameters(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusOK, okBody}}}
	c, _ := newTestClient(t, api)

	_, err := c.Shorten(context.Background(), "https://example.com/a?b=c&d=e", "my-alias")
	require.NoError(t, err)

	q := api.Query()
	assert.Equal(t, "secret-key", q.Get("api"))
	assert.Equal(t, "https://example.com/a?b=c&d=e", q.Get("url"))
	assert.Equal(t, "my-alias", q.Get("alias"))
}

func TestShorten_OmitsEmptyAlias(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusOK, okBody}}}
	c, _ := newTestClient(t, api)

	_, err := c.Shorten(context.Background(), "https://example.com", "")
	require.NoError(t, err)
	_, present := api.Query()["alias"]
	assert.False(t, present)
}

func TestShorten_AliasTakenIsPermanent(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusOK, `{"status":"error","message":"Alias already exists."}`}}}
	c, _ := newTestClient(t, api)

	_, err := c.Shorten(context.Background(), "https://example.com", "taken")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAliasTaken)
	assert.EqualValues(t, 1, api.hits.Load())
}

func TestShorten_BreakerOpensAndFailsFast(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusBadGateway, ""}}}
	c, _ := newTestClient(t, api)
	ctx := context.Background()

	// First call: three transient failures.
	_, err := c.Shorten(ctx, "https://example.com", "")
	require.ErrorIs(t, err, domain.ErrRetriesExhausted)

	// Second call: two more failures trip the breaker, the third attempt is refused.
	_, err = c.Shorten(ctx, "https://example.com", "")
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.EqualValues(t, 5, api.hits.Load())

	// Open breaker: no HTTP call at all.
	_, err = c.Shorten(ctx, "https://example.com", "")
	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.EqualValues(t, 5, api.hits.Load())
}

func TestShorten_PermanentErrorsDoNotTripBreaker(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusBadRequest, "bad"}}}
	c, _ := newTestClient(t, api)

	for i := 0; i < 8; i++ {
		_, err := c.Shorten(context.Background(), "https://example.com", "")
		require.ErrorIs(t, err, domain.ErrPermanent)
	}
	assert.EqualValues(t, 8, api.hits.Load())
}

func TestShorten_CancelledContextIsNotRetried(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusOK, okBody}}}
	c, sl := newTestClient(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Shorten(ctx, "https://example.com", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, sl.Calls())
}

type failingDoer struct{ calls atomic.Int32 }

func (f *failingDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: errors.New("connection refused")}
}

func TestShorten_NetworkErrorIsTransientAndHidesKey(t *testing.T) {
	d := &failingDoer{}
	sl := &fakeSleeper{}
	c, err := NewAdLinkFlyClient(config.AdLinkFlyConfig{
		BaseURL:        "https://short.example",
		APIKey:         "secret-key",
		MaxAttempts:    2,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  time.Second,
	}, WithHTTPClient(d), WithSleeper(sl))
	require.NoError(t, err)

	_, err = c.Shorten(context.Background(), "https://example.com", "")
	require.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.EqualValues(t, 2, d.calls.Load())
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestNewAdLinkFlyClient_RequiresBaseAndKey(t *testing.T) {
	_, err := NewAdLinkFlyClient(config.AdLinkFlyConfig{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewAdLinkFlyClient(config.AdLinkFlyConfig{BaseURL: "https://x"})
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	base, max := 500*time.Millisecond, 5*time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 5 * time.Second},
		{40, 5 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Backoff(tc.attempt, base, max), "attempt %d", tc.attempt)
	}
	assert.Zero(t, Backoff(3, 0, max))

	// max <= 0 leaves the delay uncapped
	assert.Equal(t, 500*time.Millisecond, Backoff(1, base, 0))
	assert.Equal(t, time.Second, Backoff(2, base, 0))
	assert.Equal(t, 2*time.Second, Backoff(3, base, 0))
	assert.Equal(t, 8*time.Second, Backoff(5, base, -1))
}

func TestNewAdLinkFlyClient_DefaultsRetryDelays(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusInternalServerError, "oops"}}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	sl := &fakeSleeper{}
	c, err := NewAdLinkFlyClient(config.AdLinkFlyConfig{
		BaseURL: srv.URL,
		APIKey:  "secret-key",
	}, WithSleeper(sl), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = c.Shorten(context.Background(), "https://example.com", "")
	require.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.EqualValues(t, 3, api.hits.Load())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sl.Calls())
}

func TestShorten_PerAttemptTimeoutIsTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	sl := &fakeSleeper{}
	c, err := NewAdLinkFlyClient(config.AdLinkFlyConfig{
		BaseURL:     srv.URL,
		APIKey:      "secret-key",
		Timeout:     50 * time.Millisecond,
		MaxAttempts: 2,
	}, WithSleeper(sl))
	require.NoError(t, err)

	_, err = c.Shorten(context.Background(), "https://example.com", "")
	require.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.NotContains(t, err.Error(), "secret-key")
	assert.EqualValues(t, 2, hits.Load(), "timed out attempt is retried")
	assert.Len(t, sl.Calls(), 1)
}

func TestShorten_RateLimitWaitsForToken(t *testing.T) {
	api := &stubAPI{t: t, script: []stubReply{{http.StatusOK, okBody}}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewAdLinkFlyClient(config.AdLinkFlyConfig{BaseURL: srv.URL, APIKey: "secret-key"},
		WithHTTPClient(srv.Client()), WithSleeper(&fakeSleeper{}), WithRateLimit(0.01))
	require.NoError(t, err)

	_, err = c.Shorten(context.Background(), "https://example.com/1", "")
	require.NoError(t, err, "burst allows the first call")

	// the next token is 100s away; the caller's deadline is not
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = c.Shorten(ctx, "https://example.com/2", "")
	require.Error(t, err)
	assert.EqualValues(t, 1, api.hits.Load(), "throttled call never reaches the api")
}
