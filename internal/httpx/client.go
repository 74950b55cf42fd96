// Package httpx is the outbound HTTP fabric shared by every source adapter.
//
// One process-wide client gates all requests behind a five-permit semaphore,
// retries transient failures with exponential backoff, and offers JSON /
// form / BIG5 convenience entry points. Adapters never build their own
// http.Client.
package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

const (
	// MaxRetries is the number of send attempts per request.
	MaxRetries = 2
	// maxConcurrent is the process-wide in-flight request budget.
	maxConcurrent = 5
	// courtesyDelay is held after response headers arrive, before the
	// permit is released.
	courtesyDelay = 300 * time.Millisecond

	connectTimeout = 8 * time.Second
	totalTimeout   = 15 * time.Second
	maxIdlePerHost = 20
	idleTimeout    = 90 * time.Second
	maxRedirects   = 5
)

// ExhaustedError reports a request that failed every attempt.
type ExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("http exhausted after %d attempts: %s: %v", e.Attempts, e.URL, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Client is the shared HTTP fabric.
type Client struct {
	hc        *http.Client
	gate      *semaphore.Weighted
	userAgent string
	log       zerolog.Logger

	// sleep is swappable so tests can observe backoff without waiting.
	sleep func(time.Duration)
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

// Default returns the lazily-initialized process-wide client.
func Default(log zerolog.Logger) *Client {
	defaultOnce.Do(func() {
		defaultClient = New(log)
	})
	return defaultClient
}

// New creates a client with the fabric's transport profile. The User-Agent
// is randomized once at construction.
func New(log zerolog.Logger) *Client {
	jar, _ := cookiejar.New(nil)

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: maxIdlePerHost,
		IdleConnTimeout:     idleTimeout,
		TLSHandshakeTimeout: connectTimeout,
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	return &Client{
		hc: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   totalTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		gate:      semaphore.NewWeighted(maxConcurrent),
		userAgent: RandomUserAgent(rng),
		log:       log.With().Str("component", "httpx").Logger(),
		sleep:     time.Sleep,
	}
}

// UserAgent returns the client's randomized User-Agent.
func (c *Client) UserAgent() string { return c.userAgent }

// Send performs one request with the fabric's retry and gating policy.
// The body function is re-invoked per attempt so request bodies are never
// replayed from a drained reader. The returned body is fully read and the
// connection released before Send returns.
func (c *Client) Send(ctx context.Context, method, rawURL string, headers map[string]string, body func() (io.Reader, error)) ([]byte, int, error) {
	var lastErr error

	for attempt := 1; attempt <= MaxRetries; attempt++ {
		data, status, err := c.sendOnce(ctx, method, rawURL, headers, body)
		if err == nil {
			return data, status, nil
		}
		lastErr = err
		c.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("url", rawURL).
			Msg("request failed")

		if attempt < MaxRetries {
			c.sleep(time.Duration(1<<attempt) * time.Second)
		}
	}

	return nil, 0, &ExhaustedError{URL: rawURL, Attempts: MaxRetries, Last: lastErr}
}

func (c *Client) sendOnce(ctx context.Context, method, rawURL string, headers map[string]string, body func() (io.Reader, error)) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		r, err := body()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to build request body: %w", err)
		}
		reader = r
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, 0, fmt.Errorf("failed to acquire request permit: %w", err)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	// Headers are in (or the attempt failed); hold the courtesy delay,
	// then release. The body is read after the permit is returned.
	c.sleep(courtesyDelay)
	c.gate.Release(1)

	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	// Setting Accept-Encoding explicitly opts out of the transport's
	// transparent decompression; compressed bodies arrive as-is.
	respBody := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer gz.Close()
		respBody = gz
	}

	data, err := io.ReadAll(respBody)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	return data, resp.StatusCode, nil
}

// Get fetches a URL and returns the response bytes.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, int, error) {
	return c.Send(ctx, http.MethodGet, rawURL, headers, nil)
}

// GetBig5 fetches a URL and decodes the response from BIG5 to UTF-8.
func (c *Client) GetBig5(ctx context.Context, rawURL string, headers map[string]string) ([]byte, int, error) {
	data, status, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, status, err
	}
	decoded, err := DecodeBig5(data)
	if err != nil {
		return nil, status, fmt.Errorf("failed to decode big5 response: %w", err)
	}
	return decoded, status, nil
}

// PostForm submits form values and returns the response bytes.
func (c *Client) PostForm(ctx context.Context, rawURL string, headers map[string]string, form url.Values) ([]byte, int, error) {
	merged := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range headers {
		merged[k] = v
	}
	return c.Send(ctx, http.MethodPost, rawURL, merged, func() (io.Reader, error) {
		return strings.NewReader(form.Encode()), nil
	})
}

// PostJSON posts a JSON payload and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	merged := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		merged[k] = v
	}
	data, status, err := c.Send(ctx, http.MethodPost, rawURL, merged, func() (io.Reader, error) {
		return bytes.NewReader(payload), nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// GetJSON fetches a URL and decodes the JSON response into T.
func GetJSON[T any](ctx context.Context, c *Client, rawURL string, headers map[string]string) (T, error) {
	var out T
	data, status, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return out, err
	}
	if status == http.StatusTooManyRequests {
		return out, ErrRateLimited
	}
	if status != http.StatusOK {
		return out, fmt.Errorf("unexpected status %d", status)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to parse response: %w", err)
	}
	return out, nil
}

// ErrRateLimited signals a remote HTTP 429.
var ErrRateLimited = fmt.Errorf("remote rate limited")

// DecodeBig5 converts BIG5 bytes to UTF-8.
func DecodeBig5(data []byte) ([]byte, error) {
	reader := transform.NewReader(bytes.NewReader(data), traditionalchinese.Big5.NewDecoder())
	return io.ReadAll(reader)
}

// SetSleepForTesting swaps the backoff sleep function. Tests only.
func (c *Client) SetSleepForTesting(fn func(time.Duration)) {
	c.sleep = fn
}

// SetTransportForTesting swaps the underlying transport. Tests only.
func (c *Client) SetTransportForTesting(rt http.RoundTripper) {
	c.hc.Transport = rt
}
