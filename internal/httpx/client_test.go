package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport fails the first n attempts, then succeeds.
type scriptedTransport struct {
	failFirst int
	calls     int
	body      string
}

func (s *scriptedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls++
	if s.calls <= s.failFirst {
		return nil, errors.New("connection reset")
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(s.body)),
		Header:     http.Header{},
	}, nil
}

func newTestClient(rt http.RoundTripper) (*Client, *[]time.Duration) {
	c := New(zerolog.Nop())
	c.SetTransportForTesting(rt)
	var sleeps []time.Duration
	c.SetSleepForTesting(func(d time.Duration) { sleeps = append(sleeps, d) })
	return c, &sleeps
}

func backoffSleeps(sleeps []time.Duration) []time.Duration {
	var out []time.Duration
	for _, d := range sleeps {
		if d != courtesyDelay {
			out = append(out, d)
		}
	}
	return out
}

func TestSendRetriesOnceThenSucceeds(t *testing.T) {
	rt := &scriptedTransport{failFirst: 1, body: "ok"}
	c, sleeps := newTestClient(rt)

	data, status, err := c.Get(context.Background(), "http://example.test/quotes", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(data))

	assert.Equal(t, 2, rt.calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, backoffSleeps(*sleeps))
}

func TestSendFirstAttemptSuccessNoBackoff(t *testing.T) {
	rt := &scriptedTransport{body: "ok"}
	c, sleeps := newTestClient(rt)

	_, _, err := c.Get(context.Background(), "http://example.test/quotes", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rt.calls)
	assert.Empty(t, backoffSleeps(*sleeps))
}

func TestSendExhausted(t *testing.T) {
	rt := &scriptedTransport{failFirst: 10}
	c, _ := newTestClient(rt)

	_, _, err := c.Get(context.Background(), "http://example.test/quotes", nil)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, MaxRetries, exhausted.Attempts)
	assert.Equal(t, MaxRetries, rt.calls)
}

func TestGetJSONRateLimited(t *testing.T) {
	rt := &statusTransport{status: http.StatusTooManyRequests}
	c, _ := newTestClient(rt)

	_, err := GetJSON[map[string]string](context.Background(), c, "http://example.test/api", nil)
	assert.ErrorIs(t, err, ErrRateLimited)
}

type statusTransport struct {
	status int
}

func (s *statusTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(bytes.NewBufferString("{}")),
		Header:     http.Header{},
	}, nil
}

// gzipTransport compresses the body when the request advertises gzip,
// the way real origins negotiate.
type gzipTransport struct {
	body string
}

func (g *gzipTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	header := http.Header{}
	var buf bytes.Buffer
	if req.Header.Get("Accept-Encoding") == "gzip" {
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write([]byte(g.body)); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		header.Set("Content-Encoding", "gzip")
	} else {
		buf.WriteString(g.body)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(&buf),
		Header:     header,
	}, nil
}

func TestSendDecodesGzipBody(t *testing.T) {
	c, _ := newTestClient(&gzipTransport{body: `{"ok":true}`})

	data, status, err := c.Get(context.Background(), "http://example.test/api", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestSendPlainBodyPassesThrough(t *testing.T) {
	rt := &scriptedTransport{body: "plain"}
	c, _ := newTestClient(rt)

	data, _, err := c.Get(context.Background(), "http://example.test/api", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
}

func TestDecodeBig5(t *testing.T) {
	// 台 in BIG5.
	decoded, err := DecodeBig5([]byte{0xA5, 0x78})
	require.NoError(t, err)
	assert.Equal(t, "台", string(decoded))
}
