package histock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/twstock/internal/httpx"
)

// pageTransport serves one canned quote page.
type pageTransport struct {
	html string
}

func (p *pageTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(p.html)),
		Header:     http.Header{},
	}, nil
}

func quotePage(price, change, percent string) string {
	return fmt.Sprintf(`<html><body>
		<span id="Price1_lbTPrice"><span>%s</span></span>
		<span id="Price1_lbTChange"><span>%s</span></span>
		<span id="Price1_lbTPercent"><span>%s</span></span>
	</body></html>`, price, change, percent)
}

func newTestClient(html string) *Client {
	web := httpx.New(zerolog.Nop())
	web.SetTransportForTesting(&pageTransport{html: html})
	web.SetSleepForTesting(func(time.Duration) {})
	return New(web, zerolog.Nop())
}

func TestGetStockQuoteDownDay(t *testing.T) {
	c := newTestClient(quotePage("95.00", "▼1.5", "(1.55%)"))

	quote, err := c.GetStockQuote(context.Background(), "2330")
	require.NoError(t, err)
	assert.Equal(t, "95", quote.Price.String())
	assert.Equal(t, "-1.5", quote.Change.String())
	assert.Equal(t, "-1.55", quote.ChangePercent.String())
}

func TestGetStockQuoteUpDay(t *testing.T) {
	c := newTestClient(quotePage("1,005.00", "▲20", "(2.03%)"))

	quote, err := c.GetStockQuote(context.Background(), "2330")
	require.NoError(t, err)
	assert.Equal(t, "1005", quote.Price.String())
	assert.Equal(t, "20", quote.Change.String())
	assert.Equal(t, "2.03", quote.ChangePercent.String())
}

func TestGetStockQuoteFlatDay(t *testing.T) {
	c := newTestClient(quotePage("95.00", "--", "(--)"))

	quote, err := c.GetStockQuote(context.Background(), "2330")
	require.NoError(t, err)
	assert.True(t, quote.Change.IsZero())
	assert.True(t, quote.ChangePercent.IsZero())
}
