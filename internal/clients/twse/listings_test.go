package twse

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/httpx"
)

// big5Transport serves one canned page encoded to BIG5, the way the ISIN
// registry publishes it.
type big5Transport struct {
	html string
}

func (t *big5Transport) RoundTrip(*http.Request) (*http.Response, error) {
	encoded, err := io.ReadAll(transform.NewReader(
		strings.NewReader(t.html), traditionalchinese.Big5.NewEncoder()))
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(encoded)),
		Header:     http.Header{},
	}, nil
}

func newTestClient(html string) *Client {
	web := httpx.New(zerolog.Nop())
	web.SetTransportForTesting(&big5Transport{html: html})
	web.SetSleepForTesting(func(time.Duration) {})
	return New(web, zerolog.Nop())
}

const isinPage = `<html><body><table class="h4">
<tr><td>股票</td></tr>
<tr><td>2330　台積電</td><td>TW0002330008</td><td>1994/09/05</td><td>上市</td><td>半導體業</td></tr>
<tr><td>2881　富邦金</td><td>TW0002881000</td><td>2001/12/19</td><td>上市</td><td>金融保險業</td></tr>
<tr><td>上市認購(售)權證</td></tr>
<tr><td>030001　永豐金庫存</td><td>TW17Z0300017</td><td>2026/01/05</td><td>上市</td><td></td></tr>
</table></body></html>`

func TestListingsParsesEquitySection(t *testing.T) {
	c := newTestClient(isinPage)

	listings, err := c.Listings(context.Background(), domain.MarketListed)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "2330", listings[0].Symbol)
	assert.Equal(t, "台積電", listings[0].Name)
	assert.Equal(t, "TW0002330008", listings[0].ISIN)
	assert.Equal(t, "1994/09/05", listings[0].IssueDate)
	assert.Equal(t, "半導體業", listings[0].Industry)
	assert.Equal(t, domain.MarketListed, listings[0].Market)
	assert.Equal(t, "2881", listings[1].Symbol)
}

func TestListingsEmptyPage(t *testing.T) {
	c := newTestClient(`<html><body><table class="h4"></table></body></html>`)

	_, err := c.Listings(context.Background(), domain.MarketListed)
	assert.Error(t, err)
}

func TestSplitSymbolName(t *testing.T) {
	cases := []struct {
		in     string
		symbol string
		name   string
		ok     bool
	}{
		{"2330　台積電", "2330", "台積電", true},
		{"2881A　富邦特", "2881A", "富邦特", true},
		{"2330 台積電", "2330", "台積電", true},
		{"0300017　永豐金庫存", "", "", false},
		{"台積電", "", "", false},
	}
	for _, tc := range cases {
		symbol, name, ok := splitSymbolName(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.symbol, symbol, tc.in)
		assert.Equal(t, tc.name, name, tc.in)
	}
}
