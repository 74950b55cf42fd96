package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/twstock/internal/sources"
)

type fakeQuoter struct {
	quotes map[string]sources.StockQuote
}

func (f *fakeQuoter) FetchQuote(_ context.Context, symbol string) (sources.StockQuote, error) {
	q, ok := f.quotes[symbol]
	if !ok {
		return sources.StockQuote{}, errors.New("unreachable")
	}
	return q, nil
}

func newTestServer(q Quoter) *Server {
	return &Server{quoter: q, log: zerolog.Nop()}
}

func TestHandleControl(t *testing.T) {
	s := newTestServer(nil)
	w := httptest.NewRecorder()
	s.handleControl(w, httptest.NewRequest(http.MethodPost, "/rpc/control", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp controlResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Code)
	assert.True(t, strings.HasPrefix(resp.Message, "ok"))
}

func TestHandleUpdateStockInfoNotImplemented(t *testing.T) {
	s := newTestServer(nil)
	w := httptest.NewRecorder()
	s.handleUpdateStockInfo(w, httptest.NewRequest(http.MethodPost, "/rpc/stock/update-stock-info", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestHandleFetchQuotesZeroesUnreachable(t *testing.T) {
	s := newTestServer(&fakeQuoter{quotes: map[string]sources.StockQuote{
		"2330": {
			Symbol:        "2330",
			Price:         decimal.NewFromFloat(1005.0),
			Change:        decimal.NewFromFloat(-5.0),
			ChangePercent: decimal.NewFromFloat(-0.5),
		},
	}})

	body := strings.NewReader(`{"symbols":["2330","0000"]}`)
	w := httptest.NewRecorder()
	s.handleFetchQuotes(w, httptest.NewRequest(http.MethodPost, "/rpc/stock/fetch-current-stock-quotes", body))

	require.Equal(t, http.StatusOK, w.Code)
	var resp fetchQuotesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.StockPrices, 2)

	assert.Equal(t, StockPrice{Symbol: "2330", Price: "1005", Change: "-5", ChangeRange: "-0.5"}, resp.StockPrices[0])
	assert.Equal(t, StockPrice{Symbol: "0000", Price: "0", Change: "0", ChangeRange: "0"}, resp.StockPrices[1])
}

func TestHandleFetchQuotesBadBody(t *testing.T) {
	s := newTestServer(&fakeQuoter{})
	w := httptest.NewRecorder()
	s.handleFetchQuotes(w, httptest.NewRequest(http.MethodPost, "/rpc/stock/fetch-current-stock-quotes", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
