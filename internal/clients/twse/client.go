// Package twse is the Taiwan Stock Exchange adapter: end-of-day quotes,
// indices, the instrument master list, the holiday schedule, QFII holdings
// and public-offering windows.
package twse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/twstock/internal/httpx"
)

const (
	rwdURL  = "https://www.twse.com.tw/rwd/zh"
	isinURL = "https://isin.twse.com.tw/isin/C_public.jsp"
	openURL = "https://openapi.twse.com.tw/v1"
)

// Client is the TWSE adapter.
type Client struct {
	http *httpx.Client
	log  zerolog.Logger
}

// New creates a TWSE client.
func New(http *httpx.Client, log zerolog.Logger) *Client {
	return &Client{
		http: http,
		log:  log.With().Str("client", "twse").Logger(),
	}
}

// statResponse is the envelope every rwd endpoint shares.
type statResponse struct {
	Stat   string          `json:"stat"`
	Date   string          `json:"date"`
	Tables []responseTable `json:"tables"`
	Fields []string        `json:"fields"`
	Data   [][]string      `json:"data"`
}

type responseTable struct {
	Title  string     `json:"title"`
	Fields []string   `json:"fields"`
	Data   [][]string `json:"data"`
}

// statOK is the literal the exchange uses for a successful response.
const statOK = "OK"

// parseNumber reads an exchange-formatted number: thousands separators,
// and "--" / "---" / empty for no value.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || strings.Trim(s, "-") == "" {
		return 0
	}
	// Change columns carry HTML arrows on some pages.
	s = strings.TrimPrefix(s, "+")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseROCDate reads a Republic-of-China calendar date like 113/08/24.
func parseROCDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("not a ROC date: %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("not a ROC date: %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("not a ROC date: %q", s)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("not a ROC date: %q", s)
	}
	return time.Date(year+1911, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
