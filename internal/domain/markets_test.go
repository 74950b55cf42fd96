package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarketExchange(t *testing.T) {
	assert.Equal(t, ExchangeTWSE, MarketListed.Exchange())
	assert.Equal(t, ExchangeTPEx, MarketOverTheCounter.Exchange())
	assert.Equal(t, ExchangeTPEx, MarketEmerging.Exchange())
	assert.Equal(t, ExchangeNone, MarketPublic.Exchange())
}

func TestMarketString(t *testing.T) {
	assert.Equal(t, "上市", MarketListed.String())
	assert.Equal(t, "上櫃", MarketOverTheCounter.String())
	assert.Equal(t, "興櫃", MarketEmerging.String())
	assert.Equal(t, "公開發行", MarketPublic.String())
}

func TestStockIsPreferred(t *testing.T) {
	assert.False(t, (&Stock{Symbol: "2330"}).IsPreferred())
	assert.True(t, (&Stock{Symbol: "2881A"}).IsPreferred())
}

func TestIndexKey(t *testing.T) {
	idx := Index{
		Category: "寶島股價指數",
		Date:     time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "2026-08-24Σ寶島股價指數", idx.Key())
}

func TestIndustryName(t *testing.T) {
	assert.Equal(t, "水泥工業", IndustryName(Industries["水泥工業"]))
	assert.Equal(t, "未分類", IndustryName(-1))
	assert.Equal(t, Industries["未分類"], IndustryID("no such industry"))
}
