package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/twstock/internal/domain"
	"github.com/aristath/twstock/internal/sources"
)

func TestDetailToDividend(t *testing.T) {
	detail := sources.DividendDetail{
		Year:                      2026,
		YearOfDividend:            2025,
		Quarter:                   "3",
		CashDividendFromEarnings:  2.5,
		CashDividendFromReserve:   0.5,
		StockDividendFromEarnings: 1.0,
		StockDividendFromReserve:  0.25,
		PayoutRatio:               80,
		ExDividendDate1:           "2026-07-01",
		PayableDate1:              domain.NotYetAnnounced,
	}

	d := detailToDividend("2330", detail)
	assert.Equal(t, "2330", d.SecurityCode)
	assert.Equal(t, int64(2025), d.YearOfDividend)
	assert.Equal(t, 3.0, d.CashDividend)
	assert.Equal(t, 1.25, d.StockDividend)
	assert.Equal(t, 4.25, d.Sum)
	assert.Equal(t, domain.NotYetAnnounced, d.PayableDate1)

	key := d.Key()
	assert.Equal(t, domain.DividendKey{
		SecurityCode:   "2330",
		YearOfDividend: 2025,
		Quarter:        "3",
	}, key)
}

func TestSleepCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	sleepCtx(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}
