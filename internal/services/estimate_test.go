package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandValid(t *testing.T) {
	assert.True(t, band{cheap: 10, fair: 15, expensive: 20}.valid())
	assert.True(t, band{cheap: 10, fair: 10, expensive: 10}.valid())
	assert.False(t, band{}.valid())
	assert.False(t, band{cheap: 10, fair: 5, expensive: 20}.valid())
	assert.False(t, band{cheap: 10, fair: 15, expensive: 12}.valid())
}

func TestCombine(t *testing.T) {
	cheapBand := band{cheap: 10, fair: 20, expensive: 30}
	richBand := band{cheap: 20, fair: 30, expensive: 40}

	c, f, e := combine(cheapBand, richBand)
	assert.Equal(t, 15.0, c)
	assert.Equal(t, 25.0, f)
	assert.Equal(t, 35.0, e)

	// Invalid bands carry no weight.
	c, f, e = combine(cheapBand, band{}, band{cheap: 5, fair: 1, expensive: 9})
	assert.Equal(t, 10.0, c)
	assert.Equal(t, 20.0, f)
	assert.Equal(t, 30.0, e)

	c, f, e = combine(band{})
	assert.Zero(t, c)
	assert.Zero(t, f)
	assert.Zero(t, e)
}

func TestAverageDividend(t *testing.T) {
	assert.Zero(t, averageDividend(nil))
	sums := map[int64]float64{2023: 2.0, 2024: 3.0, 2025: 4.0}
	assert.Equal(t, 3.0, averageDividend(sums))
}

func TestPayoutEstimateCapped(t *testing.T) {
	assert.Zero(t, payoutEstimate(2, 0))
	assert.Equal(t, 0.5, payoutEstimate(2, 4))
	// A payout above earnings is treated as full distribution.
	assert.Equal(t, 1.0, payoutEstimate(5, 4))
}

func TestScaleSeries(t *testing.T) {
	out := scaleSeries([]float64{10, 20, 30}, 0.5)
	assert.Equal(t, []float64{5, 10, 15}, out)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.19, round2(10.192))
	assert.Equal(t, 10.2, round2(10.196))
	assert.Equal(t, -1.23, round2(-1.234))
}
