package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLastPublishedQuarter(t *testing.T) {
	cases := []struct {
		month   time.Month
		year    int
		quarter int
	}{
		{time.January, 2025, 3},
		{time.April, 2025, 3},
		{time.May, 2026, 1},
		{time.July, 2026, 1},
		{time.August, 2026, 2},
		{time.October, 2026, 2},
		{time.November, 2026, 3},
		{time.December, 2026, 3},
	}
	for _, tc := range cases {
		now := time.Date(2026, tc.month, 15, 0, 0, 0, 0, time.UTC)
		year, quarter := lastPublishedQuarter(now)
		assert.Equal(t, tc.year, year, "month %s", tc.month)
		assert.Equal(t, tc.quarter, quarter, "month %s", tc.month)
	}
}
