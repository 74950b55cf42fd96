package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountMA(t *testing.T) {
	var above, below int

	// No moving average yet: neither counter moves.
	countMA(100, 0, &above, &below)
	assert.Zero(t, above)
	assert.Zero(t, below)

	countMA(100, 95, &above, &below)
	assert.Equal(t, 1, above)

	// Sitting exactly on the line counts as above.
	countMA(100, 100, &above, &below)
	assert.Equal(t, 2, above)

	countMA(100, 105, &above, &below)
	assert.Equal(t, 1, below)
}
