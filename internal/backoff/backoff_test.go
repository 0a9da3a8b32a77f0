package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	base, limit := 100*time.Millisecond, time.Second

	assert.Equal(t, 100*time.Millisecond, Exponential(0, base, limit, false))
	assert.Equal(t, 200*time.Millisecond, Exponential(1, base, limit, false))
	assert.Equal(t, 800*time.Millisecond, Exponential(3, base, limit, false))
	assert.Equal(t, time.Second, Exponential(4, base, limit, false))
	assert.Equal(t, time.Second, Exponential(80, base, limit, false))
}

func TestExponential_JitterStaysInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := Exponential(2, 100*time.Millisecond, time.Second, true)
		assert.GreaterOrEqual(t, d, 340*time.Millisecond)
		assert.LessOrEqual(t, d, 460*time.Millisecond)
	}
}
