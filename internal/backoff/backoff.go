// Package backoff computes retry delays shared by the Kafka publisher and the
// side-effect dispatcher.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Exponential returns base * 2^attempt capped at limit. With jitter the delay
// is spread by ±15%.
func Exponential(attempt int, base, limit time.Duration, jitter bool) time.Duration {
	delay := limit
	if f := math.Pow(2, float64(attempt)) * float64(base); f < float64(limit) {
		delay = time.Duration(f)
	}

	if jitter {
		spread := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + spread - time.Duration(float64(delay)*0.15)
	}
	return delay
}
