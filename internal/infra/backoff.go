package infra

import (
	"math"
	"time"
)

const (
	backoffBaseDelay = 1 * time.Second
	backoffMaxDelay  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt: 1s, 2s, 4s ... capped at 60s.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 16 {
		retryCount = 16
	}
	delay := backoffBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > backoffMaxDelay {
		delay = backoffMaxDelay
	}
	return delay
}
