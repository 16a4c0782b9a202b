package remote

import "time"

// calculateBackoff returns the wait before reconnect attempt number failures,
// doubling from minDelay and capped at maxDelay.
func calculateBackoff(failures int, minDelay, maxDelay time.Duration) time.Duration {
	if failures <= 0 {
		return minDelay
	}

	delay := minDelay
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= maxDelay || delay <= 0 {
			return maxDelay
		}
	}
	return delay
}
