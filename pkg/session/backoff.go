package session

import (
	"time"
)

// maxBackoffShift caps the exponent so the delay stops growing at attempt 6.
const maxBackoffShift = 5

// Backoff returns the delay before reconnect attempt n (n >= 1):
// base * 2^min(n-1, 5).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		return base
	}
	return base << min(attempt-1, maxBackoffShift)
}
