package engine

import (
	"golang.org/x/time/rate"
)

// NewSpeedLimiter returns a limiter shared by all readers of one download, or
// nil when bytesPerSec is not positive. The burst is at least one read buffer
// so a single WaitN never exceeds it.
func NewSpeedLimiter(bytesPerSec int64, bufferSize int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := bufferSize
	if int64(burst) < bytesPerSec {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
