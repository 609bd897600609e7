package admit

import "time"

// newBucket creates a full bucket. A new user/action pair starts full,
// not empty.
func newBucket(maxTokens int, now time.Time) *RateLimitState {
	return &RateLimitState{Count: maxTokens, LastRefillTime: now}
}

// refillBucket applies the continuous-refill formula and reports the
// number of tokens added. LastRefillTime only advances when at least one
// whole token accrued, so fractional progress is never lost.
func refillBucket(b *RateLimitState, maxTokens, windowSeconds int, now time.Time) int {
	if windowSeconds <= 0 {
		return 0
	}
	elapsed := now.Sub(b.LastRefillTime)
	if elapsed <= 0 {
		return 0
	}
	refillRate := float64(maxTokens) / float64(windowSeconds)
	tokensToAdd := int(elapsed.Seconds() * refillRate)
	if tokensToAdd <= 0 {
		return 0
	}
	b.Count = minInt(maxTokens, b.Count+tokensToAdd)
	b.LastRefillTime = now
	return tokensToAdd
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
