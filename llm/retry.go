package llm

import "time"

// RetryConfig expresses the provider-call retry budget as total attempts:
// MaxAttempts counts the first attempt plus retries (so MaxRetries=2 in
// spec.md terms is MaxAttempts=3 here). The Gateway's retry loop does not
// read it; that loop is driven by Config.MaxRetries.
type RetryConfig struct {
	MaxAttempts int
}

// DefaultRetryConfig matches spec.md 4.2: up to MAX_RETRIES=2 retries, 3
// attempts total. Backoff is computed by calculateBackoff, not stored here,
// because it follows the fixed formula min(2.0s, 0.25*2^attempt) rather
// than a base/multiplier pair.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3}
}

// calculateBackoff implements spec.md 4.2's exact retry backoff formula,
// transcribed from original_source/backend/app/llm/client.py line 111:
// min(2.0s, 0.25 * 2^attempt), where attempt is 0-based (the number of
// retries already taken).
func calculateBackoff(attempt int) time.Duration {
	seconds := 0.25
	for i := 0; i < attempt; i++ {
		seconds *= 2
	}
	if seconds > 2.0 {
		seconds = 2.0
	}
	return time.Duration(seconds * float64(time.Second))
}
