package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// CheckoutRateLimiter caps checkout attempts per student in a sliding window
type CheckoutRateLimiter struct {
	attempts    map[int64][]time.Time
	mutex       sync.Mutex
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewCheckoutRateLimiter creates a new checkout rate limiter
func NewCheckoutRateLimiter(maxAttempts int, window time.Duration) *CheckoutRateLimiter {
	return &CheckoutRateLimiter{
		attempts:    make(map[int64][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// Allow records an attempt for the student and reports whether it may proceed.
// Rejected attempts are not recorded.
func (rl *CheckoutRateLimiter) Allow(studentID int64) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	valid := rl.prune(rl.attempts[studentID], now)
	if len(valid) >= rl.maxAttempts {
		rl.attempts[studentID] = valid
		return false
	}
	rl.attempts[studentID] = append(valid, now)
	return true
}

// RetryAfter returns how long until the student may try again.
func (rl *CheckoutRateLimiter) RetryAfter(studentID int64) time.Duration {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	valid := rl.prune(rl.attempts[studentID], now)
	if len(valid) < rl.maxAttempts {
		return 0
	}
	return valid[0].Add(rl.window).Sub(now)
}

func (rl *CheckoutRateLimiter) prune(attempts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	var valid []time.Time
	for _, attempt := range attempts {
		if attempt.After(cutoff) {
			valid = append(valid, attempt)
		}
	}
	return valid
}

// Cleanup drops expired entries every interval until ctx is done.
func (rl *CheckoutRateLimiter) Cleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rl.mutex.Lock()
			now := rl.now()
			for id, attempts := range rl.attempts {
				if valid := rl.prune(attempts, now); len(valid) == 0 {
					delete(rl.attempts, id)
				} else {
					rl.attempts[id] = valid
				}
			}
			rl.mutex.Unlock()
		}
	}
}

// Middleware rejects requests over the limit with 429. It must run after
// RequireStudent.
func (rl *CheckoutRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		studentID, _ := GetStudentID(r.Context())
		if !rl.Allow(studentID) {
			wait := rl.RetryAfter(studentID)
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second).Seconds())))
			WriteError(w, r, http.StatusTooManyRequests, ErrorDetail{
				Code:    "RATE_LIMITED",
				Message: fmt.Sprintf("Too many checkout attempts. Try again in %s.", wait.Round(time.Second)),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
