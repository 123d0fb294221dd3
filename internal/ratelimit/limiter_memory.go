package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "everkeep/pkg/domain"
)

// MemoryLimiter counts generations in process memory. Single-instance
// deployments and tests; multi-instance production uses the Redis limiter.
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	now    func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: make(map[string]int), now: time.Now}
}

// WithClock pins the limiter's clock. Test helper.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, profileID id.ProfileID, tier id.PlanTier) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	day, month := windowKeys(profileID, l.now().UTC())
	return decide(l.counts[day], l.counts[month], limitsFor(tier)), nil
}

func (l *MemoryLimiter) Record(_ context.Context, profileID id.ProfileID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	day, month := windowKeys(profileID, l.now().UTC())
	l.counts[day]++
	l.counts[month]++
	return nil
}

// windowKeys derives the UTC day and month counter keys for a profile.
func windowKeys(profileID id.ProfileID, now time.Time) (string, string) {
	day := fmt.Sprintf("gen:day:%s:%s", profileID, now.Format("2006-01-02"))
	month := fmt.Sprintf("gen:month:%s:%s", profileID, now.Format("2006-01"))
	return day, month
}
