package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// writeLimiter is a token bucket per user id. A nil limiter allows everything.
type writeLimiter struct {
	mu        sync.Mutex
	perMinute int
	clock     func() time.Time
	entries   map[string]*limiterEntry
	lastPrune time.Time
}

func newWriteLimiter(perMinute int, clock func() time.Time) *writeLimiter {
	if perMinute <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &writeLimiter{
		perMinute: perMinute,
		clock:     clock,
		entries:   make(map[string]*limiterEntry),
	}
}

func (l *writeLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.pruneLocked(now)
	entry, ok := l.entries[userID]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.perMinute),
		}
		l.entries[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *writeLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < limiterIdleTTL {
		return
	}
	l.lastPrune = now
	for userID, entry := range l.entries {
		if now.Sub(entry.lastSeen) >= limiterIdleTTL {
			delete(l.entries, userID)
		}
	}
}

func (h *httpHandler) limitWrites(c *gin.Context) {
	who, ok := currentIdentity(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.limiter.Allow(who.UserID) {
		respondError(c, http.StatusTooManyRequests, "rate_limited")
		return
	}
	c.Next()
}
