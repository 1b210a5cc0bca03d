package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
)

// WindowCounter counts recorded events per trailing window for one
// (player, type, source) key. Backed by the XP event log.
type WindowCounter interface {
	EventWindowCounts(ctx context.Context, playerKey string, eventType domain.EventType, eventSource string, now time.Time) (domain.WindowCounts, error)
}

// Verdict explains why an event was rejected
type Verdict string

const (
	VerdictAllowed  Verdict = "allowed"
	VerdictCooldown Verdict = "cooldown"
	VerdictMinute   Verdict = "minute_ceiling"
	VerdictHour     Verdict = "hour_ceiling"
	VerdictDay      Verdict = "day_ceiling"
)

// Limiter gates incoming XP event candidates. The in-memory cooldown check
// runs first; only then are the persistence-backed window ceilings consulted,
// cheapest window first. A persistence failure during the window checks
// fails open: the event is admitted, trading a small abuse risk for
// availability.
type Limiter struct {
	counter WindowCounter
	cfg     *config.RateLimitConfig
	logger  *slog.Logger

	mu   sync.RWMutex
	last map[string]time.Time

	now func() time.Time
}

// NewLimiter creates a rate limiter
func NewLimiter(counter WindowCounter, cfg *config.RateLimitConfig, logger *slog.Logger) *Limiter {
	return &Limiter{
		counter: counter,
		cfg:     cfg,
		logger:  logger,
		last:    make(map[string]time.Time),
		now:     time.Now,
	}
}

func cooldownKey(playerKey string, eventType domain.EventType, eventSource string) string {
	return fmt.Sprintf("%s|%s|%s", playerKey, eventType, eventSource)
}

// Allow decides whether an event candidate may proceed to XP calculation.
// On admission the cooldown timestamp is updated regardless of whether the
// window checks ran.
func (l *Limiter) Allow(ctx context.Context, playerKey string, eventType domain.EventType, eventSource string) (bool, Verdict) {
	now := l.now()
	key := cooldownKey(playerKey, eventType, eventSource)

	l.mu.RLock()
	last, seen := l.last[key]
	l.mu.RUnlock()

	if seen && now.Sub(last) < l.cfg.Cooldown {
		return false, VerdictCooldown
	}

	limits := l.cfg.LimitsFor(eventType)

	counts, err := l.counter.EventWindowCounts(ctx, playerKey, eventType, eventSource, now)
	if err != nil {
		// Fail open: a counting outage must not stall the XP pipeline
		l.logger.Warn("window count query failed, admitting event",
			"player_key", playerKey,
			"event_type", eventType,
			"error", err,
		)
		l.touch(key, now)
		return true, VerdictAllowed
	}

	switch {
	case counts.Minute >= limits.PerMinute:
		return false, VerdictMinute
	case counts.Hour >= limits.PerHour:
		return false, VerdictHour
	case counts.Day >= limits.PerDay:
		return false, VerdictDay
	}

	l.touch(key, now)
	return true, VerdictAllowed
}

func (l *Limiter) touch(key string, now time.Time) {
	l.mu.Lock()
	l.last[key] = now
	l.mu.Unlock()
}

// Prune drops cooldown timestamps older than the given age to bound memory.
// Entries older than the cooldown can never influence a decision.
func (l *Limiter) Prune(olderThan time.Duration) int {
	cutoff := l.now().Add(-olderThan)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, last := range l.last {
		if last.Before(cutoff) {
			delete(l.last, key)
			removed++
		}
	}
	return removed
}

// SetNowFunc overrides the limiter's clock. Tests only.
func (l *Limiter) SetNowFunc(now func() time.Time) {
	l.now = now
}
