package admission

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
	"github.com/gatewarden/internal/session"
)

// WhitelistStore is the slice of the persistence layer the controller needs.
// Implementations return domain.ErrNotWhitelisted when no entry exists and
// domain.ErrAlreadyWhitelisted when a create collides with an existing row.
type WhitelistStore interface {
	EntryByName(ctx context.Context, name string) (*domain.WhitelistEntry, error)
	EntryByKey(ctx context.Context, playerKey string) (*domain.WhitelistEntry, error)
	CreateEntry(ctx context.Context, entry domain.WhitelistEntry) error
	UpdateEntryName(ctx context.Context, playerKey, name string) error
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Controller is the admission/verification state machine. It owns the
// purgatory session lifecycle and is the only component that touches both the
// session store and the whitelist.
type Controller struct {
	store     *session.Store
	whitelist WhitelistStore
	cfg       *config.PurgatoryConfig
	logger    *slog.Logger

	// per-name promotion locks; check-then-act sequences for a single name
	// must not interleave
	locks sync.Map // string -> *sync.Mutex

	// names blocked after attempt escalation, value is the block deadline
	blockMu sync.Mutex
	blocked map[string]time.Time

	now func() time.Time
}

// NewController creates an admission controller
func NewController(store *session.Store, whitelist WhitelistStore, cfg *config.PurgatoryConfig, logger *slog.Logger) *Controller {
	return &Controller{
		store:     store,
		whitelist: whitelist,
		cfg:       cfg,
		logger:    logger,
		blocked:   make(map[string]time.Time),
		now:       time.Now,
	}
}

func (c *Controller) nameLock(name string) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(session.Key(name), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// blockedUntil returns the active escalation deadline for a name, lazily
// dropping elapsed blocks.
func (c *Controller) blockedUntil(name string) (time.Time, bool) {
	key := session.Key(name)

	c.blockMu.Lock()
	defer c.blockMu.Unlock()

	until, ok := c.blocked[key]
	if !ok {
		return time.Time{}, false
	}
	if c.now().After(until) {
		delete(c.blocked, key)
		return time.Time{}, false
	}
	return until, true
}

// CreateSession starts a fresh purgatory session for a claimed name. Any
// existing session for the name is replaced wholesale, which resets its
// attempt counter; a prior incomplete attempt is forgiven rather than
// accumulated.
func (c *Controller) CreateSession(ctx context.Context, name, discordID, discordName string) error {
	if !nameRe.MatchString(name) {
		return domain.ErrInvalidName
	}
	if discordID == "" {
		return fmt.Errorf("%w: missing discord id", domain.ErrInvalidRequest)
	}

	// Serialize against a concurrent promotion for the same name; the
	// whitelist check and the Put must not interleave with CompleteOnJoin
	mu := c.nameLock(name)
	mu.Lock()
	defer mu.Unlock()

	if until, ok := c.blockedUntil(name); ok {
		c.logger.Debug("session creation blocked", "name", name, "blocked_until", until)
		return domain.ErrEscalated
	}

	entry, err := c.whitelist.EntryByName(ctx, name)
	if err != nil && !domain.IsNotFoundError(err) {
		// Session creation never mutates the store on failure
		return fmt.Errorf("checking whitelist: %w", err)
	}
	if entry != nil {
		return domain.ErrAlreadyWhitelisted
	}

	now := c.now()
	c.store.Put(&domain.PurgatorySession{
		Name:        name,
		DiscordID:   discordID,
		DiscordName: discordName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.cfg.SessionTimeout),
	})

	c.logger.Info("purgatory session created",
		"name", name,
		"discord_id", discordID,
		"expires_at", now.Add(c.cfg.SessionTimeout),
	)
	return nil
}

// EvaluateJoin decides whether a connecting name may proceed. Permanent
// entries win; otherwise a non-expired session grants provisional access.
// The only side effect is the session store's lazy expiry cleanup.
func (c *Controller) EvaluateJoin(ctx context.Context, name string) domain.AdmissionDecision {
	entry, err := c.whitelist.EntryByName(ctx, name)
	if err != nil && !domain.IsNotFoundError(err) {
		// Deny-safe: a whitelist read failure falls through to the
		// provisional check rather than refusing outright
		c.logger.Warn("whitelist lookup failed during join evaluation", "name", name, "error", err)
	}
	if entry != nil {
		return domain.AdmissionDecision{Allow: true, State: domain.StateWhitelisted}
	}

	if _, ok := c.blockedUntil(name); ok {
		return domain.AdmissionDecision{Allow: false, State: domain.StateEscalated}
	}

	if _, ok := c.store.Get(name); ok {
		return domain.AdmissionDecision{Allow: true, State: domain.StateProvisional}
	}

	return domain.AdmissionDecision{Allow: false, State: domain.StateUnknown}
}

// CompleteOnJoin promotes a session to a permanent whitelist entry on the
// player's first successful join. It is idempotent: once the player is
// whitelisted, repeat calls report promoted=false with no error. A
// persistence failure leaves the session intact so the caller can retry.
func (c *Controller) CompleteOnJoin(ctx context.Context, name, playerKey string) (promoted bool, err error) {
	if playerKey == "" {
		return false, fmt.Errorf("%w: missing player key", domain.ErrInvalidRequest)
	}

	mu := c.nameLock(name)
	mu.Lock()
	defer mu.Unlock()

	sess, ok := c.store.Get(name)
	if !ok {
		// No session: either never linked, or a prior completion won the
		// race. The whitelist decides which.
		entry, err := c.whitelist.EntryByKey(ctx, playerKey)
		if err != nil {
			if domain.IsNotFoundError(err) {
				return false, domain.ErrSessionNotFound
			}
			return false, fmt.Errorf("checking whitelist: %w", err)
		}
		if entry.Name != name {
			// Known player reconnecting under a new name
			if err := c.whitelist.UpdateEntryName(ctx, playerKey, name); err != nil {
				return false, fmt.Errorf("updating display name: %w", err)
			}
			c.logger.Info("whitelist name updated", "player_key", playerKey, "name", name)
		}
		return false, nil
	}

	entry := domain.WhitelistEntry{
		PlayerKey:   playerKey,
		Name:        name,
		DiscordID:   sess.DiscordID,
		DiscordName: sess.DiscordName,
		CreatedAt:   c.now(),
	}
	if err := c.whitelist.CreateEntry(ctx, entry); err != nil {
		if domain.IsConflictError(err) {
			// Already promoted elsewhere; drop the stale session
			c.store.Remove(name)
			return false, nil
		}
		// Leave the session for retry
		return false, fmt.Errorf("promoting session: %w", err)
	}

	c.store.Remove(name)
	c.logger.Info("player whitelisted",
		"name", name,
		"player_key", playerKey,
		"discord_id", sess.DiscordID,
	)
	return true, nil
}

// RegisterAttempt records a failed link-code attempt against the name's
// session. Exceeding the configured ceiling destroys the session and blocks
// new sessions for the escalation cooldown — a soft, time-boxed block, not a
// ban.
func (c *Controller) RegisterAttempt(name string) (attempts int, escalated bool, err error) {
	mu := c.nameLock(name)
	mu.Lock()
	defer mu.Unlock()

	attempts, ok := c.store.IncrementAttempts(name)
	if !ok {
		return 0, false, domain.ErrSessionNotFound
	}
	if attempts < c.cfg.MaxAttempts {
		return attempts, false, nil
	}

	c.store.Remove(name)
	until := c.now().Add(c.cfg.EscalationCooldown)

	c.blockMu.Lock()
	c.blocked[session.Key(name)] = until
	c.blockMu.Unlock()

	c.logger.Warn("linking attempts escalated",
		"name", name,
		"attempts", attempts,
		"blocked_until", until,
	)
	return attempts, true, nil
}

// Session returns the active session for a name, if any
func (c *Controller) Session(name string) (domain.PurgatorySession, bool) {
	return c.store.Get(name)
}

// RemoveSession administratively removes a name's session
func (c *Controller) RemoveSession(name string) bool {
	return c.store.Remove(name)
}

// CleanupExpired sweeps expired sessions and elapsed escalation blocks. It is
// advisory; every read path already checks expiry lazily.
func (c *Controller) CleanupExpired() int {
	removed := c.store.SweepExpired()

	now := c.now()
	c.blockMu.Lock()
	for key, until := range c.blocked {
		if now.After(until) {
			delete(c.blocked, key)
		}
	}
	c.blockMu.Unlock()

	return removed
}

// SetNowFunc overrides the controller's clock. Tests only.
func (c *Controller) SetNowFunc(now func() time.Time) {
	c.now = now
}
