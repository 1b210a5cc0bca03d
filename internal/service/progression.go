package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
	"github.com/gatewarden/internal/integration"
	"github.com/gatewarden/internal/rank"
	"github.com/gatewarden/internal/ratelimit"
	"github.com/gatewarden/internal/websocket"
	"github.com/gatewarden/internal/xp"
)

// ProgressionStore is the slice of the persistence layer the progression
// pipeline needs.
type ProgressionStore interface {
	InsertEvent(ctx context.Context, event domain.XPEvent) error
	ApplyProgress(ctx context.Context, playerKey, name string, xpDelta, playtimeDelta, achievementsDelta int64) (*domain.PlayerProgress, error)
	Progress(ctx context.Context, playerKey string) (*domain.PlayerProgress, error)
	XPBySource(ctx context.Context, playerKey string) ([]domain.SourceXP, error)
	DailyXP(ctx context.Context, playerKey string, days int) ([]domain.DailyXP, error)
}

// XPLeaderboard is the realtime leaderboard view
type XPLeaderboard interface {
	AddXP(ctx context.Context, playerKey string, xp int64) (int64, error)
	GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	GetPlayerRank(ctx context.Context, playerKey string) (*domain.LeaderboardEntry, error)
}

// ProgressionService runs the rate-limited XP pipeline: gate, calculate,
// record, aggregate, rank.
type ProgressionService struct {
	store    ProgressionStore
	limiter  *ratelimit.Limiter
	calc     *xp.Calculator
	ladder   *rank.Ladder
	board    XPLeaderboard
	hub      *websocket.Hub
	rankSync integration.RankSync
	cfg      *config.LeaderboardConfig
	logger   *slog.Logger
}

// NewProgressionService creates a progression service
func NewProgressionService(
	store ProgressionStore,
	limiter *ratelimit.Limiter,
	calc *xp.Calculator,
	ladder *rank.Ladder,
	board XPLeaderboard,
	hub *websocket.Hub,
	rankSync integration.RankSync,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *ProgressionService {
	return &ProgressionService{
		store:    store,
		limiter:  limiter,
		calc:     calc,
		ladder:   ladder,
		board:    board,
		hub:      hub,
		rankSync: rankSync,
		cfg:      cfg,
		logger:   logger,
	}
}

// IngestEvent runs one gameplay event through the pipeline. A rate-limited
// event is dropped silently (accepted=false, nil error): that is a normal,
// expected outcome, surfaced only at debug level. A persistence failure on
// the event write is fail-closed and returned to the caller.
func (s *ProgressionService) IngestEvent(ctx context.Context, ev domain.GameplayEvent) (accepted bool, err error) {
	if ev.PlayerKey == "" || ev.EventType == "" || ev.BaseXP < 0 {
		return false, domain.ErrInvalidRequest
	}

	ok, verdict := s.limiter.Allow(ctx, ev.PlayerKey, ev.EventType, ev.EventSource)
	if !ok {
		s.logger.Debug("event rate limited",
			"player_key", ev.PlayerKey,
			"event_type", ev.EventType,
			"event_source", ev.EventSource,
			"verdict", verdict,
		)
		return false, nil
	}

	award := s.calc.FinalXP(ev.EventType, ev.EventSource, ev.BaseXP)

	event := domain.XPEvent{
		PlayerKey:    ev.PlayerKey,
		EventType:    ev.EventType,
		EventSource:  ev.EventSource,
		XP:           int64(award),
		OriginServer: ev.OriginServer,
		Metadata:     ev.Metadata,
		Timestamp:    time.Now(),
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return false, fmt.Errorf("recording xp event: %w", err)
	}

	var playtimeDelta, achievementsDelta int64
	switch ev.EventType {
	case domain.EventPlaytime:
		playtimeDelta = int64(ev.BaseXP)
	case domain.EventAdvancement:
		achievementsDelta = 1
	}

	progress, err := s.store.ApplyProgress(ctx, ev.PlayerKey, ev.Name, int64(award), playtimeDelta, achievementsDelta)
	if err != nil {
		return false, fmt.Errorf("applying progress: %w", err)
	}

	// Write-through to the realtime leaderboard; the sync worker repairs
	// drift, so a failure here is not fatal
	if _, err := s.board.AddXP(ctx, ev.PlayerKey, int64(award)); err != nil {
		s.logger.Warn("failed to update leaderboard", "player_key", ev.PlayerKey, "error", err)
	}

	s.hub.BroadcastXPUpdate(ev.PlayerKey, int64(award), progress.TotalXP, ev.EventSource)

	before := s.ladder.Resolve(progress.PlaytimeMinutes-playtimeDelta, progress.Achievements-achievementsDelta)
	after := s.ladder.Resolve(progress.PlaytimeMinutes, progress.Achievements)
	if after.Index() > before.Index() {
		s.promote(ctx, ev.PlayerKey, before, after)
	}

	return true, nil
}

// IngestBatch runs a batch of events, continuing past per-event failures
func (s *ProgressionService) IngestBatch(ctx context.Context, batch domain.BatchGameplayEvents) error {
	for _, ev := range batch.Events {
		if _, err := s.IngestEvent(ctx, ev); err != nil {
			s.logger.Error("failed to ingest event in batch",
				"player_key", ev.PlayerKey,
				"event_type", ev.EventType,
				"error", err,
			)
			// Continue processing other events
		}
	}
	return nil
}

func (s *ProgressionService) promote(ctx context.Context, playerKey string, from, to domain.RankPosition) {
	title := s.ladder.Title(to)
	s.logger.Info("player promoted",
		"player_key", playerKey,
		"from", from.String(),
		"to", to.String(),
		"title", title,
	)

	s.hub.BroadcastRankPromotion(playerKey, from, to, title)

	if s.rankSync.Available() {
		if err := s.rankSync.SyncRank(ctx, playerKey, to, title); err != nil {
			s.logger.Warn("rank sync failed", "player_key", playerKey, "error", err)
		}
	}
}

// PlayerStatus is the player-facing progression summary
type PlayerStatus struct {
	Progress    domain.PlayerProgress   `json:"progress"`
	Rank        domain.RankPosition     `json:"rank"`
	Title       string                  `json:"title"`
	NextRank    *domain.RankPosition    `json:"next_rank,omitempty"`
	NextRequire *domain.RankRequirement `json:"next_requirements,omitempty"`
}

// Status returns a player's totals, current rank and next-rank requirements
func (s *ProgressionService) Status(ctx context.Context, playerKey string) (*PlayerStatus, error) {
	progress, err := s.store.Progress(ctx, playerKey)
	if err != nil {
		return nil, fmt.Errorf("getting progress: %w", err)
	}

	pos := s.ladder.Resolve(progress.PlaytimeMinutes, progress.Achievements)
	status := &PlayerStatus{
		Progress: *progress,
		Rank:     pos,
		Title:    s.ladder.Title(pos),
	}

	if next, req, ok := s.ladder.NextRequirement(pos); ok {
		status.NextRank = &next
		status.NextRequire = &req
	}

	return status, nil
}

// XPBySource returns a player's XP broken down by event source
func (s *ProgressionService) XPBySource(ctx context.Context, playerKey string) ([]domain.SourceXP, error) {
	return s.store.XPBySource(ctx, playerKey)
}

// DailyXP returns a player's per-day XP totals over the trailing N days
func (s *ProgressionService) DailyXP(ctx context.Context, playerKey string, days int) ([]domain.DailyXP, error) {
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}
	return s.store.DailyXP(ctx, playerKey, days)
}

// TopN returns the leaderboard's top N players
func (s *ProgressionService) TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = s.cfg.DefaultLimit
	}
	if n > s.cfg.MaxLimit {
		n = s.cfg.MaxLimit
	}
	return s.board.GetTopN(ctx, n)
}

// LeaderboardRank returns a player's realtime leaderboard position
func (s *ProgressionService) LeaderboardRank(ctx context.Context, playerKey string) (*domain.LeaderboardEntry, error) {
	return s.board.GetPlayerRank(ctx, playerKey)
}
