package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
	"github.com/gatewarden/internal/integration"
	"github.com/gatewarden/internal/rank"
	"github.com/gatewarden/internal/ratelimit"
	"github.com/gatewarden/internal/websocket"
	"github.com/gatewarden/internal/xp"
)

// fakeStore is an in-memory ProgressionStore and ratelimit.WindowCounter
type fakeStore struct {
	events   []domain.XPEvent
	progress map[string]*domain.PlayerProgress
	counts   domain.WindowCounts

	failInsert error
	failApply  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{progress: make(map[string]*domain.PlayerProgress)}
}

func (f *fakeStore) InsertEvent(_ context.Context, event domain.XPEvent) error {
	if f.failInsert != nil {
		return f.failInsert
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) ApplyProgress(_ context.Context, playerKey, name string, xpDelta, playtimeDelta, achievementsDelta int64) (*domain.PlayerProgress, error) {
	if f.failApply != nil {
		return nil, f.failApply
	}
	p, ok := f.progress[playerKey]
	if !ok {
		p = &domain.PlayerProgress{PlayerKey: playerKey}
		f.progress[playerKey] = p
	}
	if name != "" {
		p.Name = name
	}
	p.TotalXP += xpDelta
	p.PlaytimeMinutes += playtimeDelta
	p.Achievements += achievementsDelta
	out := *p
	return &out, nil
}

func (f *fakeStore) Progress(_ context.Context, playerKey string) (*domain.PlayerProgress, error) {
	if p, ok := f.progress[playerKey]; ok {
		out := *p
		return &out, nil
	}
	return &domain.PlayerProgress{PlayerKey: playerKey}, nil
}

func (f *fakeStore) XPBySource(_ context.Context, _ string) ([]domain.SourceXP, error) {
	return nil, nil
}

func (f *fakeStore) DailyXP(_ context.Context, _ string, days int) ([]domain.DailyXP, error) {
	return make([]domain.DailyXP, days), nil
}

func (f *fakeStore) EventWindowCounts(_ context.Context, _ string, _ domain.EventType, _ string, _ time.Time) (domain.WindowCounts, error) {
	return f.counts, nil
}

// fakeBoard records leaderboard writes
type fakeBoard struct {
	totals  map[string]int64
	failAdd error
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{totals: make(map[string]int64)}
}

func (f *fakeBoard) AddXP(_ context.Context, playerKey string, xp int64) (int64, error) {
	if f.failAdd != nil {
		return 0, f.failAdd
	}
	f.totals[playerKey] += xp
	return f.totals[playerKey], nil
}

func (f *fakeBoard) GetTopN(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	return make([]domain.LeaderboardEntry, 0, n), nil
}

func (f *fakeBoard) GetPlayerRank(_ context.Context, playerKey string) (*domain.LeaderboardEntry, error) {
	total, ok := f.totals[playerKey]
	if !ok {
		return nil, domain.ErrNotWhitelisted
	}
	return &domain.LeaderboardEntry{PlayerKey: playerKey, XP: total, Rank: 1}, nil
}

// fakeRankSync records promotion notifications
type fakeRankSync struct {
	calls []domain.RankPosition
}

func (f *fakeRankSync) Available() bool { return true }

func (f *fakeRankSync) SyncRank(_ context.Context, _ string, pos domain.RankPosition, _ string) error {
	f.calls = append(f.calls, pos)
	return nil
}

type svcFixture struct {
	svc      *ProgressionService
	store    *fakeStore
	board    *fakeBoard
	rankSync *fakeRankSync
}

func newService(t *testing.T) *svcFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	store := newFakeStore()
	board := newFakeBoard()
	rankSync := &fakeRankSync{}

	limiter := ratelimit.NewLimiter(store, &config.RateLimitConfig{
		Cooldown: 5 * time.Second,
		Defaults: config.WindowLimits{PerMinute: 10, PerHour: 120, PerDay: 1000},
	}, logger)

	calc := xp.NewCalculator(&config.XPConfig{
		Modifiers: map[string]float64{
			string(domain.EventAdvancement): 1.0,
			string(domain.EventPlaytime):    1.0,
			string(domain.EventKill):        0.5,
		},
		Difficulty: map[string]float64{"easy": 1.0, "hard": 1.5},
	})

	ladder := rank.NewLadder(&config.RanksConfig{
		PlaytimeStepMinutes: 90,
		AchievementStep:     2,
	})

	svc := NewProgressionService(
		store,
		limiter,
		calc,
		ladder,
		board,
		websocket.NewHub(logger),
		rankSync,
		&config.LeaderboardConfig{DefaultLimit: 100, MaxLimit: 1000},
		logger,
	)

	return &svcFixture{svc: svc, store: store, board: board, rankSync: rankSync}
}

func TestIngestEvent_AwardsXP(t *testing.T) {
	fx := newService(t)

	accepted, err := fx.svc.IngestEvent(context.Background(), domain.GameplayEvent{
		PlayerKey:   "key-1",
		Name:        "Steve",
		EventType:   domain.EventKill,
		EventSource: "zombie",
		BaseXP:      10,
	})
	if err != nil || !accepted {
		t.Fatalf("IngestEvent = %v, %v, want true, nil", accepted, err)
	}

	if len(fx.store.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(fx.store.events))
	}
	// 10 * 0.5 kill modifier
	if fx.store.events[0].XP != 5 {
		t.Errorf("recorded XP = %d, want 5", fx.store.events[0].XP)
	}
	if fx.store.progress["key-1"].TotalXP != 5 {
		t.Errorf("aggregated XP = %d, want 5", fx.store.progress["key-1"].TotalXP)
	}
	if fx.board.totals["key-1"] != 5 {
		t.Errorf("leaderboard XP = %d, want 5", fx.board.totals["key-1"])
	}
}

func TestIngestEvent_InvalidEvents(t *testing.T) {
	fx := newService(t)
	ctx := context.Background()

	invalid := []domain.GameplayEvent{
		{EventType: domain.EventKill, BaseXP: 5},
		{PlayerKey: "key-1", BaseXP: 5},
		{PlayerKey: "key-1", EventType: domain.EventKill, BaseXP: -1},
	}
	for i, ev := range invalid {
		if _, err := fx.svc.IngestEvent(ctx, ev); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("event %d: error = %v, want ErrInvalidRequest", i, err)
		}
	}
	if len(fx.store.events) != 0 {
		t.Errorf("recorded %d events from invalid input, want 0", len(fx.store.events))
	}
}

func TestIngestEvent_RateLimitedIsNotAnError(t *testing.T) {
	fx := newService(t)
	fx.store.counts = domain.WindowCounts{Minute: 10}

	accepted, err := fx.svc.IngestEvent(context.Background(), domain.GameplayEvent{
		PlayerKey:   "key-1",
		EventType:   domain.EventKill,
		EventSource: "zombie",
		BaseXP:      10,
	})
	if err != nil {
		t.Fatalf("IngestEvent over the ceiling errored: %v", err)
	}
	if accepted {
		t.Error("rate-limited event reported accepted")
	}
	if len(fx.store.events) != 0 {
		t.Error("rate-limited event reached the event log")
	}
}

func TestIngestEvent_PersistenceFailureIsFailClosed(t *testing.T) {
	fx := newService(t)
	fx.store.failInsert = errors.New("connection refused")

	accepted, err := fx.svc.IngestEvent(context.Background(), domain.GameplayEvent{
		PlayerKey:   "key-1",
		EventType:   domain.EventKill,
		EventSource: "zombie",
		BaseXP:      10,
	})
	if err == nil || accepted {
		t.Errorf("IngestEvent during outage = %v, %v, want false, error", accepted, err)
	}
}

func TestIngestEvent_LeaderboardFailureIsTolerated(t *testing.T) {
	fx := newService(t)
	fx.board.failAdd = errors.New("redis down")

	accepted, err := fx.svc.IngestEvent(context.Background(), domain.GameplayEvent{
		PlayerKey:   "key-1",
		EventType:   domain.EventKill,
		EventSource: "zombie",
		BaseXP:      10,
	})
	if err != nil || !accepted {
		t.Errorf("IngestEvent with leaderboard down = %v, %v, want true, nil", accepted, err)
	}
	if fx.store.progress["key-1"].TotalXP != 5 {
		t.Error("durable progress missing despite leaderboard outage")
	}
}

func TestIngestEvent_PromotionFires(t *testing.T) {
	fx := newService(t)
	ctx := context.Background()

	// One position away from 1.2: playtime satisfied, one achievement short
	fx.store.progress["key-1"] = &domain.PlayerProgress{
		PlayerKey:       "key-1",
		PlaytimeMinutes: 90,
		Achievements:    1,
	}

	accepted, err := fx.svc.IngestEvent(ctx, domain.GameplayEvent{
		PlayerKey:   "key-1",
		EventType:   domain.EventAdvancement,
		EventSource: "story/mine_stone",
		BaseXP:      20,
	})
	if err != nil || !accepted {
		t.Fatalf("IngestEvent = %v, %v", accepted, err)
	}

	if len(fx.rankSync.calls) != 1 {
		t.Fatalf("rank sync fired %d times, want 1", len(fx.rankSync.calls))
	}
	want := domain.RankPosition{Main: 1, Sub: 2}
	if fx.rankSync.calls[0] != want {
		t.Errorf("promoted to %v, want %v", fx.rankSync.calls[0], want)
	}
}

func TestIngestEvent_NoPromotionWithoutThreshold(t *testing.T) {
	fx := newService(t)

	accepted, err := fx.svc.IngestEvent(context.Background(), domain.GameplayEvent{
		PlayerKey:   "key-1",
		EventType:   domain.EventKill,
		EventSource: "zombie",
		BaseXP:      1000,
	})
	if err != nil || !accepted {
		t.Fatalf("IngestEvent = %v, %v", accepted, err)
	}

	// XP alone never moves the ladder
	if len(fx.rankSync.calls) != 0 {
		t.Errorf("rank sync fired %d times on an XP-only event, want 0", len(fx.rankSync.calls))
	}
}

func TestIngestBatch_ContinuesPastFailures(t *testing.T) {
	fx := newService(t)

	err := fx.svc.IngestBatch(context.Background(), domain.BatchGameplayEvents{
		Events: []domain.GameplayEvent{
			{PlayerKey: "key-1", EventType: domain.EventKill, EventSource: "zombie", BaseXP: 10},
			{EventType: domain.EventKill, BaseXP: 10},
			{PlayerKey: "key-2", EventType: domain.EventKill, EventSource: "creeper", BaseXP: 10},
		},
	})
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if len(fx.store.events) != 2 {
		t.Errorf("recorded %d events, want 2 valid ones", len(fx.store.events))
	}
}

func TestStatus(t *testing.T) {
	fx := newService(t)

	fx.store.progress["key-1"] = &domain.PlayerProgress{
		PlayerKey:       "key-1",
		Name:            "Steve",
		TotalXP:         500,
		PlaytimeMinutes: 95,
		Achievements:    3,
	}

	status, err := fx.svc.Status(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if status.Rank != (domain.RankPosition{Main: 1, Sub: 2}) {
		t.Errorf("Rank = %v, want 1.2", status.Rank)
	}
	if status.NextRank == nil || *status.NextRank != (domain.RankPosition{Main: 1, Sub: 3}) {
		t.Errorf("NextRank = %v, want 1.3", status.NextRank)
	}
	if status.NextRequire == nil || status.NextRequire.PlaytimeMinutes != 180 || status.NextRequire.Achievements != 4 {
		t.Errorf("NextRequire = %+v, want 180/4", status.NextRequire)
	}
}

func TestStatus_UnknownPlayerStartsAtFirstRank(t *testing.T) {
	fx := newService(t)

	status, err := fx.svc.Status(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Rank != domain.FirstRank {
		t.Errorf("Rank = %v, want %v", status.Rank, domain.FirstRank)
	}
	if status.Progress.TotalXP != 0 {
		t.Errorf("TotalXP = %d, want 0", status.Progress.TotalXP)
	}
}

func TestDailyXP_ClampsDays(t *testing.T) {
	fx := newService(t)
	ctx := context.Background()

	tests := []struct {
		days int
		want int
	}{
		{-1, 7},
		{0, 7},
		{30, 30},
		{90, 90},
		{91, 90},
		{1000, 90},
	}

	for _, tt := range tests {
		daily, err := fx.svc.DailyXP(ctx, "key-1", tt.days)
		if err != nil {
			t.Fatalf("DailyXP(%d): %v", tt.days, err)
		}
		if len(daily) != tt.want {
			t.Errorf("DailyXP(%d) returned %d rows, want %d", tt.days, len(daily), tt.want)
		}
	}
}

func TestNoopRankSync(t *testing.T) {
	fx := newService(t)
	fx.svc.rankSync = integration.Noop{}

	fx.store.progress["key-1"] = &domain.PlayerProgress{
		PlayerKey:       "key-1",
		PlaytimeMinutes: 90,
		Achievements:    1,
	}

	// A promotion with the noop sync must not error
	accepted, err := fx.svc.IngestEvent(context.Background(), domain.GameplayEvent{
		PlayerKey:   "key-1",
		EventType:   domain.EventAdvancement,
		EventSource: "story/mine_stone",
		BaseXP:      20,
	})
	if err != nil || !accepted {
		t.Errorf("IngestEvent with noop sync = %v, %v, want true, nil", accepted, err)
	}
}
