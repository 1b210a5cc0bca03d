package domain

import "time"

// EventType classifies a gameplay event for XP purposes
type EventType string

const (
	EventAdvancement EventType = "advancement"
	EventPlaytime    EventType = "playtime"
	EventKill        EventType = "kill"
	EventBreakBlock  EventType = "break_block"
	EventPlaceBlock  EventType = "place_block"
	EventCraft       EventType = "craft"
	EventEnchant     EventType = "enchant"
	EventTrade       EventType = "trade"
	EventFish        EventType = "fish"
	EventMine        EventType = "mine"
)

// GameplayEvent is an incoming XP event candidate from the server-side bridge.
// BaseXP is the raw magnitude before any modifier is applied; for playtime
// events it doubles as the number of minutes played.
type GameplayEvent struct {
	PlayerKey    string                 `json:"player_key"`
	Name         string                 `json:"name,omitempty"`
	EventType    EventType              `json:"event_type"`
	EventSource  string                 `json:"event_source"`
	BaseXP       int                    `json:"base_xp"`
	OriginServer string                 `json:"origin_server,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// XPEvent is a recorded, immutable entry in the append-only XP log.
type XPEvent struct {
	PlayerKey    string                 `json:"player_key"`
	EventType    EventType              `json:"event_type"`
	EventSource  string                 `json:"event_source"`
	XP           int64                  `json:"xp"`
	OriginServer string                 `json:"origin_server,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// BatchGameplayEvents groups events consumed from the bridge in one batch
type BatchGameplayEvents struct {
	Events []GameplayEvent `json:"events"`
}

// WindowCounts holds the number of matching events in each trailing window
type WindowCounts struct {
	Minute int64
	Hour   int64
	Day    int64
}

// SourceXP is one row of an XP-by-source breakdown
type SourceXP struct {
	EventSource string `json:"event_source"`
	XP          int64  `json:"xp"`
	Events      int64  `json:"events"`
}

// DailyXP is one day's total in a daily breakdown
type DailyXP struct {
	Day time.Time `json:"day"`
	XP  int64     `json:"xp"`
}

// PlayerProgress is the per-player aggregate row driving rank resolution
type PlayerProgress struct {
	PlayerKey       string    `json:"player_key"`
	Name            string    `json:"name,omitempty"`
	TotalXP         int64     `json:"total_xp"`
	PlaytimeMinutes int64     `json:"playtime_minutes"`
	Achievements    int64     `json:"achievements"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LeaderboardEntry is a single row of the realtime XP leaderboard
type LeaderboardEntry struct {
	Rank      int64  `json:"rank"`
	PlayerKey string `json:"player_key"`
	XP        int64  `json:"xp"`
}
