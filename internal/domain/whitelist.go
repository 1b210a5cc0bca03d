package domain

import "time"

// WhitelistEntry is a permanent whitelist row, keyed by the player's stable
// account identifier. It is created exactly once, when a purgatory session is
// promoted on the player's first successful join.
type WhitelistEntry struct {
	PlayerKey   string    `json:"player_key"`
	Name        string    `json:"name"`
	DiscordID   string    `json:"discord_id"`
	DiscordName string    `json:"discord_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// PurgatorySession is a provisional grant tied to a claimed player name.
// At most one session exists per name; a new linking request for the same
// name replaces the prior session wholesale.
type PurgatorySession struct {
	Name        string    `json:"name"`
	DiscordID   string    `json:"discord_id"`
	DiscordName string    `json:"discord_name"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *PurgatorySession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AdmissionState describes what grants access to a connecting name, if anything.
type AdmissionState string

const (
	StateUnknown     AdmissionState = "unknown"
	StateProvisional AdmissionState = "provisional"
	StateWhitelisted AdmissionState = "whitelisted"
	StateEscalated   AdmissionState = "escalated"
)

// AdmissionDecision is the outcome of evaluating a join attempt.
type AdmissionDecision struct {
	Allow bool           `json:"allow"`
	State AdmissionState `json:"state"`
}
