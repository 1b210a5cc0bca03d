package domain

import "fmt"

// Ladder geometry: 25 main ranks, 7 sub-ranks each, 175 positions total.
const (
	MaxMainRank = 25
	MaxSubRank  = 7
	LadderSize  = MaxMainRank * MaxSubRank
)

// RankPosition is a position on the rank ladder. Main is in [1,25] and Sub in
// [1,7]; incrementing Sub past 7 rolls over to the next main rank. 25/7 is
// terminal.
type RankPosition struct {
	Main int `json:"main"`
	Sub  int `json:"sub"`
}

// FirstRank is the ladder's starting position
var FirstRank = RankPosition{Main: 1, Sub: 1}

// TerminalRank is the ladder's final position, which has no successor
var TerminalRank = RankPosition{Main: MaxMainRank, Sub: MaxSubRank}

// RankFromIndex converts a zero-based ladder index to a position
func RankFromIndex(idx int) RankPosition {
	return RankPosition{Main: idx/MaxSubRank + 1, Sub: idx%MaxSubRank + 1}
}

// Index returns the zero-based ladder index of the position
func (p RankPosition) Index() int {
	return (p.Main-1)*MaxSubRank + (p.Sub - 1)
}

// IsTerminal reports whether the position has no successor
func (p RankPosition) IsTerminal() bool {
	return p == TerminalRank
}

// Next returns the successor position. The second return value is false when
// the position is terminal.
func (p RankPosition) Next() (RankPosition, bool) {
	if p.IsTerminal() {
		return p, false
	}
	if p.Sub < MaxSubRank {
		return RankPosition{Main: p.Main, Sub: p.Sub + 1}, true
	}
	return RankPosition{Main: p.Main + 1, Sub: 1}, true
}

func (p RankPosition) String() string {
	return fmt.Sprintf("%d.%d", p.Main, p.Sub)
}

// RankRequirement is the cumulative playtime and achievement count a position
// demands. Requirements are monotonically non-decreasing across the ladder;
// accumulated XP is tracked but does not gate promotion.
type RankRequirement struct {
	PlaytimeMinutes int64 `json:"playtime_minutes"`
	Achievements    int64 `json:"achievements"`
}

// Satisfied reports whether the given progress meets the requirement
func (r RankRequirement) Satisfied(playtimeMinutes, achievements int64) bool {
	return playtimeMinutes >= r.PlaytimeMinutes && achievements >= r.Achievements
}
