package rank

import (
	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
)

// defaultTitles names the 25 main ranks when the configuration provides none
var defaultTitles = []string{
	"Drifter", "Wanderer", "Settler", "Pathfinder", "Prospector",
	"Tracker", "Scout", "Ranger", "Pioneer", "Voyager",
	"Artisan", "Craftsman", "Builder", "Architect", "Engineer",
	"Warden", "Guardian", "Sentinel", "Vanguard", "Champion",
	"Elder", "Sage", "Paragon", "Luminary", "Legend",
}

// Ladder resolves accumulated progress to a position on the 25×7 rank
// ladder. Requirements grow by a fixed step per position, so they are
// monotonically non-decreasing; the first position requires nothing.
type Ladder struct {
	reqs   []domain.RankRequirement
	titles []string
}

// NewLadder builds the ladder from configuration
func NewLadder(cfg *config.RanksConfig) *Ladder {
	reqs := make([]domain.RankRequirement, domain.LadderSize)
	for i := range reqs {
		reqs[i] = domain.RankRequirement{
			PlaytimeMinutes: int64(i) * cfg.PlaytimeStepMinutes,
			Achievements:    int64(i) * cfg.AchievementStep,
		}
	}

	titles := cfg.Titles
	if len(titles) != domain.MaxMainRank {
		titles = defaultTitles
	}

	return &Ladder{reqs: reqs, titles: titles}
}

// Resolve returns the highest position whose playtime and achievement
// requirements are both satisfied. XP informs display and reward sizing but
// never gates promotion.
func (l *Ladder) Resolve(playtimeMinutes, achievements int64) domain.RankPosition {
	current := 0
	for i, req := range l.reqs {
		if !req.Satisfied(playtimeMinutes, achievements) {
			break
		}
		current = i
	}
	return domain.RankFromIndex(current)
}

// RequirementAt returns the requirement for a ladder position
func (l *Ladder) RequirementAt(pos domain.RankPosition) domain.RankRequirement {
	return l.reqs[pos.Index()]
}

// NextRequirement returns the successor position and its requirement. The
// boolean is false at the terminal position.
func (l *Ladder) NextRequirement(pos domain.RankPosition) (domain.RankPosition, domain.RankRequirement, bool) {
	next, ok := pos.Next()
	if !ok {
		return pos, domain.RankRequirement{}, false
	}
	return next, l.reqs[next.Index()], true
}

// Title returns the display title of a position's main rank
func (l *Ladder) Title(pos domain.RankPosition) string {
	return l.titles[pos.Main-1]
}
