package rank

import (
	"testing"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/domain"
)

func testLadder() *Ladder {
	return NewLadder(&config.RanksConfig{
		PlaytimeStepMinutes: 90,
		AchievementStep:     2,
	})
}

func TestResolve_FirstAndTerminal(t *testing.T) {
	l := testLadder()

	if got := l.Resolve(0, 0); got != domain.FirstRank {
		t.Errorf("Resolve(0, 0) = %v, want %v", got, domain.FirstRank)
	}

	// Exceeding every threshold resolves to the terminal position
	if got := l.Resolve(1<<40, 1<<40); got != domain.TerminalRank {
		t.Errorf("Resolve(max, max) = %v, want %v", got, domain.TerminalRank)
	}
}

func TestResolve_BothRequirementsGate(t *testing.T) {
	l := testLadder()

	tests := []struct {
		name            string
		playtimeMinutes int64
		achievements    int64
		want            domain.RankPosition
	}{
		{"playtime alone is not enough", 900, 0, domain.RankPosition{Main: 1, Sub: 1}},
		{"achievements alone are not enough", 0, 20, domain.RankPosition{Main: 1, Sub: 1}},
		{"one step satisfied", 90, 2, domain.RankPosition{Main: 1, Sub: 2}},
		{"just below a step", 89, 2, domain.RankPosition{Main: 1, Sub: 1}},
		{"rolls into second main rank", 7 * 90, 7 * 2, domain.RankPosition{Main: 2, Sub: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.Resolve(tt.playtimeMinutes, tt.achievements)
			if got != tt.want {
				t.Errorf("Resolve(%d, %d) = %v, want %v", tt.playtimeMinutes, tt.achievements, got, tt.want)
			}
		})
	}
}

func TestRequirements_Monotonic(t *testing.T) {
	l := testLadder()

	prev := l.RequirementAt(domain.FirstRank)
	pos := domain.FirstRank
	for {
		next, req, ok := l.NextRequirement(pos)
		if !ok {
			break
		}
		if req.PlaytimeMinutes < prev.PlaytimeMinutes || req.Achievements < prev.Achievements {
			t.Fatalf("requirements decreased at %v: %+v after %+v", next, req, prev)
		}
		prev = req
		pos = next
	}

	if !pos.IsTerminal() {
		t.Errorf("ladder walk ended at %v, want terminal %v", pos, domain.TerminalRank)
	}
}

func TestNextRequirement_Terminal(t *testing.T) {
	l := testLadder()

	if _, _, ok := l.NextRequirement(domain.TerminalRank); ok {
		t.Error("NextRequirement(terminal) reported a successor")
	}
}

func TestTitle(t *testing.T) {
	l := testLadder()

	if got := l.Title(domain.FirstRank); got != "Drifter" {
		t.Errorf("Title(first) = %q, want Drifter", got)
	}
	if got := l.Title(domain.TerminalRank); got != "Legend" {
		t.Errorf("Title(terminal) = %q, want Legend", got)
	}
}

func TestTitle_ConfiguredOverride(t *testing.T) {
	titles := make([]string, domain.MaxMainRank)
	for i := range titles {
		titles[i] = "Rank"
	}
	titles[0] = "Newcomer"

	l := NewLadder(&config.RanksConfig{
		PlaytimeStepMinutes: 1,
		AchievementStep:     1,
		Titles:              titles,
	})

	if got := l.Title(domain.FirstRank); got != "Newcomer" {
		t.Errorf("Title(first) = %q, want Newcomer", got)
	}
}
