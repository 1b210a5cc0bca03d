package domain

import "testing"

func TestRankPosition_Next(t *testing.T) {
	tests := []struct {
		name string
		pos  RankPosition
		want RankPosition
		ok   bool
	}{
		{"sub increments", RankPosition{Main: 1, Sub: 1}, RankPosition{Main: 1, Sub: 2}, true},
		{"sub rolls over", RankPosition{Main: 1, Sub: 7}, RankPosition{Main: 2, Sub: 1}, true},
		{"mid ladder rollover", RankPosition{Main: 12, Sub: 7}, RankPosition{Main: 13, Sub: 1}, true},
		{"last sub before terminal", RankPosition{Main: 25, Sub: 6}, RankPosition{Main: 25, Sub: 7}, true},
		{"terminal has no successor", RankPosition{Main: 25, Sub: 7}, RankPosition{Main: 25, Sub: 7}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.pos.Next()
			if got != tt.want || ok != tt.ok {
				t.Errorf("%v.Next() = %v, %v, want %v, %v", tt.pos, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRankPosition_IndexRoundTrip(t *testing.T) {
	for idx := 0; idx < LadderSize; idx++ {
		pos := RankFromIndex(idx)
		if pos.Main < 1 || pos.Main > MaxMainRank || pos.Sub < 1 || pos.Sub > MaxSubRank {
			t.Fatalf("RankFromIndex(%d) = %v out of bounds", idx, pos)
		}
		if got := pos.Index(); got != idx {
			t.Fatalf("RankFromIndex(%d).Index() = %d", idx, got)
		}
	}
}

func TestRankPosition_WalkCoversLadder(t *testing.T) {
	pos := FirstRank
	steps := 1
	for {
		next, ok := pos.Next()
		if !ok {
			break
		}
		if next.Index() != pos.Index()+1 {
			t.Fatalf("successor of %v skipped to %v", pos, next)
		}
		pos = next
		steps++
	}

	if steps != LadderSize {
		t.Errorf("ladder walk visited %d positions, want %d", steps, LadderSize)
	}
	if !pos.IsTerminal() {
		t.Errorf("walk ended at %v, want terminal", pos)
	}
}

func TestRankRequirement_Satisfied(t *testing.T) {
	req := RankRequirement{PlaytimeMinutes: 90, Achievements: 2}

	if !req.Satisfied(90, 2) {
		t.Error("exact match should satisfy")
	}
	if req.Satisfied(89, 2) {
		t.Error("insufficient playtime should not satisfy")
	}
	if req.Satisfied(90, 1) {
		t.Error("insufficient achievements should not satisfy")
	}
}
