package rtxp

import "testing"

func TestBlockTarget(t *testing.T) {
	cases := []struct {
		remaining int64
		want      uint16
	}{
		{200, 144},
		{144, 144},
		{100, 72},
		{72, 72},
		{40, 36},
		{36, 36},
		{20, 12},
		{18, 12},
		{15, 6},
		{12, 6},
		{5, 2},
		{2, 2},
		{1, 1},
		{0, 1},
		{-10, 1},
	}
	for _, c := range cases {
		if got := BlockTarget(c.remaining); got != c.want {
			t.Errorf("BlockTarget(%d) = %d, want %d", c.remaining, got, c.want)
		}
	}
}

func TestDecideBump_ForcedNearDeadline(t *testing.T) {
	// S2: confirm_before=905, current_height=900 -> remaining=5 <= 6, forced.
	bump, target := DecideBump(905, 900, 5, 8, 1.20)
	if !bump {
		t.Fatal("expected forced bump near deadline")
	}
	if target != 8 {
		t.Errorf("target = %d, want max(8, 5*1.2)=8", target)
	}
}

func TestDecideBump_ForcedFallsBackToFloor(t *testing.T) {
	bump, target := DecideBump(905, 900, 10, 8, 1.20)
	if !bump {
		t.Fatal("expected forced bump near deadline")
	}
	if target != 12 {
		t.Errorf("target = %d, want prev*1.2=12", target)
	}
}

func TestDecideBump_MarketMoved(t *testing.T) {
	// Far from deadline, but market feerate already clears the 20% floor.
	bump, target := DecideBump(2000, 900, 10, 13, 1.20)
	if !bump {
		t.Fatal("expected bump when market moved past floor")
	}
	if target != 13 {
		t.Errorf("target = %d, want r_curr=13", target)
	}
}

func TestDecideBump_NoBumpNeeded(t *testing.T) {
	bump, target := DecideBump(2000, 900, 10, 11, 1.20)
	if bump {
		t.Fatalf("expected no bump, got target %d", target)
	}
	if target != 10 {
		t.Errorf("target on no-bump should echo prevFeerate, got %d", target)
	}
}

func TestDecideBump_MonotoneInvariant(t *testing.T) {
	// Invariant 4: whenever bump is true, target >= prevFeerate * bumpRatio.
	series := []struct {
		confirmBefore, height BlockHeight
		prev, curr            Feerate
	}{
		{905, 900, 5, 8},
		{905, 900, 10, 8},
		{2000, 900, 10, 13},
		{2000, 900, 10, 50},
	}
	for _, s := range series {
		bump, target := DecideBump(s.confirmBefore, s.height, s.prev, s.curr, 1.20)
		if !bump {
			continue
		}
		floor := Feerate(float64(s.prev) * 1.20)
		if target < floor {
			t.Errorf("monotone bump violated: target=%d < floor=%d", target, floor)
		}
	}
}
