package session

import (
	"testing"

	"sentinel/internal/roles"
)

func TestLedgerClamps(t *testing.T) {
	l := NewLedger(20, 20)

	l.AdjustTrust(200)
	if l.Trust != 100 {
		t.Errorf("trust should clamp to 100, got %d", l.Trust)
	}
	l.AdjustTrust(-500)
	if l.Trust != 0 {
		t.Errorf("trust should clamp to 0, got %d", l.Trust)
	}
	l.AdjustSuspicion(-100)
	if l.Suspicion != 0 {
		t.Errorf("suspicion should clamp to 0, got %d", l.Suspicion)
	}
	l.AdjustSuspicion(150)
	if l.Suspicion != 100 {
		t.Errorf("suspicion should clamp to 100, got %d", l.Suspicion)
	}
}

func TestDeviationDefaults(t *testing.T) {
	l := NewLedger(20, 20)

	if got := l.Deviation(roles.Corporate); got != 50 {
		t.Errorf("unjudged deviation should default to 50, got %d", got)
	}
	l.AdjustDeviation(roles.Corporate, 30)
	if got := l.Deviation(roles.Corporate); got != 80 {
		t.Errorf("expected 80 after +30, got %d", got)
	}
	l.AdjustDeviation(roles.Corporate, 100)
	if got := l.Deviation(roles.Corporate); got != 100 {
		t.Errorf("deviation should clamp to 100, got %d", got)
	}
	// First read through AdjustDeviation also starts from the default.
	l.AdjustDeviation(roles.Mystery, -10)
	if got := l.Deviation(roles.Mystery); got != 40 {
		t.Errorf("expected 40 after default-10, got %d", got)
	}
}

func TestSyncRate(t *testing.T) {
	tests := []struct {
		name        string
		trust, susp int
		round       int
		missionRate float64
		want        int
	}{
		// Round 1, no mission: depth floor 0.8 applies.
		{"opening values", 20, 20, 1, 0, 16},
		{"max trust early", 100, 0, 1, 0, 40},
		{"both maxed early", 100, 100, 1, 0, 80},
		// Late round with full mission: depth ceiling 1.2.
		// roundWeight capped at 1.15, missionWeight 1.1 -> 1.265 -> 1.2.
		{"both maxed late", 100, 100, 60, 1, 100},
		{"zeros stay zero", 0, 0, 10, 0.5, 0},
		// Round 21: roundWeight = 0.85 + 0.15 = 1.0, mission 0 -> depth 0.9.
		{"mid game", 60, 40, 21, 0, 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(tt.trust, tt.susp)
			if got := l.SyncRate(tt.round, tt.missionRate); got != tt.want {
				t.Errorf("SyncRate(%d, %v) = %d, want %d", tt.round, tt.missionRate, got, tt.want)
			}
		})
	}
}

func TestSyncRateCoercesBadInputs(t *testing.T) {
	l := NewLedger(50, 50)
	base := l.SyncRate(1, 0)
	if got := l.SyncRate(0, -5); got != base {
		t.Errorf("bad round/rate should coerce: got %d, want %d", got, base)
	}
	if got := l.SyncRate(1, 2.0); got != l.SyncRate(1, 1.0) {
		t.Errorf("mission rate should cap at 1: got %d", got)
	}
}
