package session

import (
	"math"

	"sentinel/internal/roles"
)

// Ledger tracks the player-facing relationship values. Trust and suspicion
// are independent axes, both clamped to [0,100]; deviation scores are per
// role and default to 50 until a judge touches them.
type Ledger struct {
	Trust      int                `json:"trust"`
	Suspicion  int                `json:"suspicion"`
	Deviations map[roles.Role]int `json:"deviations"`
}

// NewLedger returns a ledger at the given starting values.
func NewLedger(trust, suspicion int) *Ledger {
	return &Ledger{
		Trust:      clampInt(trust, 0, 100),
		Suspicion:  clampInt(suspicion, 0, 100),
		Deviations: make(map[roles.Role]int),
	}
}

// AdjustTrust moves trust by delta, clamped to [0,100].
func (l *Ledger) AdjustTrust(delta int) {
	l.Trust = clampInt(l.Trust+delta, 0, 100)
}

// AdjustSuspicion moves suspicion by delta, clamped to [0,100].
func (l *Ledger) AdjustSuspicion(delta int) {
	l.Suspicion = clampInt(l.Suspicion+delta, 0, 100)
}

// Deviation returns the deviation score for a role, materializing the
// default on first read.
func (l *Ledger) Deviation(role roles.Role) int {
	if l.Deviations == nil {
		l.Deviations = make(map[roles.Role]int)
	}
	if v, ok := l.Deviations[role]; ok {
		return v
	}
	l.Deviations[role] = roles.DefaultDeviation
	return roles.DefaultDeviation
}

// AdjustDeviation moves a role's deviation by delta, clamped to [0,100].
func (l *Ledger) AdjustDeviation(role roles.Role, delta int) {
	cur := l.Deviation(role)
	l.Deviations[role] = clampInt(cur+delta, 0, 100)
}

// SyncRate derives the cognitive sync rate from the ledger plus dialogue
// depth. Depth weighs the trust/suspicion midpoint by how far into the
// session the conversation is and how much of the mission checklist is done.
func (l *Ledger) SyncRate(round int, missionRate float64) int {
	if round < 1 {
		round = 1
	}
	if math.IsNaN(missionRate) || missionRate < 0 {
		missionRate = 0
	}
	if missionRate > 1 {
		missionRate = 1
	}

	roundWeight := 0.85 + float64(round-1)/40*0.3
	if roundWeight > 1.15 {
		roundWeight = 1.15
	}
	missionWeight := 0.9 + missionRate*0.2

	depth := clampFloat(roundWeight*missionWeight, 0.8, 1.2)
	raw := float64(l.Trust+l.Suspicion) / 2 * depth

	return clampInt(int(math.Round(raw)), 0, 100)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
