package session

import (
	"fmt"
	"math"
	"time"

	"sentinel/internal/roles"
)

// Clock tracks the session's remaining wall time. Decay speed depends on
// trust: a distrustful SENTINEL burns the clock faster, a trusting one
// slower. All mutators clamp rather than error.
type Clock struct {
	TotalTime float64 `json:"totalTime"` // seconds
	TimeLeft  float64 `json:"timeLeft"`  // seconds

	startTime          time.Time
	lastUpdate         time.Time
	lastOtherInfluence time.Time
	otherCooldown      time.Duration

	// Influence bounds, seconds. Zero falls back to the role card defaults.
	sentinelInfluenceMax int
	otherInfluenceMax    int

	now func() time.Time
}

// NewClock returns a running clock with the full budget remaining.
func NewClock(total, otherCooldown time.Duration, sentinelMax, otherMax int) *Clock {
	c := &Clock{
		TotalTime:            total.Seconds(),
		TimeLeft:             total.Seconds(),
		otherCooldown:        otherCooldown,
		sentinelInfluenceMax: sentinelMax,
		otherInfluenceMax:    otherMax,
		now:                  time.Now,
	}
	c.startTime = c.now()
	c.lastUpdate = c.startTime
	return c
}

// Rate returns the decay multiplier for a trust level.
// Trust 0 burns at 1.5x, trust 50 at 1.0x, trust 100 at roughly 0.7x.
func (c *Clock) Rate(trust int) float64 {
	if trust < 50 {
		return 1.0 + float64(50-trust)/100
	}
	return 1.0 - float64(trust-50)/166
}

// Advance applies trust-scaled decay for the real time elapsed since the
// last call and returns the remaining whole seconds. A gap over 100s means
// the process was suspended or the snapshot is stale; the gap is swallowed
// rather than charged to the player.
func (c *Clock) Advance(trust int) int {
	now := c.now()
	realElapsed := now.Sub(c.lastUpdate).Seconds()

	if realElapsed > 100 {
		c.lastUpdate = now
		return int(c.TimeLeft)
	}

	c.TimeLeft = math.Max(0, c.TimeLeft-realElapsed*c.Rate(trust))
	c.lastUpdate = now

	return int(c.TimeLeft)
}

// AddBonus grants extra seconds. Negative or NaN amounts are ignored.
func (c *Clock) AddBonus(seconds float64) {
	if math.IsNaN(seconds) || seconds <= 0 {
		return
	}
	c.TimeLeft += seconds
}

// ApplyCompression shrinks the remaining time by ratio, clamped to
// [0.1, 1]. Elapsed time already spent is preserved in the total so the
// progress bar stays truthful. Returns the new remaining seconds.
func (c *Clock) ApplyCompression(ratio float64) int {
	if math.IsNaN(ratio) {
		ratio = 1
	}
	ratio = clampFloat(ratio, 0.1, 1)

	elapsed := math.Floor(c.now().Sub(c.startTime).Seconds())
	newLeft := math.Max(1, math.Floor(c.TimeLeft*ratio))
	c.TotalTime = elapsed + newLeft
	c.TimeLeft = newLeft

	return int(c.TimeLeft)
}

// ApplyInfluence lets a character push the clock by up to its permitted
// range. Non-sentinel roles share a cooldown; a blocked attempt applies
// nothing. Returns the seconds actually applied and whether anything
// happened.
func (c *Clock) ApplyInfluence(role roles.Role, seconds int) (int, bool) {
	limit := c.otherInfluenceMax
	if role == roles.Sentinel {
		limit = c.sentinelInfluenceMax
	}
	applied := roles.ClampTimeInfluence(role, seconds, limit)
	if applied == 0 {
		return 0, false
	}

	if role != roles.Sentinel {
		now := c.now()
		if !c.lastOtherInfluence.IsZero() && now.Sub(c.lastOtherInfluence) < c.otherCooldown {
			return 0, false
		}
		c.lastOtherInfluence = now
	}

	c.TimeLeft = math.Max(0, c.TimeLeft+float64(applied))
	return applied, true
}

// Remaining returns the remaining whole seconds without advancing.
func (c *Clock) Remaining() int {
	return int(c.TimeLeft)
}

// Expired reports whether the clock has run out.
func (c *Clock) Expired() bool {
	return c.TimeLeft <= 0
}

// FormatTime renders seconds as mm:ss for the status bar.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
