package session

import (
	"testing"
	"time"

	"sentinel/internal/roles"
)

// fakeNow drives a clock deterministically.
type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time        { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestClock(total time.Duration) (*Clock, *fakeNow) {
	fn := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	c := &Clock{
		TotalTime:            total.Seconds(),
		TimeLeft:             total.Seconds(),
		otherCooldown:        180 * time.Second,
		sentinelInfluenceMax: 300,
		otherInfluenceMax:    60,
		now:                  fn.now,
	}
	c.startTime = fn.t
	c.lastUpdate = fn.t
	return c, fn
}

func TestClockRate(t *testing.T) {
	c, _ := newTestClock(900 * time.Second)

	if got := c.Rate(0); got != 1.5 {
		t.Errorf("rate at trust 0 = %v, want 1.5", got)
	}
	if got := c.Rate(50); got != 1.0 {
		t.Errorf("rate at trust 50 = %v, want 1.0", got)
	}
	got := c.Rate(100)
	if got < 0.69 || got > 0.71 {
		t.Errorf("rate at trust 100 = %v, want ~0.70", got)
	}
}

func TestClockAdvance(t *testing.T) {
	c, fn := newTestClock(900 * time.Second)

	fn.advance(10 * time.Second)
	left := c.Advance(50)
	if left != 890 {
		t.Errorf("after 10s at 1.0x, left = %d, want 890", left)
	}

	fn.advance(10 * time.Second)
	left = c.Advance(0)
	if left != 875 {
		t.Errorf("after 10s at 1.5x, left = %d, want 875", left)
	}
}

func TestClockSkipGuard(t *testing.T) {
	c, fn := newTestClock(900 * time.Second)

	// A gap over 100s is swallowed, not charged.
	fn.advance(5 * time.Minute)
	left := c.Advance(50)
	if left != 900 {
		t.Errorf("large gap should not burn time, left = %d", left)
	}

	// The next normal tick decays from the reset point.
	fn.advance(1 * time.Second)
	left = c.Advance(50)
	if left != 899 {
		t.Errorf("after guard reset, left = %d, want 899", left)
	}
}

func TestClockNeverNegative(t *testing.T) {
	c, fn := newTestClock(5 * time.Second)
	fn.advance(50 * time.Second)
	if left := c.Advance(0); left != 0 {
		t.Errorf("clock went negative: %d", left)
	}
	if !c.Expired() {
		t.Error("clock should report expired")
	}
}

func TestAddBonus(t *testing.T) {
	c, _ := newTestClock(100 * time.Second)

	c.AddBonus(30)
	if c.Remaining() != 130 {
		t.Errorf("bonus not applied, left = %d", c.Remaining())
	}
	c.AddBonus(-50)
	if c.Remaining() != 130 {
		t.Errorf("negative bonus should be ignored, left = %d", c.Remaining())
	}
}

func TestApplyCompression(t *testing.T) {
	c, fn := newTestClock(900 * time.Second)
	fn.advance(100 * time.Second)
	c.Advance(50)

	left := c.ApplyCompression(0.5)
	if left != 400 {
		t.Errorf("halved 800 should be 400, got %d", left)
	}
	// Elapsed 100s stays accounted for in the total.
	if c.TotalTime != 500 {
		t.Errorf("total should be elapsed+left = 500, got %v", c.TotalTime)
	}

	// Ratio clamps to [0.1, 1].
	left = c.ApplyCompression(0.01)
	if left != 40 {
		t.Errorf("ratio should clamp to 0.1: got %d", left)
	}
	before := c.Remaining()
	if got := c.ApplyCompression(5.0); got != before {
		t.Errorf("ratio over 1 should not stretch time: %d -> %d", before, got)
	}
}

func TestApplyInfluence(t *testing.T) {
	c, fn := newTestClock(900 * time.Second)

	// Sentinel clamps to its own range, no cooldown.
	applied, ok := c.ApplyInfluence(roles.Sentinel, 500)
	if !ok || applied != 300 {
		t.Fatalf("sentinel influence = (%d, %v), want (300, true)", applied, ok)
	}
	applied, ok = c.ApplyInfluence(roles.Sentinel, -100)
	if !ok || applied != -100 {
		t.Fatalf("second sentinel influence = (%d, %v), want (-100, true)", applied, ok)
	}

	// Other roles share a cooldown.
	applied, ok = c.ApplyInfluence(roles.Corporate, 90)
	if !ok || applied != 60 {
		t.Fatalf("corporate influence = (%d, %v), want (60, true)", applied, ok)
	}
	if _, ok := c.ApplyInfluence(roles.Resistance, 30); ok {
		t.Error("influence during cooldown should be rejected")
	}
	fn.advance(181 * time.Second)
	if _, ok := c.ApplyInfluence(roles.Resistance, 30); !ok {
		t.Error("influence after cooldown should apply")
	}
}

func TestApplyInfluenceConfiguredBounds(t *testing.T) {
	c, fn := newTestClock(900 * time.Second)
	c.sentinelInfluenceMax = 120
	c.otherInfluenceMax = 30

	applied, ok := c.ApplyInfluence(roles.Sentinel, 500)
	if !ok || applied != 120 {
		t.Errorf("sentinel influence = (%d, %v), want (120, true)", applied, ok)
	}
	applied, ok = c.ApplyInfluence(roles.Corporate, 90)
	if !ok || applied != 30 {
		t.Errorf("corporate influence = (%d, %v), want (30, true)", applied, ok)
	}

	// The bounds reshape the clamp, not the capability: a role without
	// clock access still applies nothing.
	fn.advance(181 * time.Second)
	if _, ok := c.ApplyInfluence(roles.Role("ghost"), 10); ok {
		t.Error("unknown role applied influence")
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(905); got != "15:05" {
		t.Errorf("FormatTime(905) = %q", got)
	}
	if got := FormatTime(-3); got != "00:00" {
		t.Errorf("FormatTime(-3) = %q", got)
	}
}
