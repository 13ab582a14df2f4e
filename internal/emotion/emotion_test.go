package emotion

import (
	"testing"

	"sentinel/internal/config"
	"sentinel/internal/roles"
	"sentinel/internal/session"
)

func newState() *session.State {
	cfg := config.DefaultConfig()
	return session.New(&cfg.Game, nil, "k")
}

func TestEvaluateFreshSession(t *testing.T) {
	st := newState()
	v := Evaluate(st, roles.Sentinel)

	// trust 20, suspicion 20, deviation 50, full clock.
	if v.Tension != 34 {
		t.Errorf("tension = %d, want 34", v.Tension)
	}
	if v.Openness < 30 || v.Openness > 40 {
		t.Errorf("openness = %d, want low-mid band", v.Openness)
	}
	if v.Urgency < 20 || v.Urgency > 35 {
		t.Errorf("urgency = %d", v.Urgency)
	}
}

func TestMapExpressionSentinel(t *testing.T) {
	cases := []struct {
		v    Vector
		want string
	}{
		{Vector{Tension: 80, Openness: 40, Urgency: 50}, "agitated"},
		{Vector{Tension: 30, Openness: 70, Urgency: 75}, "breakthrough"},
		{Vector{Tension: 72, Openness: 50, Urgency: 71}, "collision_understanding"},
		{Vector{Tension: 40, Openness: 50, Urgency: 40}, "calm"},
	}
	for _, tc := range cases {
		if got := MapExpression(roles.Sentinel, tc.v); got.ID != tc.want {
			t.Errorf("MapExpression(sentinel, %+v) = %s, want %s", tc.v, got.ID, tc.want)
		}
	}
}

func TestMapExpressionCharacters(t *testing.T) {
	hot := Vector{Tension: 75, Openness: 40, Urgency: 30}
	if got := MapExpression(roles.Corporate, hot); got.ID != "threatening_formal" {
		t.Errorf("corporate hot = %s", got.ID)
	}
	urgent := Vector{Tension: 40, Openness: 60, Urgency: 80}
	if got := MapExpression(roles.Resistance, urgent); got.ID != "urgent_whisper" {
		t.Errorf("resistance urgent = %s", got.ID)
	}
	calm := Vector{Tension: 30, Openness: 60, Urgency: 30}
	if got := MapExpression(roles.Mystery, calm); got.ID != "cryptic" {
		t.Errorf("mystery calm = %s", got.ID)
	}
}

func TestForUnknownRoleFallsBack(t *testing.T) {
	st := newState()
	es := For(st, roles.Role("ghost"))
	if es.Expression.ID == "" {
		t.Error("unknown role should map through the subject's table")
	}
}
