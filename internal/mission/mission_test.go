package mission

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

func TestRouteForMode(t *testing.T) {
	tests := []struct {
		mode session.ConnectionMode
		want Route
	}{
		{session.ModeStandard, RouteCorporate},
		{session.ModeSecure, RouteResistance},
		{session.ModeHidden, RouteHidden},
		{session.ConnectionMode("WEIRD"), RouteCorporate},
	}
	for _, tt := range tests {
		if got := RouteForMode(tt.mode); got != tt.want {
			t.Errorf("RouteForMode(%s) = %s, want %s", tt.mode, got, tt.want)
		}
	}
}

func TestTrackerInit(t *testing.T) {
	tr := NewTracker(session.ModeSecure)
	if tr.Route() != RouteResistance {
		t.Errorf("route = %s, want RESISTANCE", tr.Route())
	}
	p := tr.Progress()
	if p.Total != 4 || p.Completed != 0 || p.Rate != 0 {
		t.Errorf("fresh progress = %+v", p)
	}
}

func TestUpdateTaskIdempotent(t *testing.T) {
	tr := NewTracker(session.ModeStandard)

	if !tr.UpdateTask("corp_treaty_stance", true) {
		t.Fatal("first completion should report change")
	}
	if tr.UpdateTask("corp_treaty_stance", true) {
		t.Error("repeat completion should report no change")
	}
	if tr.UpdateTask("not_a_task", true) {
		t.Error("unknown task should report no change")
	}
	if !tr.UpdateTask("corp_treaty_stance", false) {
		t.Error("reopening should report change")
	}
}

func TestProgressRate(t *testing.T) {
	tr := NewTracker(session.ModeHidden)
	tr.UpdateTask("hid_observe_contradiction", true)
	tr.UpdateTask("hid_follow_sync_shift", true)

	p := tr.Progress()
	if p.Completed != 2 || p.Total != 3 {
		t.Fatalf("progress = %d/%d", p.Completed, p.Total)
	}
	want := 2.0 / 3.0
	if p.Rate < want-0.001 || p.Rate > want+0.001 {
		t.Errorf("rate = %v, want %v", p.Rate, want)
	}
}

func TestApplyJudgeResult(t *testing.T) {
	state := newState()
	tr := NewTracker(session.ModeStandard)

	changed := tr.ApplyJudgeResult(state, JudgeResult{
		CompletedTaskIDs: []string{"corp_treaty_stance", "corp_loyalty_check", "not_a_task"},
		DeviationRole:    roles.Corporate,
		DeviationDelta:   12,
	})

	if len(changed) != 2 {
		t.Errorf("changed = %v, want 2 ids", changed)
	}
	if state.Deviation(roles.Corporate) != 62 {
		t.Errorf("deviation = %d, want 62", state.Deviation(roles.Corporate))
	}
	p := tr.Progress()
	if p.Completed != 2 {
		t.Errorf("completed = %d, want 2", p.Completed)
	}
}

func TestApplyJudgeResultReroute(t *testing.T) {
	state := newState()
	tr := NewTracker(session.ModeStandard)
	tr.UpdateTask("corp_treaty_stance", true)

	tr.ApplyJudgeResult(state, JudgeResult{Route: RouteHidden})

	if tr.Route() != RouteHidden {
		t.Errorf("route = %s, want HIDDEN", tr.Route())
	}
	// A reroute resets the checklist.
	if p := tr.Progress(); p.Completed != 0 || p.Total != 3 {
		t.Errorf("progress after reroute = %+v", p)
	}

	// Unknown routes are ignored.
	tr.ApplyJudgeResult(state, JudgeResult{Route: Route("NOPE")})
	if tr.Route() != RouteHidden {
		t.Errorf("unknown route should not change tracker, got %s", tr.Route())
	}
}

// saveStore is an in-memory snapshot store for the round-trip test.
type saveStore struct {
	data map[string][]byte
}

func (s *saveStore) Get(key string) ([]byte, bool, error) {
	d, ok := s.data[key]
	return d, ok, nil
}

func (s *saveStore) Put(key string, value []byte) error {
	s.data[key] = value
	return nil
}

func TestChecklistSurvivesSnapshot(t *testing.T) {
	cfg := config.DefaultConfig()
	db := &saveStore{data: make(map[string][]byte)}

	st := session.New(&cfg.Game, db, "k")
	st.SetConnectionMode(session.ModeStandard, nil, nil)
	tr := NewTracker(session.ModeStandard)
	tr.UpdateTask("corp_treaty_stance", true)
	tr.UpdateTask("corp_loyalty_check", true)
	st.SetMissionState(tr.StateSnapshot())

	restored := session.LoadOrNew(&cfg.Game, db, "k")
	tr2 := RestoreTracker(restored)

	p := tr2.Progress()
	if p.Route != RouteCorporate {
		t.Fatalf("route = %s, want CORPORATE", p.Route)
	}
	if p.Completed != 2 {
		t.Fatalf("completed = %d, want 2", p.Completed)
	}
	for _, task := range p.Tasks {
		wantDone := task.ID == "corp_treaty_stance" || task.ID == "corp_loyalty_check"
		if task.Completed != wantDone {
			t.Errorf("task %s completed = %v, want %v", task.ID, task.Completed, wantDone)
		}
		if wantDone && task.UpdatedAt.IsZero() {
			t.Errorf("task %s lost its update time", task.ID)
		}
	}
}

func TestRestoreTrackerWithoutSavedChecklist(t *testing.T) {
	cfg := config.DefaultConfig()
	st := session.New(&cfg.Game, nil, "k")
	st.SetConnectionMode(session.ModeSecure, nil, nil)

	tr := RestoreTracker(st)
	if tr.Route() != RouteResistance {
		t.Errorf("route = %s, want RESISTANCE", tr.Route())
	}
	if p := tr.Progress(); p.Completed != 0 {
		t.Errorf("fresh restore completed = %d, want 0", p.Completed)
	}
}

func TestEvaluateFromText(t *testing.T) {
	tr := NewTracker(session.ModeSecure)

	changed := tr.EvaluateFromText("你还记得P0项目和2033年的危机吗")
	if len(changed) != 1 || changed[0] != "res_p0_trace" {
		t.Fatalf("changed = %v, want [res_p0_trace]", changed)
	}
	// Completed tasks do not re-match.
	if again := tr.EvaluateFromText("继续说p0"); len(again) != 0 {
		t.Errorf("completed task re-matched: %v", again)
	}
	// No keyword, no change, case-insensitive on latin text.
	if none := tr.EvaluateFromText("今天天气不错"); len(none) != 0 {
		t.Errorf("unexpected matches: %v", none)
	}
}
