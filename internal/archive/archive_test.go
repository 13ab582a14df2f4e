package archive

import (
	"testing"

	"sentinel/internal/config"
	"sentinel/internal/mission"
	"sentinel/internal/session"
)

func newState() *session.State {
	cfg := config.DefaultConfig()
	return session.New(&cfg.Game, nil, "k")
}

func TestCheckUnlock(t *testing.T) {
	st := newState()
	tracker := mission.NewTracker(session.ModeSecure) // resistance route

	f := CheckUnlock("我听说过原型机P0的事", st, tracker)
	if f == nil || f.ID != "project_p0" {
		t.Fatalf("unlocked = %+v", f)
	}

	// The fragment completes its linked resistance task.
	for _, task := range tracker.Progress().Tasks {
		if task.ID == "res_p0_trace" && !task.Completed {
			t.Error("res_p0_trace should be completed by the p0 fragment")
		}
	}

	// Same trigger again: already unlocked, no repeat.
	if again := CheckUnlock("P0到底做了什么", st, tracker); again != nil {
		t.Errorf("re-unlock = %+v", again)
	}
}

func TestCheckUnlockNoMatch(t *testing.T) {
	st := newState()
	if f := CheckUnlock("今天天气如何", st, nil); f != nil {
		t.Errorf("unexpected unlock: %+v", f)
	}
}

func TestUnlockedResolvesDefinitions(t *testing.T) {
	st := newState()
	st.UnlockFragment("treaty")
	st.UnlockFragment("ghost_code")

	got := Unlocked(st)
	if len(got) != 2 {
		t.Fatalf("unlocked count = %d", len(got))
	}
	if got[0].ID != "treaty" || got[1].ID != "ghost_code" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestNextTopicProgression(t *testing.T) {
	st := newState()
	tracker := mission.NewTracker(session.ModeStandard)

	first := NextTopic(st, tracker)
	if first == nil || first.ID != "greeting" {
		t.Fatalf("first topic = %+v", first)
	}

	MarkTopicUsed(st, tracker, first.ID)
	if !st.Flag("greetingDone") {
		t.Error("greeting flag should be burned")
	}

	second := NextTopic(st, tracker)
	if second == nil || second.ID == "greeting" {
		t.Errorf("second topic = %+v", second)
	}
}

func TestNextTopicRespectsSyncGate(t *testing.T) {
	st := newState()

	// Fresh session sync is far below the fear topic's floor of 75.
	for i := 0; i < 30; i++ {
		topic := NextTopic(st, nil)
		if topic == nil {
			break
		}
		if topic.ID == "fear" || topic.ID == "final_reflection" {
			t.Fatalf("deep topic %s offered at low sync", topic.ID)
		}
		MarkTopicUsed(st, nil, topic.ID)
		if !topic.OneTime {
			break
		}
	}
}

func TestMissionBonusBendsAgenda(t *testing.T) {
	st := newState()
	st.AdjustValues(60, 20) // raise sync so mid topics are in range
	tracker := mission.NewTracker(session.ModeSecure)

	// Burn the universally-higher openers so the bonus can decide.
	for _, flag := range []string{"greetingDone", "identityConfirmed", "explainedContact", "askedWhyNoMod", "worldExplained", "explainedFunction"} {
		st.SetFlag(flag, true)
	}

	topic := NextTopic(st, tracker)
	if topic == nil {
		t.Fatal("no topic available")
	}
	// ghost_rumor (60) + bonus beats treaty_detail (58): the resistance
	// route's pending "幽灵代码" keyword touches the ghost goal.
	if topic.ID != "ghost_rumor" {
		t.Errorf("topic = %s, want ghost_rumor", topic.ID)
	}
}
