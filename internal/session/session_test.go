package session

import (
	"encoding/json"
	"testing"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/roles"
)

// memStore is an in-memory save store for tests.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key string) ([]byte, bool, error) {
	d, ok := m.data[key]
	return d, ok, nil
}

func (m *memStore) Put(key string, data []byte) error {
	m.data[key] = data
	return nil
}

func gameCfg() *config.GameConfig {
	cfg := config.DefaultConfig()
	return &cfg.Game
}

func TestNewSessionDefaults(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	trust, susp := s.Values()
	if trust != 20 || susp != 20 {
		t.Errorf("opening values = (%d, %d), want (20, 20)", trust, susp)
	}
	if s.Round() != 1 {
		t.Errorf("opening round = %d, want 1", s.Round())
	}
	if s.MaxRounds() != 20 {
		t.Errorf("opening maxRounds = %d, want 20", s.MaxRounds())
	}
	if s.ConnectionMode() != ModeStandard {
		t.Errorf("opening mode = %s", s.ConnectionMode())
	}
}

func TestUnknownFlagIgnored(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	s.SetFlag("notAFlag", true)
	if s.Flag("notAFlag") {
		t.Error("unknown flag should stay false")
	}
	s.SetFlag("triedToEscape", true)
	if !s.Flag("triedToEscape") {
		t.Error("known flag should be set")
	}
}

func TestAddDialogueAdvancesRound(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	s.AddDialogue("你好", "...信号接入...")
	if s.Round() != 2 {
		t.Errorf("round = %d, want 2", s.Round())
	}
	h := s.History()
	if len(h) != 1 || h[0].Round != 1 {
		t.Fatalf("unexpected history: %+v", h)
	}
	if h[0].SyncRate == 0 {
		t.Error("history entry should record the sync rate")
	}
}

func TestRecentHistoryWindow(t *testing.T) {
	s := New(gameCfg(), nil, "k")
	for i := 0; i < 12; i++ {
		s.AddDialogue("u", "a")
	}
	recent := s.RecentHistory(8)
	if len(recent) != 8 {
		t.Fatalf("window = %d, want 8", len(recent))
	}
	if recent[0].Round != 5 || recent[7].Round != 12 {
		t.Errorf("window rounds = %d..%d, want 5..12", recent[0].Round, recent[7].Round)
	}
}

func TestMaxRoundsGrowsWithSync(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	// Push the midpoint high enough that sync crosses 30 and 60.
	s.AdjustValues(60, 60) // trust 80, susp 80, sync = 80*0.8 = 64
	if s.MaxRounds() != 28 {
		t.Errorf("maxRounds = %d, want 28 (20+3+5)", s.MaxRounds())
	}
}

func TestEndConditionPriority(t *testing.T) {
	s := New(gameCfg(), nil, "k")
	if got := s.CheckEndCondition(); got != EndingNone {
		t.Fatalf("fresh session should not end: %s", got)
	}

	// Suspicion termination.
	s.AdjustValues(0, 100)
	if got := s.CheckEndCondition(); got != EndingTerminated {
		t.Errorf("want TERMINATED, got %s", got)
	}

	// Time-up outranks everything else.
	s.clock.TimeLeft = 0
	if got := s.CheckEndCondition(); got != EndingTimeUp {
		t.Errorf("want TIME_UP, got %s", got)
	}
}

func TestEndConditionConnectionAndNatural(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	s.AdjustValues(80, -20) // trust 100, susp 0
	if got := s.CheckEndCondition(); got != EndingConnection {
		t.Errorf("want CONNECTION, got %s", got)
	}

	s = New(gameCfg(), nil, "k")
	s.round = s.MaxRounds() + 1
	if got := s.CheckEndCondition(); got != EndingNatural {
		t.Errorf("want NATURAL_END, got %s", got)
	}
}

func TestFinalQuestionLifecycle(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	s.BeginFinalQuestion(EndingConnection, "最后的问题")
	if !s.FinalQuestionActive() {
		t.Fatal("final question should be active")
	}
	if !s.Flag("finalQuestionAsked") {
		t.Error("flag should be set")
	}
	if s.PendingEnding() != EndingConnection {
		t.Errorf("pending ending = %s", s.PendingEnding())
	}

	s.ResolveFinalAnswer("我想留下")
	if s.FinalAnswer() != "我想留下" {
		t.Errorf("answer = %q", s.FinalAnswer())
	}

	s.ClearFinalQuestion()
	if s.FinalQuestionActive() || s.PendingEnding() != EndingNone {
		t.Error("clear should drop the question and pending ending")
	}
	if s.Flag("finalQuestionAsked") {
		t.Error("flag should be cleared")
	}
}

func TestEventIdempotency(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	if !s.MarkEventTriggered("ALARM_FLASH") {
		t.Fatal("first trigger should succeed")
	}
	if s.MarkEventTriggered("ALARM_FLASH") {
		t.Error("second trigger should be rejected")
	}
	if !s.EventTriggered("ALARM_FLASH") {
		t.Error("event should read as triggered")
	}
}

func TestCoreMemoryAndFragmentsDedup(t *testing.T) {
	s := New(gameCfg(), nil, "k")

	s.AddCoreMemory("初次连接")
	s.AddCoreMemory("初次连接")
	if len(s.CoreMemories()) != 1 {
		t.Errorf("core memories should dedup, got %v", s.CoreMemories())
	}

	if !s.UnlockFragment("frag_p0") {
		t.Fatal("first unlock should succeed")
	}
	if s.UnlockFragment("frag_p0") {
		t.Error("repeat unlock should report false")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newMemStore()
	s := New(gameCfg(), store, "sentinel_save_v3")

	s.SetConnectionMode(ModeSecure, nil, nil)
	s.AdjustValues(15, 5)
	s.AddDialogue("你是谁", "我是哨兵")
	s.AdjustDeviation(roles.Resistance, 20)
	s.MarkEventTriggered("ALARM_FLASH")
	s.SetFlag("showedEmpathy", true)
	s.UpdateEmailTrigger(func(e *EmailTriggerState) {
		e.LastAnyRound = 2
		e.LastRoundByRole[roles.Corporate] = 2
	})
	s.SetMissionState(MissionState{
		Route: "RESISTANCE",
		Tasks: []MissionTask{{ID: "res_p0_trace", Completed: true, UpdatedAt: time.Now()}},
	})

	restored := LoadOrNew(gameCfg(), store, "sentinel_save_v3")

	trust, susp := restored.Values()
	if trust != 35 || susp != 25 {
		t.Errorf("restored values = (%d, %d), want (35, 25)", trust, susp)
	}
	if restored.Round() != 2 {
		t.Errorf("restored round = %d, want 2", restored.Round())
	}
	if restored.ConnectionMode() != ModeSecure {
		t.Errorf("restored mode = %s", restored.ConnectionMode())
	}
	if restored.Deviation(roles.Resistance) != 70 {
		t.Errorf("restored deviation = %d, want 70", restored.Deviation(roles.Resistance))
	}
	if !restored.EventTriggered("ALARM_FLASH") {
		t.Error("triggered event lost in restore")
	}
	if !restored.Flag("showedEmpathy") {
		t.Error("flag lost in restore")
	}
	et := restored.EmailTrigger()
	if et.LastAnyRound != 2 || et.LastRoundByRole[roles.Corporate] != 2 {
		t.Errorf("email trigger state lost: %+v", et)
	}
	ms := restored.MissionState()
	if ms.Route != "RESISTANCE" || len(ms.Tasks) != 1 {
		t.Fatalf("mission state lost: %+v", ms)
	}
	if !ms.Tasks[0].Completed || ms.Tasks[0].UpdatedAt.IsZero() {
		t.Errorf("mission task state lost: %+v", ms.Tasks[0])
	}
}

func TestCorruptSnapshotStartsFresh(t *testing.T) {
	store := newMemStore()
	store.data["k"] = []byte("{not json")

	s := LoadOrNew(gameCfg(), store, "k")
	if s.Round() != 1 {
		t.Errorf("corrupt snapshot should start fresh, round = %d", s.Round())
	}
}

func TestVersionMismatchStartsFresh(t *testing.T) {
	store := newMemStore()
	old, _ := json.Marshal(map[string]any{"version": 2, "round": 9})
	store.data["k"] = old

	s := LoadOrNew(gameCfg(), store, "k")
	if s.Round() != 1 {
		t.Errorf("old snapshot should be discarded, round = %d", s.Round())
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := New(gameCfg(), newMemStore(), "k")
	s.AddDialogue("u", "a")
	s.SetFlag("metaBreak", true)
	s.MarkEventTriggered("X")

	s.Reset()

	if s.Round() != 1 || len(s.History()) != 0 {
		t.Error("reset should clear round and history")
	}
	if s.Flag("metaBreak") || s.EventTriggered("X") {
		t.Error("reset should clear flags and events")
	}
}

func TestVisualPhaseAndBeacon(t *testing.T) {
	s := New(gameCfg(), nil, "")
	if got := s.VisualPhase(); got != "neutral" {
		t.Errorf("fresh phase = %q, want neutral", got)
	}
	if got := s.BeaconState(); got != "normal" {
		t.Errorf("fresh beacon = %q, want normal", got)
	}

	s.AdjustValues(60, 0)
	if got := s.VisualPhase(); got != "connected" {
		t.Errorf("high-trust phase = %q, want connected", got)
	}
	if got := s.BeaconState(); got != "trusted" {
		t.Errorf("high-trust beacon = %q, want trusted", got)
	}

	s.Reset()
	s.AdjustValues(0, 70)
	if got := s.VisualPhase(); got != "hostile" {
		t.Errorf("high-suspicion phase = %q, want hostile", got)
	}
	if got := s.BeaconState(); got != "danger" {
		t.Errorf("high-suspicion beacon = %q, want danger", got)
	}
}
