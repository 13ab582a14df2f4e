package session

import (
	"encoding/json"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/logging"
	"sentinel/internal/roles"
)

// snapshotVersion is bumped on breaking layout changes. There is no
// migration path: a mismatched snapshot is discarded and the session starts
// fresh. The save key carries the same major version.
const snapshotVersion = 3

type snapshot struct {
	Version int `json:"version"`

	Ledger         *Ledger        `json:"ledger"`
	Round          int            `json:"round"`
	MaxRounds      int            `json:"maxRounds"`
	ConnectionMode ConnectionMode `json:"connectionMode"`
	MissionRate    float64        `json:"missionRate"`
	Mission        MissionState   `json:"mission"`

	TotalTime float64 `json:"totalTime"`
	TimeLeft  float64 `json:"timeLeft"`

	Flags                 map[string]bool `json:"flags"`
	LastGlitchRound       int             `json:"lastGlitchRound"`
	LastDynamicEmailRound int             `json:"lastDynamicEmailRound"`

	History           []DialogueEntry `json:"history"`
	CoreMemories      []string        `json:"coreMemories"`
	UnlockedFragments []string        `json:"unlockedFragments"`

	TriggeredEvents map[string]bool   `json:"triggeredEvents"`
	EmailTrigger    EmailTriggerState `json:"emailTrigger"`

	FinalQuestion *FinalQuestion `json:"finalQuestion"`
	FinalAnswer   string         `json:"finalAnswer"`
	PendingEnding Ending         `json:"pendingEnding"`

	SavedAt int64 `json:"savedAt"`
}

// persist writes the current snapshot through the store. Must be called
// with the lock held. Failures are logged and swallowed: losing a save
// must never kill a running session.
func (s *State) persist() {
	if s.saver == nil {
		return
	}
	data, err := json.Marshal(s.buildSnapshot())
	if err != nil {
		logging.StoreError("snapshot marshal failed: %v", err)
		return
	}
	if err := s.saver.Put(s.saveKey, data); err != nil {
		logging.StoreError("snapshot save failed: %v", err)
	}
}

func (s *State) buildSnapshot() snapshot {
	return snapshot{
		Version:               snapshotVersion,
		Ledger:                s.ledger,
		Round:                 s.round,
		MaxRounds:             s.maxRounds,
		ConnectionMode:        s.connectionMode,
		MissionRate:           s.missionRate,
		Mission:               s.missionState,
		TotalTime:             s.clock.TotalTime,
		TimeLeft:              s.clock.TimeLeft,
		Flags:                 s.flags,
		LastGlitchRound:       s.lastGlitchRound,
		LastDynamicEmailRound: s.lastDynamicEmail,
		History:               s.history,
		CoreMemories:          s.coreMemories,
		UnlockedFragments:     s.unlockedFragments,
		TriggeredEvents:       s.triggeredEvents,
		EmailTrigger:          s.emailTrigger,
		FinalQuestion:         s.finalQuestion,
		FinalAnswer:           s.finalAnswer,
		PendingEnding:         s.pendingEnding,
		SavedAt:               time.Now().UnixMilli(),
	}
}

// Loader reads saved snapshots. Implemented by the sqlite save store.
type Loader interface {
	Get(key string) ([]byte, bool, error)
}

// LoadOrNew restores a session from the store, falling back to a fresh one
// when there is no snapshot, the snapshot is corrupt, or its version does
// not match.
func LoadOrNew(cfg *config.GameConfig, store interface {
	Loader
	Saver
}, saveKey string) *State {
	data, found, err := store.Get(saveKey)
	if err != nil {
		logging.StoreError("snapshot load failed: %v", err)
		return New(cfg, store, saveKey)
	}
	if !found {
		return New(cfg, store, saveKey)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logging.StoreError("snapshot corrupt, starting fresh: %v", err)
		return New(cfg, store, saveKey)
	}
	if snap.Version != snapshotVersion || snap.Ledger == nil {
		logging.Store("snapshot version %d != %d, starting fresh", snap.Version, snapshotVersion)
		return New(cfg, store, saveKey)
	}

	s := &State{
		cfg:     cfg,
		saver:   store,
		saveKey: saveKey,
	}
	s.restore(snap)
	logging.Session("session restored: round=%d/%d trust=%d suspicion=%d left=%ds",
		s.round, s.maxRounds, s.ledger.Trust, s.ledger.Suspicion, s.clock.Remaining())
	return s
}

func (s *State) restore(snap snapshot) {
	s.ledger = snap.Ledger
	if s.ledger.Deviations == nil {
		s.ledger.Deviations = make(map[roles.Role]int)
	}
	s.round = snap.Round
	if s.round < 1 {
		s.round = 1
	}
	s.connectionMode = snap.ConnectionMode
	if s.connectionMode == "" {
		s.connectionMode = ModeStandard
	}
	s.missionRate = snap.MissionRate
	s.missionState = snap.Mission

	s.clock = NewClock(
		time.Duration(s.cfg.DurationSeconds)*time.Second,
		time.Duration(s.cfg.OtherTimeInfluenceCooldownSeconds)*time.Second,
		s.cfg.SentinelTimeInfluenceMax,
		s.cfg.OtherTimeInfluenceMax,
	)
	s.clock.TotalTime = snap.TotalTime
	s.clock.TimeLeft = snap.TimeLeft
	// Reconstruct the start point so compression accounting stays coherent.
	elapsed := snap.TotalTime - snap.TimeLeft
	if elapsed < 0 {
		elapsed = 0
	}
	s.clock.startTime = s.clock.now().Add(-time.Duration(elapsed * float64(time.Second)))
	s.clock.lastUpdate = s.clock.now()

	// Missing flags pick up their defaults; unknown saved flags are dropped.
	s.flags = defaultFlags()
	for k, v := range snap.Flags {
		if _, ok := s.flags[k]; ok {
			s.flags[k] = v
		}
	}
	s.lastGlitchRound = snap.LastGlitchRound
	s.lastDynamicEmail = snap.LastDynamicEmailRound

	s.history = snap.History
	s.coreMemories = snap.CoreMemories
	s.unlockedFragments = snap.UnlockedFragments

	s.triggeredEvents = snap.TriggeredEvents
	if s.triggeredEvents == nil {
		s.triggeredEvents = make(map[string]bool)
	}
	s.emailTrigger = snap.EmailTrigger
	if s.emailTrigger.LastRoundByRole == nil {
		s.emailTrigger.LastRoundByRole = make(map[roles.Role]int)
	}

	s.finalQuestion = snap.FinalQuestion
	s.finalAnswer = snap.FinalAnswer
	s.pendingEnding = snap.PendingEnding

	s.recomputeMaxRounds()
}
