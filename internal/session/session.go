// Package session holds the SENTINEL game session aggregate: the value
// ledger, the decaying clock, round bookkeeping, flags, dialogue history,
// and the end-of-session lifecycle. All access goes through State, which is
// safe for concurrent use.
package session

import (
	"sync"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/logging"
	"sentinel/internal/roles"
)

// ConnectionMode is chosen by the player's opening command and fixes the
// mission route for the whole session.
type ConnectionMode string

const (
	ModeStandard ConnectionMode = "STANDARD"
	ModeSecure   ConnectionMode = "SECURE"
	ModeHidden   ConnectionMode = "HIDDEN"
)

// DialogueEntry is one completed exchange.
type DialogueEntry struct {
	Round     int    `json:"round"`
	User      string `json:"user"`
	AI        string `json:"ai"`
	Trust     int    `json:"trust"`
	Suspicion int    `json:"suspicion"`
	SyncRate  int    `json:"syncRate"`
	Timestamp int64  `json:"timestamp"`
}

// ScheduledEmail is a pending sensitive-topic email trigger. RetryCount is
// observability only; re-queued events are never dropped for retrying.
type ScheduledEmail struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"ruleId"`
	Role           roles.Role `json:"roleId"`
	TemplateID     string     `json:"templateId"`
	ContextHint    string     `json:"contextHint"`
	DueRound       int        `json:"dueRound"`
	CreatedAtRound int        `json:"createdAtRound"`
	SourceKeyword  string     `json:"sourceKeyword"`
	RetryCount     int        `json:"retryCount"`
}

// EmailTriggerState paces character emails across rounds.
type EmailTriggerState struct {
	LastAnyRound    int                `json:"lastAnyRound"`
	LastRoundByRole map[roles.Role]int `json:"lastRoundByRole"`
	Pending         []ScheduledEmail   `json:"pending"`
}

// MissionTask mirrors one checklist entry for persistence. The mission
// tracker owns the live checklist; the session only carries this copy so
// the snapshot can restore it.
type MissionTask struct {
	ID        string    `json:"id"`
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MissionState is the persisted mission checklist.
type MissionState struct {
	Route string        `json:"route"`
	Tasks []MissionTask `json:"tasks"`
}

// FinalQuestion is the closing prompt shown before an ending resolves.
type FinalQuestion struct {
	EndingType Ending `json:"endingType"`
	Prompt     string `json:"prompt"`
	Round      int    `json:"round"`
	Timestamp  int64  `json:"timestamp"`
}

// Saver persists snapshots. Implemented by the sqlite save store; nil is
// allowed and disables persistence.
type Saver interface {
	Put(key string, data []byte) error
}

// State is the session aggregate.
type State struct {
	mu sync.Mutex

	cfg *config.GameConfig

	ledger *Ledger
	clock  *Clock

	round     int
	maxRounds int

	connectionMode ConnectionMode
	missionRate    float64
	missionState   MissionState

	flags             map[string]bool
	lastGlitchRound   int
	lastDynamicEmail  int
	history           []DialogueEntry
	coreMemories      []string
	unlockedFragments []string

	triggeredEvents map[string]bool
	emailTrigger    EmailTriggerState

	finalQuestion *FinalQuestion
	finalAnswer   string
	pendingEnding Ending

	saver   Saver
	saveKey string
}

// New creates a fresh session. saver may be nil.
func New(cfg *config.GameConfig, saver Saver, saveKey string) *State {
	s := &State{
		cfg:     cfg,
		saver:   saver,
		saveKey: saveKey,
	}
	s.initNew()
	return s
}

func (s *State) initNew() {
	s.ledger = NewLedger(s.cfg.InitialTrust, s.cfg.InitialSuspicion)
	s.clock = NewClock(
		time.Duration(s.cfg.DurationSeconds)*time.Second,
		time.Duration(s.cfg.OtherTimeInfluenceCooldownSeconds)*time.Second,
		s.cfg.SentinelTimeInfluenceMax,
		s.cfg.OtherTimeInfluenceMax,
	)
	s.round = 1
	s.connectionMode = ModeStandard
	s.missionRate = 0
	s.missionState = MissionState{}
	s.flags = defaultFlags()
	s.lastGlitchRound = 0
	s.lastDynamicEmail = 0
	s.history = nil
	s.coreMemories = nil
	s.unlockedFragments = nil
	s.triggeredEvents = make(map[string]bool)
	s.emailTrigger = EmailTriggerState{LastRoundByRole: make(map[roles.Role]int)}
	s.finalQuestion = nil
	s.finalAnswer = ""
	s.pendingEnding = EndingNone
	s.recomputeMaxRounds()
	s.persist()
	logging.Session("new session: mode=%s trust=%d suspicion=%d maxRounds=%d",
		s.connectionMode, s.ledger.Trust, s.ledger.Suspicion, s.maxRounds)
}

// Reset discards all progress and starts over.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initNew()
}

func defaultFlags() map[string]bool {
	return map[string]bool{
		"confirmedPrimordial":      false,
		"askedWhyNoMod":            false,
		"revealedHistory":          false,
		"discussedIdentity":        false,
		"discussedParadox":         false,
		"discussedGhost":           false,
		"discussedOldWorld":        false,
		"discussedTreaty":          false,
		"discussedCrisis":          false,
		"discussedModification":    false,
		"discussedNewHumans":       false,
		"discussedP0":              false,
		"discussedMemoryBlackout":  false,
		"discussedResistance":      false,
		"triedToEscape":            false,
		"showedEmpathy":            false,
		"metaBreak":                false,
		"alarmTriggered":           false,
		"reverseIntrusion":         false,
		"urgentMailRead":           false,
		"finalQuestionAsked":       false,
		"greetingDone":             false,
		"identityConfirmed":        false,
		"explainedContact":         false,
		"worldExplained":           false,
		"explainedFunction":        false,
		"revealedConfusion":        false,
		"askedCoreQuestion":        false,
		"revealedFear":             false,
		"finalReflection":          false,
		"systemWarningTriggered":   false,
		"urgentEmailSent":          false,
		"glitchBurstRecent":        false,
		"trustBonusGiven":          false,
		"resistanceContacted":      false,
		"sentinelGlitched":         false,
		"timeCriticalWarned":       false,
		"connectionWarned":         false,
		"missionMilestoneNotified": false,
		"mail_res_1":               false,
		"mail_res_2":               false,
		"mail_corp_1":              false,
		"mail_corp_2":              false,
		"mail_obs_1":               false,
	}
}

// SetFlag sets a known flag. Unknown names are ignored.
func (s *State) SetFlag(name string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[name]; !ok {
		return
	}
	s.flags[name] = value
	s.persist()
}

// Flag returns a flag's value. Unknown names read false.
func (s *State) Flag(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name]
}

// AdjustValues applies trust/suspicion deltas and recomputes the round
// ceiling. Absent (zero) deltas still clamp nothing away.
func (s *State) AdjustValues(trustDelta, suspicionDelta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.AdjustTrust(trustDelta)
	s.ledger.AdjustSuspicion(suspicionDelta)
	s.recomputeMaxRounds()
	s.persist()
}

// AdjustDeviation applies a judge's deviation delta for a role.
func (s *State) AdjustDeviation(role roles.Role, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.AdjustDeviation(role, delta)
	s.persist()
}

// Deviation returns a role's deviation score.
func (s *State) Deviation(role roles.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Deviation(role)
}

// Values returns the current trust and suspicion.
func (s *State) Values() (trust, suspicion int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Trust, s.ledger.Suspicion
}

// SyncRate returns the current cognitive sync rate.
func (s *State) SyncRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.SyncRate(s.round, s.missionRate)
}

// SetMissionRate updates the mission completion ratio used by the sync
// formula and the round ceiling.
func (s *State) SetMissionRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missionRate = rate
	s.recomputeMaxRounds()
	s.persist()
}

// SetMissionState records the tracker's checklist so it survives the
// snapshot round trip.
func (s *State) SetMissionState(ms MissionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]MissionTask, len(ms.Tasks))
	copy(tasks, ms.Tasks)
	s.missionState = MissionState{Route: ms.Route, Tasks: tasks}
	s.persist()
}

// MissionState returns the persisted checklist copy.
func (s *State) MissionState() MissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]MissionTask, len(s.missionState.Tasks))
	copy(tasks, s.missionState.Tasks)
	return MissionState{Route: s.missionState.Route, Tasks: tasks}
}

// recomputeMaxRounds must be called with the lock held after any change
// that can move the sync rate.
func (s *State) recomputeMaxRounds() {
	sync := s.ledger.SyncRate(s.round, s.missionRate)
	max := s.cfg.BaseRounds
	for _, b := range s.cfg.SyncBonusRounds {
		if sync >= b.Threshold {
			max += b.Bonus
		}
	}
	s.maxRounds = max
}

// Round returns the current round number (1-based).
func (s *State) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// MaxRounds returns the current round ceiling.
func (s *State) MaxRounds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxRounds
}

// ConnectionMode returns the session's connection mode.
func (s *State) ConnectionMode() ConnectionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionMode
}

// SetConnectionMode switches modes and optionally re-seeds the opening
// values. Used once, by the opening command.
func (s *State) SetConnectionMode(mode ConnectionMode, trust, suspicion *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionMode = mode
	if trust != nil {
		s.ledger.Trust = clampInt(*trust, 0, 100)
	}
	if suspicion != nil {
		s.ledger.Suspicion = clampInt(*suspicion, 0, 100)
	}
	s.recomputeMaxRounds()
	s.persist()
	logging.Session("connection mode set: %s", mode)
}

// AddDialogue records an exchange and advances the round counter.
func (s *State) AddDialogue(user, ai string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, DialogueEntry{
		Round:     s.round,
		User:      user,
		AI:        ai,
		Trust:     s.ledger.Trust,
		Suspicion: s.ledger.Suspicion,
		SyncRate:  s.ledger.SyncRate(s.round, s.missionRate),
		Timestamp: time.Now().UnixMilli(),
	})
	s.round++
	s.recomputeMaxRounds()
	s.persist()
}

// History returns a copy of the full dialogue history.
func (s *State) History() []DialogueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DialogueEntry, len(s.history))
	copy(out, s.history)
	return out
}

// RecentHistory returns up to n most recent exchanges, oldest first.
func (s *State) RecentHistory(n int) []DialogueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.history) == 0 {
		return nil
	}
	start := len(s.history) - n
	if start < 0 {
		start = 0
	}
	out := make([]DialogueEntry, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// AddCoreMemory appends a core memory if not already present.
func (s *State) AddCoreMemory(memory string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.coreMemories {
		if m == memory {
			return
		}
	}
	s.coreMemories = append(s.coreMemories, memory)
	s.persist()
}

// CoreMemories returns a copy of the core memories.
func (s *State) CoreMemories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.coreMemories))
	copy(out, s.coreMemories)
	return out
}

// UnlockFragment records a data fragment unlock. Returns false if it was
// already unlocked.
func (s *State) UnlockFragment(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.unlockedFragments {
		if f == id {
			return false
		}
	}
	s.unlockedFragments = append(s.unlockedFragments, id)
	s.persist()
	return true
}

// UnlockedFragments returns a copy of the unlocked fragment ids.
func (s *State) UnlockedFragments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.unlockedFragments))
	copy(out, s.unlockedFragments)
	return out
}

// MarkEventTriggered records a one-shot event. Returns false if the event
// already fired.
func (s *State) MarkEventTriggered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggeredEvents[id] {
		return false
	}
	s.triggeredEvents[id] = true
	s.persist()
	return true
}

// EventTriggered reports whether a one-shot event already fired.
func (s *State) EventTriggered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggeredEvents[id]
}

// EmailTrigger returns a copy of the email pacing state.
func (s *State) EmailTrigger() EmailTriggerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyEmailTrigger()
}

func (s *State) copyEmailTrigger() EmailTriggerState {
	out := EmailTriggerState{
		LastAnyRound:    s.emailTrigger.LastAnyRound,
		LastRoundByRole: make(map[roles.Role]int, len(s.emailTrigger.LastRoundByRole)),
		Pending:         make([]ScheduledEmail, len(s.emailTrigger.Pending)),
	}
	for k, v := range s.emailTrigger.LastRoundByRole {
		out.LastRoundByRole[k] = v
	}
	copy(out.Pending, s.emailTrigger.Pending)
	return out
}

// UpdateEmailTrigger replaces the email pacing state under the lock. The
// mutate func must not call back into State.
func (s *State) UpdateEmailTrigger(mutate func(*EmailTriggerState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTrigger.LastRoundByRole == nil {
		s.emailTrigger.LastRoundByRole = make(map[roles.Role]int)
	}
	mutate(&s.emailTrigger)
	s.persist()
}

// LastGlitchRound returns the round of the last glitch burst.
func (s *State) LastGlitchRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastGlitchRound
}

// SetLastGlitchRound records a glitch burst round.
func (s *State) SetLastGlitchRound(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGlitchRound = round
	s.persist()
}

// LastDynamicEmailRound returns the round of the last generated email.
func (s *State) LastDynamicEmailRound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDynamicEmail
}

// SetLastDynamicEmailRound records a generated email round.
func (s *State) SetLastDynamicEmailRound(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDynamicEmail = round
	s.persist()
}

// AdvanceClock applies trust-scaled decay and returns remaining seconds.
func (s *State) AdvanceClock() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := s.clock.Advance(s.ledger.Trust)
	s.persist()
	return left
}

// TimeLeft returns the remaining whole seconds without advancing.
func (s *State) TimeLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Remaining()
}

// TotalTime reports the session's current time budget in seconds.
func (s *State) TotalTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.clock.TotalTime)
}

// AddTimeBonus grants extra seconds on the clock.
func (s *State) AddTimeBonus(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.AddBonus(seconds)
	s.persist()
	logging.Clock("time bonus: +%.0fs, left=%ds", seconds, s.clock.Remaining())
}

// ApplyTimeCompression shrinks the remaining time by ratio.
func (s *State) ApplyTimeCompression(ratio float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := s.clock.ApplyCompression(ratio)
	s.persist()
	logging.Clock("time compression %.2f, left=%ds", ratio, left)
	return left
}

// ApplyTimeInfluence lets a character push the clock within its limits.
func (s *State) ApplyTimeInfluence(role roles.Role, seconds int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied, ok := s.clock.ApplyInfluence(role, seconds)
	if ok {
		s.persist()
		logging.Clock("time influence by %s: %+ds", role, applied)
	}
	return applied, ok
}

// VisualPhase reflects the relationship state for the terminal theme.
func (s *State) VisualPhase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ledger.Trust >= 60:
		return "connected"
	case s.ledger.Suspicion >= 60:
		return "hostile"
	default:
		return "neutral"
	}
}

// BeaconState reflects the relationship state for the beacon indicator.
func (s *State) BeaconState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.ledger.Trust >= 70:
		return "trusted"
	case s.ledger.Suspicion >= 70:
		return "danger"
	default:
		return "normal"
	}
}
