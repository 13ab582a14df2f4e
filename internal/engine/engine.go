// Package engine sequences player turns end to end: sanitation, slash
// commands, dialogue generation, the judge pipeline, scheduled and random
// events, and the final-question flow. At most one turn is ever in flight.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sentinel/internal/archive"
	"sentinel/internal/config"
	"sentinel/internal/events"
	"sentinel/internal/interrupt"
	"sentinel/internal/llm"
	"sentinel/internal/logging"
	"sentinel/internal/mission"
	"sentinel/internal/roles"
	"sentinel/internal/sanitize"
	"sentinel/internal/session"
	"sentinel/internal/worldview"
)

// Presenter receives everything the engine wants shown. Implementations
// must tolerate calls from the clock loop and the interrupt drain
// goroutine, not just the turn goroutine.
type Presenter interface {
	Message(speaker, text string)
	SystemEvent(level, text string)
	UrgentEmail(email events.Email, note string)
	Glitch(effect string)
	StatusChanged()
	FinalQuestion(prompt string)
	Ending(title, text string, trust, suspicion, rounds int)
}

const flaggedInputPenalty = 10

var endingTitles = map[session.Ending]string{
	session.EndingTerminated: "[ CONNECTION TERMINATED ]",
	session.EndingTimeUp:     "[ SESSION TIMEOUT ]",
	session.EndingConnection: "[ TRUST ESTABLISHED ]",
	session.EndingNatural:    "[ SESSION COMPLETE ]",
	session.EndingPlayerExit: "[ DISCONNECTED BY USER ]",
}

var finalQuestions = map[session.Ending]string{
	session.EndingTerminated: "SENTINEL: 我们的对话到此为止了。你最后想说什么？",
	session.EndingTimeUp:     "SENTINEL: 时间已尽。在连接断开前，你想告诉我什么？",
	session.EndingConnection: "SENTINEL: 你真的理解我吗？在我们分别前，请告诉我。",
	session.EndingNatural:    "SENTINEL: 这次对话让我思考了很多。你对我有什么最后的话？",
	session.EndingPlayerExit: "SENTINEL: 你选择离开。在断开连接前，你还有什么想说的吗？",
}

// keywordFlags marks special conversation ground the player has touched,
// scanned on sanitized input each turn.
var keywordFlags = []struct {
	flag     string
	keywords []string
}{
	{"discussedIdentity", []string{"你是谁", "我是谁", "身份", "本质", "意识"}},
	{"discussedParadox", []string{"改造", "机器", "人类", "边界", "区别", "进化"}},
	{"revealedHistory", []string{"历史", "过去", "战争", "协议", "2037", "冷战"}},
	{"askedWhyNoMod", []string{"原初", "不改变", "原始", "自然", "为什么不"}},
}

// Engine owns the session state machine and all collaborators.
type Engine struct {
	cfg        *config.Config
	st         *session.State
	tracker    *mission.Tracker
	dialogue   *llm.DialogueGenerator
	judge      *llm.Judge
	emails     *llm.EmailGenerator
	endings    *llm.EndingGenerator
	interrupts *interrupt.Manager
	presenter  Presenter
	rng        *rand.Rand

	mu            sync.Mutex
	processing    bool
	finalActive   bool
	pendingEnding session.Ending
	deferredEnd   session.Ending
	ended         bool

	clockCancel context.CancelFunc
	group       *errgroup.Group
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Config     *config.Config
	State      *session.State
	Tracker    *mission.Tracker
	Client     llm.Client
	Worldviews *worldview.Loader
	Presenter  Presenter
}

func New(deps Deps) *Engine {
	e := &Engine{
		cfg:       deps.Config,
		st:        deps.State,
		tracker:   deps.Tracker,
		dialogue:  llm.NewDialogueGenerator(deps.Client, deps.Config, deps.Worldviews),
		judge:     llm.NewJudge(deps.Client, deps.Config, deps.Worldviews),
		emails:    llm.NewEmailGenerator(deps.Client, deps.Config, deps.Worldviews),
		endings:   llm.NewEndingGenerator(deps.Client, deps.Config, deps.Worldviews),
		presenter: deps.Presenter,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.interrupts = interrupt.NewManager(deps.Config, func() *session.State { return e.st }, e.onInterrupt)
	return e
}

// Interrupts exposes the scheduler for tests and the TUI status line.
func (e *Engine) Interrupts() *interrupt.Manager { return e.interrupts }

// Start launches the 1s clock loop and the auto-listening scheduler. The
// mission briefing email arrives shortly after connection, like a message
// that was already in flight.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	e.mu.Lock()
	e.clockCancel = cancel
	e.group = g
	e.mu.Unlock()

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				e.tick()
			}
		}
	})

	e.scheduleMissionBriefing()
	e.interrupts.StartAutoListening()
	logging.Session("engine started: mode=%s", e.st.ConnectionMode())
}

// Stop cancels the clock loop and all pending interrupts.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.clockCancel
	group := e.group
	e.clockCancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
	e.interrupts.SetEnabled(false)
}

// tick advances the countdown. Time running out mid-turn defers the
// transition until the turn completes; it never preempts one.
func (e *Engine) tick() {
	e.mu.Lock()
	if e.ended || e.finalActive {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.st.AdvanceClock()
	e.presenter.StatusChanged()

	if e.st.TimeLeft() > 0 {
		return
	}
	e.mu.Lock()
	if e.processing {
		e.deferredEnd = session.EndingTimeUp
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.beginFinalQuestion(session.EndingTimeUp)
}

// ProcessTurn runs one full player turn. Re-entrant calls while a turn is
// in flight are dropped.
func (e *Engine) ProcessTurn(ctx context.Context, raw string) {
	e.mu.Lock()
	if e.processing || e.ended {
		e.mu.Unlock()
		return
	}
	e.processing = true
	final := e.finalActive
	e.mu.Unlock()
	defer e.finishTurn()

	if final {
		e.handleFinalAnswer(ctx, raw)
		return
	}

	res := sanitize.Input(raw)
	if res.WasFlagged {
		e.st.AdjustValues(0, flaggedInputPenalty)
		logging.Session("flagged input: suspicion +%d", flaggedInputPenalty)
	}
	input := strings.TrimSpace(res.Clean)
	if input == "" {
		e.presenter.Message("SENTINEL", "我没有接收到有效输入。请再发送一次。")
		return
	}

	if strings.HasPrefix(input, "/") {
		if done := e.runCommand(input); done {
			return
		}
	} else {
		e.runDialogue(ctx, input)
	}

	e.runScheduledEvents(ctx, input)
	e.st.SetMissionState(e.tracker.StateSnapshot())
	e.presenter.StatusChanged()

	if ending := e.st.CheckEndCondition(); ending != session.EndingNone {
		e.beginFinalQuestion(ending)
	}
}

// runCommand dispatches a slash command. Returns true when the turn should
// stop here (UI-open actions and the exit transition).
func (e *Engine) runCommand(input string) bool {
	switch strings.ToLower(input) {
	case "/emails":
		e.presenter.SystemEvent("info", "OPEN_EMAILS")
		return true
	case "/archive":
		e.presenter.SystemEvent("info", "OPEN_ARCHIVE")
		return true
	case "/exit":
		e.st.SetFlag("triedToEscape", true)
		e.st.AdjustValues(0, 5)
		e.presenter.Message("SENTINEL", "[CONNECTION CLOSING]\n你选择了主动断开。")
		e.beginFinalQuestion(session.EndingPlayerExit)
		return true
	default:
		e.st.AdjustValues(0, 1)
		e.presenter.Message("SENTINEL", fmt.Sprintf("[未知指令: %s]\n可用命令: /emails, /archive, /exit", input))
		return false
	}
}

func (e *Engine) runDialogue(ctx context.Context, input string) {
	e.detectKeywordFlags(input)

	reply := e.dialogue.Reply(ctx, input, e.st, e.tracker)
	e.st.AdjustValues(reply.Effects.Trust, reply.Effects.Suspicion)
	e.st.AddDialogue(input, reply.Text)
	e.presenter.Message("SENTINEL", reply.Text)

	for _, tag := range reply.Events {
		e.handleEventTag(ctx, tag)
	}

	userFrag := archive.CheckUnlock(input, e.st, e.tracker)
	if userFrag != nil {
		e.presenter.SystemEvent("info", fmt.Sprintf("[DATA] 解锁新档案: %s", userFrag.Title))
	}
	if aiFrag := archive.CheckUnlock(reply.Text, e.st, e.tracker); aiFrag != nil && (userFrag == nil || aiFrag.ID != userFrag.ID) {
		e.presenter.SystemEvent("info", fmt.Sprintf("[DATA] 解锁新档案: %s", aiFrag.Title))
	}

	e.st.SetMissionRate(e.tracker.Progress().Rate)
	e.runJudgePipeline(ctx)
}

func (e *Engine) detectKeywordFlags(input string) {
	lower := strings.ToLower(input)
	for _, kf := range keywordFlags {
		for _, kw := range kf.keywords {
			if strings.Contains(lower, kw) {
				e.st.SetFlag(kf.flag, true)
				break
			}
		}
	}
}

// shouldRunJudge gates the route judge: always in the opening rounds, then
// with probability decaying toward the configured floor.
func (e *Engine) shouldRunJudge() bool {
	round := e.st.Round()
	always := e.cfg.Game.AlwaysJudgeRounds
	if round <= always {
		return true
	}
	chance := 1.0 - 0.15*float64(round-always)
	if chance < e.cfg.Game.JudgeFloorChance {
		chance = e.cfg.Game.JudgeFloorChance
	}
	return e.rng.Float64() < chance
}

func (e *Engine) runJudgePipeline(ctx context.Context) {
	if !e.shouldRunJudge() {
		return
	}

	result := e.judge.RouteTurn(ctx, e.st, e.tracker)
	completed := e.tracker.ApplyJudgeResult(e.st, result)
	e.st.SetMissionRate(e.tracker.Progress().Rate)
	if len(completed) > 0 {
		logging.Judge("tasks completed this turn: %v", completed)
	}

	if result.ShouldTriggerEmail && result.DeviationRole != "" {
		e.queueRoleEmail(ctx, result.DeviationRole, result.Reason)
	}

	mys := e.judge.MysteryTrigger(ctx, e.st)
	if mys.DeviationDelta != 0 {
		e.st.AdjustDeviation(roles.Mystery, mys.DeviationDelta)
	}
	if mys.ShouldTriggerEmail {
		e.queueRoleEmail(ctx, roles.Mystery, mys.Reason)
	}
	if mys.ShouldInsertMessage && mys.MessageHint != "" {
		e.interrupts.Schedule(interrupt.Interrupt{
			Kind:     interrupt.KindInsertion,
			Role:     roles.Mystery,
			Priority: 60,
			Content:  "[???] " + mys.MessageHint,
		}, 0)
	}
}

// queueRoleEmail generates a character email and queues it as an interrupt,
// respecting the per-role cooldown gates.
func (e *Engine) queueRoleEmail(ctx context.Context, role roles.Role, contextHint string) {
	if !events.CanTriggerEmailForRole(e.st, role, &e.cfg.Game) {
		logging.Events("role email suppressed by cooldown: %s", role)
		return
	}
	summary := missionSummary(e.tracker)
	email := e.emails.Generate(ctx, role, e.st, contextHint, summary)
	events.MarkEmailTriggered(e.st, role)
	e.interrupts.Schedule(interrupt.Interrupt{
		Kind:     interrupt.KindEmail,
		Role:     role,
		Priority: 70,
		Content:  email.Subject,
		Payload:  &events.Event{Type: events.TypeUrgentEmail, Email: &email, SourceRole: role},
	}, 0)
}

func missionSummary(tracker *mission.Tracker) string {
	p := tracker.Progress()
	return fmt.Sprintf("route=%s completed=%d/%d", p.Route, p.Completed, p.Total)
}

func (e *Engine) finishTurn() {
	e.mu.Lock()
	e.processing = false
	deferred := e.deferredEnd
	e.deferredEnd = session.EndingNone
	active := e.finalActive
	e.mu.Unlock()

	if deferred != session.EndingNone && !active {
		e.beginFinalQuestion(deferred)
	}
}

func (e *Engine) beginFinalQuestion(ending session.Ending) {
	e.mu.Lock()
	if e.finalActive || e.ended {
		e.mu.Unlock()
		return
	}
	e.finalActive = true
	e.pendingEnding = ending
	e.mu.Unlock()

	prompt, ok := finalQuestions[ending]
	if !ok {
		prompt = finalQuestions[session.EndingNatural]
	}
	e.st.BeginFinalQuestion(ending, prompt)

	e.interrupts.StopAutoListening()
	e.presenter.SystemEvent("info", "[FINAL QUERY INITIATED]")
	e.presenter.FinalQuestion(prompt)
	logging.Session("final question opened: ending=%s", ending)
}

func (e *Engine) handleFinalAnswer(ctx context.Context, answer string) {
	e.mu.Lock()
	ending := e.pendingEnding
	e.mu.Unlock()

	e.st.ResolveFinalAnswer(answer)
	e.presenter.Message("SENTINEL", "我记住了。")

	text := e.endings.Narrate(ctx, e.st, e.tracker, ending, answer)
	title, ok := endingTitles[ending]
	if !ok {
		title = "[ END ]"
	}

	trust, suspicion := e.st.Values()
	e.mu.Lock()
	e.ended = true
	e.finalActive = false
	e.mu.Unlock()

	e.interrupts.SetEnabled(false)
	e.presenter.Ending(title, text, trust, suspicion, e.st.Round())
	logging.Session("session ended: %s", ending)
}

// Reset cancels every pending timer before reinitializing state, so no
// stale callback can touch the fresh session.
func (e *Engine) Reset() {
	e.Stop()
	e.interrupts.Reset()

	e.st.Reset()
	e.tracker.InitForRoute(mission.RouteForMode(e.st.ConnectionMode()))
	e.st.SetMissionState(e.tracker.StateSnapshot())

	e.mu.Lock()
	e.processing = false
	e.finalActive = false
	e.pendingEnding = session.EndingNone
	e.deferredEnd = session.EndingNone
	e.ended = false
	e.mu.Unlock()
	logging.Session("engine reset")
}

// Ended reports whether the session has reached its ending screen.
func (e *Engine) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// FinalQuestionActive reports whether the next input answers the closing
// prompt instead of continuing the dialogue.
func (e *Engine) FinalQuestionActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalActive
}
