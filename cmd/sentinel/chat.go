// Interactive terminal session built on bubbletea. The model runs through
// four phases: the opening mailbox, the dialogue itself, the final question,
// and the ending overlay. Engine output arrives as tea messages through
// teaPresenter.
package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"sentinel/cmd/sentinel/ui"
	"sentinel/internal/config"
	"sentinel/internal/engine"
	"sentinel/internal/events"
	"sentinel/internal/llm"
	"sentinel/internal/logging"
	"sentinel/internal/mission"
	"sentinel/internal/session"
	"sentinel/internal/store"
	"sentinel/internal/worldview"
)

// phase is the top-level state of the TUI.
type phase int

const (
	phaseMailbox phase = iota
	phaseDialogue
	phaseFinal
	phaseEnded
)

// pane is an overlay on top of the dialogue view.
type pane int

const (
	paneNone pane = iota
	paneEmails
	paneArchive
)

// chatLine is one rendered line of conversation history.
type chatLine struct {
	role    string // "user", "ai", "system", "alert", "data"
	speaker string
	text    string
	time    time.Time
}

// inboxEmail is a mail received during the session, shown in the /emails
// pane.
type inboxEmail struct {
	From     string
	Subject  string
	Body     string
	Note     string
	Received time.Time
}

// Messages for tea updates
type (
	chatMsg     struct{ speaker, text string }
	systemMsg   struct{ level, text string }
	emailMsg    struct {
		email events.Email
		note  string
	}
	glitchMsg  struct{ effect string }
	statusMsg  struct{}
	finalMsg   struct{ prompt string }
	endingMsg  struct {
		title, text              string
		trust, suspicion, rounds int
	}
	turnDoneMsg struct{}
	tickMsg     time.Time
)

// teaPresenter forwards engine output into the bubbletea program. The
// program is attached after construction; anything sent before that is
// dropped, which only affects engine output produced before the UI exists.
type teaPresenter struct {
	mu   sync.Mutex
	prog *tea.Program
}

func (t *teaPresenter) attach(p *tea.Program) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prog = p
}

func (t *teaPresenter) send(m tea.Msg) {
	t.mu.Lock()
	p := t.prog
	t.mu.Unlock()
	if p != nil {
		p.Send(m)
	}
}

func (t *teaPresenter) Message(speaker, text string) { t.send(chatMsg{speaker, text}) }
func (t *teaPresenter) SystemEvent(level, text string) {
	t.send(systemMsg{level, text})
}
func (t *teaPresenter) UrgentEmail(email events.Email, note string) {
	t.send(emailMsg{email, note})
}
func (t *teaPresenter) Glitch(effect string)      { t.send(glitchMsg{effect}) }
func (t *teaPresenter) StatusChanged()            { t.send(statusMsg{}) }
func (t *teaPresenter) FinalQuestion(prompt string) { t.send(finalMsg{prompt}) }
func (t *teaPresenter) Ending(title, text string, trust, suspicion, rounds int) {
	t.send(endingMsg{title, text, trust, suspicion, rounds})
}

var _ engine.Presenter = (*teaPresenter)(nil)

// chatModel is the main model for the interactive session.
type chatModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// Layout
	width  int
	height int
	ready  bool

	// Phase state
	phase      phase
	pane       pane
	paneIndex  int
	mailIndex  int
	mailRead   []bool
	mailError  bool
	isLoading  bool

	// Conversation
	history []chatLine
	inbox   []inboxEmail

	// Ending overlay
	endingTitle  string
	endingText   string
	endingTrust  int
	endingSusp   int
	endingRounds int

	// Backend
	cfg     *config.Config
	st      *session.State
	tracker *mission.Tracker
	eng     *engine.Engine
}

func newChatModel(cfg *config.Config, st *session.State, tracker *mission.Tracker, eng *engine.Engine, resumed bool) *chatModel {
	styles := ui.DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = connectHint
	ti.Focus()
	ti.Prompt = "> "
	ti.CharLimit = cfg.Game.MaxInputRunes
	ti.Width = 72
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(76),
	)

	m := &chatModel{
		textinput: ti,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		phase:     phaseMailbox,
		mailRead:  make([]bool, len(openingEmails)),
		cfg:       cfg,
		st:        st,
		tracker:   tracker,
		eng:       eng,
	}

	if resumed {
		// A saved session skips the mailbox.
		m.phase = phaseDialogue
		m.textinput.Placeholder = "输入消息... (Enter 发送, Ctrl+C 退出)"
		m.history = append(m.history, chatLine{
			role: "system",
			text: fmt.Sprintf("[SESSION RESTORED] 第 %d/%d 轮 · 剩余 %s",
				st.Round(), st.MaxRounds(), session.FormatTime(st.TimeLeft())),
			time: time.Now(),
		})
		for _, entry := range st.RecentHistory(6) {
			m.history = append(m.history,
				chatLine{role: "user", speaker: "YOU", text: entry.User, time: time.Now()},
				chatLine{role: "ai", speaker: "SENTINEL", text: entry.AI, time: time.Now()},
			)
		}
	}
	return m
}

func (m *chatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, tickEvery()}
	if m.phase == phaseDialogue {
		cmds = append(cmds, m.startEngine())
	}
	return tea.Batch(cmds...)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// startEngine boots the clock loop and auto-listening.
func (m *chatModel) startEngine() tea.Cmd {
	return func() tea.Msg {
		m.eng.Start(context.Background())
		return nil
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 6 // header + status bar + input + padding
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.viewport.SetContent(m.renderHistory())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.textinput.Width = msg.Width - 6

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case chatMsg:
		m.appendLine(chatLine{role: "ai", speaker: msg.speaker, text: msg.text, time: time.Now()})

	case systemMsg:
		if cmd, handled := m.handleEngineSignal(msg); handled {
			return m, cmd
		}
		role := "system"
		if msg.level == "warn" || msg.level == "error" {
			role = "alert"
		}
		m.appendLine(chatLine{role: role, text: msg.text, time: time.Now()})

	case emailMsg:
		m.inbox = append(m.inbox, inboxEmail{
			From:     msg.email.From,
			Subject:  msg.email.Subject,
			Body:     msg.email.Body,
			Note:     msg.note,
			Received: time.Now(),
		})
		m.appendLine(chatLine{
			role: "data",
			text: fmt.Sprintf("%s\n收到新邮件: %s (输入 /emails 查看)", msg.note, msg.email.Subject),
			time: time.Now(),
		})

	case glitchMsg:
		m.appendLine(chatLine{role: "alert", text: "[SYSTEM] 信号干扰 ▓▒░ " + msg.effect, time: time.Now()})

	case statusMsg:
		// Status bar reads live state; a render is enough.

	case finalMsg:
		m.phase = phaseFinal
		m.textinput.Placeholder = "输入你的回答..."
		m.appendLine(chatLine{role: "ai", speaker: "SENTINEL", text: strings.TrimPrefix(msg.prompt, "SENTINEL: "), time: time.Now()})

	case endingMsg:
		m.phase = phaseEnded
		m.endingTitle = msg.title
		m.endingText = msg.text
		m.endingTrust = msg.trust
		m.endingSusp = msg.suspicion
		m.endingRounds = msg.rounds
		m.isLoading = false
		m.textinput.Blur()

	case turnDoneMsg:
		m.isLoading = false

	case tickMsg:
		return m, tickEvery()

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	if m.ready {
		m.viewport, vpCmd = m.viewport.Update(msg)
	}
	return m, tea.Batch(tiCmd, vpCmd)
}

// handleEngineSignal intercepts the engine's UI-open markers before they
// reach the transcript.
func (m *chatModel) handleEngineSignal(msg systemMsg) (tea.Cmd, bool) {
	switch msg.text {
	case "OPEN_EMAILS":
		m.pane = paneEmails
		m.paneIndex = 0
		return nil, true
	case "OPEN_ARCHIVE":
		m.pane = paneArchive
		m.paneIndex = 0
		return nil, true
	}
	return nil, false
}

func (m *chatModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	// Global keys first.
	switch msg.Type {
	case tea.KeyCtrlC:
		m.eng.Stop()
		return tea.Quit, true
	}

	if m.phase == phaseEnded {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.eng.Stop()
			return tea.Quit, true
		}
		return nil, true
	}

	if m.pane != paneNone {
		return m.handlePaneKey(msg), true
	}

	switch m.phase {
	case phaseMailbox:
		return m.handleMailboxKey(msg)
	case phaseDialogue, phaseFinal:
		if msg.Type == tea.KeyEnter {
			return m.submitInput(), true
		}
	}
	return nil, false
}

func (m *chatModel) handleMailboxKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyRight:
		m.mailRead[m.mailIndex] = true
		m.mailIndex = (m.mailIndex + 1) % len(openingEmails)
		return nil, true
	case tea.KeyLeft:
		m.mailRead[m.mailIndex] = true
		m.mailIndex = (m.mailIndex + len(openingEmails) - 1) % len(openingEmails)
		return nil, true
	case tea.KeyEnter:
		input := strings.TrimSpace(m.textinput.Value())
		if input == "" {
			m.mailRead[m.mailIndex] = true
			m.mailIndex = (m.mailIndex + 1) % len(openingEmails)
			return nil, true
		}
		mode, ok := parseConnectCommand(input)
		if !ok {
			m.mailError = true
			m.textinput.Reset()
			return nil, true
		}
		m.textinput.Reset()
		return m.connect(mode), true
	}
	return nil, false
}

// connect seeds the session for the chosen channel and starts the engine.
func (m *chatModel) connect(mode connectMode) tea.Cmd {
	trust, susp := mode.InitialTrust, mode.InitialSuspicion
	m.st.SetConnectionMode(mode.Mode, &trust, &susp)
	m.tracker.InitForRoute(mission.RouteForMode(mode.Mode))
	m.st.SetMissionState(m.tracker.StateSnapshot())
	logging.Session("connected: mode=%s trust=%d suspicion=%d", mode.Name, trust, susp)

	m.phase = phaseDialogue
	m.mailError = false
	m.textinput.Placeholder = "输入消息... (Enter 发送, Ctrl+C 退出)"

	m.appendLine(chatLine{
		role: "system",
		text: fmt.Sprintf("[CONNECTION ESTABLISHED] %s · %s", mode.Name, mode.Description),
		time: time.Now(),
	})
	m.appendLine(chatLine{
		role: "data",
		text: "身份: " + mode.Mission,
		time: time.Now(),
	})
	m.appendLine(chatLine{role: "ai", speaker: "SENTINEL", text: mode.OpeningLine, time: time.Now()})

	return m.startEngine()
}

// submitInput sends the typed line through the engine as one turn.
func (m *chatModel) submitInput() tea.Cmd {
	if m.isLoading {
		return nil
	}
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return nil
	}
	m.textinput.Reset()
	m.appendLine(chatLine{role: "user", speaker: "YOU", text: input, time: time.Now()})
	m.isLoading = true

	eng := m.eng
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		eng.ProcessTurn(context.Background(), input)
		return turnDoneMsg{}
	})
}

func (m *chatModel) appendLine(line chatLine) {
	m.history = append(m.history, line)
	if m.ready {
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
	}
}

// runInteractive wires the backend together and runs the TUI.
func runInteractive() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logging.Initialize(stateDir(cfg), cfg.Logging.Debug || verbose, cfg.Logging.Level); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	db, err := store.NewLocalStore(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open save store: %w", err)
	}
	defer db.Close()

	st := session.LoadOrNew(&cfg.Game, db, cfg.Store.SaveKey)
	tracker := mission.RestoreTracker(st)

	client, err := llm.NewGeminiClient(context.Background(), cfg, cfg.LLM.DialogueModel)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	worldviews := worldview.NewLoader(cfg.WorldviewDir)
	defer worldviews.Close()

	presenter := &teaPresenter{}
	eng := engine.New(engine.Deps{
		Config:     cfg,
		State:      st,
		Tracker:    tracker,
		Client:     client,
		Worldviews: worldviews,
		Presenter:  presenter,
	})

	resumed := len(st.History()) > 0
	model := newChatModel(cfg, st, tracker, eng, resumed)

	p := tea.NewProgram(model, tea.WithAltScreen())
	presenter.attach(p)

	if _, err := p.Run(); err != nil {
		eng.Stop()
		return fmt.Errorf("terminal session failed: %w", err)
	}
	eng.Stop()
	return nil
}
