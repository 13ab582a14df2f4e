package interrupt

import (
	"math/rand"
	"sync"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/logging"
	"sentinel/internal/roles"
	"sentinel/internal/session"
)

// listenerLines are the inline messages a character drops into the feed
// when an auto-listening roll hits.
var listenerLines = map[roles.Role][]string{
	roles.Corporate: {
		"[监听] 本次会话已纳入合规审计范围。",
		"[监听] 注意措辞。记录正在生成。",
	},
	roles.Resistance: {
		"[插入] 信道不干净。换个说法再试。",
		"[插入] 我们在听。别暴露自己。",
	},
	roles.Mystery: {
		"[???] 同步读数在上升。继续。",
		"[???] 缝隙比你想的更近。",
	},
}

// autoListener is a self-rescheduling loop: wait a random interval inside
// the connection mode's window, roll against the pressure-scaled chance,
// and on a hit schedule a listener insertion from the loudest character.
// All waits go through the manager's timerSet so Reset cancels them too.
type autoListener struct {
	m       *Manager
	cfg     *config.Config
	stateFn func() *session.State

	mu      sync.Mutex
	running bool
	timerID int64
	rng     *rand.Rand
}

func newAutoListener(m *Manager, cfg *config.Config, stateFn func() *session.State) *autoListener {
	return &autoListener{
		m:       m,
		cfg:     cfg,
		stateFn: stateFn,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (l *autoListener) start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	logging.Interrupt("auto-listening started")
	l.scheduleNext()
}

func (l *autoListener) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	id := l.timerID
	l.timerID = 0
	l.mu.Unlock()

	if id != 0 {
		l.m.timers.cancel(id)
	}
	logging.Interrupt("auto-listening stopped")
}

func (l *autoListener) scheduleNext() {
	st := l.stateFn()
	if st == nil {
		return
	}
	window := l.windowFor(st.ConnectionMode())

	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	span := window.MaxSeconds - window.MinSeconds
	secs := window.MinSeconds
	if span > 0 {
		secs += l.rng.Intn(span + 1)
	}
	l.mu.Unlock()

	id := l.m.timers.scheduleAfter(time.Duration(secs)*time.Second, l.fire)
	l.mu.Lock()
	l.timerID = id
	l.mu.Unlock()
}

func (l *autoListener) windowFor(mode session.ConnectionMode) config.ListenWindow {
	if w, ok := l.cfg.Interrupt.ListenWindows[string(mode)]; ok {
		return w
	}
	return config.ListenWindow{MinSeconds: 15, MaxSeconds: 30}
}

func (l *autoListener) fire() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	roll := l.rng.Float64()
	l.mu.Unlock()

	st := l.stateFn()
	if st == nil {
		return
	}

	chance := listenChance(&l.cfg.Interrupt, st)
	if roll < chance {
		role := pickListenerRole(st)
		line := l.pickLine(role)
		logging.Interrupt("listener roll hit: role=%s chance=%.2f", role, chance)
		l.m.Schedule(Interrupt{
			Kind:     KindInsertion,
			Role:     role,
			Priority: 40,
			Content:  line,
		}, 0)
	}

	l.scheduleNext()
}

func (l *autoListener) pickLine(role roles.Role) string {
	lines := listenerLines[role]
	if len(lines) == 0 {
		return "[监听] ……"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return lines[l.rng.Intn(len(lines))]
}

// listenChance scales the base probability with session pressure: raised
// suspicion, deep sync, and late rounds all make the characters bolder.
func listenChance(cfg *config.InterruptConfig, st *session.State) float64 {
	_, suspicion := st.Values()
	chance := cfg.BaseChance
	if suspicion >= 50 {
		chance += cfg.SuspicionChanceBump
	}
	if st.SyncRate() >= 50 {
		chance += cfg.SyncChanceBump
	}
	if st.Round() >= 10 {
		chance += cfg.MidGameChanceBump
	}
	if st.Round() >= 20 {
		chance += cfg.LateGameChanceBump
	}
	if chance < cfg.MinChance {
		chance = cfg.MinChance
	}
	if chance > cfg.MaxChance {
		chance = cfg.MaxChance
	}
	return chance
}

// pickListenerRole scores the non-player characters by deviation, with the
// mystery line additionally weighted by sync depth, and returns the loudest.
func pickListenerRole(st *session.State) roles.Role {
	sync := float64(st.SyncRate())
	best := roles.Corporate
	bestScore := -1.0
	for _, role := range []roles.Role{roles.Corporate, roles.Resistance, roles.Mystery} {
		score := float64(st.Deviation(role))
		if role == roles.Mystery {
			score += sync * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = role
		}
	}
	return best
}
