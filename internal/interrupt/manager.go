package interrupt

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"sentinel/internal/config"
	"sentinel/internal/logging"
	"sentinel/internal/roles"
	"sentinel/internal/session"
)

// Kind classifies an interrupt by how it reaches the player.
type Kind string

const (
	KindEmail     Kind = "email"
	KindInsertion Kind = "insertion"
	KindAlert     Kind = "alert"
	KindGlitch    Kind = "glitch"
)

// Interrupt is a character action delivered outside the normal reply flow.
type Interrupt struct {
	ID       string
	Kind     Kind
	Role     roles.Role
	Priority int
	Content  string
	// Payload carries a kind-specific value the subscriber knows how to
	// render, typically an *events.Event for emails.
	Payload any
}

// Listener receives delivered interrupts. Called from the manager's drain
// goroutine, never while the manager lock is held.
type Listener func(Interrupt)

// Manager queues, paces, and delivers character interrupts. Scheduling is
// non-blocking: delayed interrupts arm a timer, immediate ones enter the
// priority queue, and a single drain goroutine spaces deliveries by the
// configured minimum interval.
type Manager struct {
	mu       sync.Mutex
	cfg      *config.Config
	queue    []Interrupt
	timers   *timerSet
	dedup    *lru.Cache[string, struct{}]
	listener Listener

	enabled      bool
	draining     bool
	lastDispatch time.Time

	listen *autoListener

	now func() time.Time
}

// NewManager builds a manager delivering to listener. The state getter is
// consulted by the auto-listening loop at fire time; it must return the
// live session, never a snapshot.
func NewManager(cfg *config.Config, stateFn func() *session.State, listener Listener) *Manager {
	dedup, _ := lru.New[string, struct{}](dedupSize(cfg))
	m := &Manager{
		cfg:      cfg,
		timers:   newTimerSet(),
		dedup:    dedup,
		listener: listener,
		enabled:  true,
		now:      time.Now,
	}
	m.listen = newAutoListener(m, cfg, stateFn)
	return m
}

func dedupSize(cfg *config.Config) int {
	if cfg.Interrupt.DedupWindow > 0 {
		return cfg.Interrupt.DedupWindow
	}
	return 50
}

// Schedule queues an interrupt for delivery after delay. Returns the
// interrupt id, or "" when the role lacks the capability for this kind or
// the content already sits inside the dedup window. Both drops are silent.
// Delayed duplicates are dropped when their timer fires.
func (m *Manager) Schedule(it Interrupt, delay time.Duration) string {
	if !roles.CanPerform(it.Role, actionForKind(it.Kind)) {
		logging.InterruptDebug("drop (permission): role=%s kind=%s", it.Role, it.Kind)
		return ""
	}

	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return ""
	}
	m.mu.Unlock()

	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if delay > 0 {
		m.timers.scheduleAfter(delay, func() { m.addToQueue(it) })
		logging.Interrupt("armed: id=%s role=%s kind=%s delay=%s", it.ID, it.Role, it.Kind, delay)
		return it.ID
	}
	if !m.addToQueue(it) {
		return ""
	}
	return it.ID
}

func actionForKind(k Kind) roles.Action {
	switch k {
	case KindEmail:
		return roles.ActionSendEmail
	default:
		return roles.ActionInsertMessage
	}
}

// addToQueue inserts by descending priority and starts the drain loop if
// it is not already running. The dedup window is checked and recorded
// here, at enqueue time, so a burst of identical interrupts collapses to
// one queued delivery even before the first one drains. Safe to call from
// timer callbacks.
func (m *Manager) addToQueue(it Interrupt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	if it.Content != "" {
		if m.dedup.Contains(it.Content) {
			logging.InterruptDebug("drop (duplicate): role=%s kind=%s", it.Role, it.Kind)
			return false
		}
		m.dedup.Add(it.Content, struct{}{})
	}

	m.queue = append(m.queue, it)
	sort.SliceStable(m.queue, func(i, j int) bool {
		return m.queue[i].Priority > m.queue[j].Priority
	})

	if !m.draining {
		m.draining = true
		go m.drain()
	}
	return true
}

func (m *Manager) drain() {
	for {
		m.mu.Lock()
		if !m.enabled || len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		it := m.queue[0]
		m.queue = m.queue[1:]

		wait := m.minInterval() - m.now().Sub(m.lastDispatch)
		m.mu.Unlock()

		if wait > 0 {
			time.Sleep(wait)
		}

		m.mu.Lock()
		if !m.enabled {
			m.draining = false
			m.mu.Unlock()
			return
		}
		m.lastDispatch = m.now()
		listener := m.listener
		m.mu.Unlock()

		logging.Interrupt("delivered: id=%s role=%s kind=%s prio=%d", it.ID, it.Role, it.Kind, it.Priority)
		if listener != nil {
			listener(it)
		}
	}
}

func (m *Manager) minInterval() time.Duration {
	return m.cfg.GetInterruptMinInterval()
}

// SetEnabled toggles the manager. Disabling cancels every armed timer and
// drops the queue; an in-flight delivery finishes, nothing further runs.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	if !enabled {
		m.queue = nil
	}
	m.mu.Unlock()

	if !enabled {
		m.timers.cancelAll()
		m.listen.stop()
		logging.Interrupt("disabled, timers and queue cleared")
	}
}

// StartAutoListening begins the background listener loop. Idempotent.
func (m *Manager) StartAutoListening() { m.listen.start() }

// StopAutoListening halts the loop without touching the queue.
func (m *Manager) StopAutoListening() { m.listen.stop() }

// Reset cancels all timers and loops, clears the queue and the dedup
// window, and re-enables the manager for a fresh session.
func (m *Manager) Reset() {
	m.listen.stop()
	m.timers.cancelAll()

	m.mu.Lock()
	m.queue = nil
	m.dedup.Purge()
	m.enabled = true
	m.lastDispatch = time.Time{}
	m.mu.Unlock()

	logging.Interrupt("reset")
}

// PendingTimers reports how many deferred callbacks are armed.
func (m *Manager) PendingTimers() int {
	return m.timers.pending()
}

// QueueLen reports the number of queued, undelivered interrupts.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
