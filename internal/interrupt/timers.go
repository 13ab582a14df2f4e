package interrupt

import (
	"sync"
	"time"
)

// timerSet is the single owner of every deferred callback in this package.
// Arming always goes through scheduleAfter and teardown always goes through
// cancelAll, so a session reset cannot leave a stale timer behind to fire
// into freshly reinitialized state.
type timerSet struct {
	mu     sync.Mutex
	next   int64
	timers map[int64]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[int64]*time.Timer)}
}

// scheduleAfter arms fn to run after d. The callback unregisters itself
// before running, so cancelAll after the fact is a no-op for it.
func (ts *timerSet) scheduleAfter(d time.Duration, fn func()) int64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.next++
	id := ts.next
	ts.timers[id] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		_, live := ts.timers[id]
		delete(ts.timers, id)
		ts.mu.Unlock()
		if live {
			fn()
		}
	})
	return id
}

func (ts *timerSet) cancel(id int64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[id]; ok {
		t.Stop()
		delete(ts.timers, id)
	}
}

func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for id, t := range ts.timers {
		t.Stop()
		delete(ts.timers, id)
	}
}

func (ts *timerSet) pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}
