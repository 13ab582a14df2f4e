package worldview

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"sentinel/internal/logging"
	"sentinel/internal/roles"
)

// Loader serves per-role worldview documents from a directory of markdown
// files (<role>.md), caching reads and invalidating entries when the file
// changes on disk. A missing file is an empty worldview, not an error.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[roles.Role]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader builds a loader over dir. The directory is watched when
// possible; if watching fails the loader still works, it just re-reads
// nothing until Invalidate is called.
func NewLoader(dir string) *Loader {
	l := &Loader{
		dir:   dir,
		cache: make(map[roles.Role]string),
		done:  make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Session("worldview watcher unavailable: %v", err)
		return l
	}
	if err := watcher.Add(dir); err != nil {
		logging.Session("worldview dir not watchable: %v", err)
		watcher.Close()
		return l
	}
	l.watcher = watcher
	go l.watch()
	return l
}

func (l *Loader) watch() {
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				name := strings.TrimSuffix(filepath.Base(ev.Name), ".md")
				l.Invalidate(roles.Role(name))
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		case <-l.done:
			return
		}
	}
}

// Get returns the worldview text for a role, reading through the cache.
func (l *Loader) Get(role roles.Role) string {
	l.mu.RLock()
	if text, ok := l.cache[role]; ok {
		l.mu.RUnlock()
		return text
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(l.dir, string(role)+".md"))
	text := ""
	if err == nil {
		text = strings.TrimSpace(string(data))
	} else if !os.IsNotExist(err) {
		logging.Session("worldview read failed for %s: %v", role, err)
	}

	l.mu.Lock()
	l.cache[role] = text
	l.mu.Unlock()
	return text
}

// Invalidate drops a role's cached text so the next Get re-reads it.
func (l *Loader) Invalidate(role roles.Role) {
	l.mu.Lock()
	delete(l.cache, role)
	l.mu.Unlock()
}

// Close stops the watcher.
func (l *Loader) Close() {
	close(l.done)
	if l.watcher != nil {
		l.watcher.Close()
	}
}
