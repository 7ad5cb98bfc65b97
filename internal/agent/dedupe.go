package agent

import (
	"sync"
	"time"
)

type actionEntry struct {
	key string
	ts  time.Time
}

// ActionLog is a best-effort debounce of repeated open_url/open_tool actions.
// Entries older than the window are purged on every check. A suppressed
// repeat is not re-added, so a steady stream of duplicates stays suppressed
// only until the original entry ages out.
type ActionLog struct {
	mu      sync.Mutex
	entries []actionEntry

	now func() time.Time
}

func NewActionLog() *ActionLog {
	return &ActionLog{now: time.Now}
}

// Duplicate reports whether key was recorded within the window. When absent
// it records the key and returns false.
func (l *ActionLog) Duplicate(key string, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if now.Sub(e.ts) <= window {
			kept = append(kept, e)
		}
	}
	l.entries = kept

	for _, e := range l.entries {
		if e.key == key {
			return true
		}
	}
	l.entries = append(l.entries, actionEntry{key: key, ts: now})
	return false
}
