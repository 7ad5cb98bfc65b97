package gemini

import (
	"strings"
	"sync"
	"time"
)

// State is the process-wide mutable gateway state: one shared cool-down
// clock and the bounded knowledge cache. It is constructed once at startup
// and shared by every call; concurrent requests race on which 429/503 arms
// the clock, and any recent value is acceptable for a cool-down heuristic.
type State struct {
	mu           sync.Mutex
	blockedUntil time.Time

	capacity int
	cache    map[string]string
	order    []string // insertion order, oldest first
	evicted  func()
}

// NewState creates gateway state with the given cache capacity.
func NewState(capacity int) *State {
	return &State{
		capacity: capacity,
		cache:    make(map[string]string),
	}
}

// OnEvict registers a callback fired once per cache eviction.
func (s *State) OnEvict(fn func()) {
	s.mu.Lock()
	s.evicted = fn
	s.mu.Unlock()
}

// Blocked reports whether the cool-down clock is still armed and, if so,
// how long remains.
func (s *State) Blocked(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.blockedUntil) {
		return s.blockedUntil.Sub(now), true
	}
	return 0, false
}

// Block arms the cool-down clock for d from now.
func (s *State) Block(now time.Time, d time.Duration) {
	s.mu.Lock()
	s.blockedUntil = now.Add(d)
	s.mu.Unlock()
}

// BlockedUntil returns the raw deadline for diagnostics; zero when never armed.
func (s *State) BlockedUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedUntil
}

// Lookup returns a cached knowledge answer.
func (s *State) Lookup(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache[key]
	return v, ok
}

// Store caches a knowledge answer, evicting the oldest-inserted entry when
// at capacity. Insertion-order eviction, not LRU: a re-stored key keeps its
// original position.
func (s *State) Store(key, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cache[key]; !exists {
		if s.capacity > 0 && len(s.cache) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.cache, oldest)
			if s.evicted != nil {
				s.evicted()
			}
		}
		s.order = append(s.order, key)
	}
	s.cache[key] = text
}

// CacheLen reports the number of cached entries.
func (s *State) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// Reset clears the clock and cache; used by tests and diagnostics tooling.
func (s *State) Reset() {
	s.mu.Lock()
	s.blockedUntil = time.Time{}
	s.cache = make(map[string]string)
	s.order = nil
	s.mu.Unlock()
}

// NormalizeKnowledgeKey builds the cache key for a prompt: truncate to
// limit bytes, lowercase, trim, collapse internal whitespace. Truncation
// happens first so near-duplicate long prompts collide deliberately.
func NormalizeKnowledgeKey(prompt string, limit int) string {
	if limit > 0 && len(prompt) > limit {
		prompt = prompt[:limit]
	}
	lowered := strings.ToLower(strings.TrimSpace(prompt))
	return strings.Join(strings.Fields(lowered), " ")
}
