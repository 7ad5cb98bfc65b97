package gemini

import (
	"fmt"
	"testing"
	"time"
)

func TestNormalizeKnowledgeKey(t *testing.T) {
	tests := []struct {
		input string
		limit int
		want  string
	}{
		{"What is Kubernetes?", 200, "what is kubernetes?"},
		{"  What   is\tKubernetes  ", 200, "what is kubernetes"},
		{"define GO", 200, "define go"},
		{"abcdefghij", 5, "abcde"},
	}
	for _, tt := range tests {
		if got := NormalizeKnowledgeKey(tt.input, tt.limit); got != tt.want {
			t.Errorf("NormalizeKnowledgeKey(%q, %d) = %q, want %q", tt.input, tt.limit, got, tt.want)
		}
	}
}

func TestState_BlockAndExpiry(t *testing.T) {
	s := NewState(10)
	now := time.Now()

	if _, blocked := s.Blocked(now); blocked {
		t.Fatal("fresh state should not be blocked")
	}

	s.Block(now, 5*time.Second)

	remaining, blocked := s.Blocked(now.Add(2 * time.Second))
	if !blocked {
		t.Fatal("expected blocked inside window")
	}
	if remaining != 3*time.Second {
		t.Errorf("expected 3s remaining, got %s", remaining)
	}

	if _, blocked := s.Blocked(now.Add(5 * time.Second)); blocked {
		t.Error("expected unblocked at deadline")
	}
}

func TestState_InsertionOrderEviction(t *testing.T) {
	s := NewState(3)
	evictions := 0
	s.OnEvict(func() { evictions++ })

	s.Store("a", "1")
	s.Store("b", "2")
	s.Store("c", "3")
	// Re-store does not refresh position: "a" is still oldest.
	s.Store("a", "1b")

	s.Store("d", "4")
	if _, ok := s.Lookup("a"); ok {
		t.Error("expected oldest entry 'a' to be evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := s.Lookup(k); !ok {
			t.Errorf("expected %q to survive eviction", k)
		}
	}
	if evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", evictions)
	}
	if s.CacheLen() != 3 {
		t.Errorf("expected cache len 3, got %d", s.CacheLen())
	}
}

func TestState_EvictionKeepsCapacityBound(t *testing.T) {
	s := NewState(200)
	for i := 0; i < 250; i++ {
		s.Store(fmt.Sprintf("key-%d", i), "v")
	}
	if s.CacheLen() != 200 {
		t.Errorf("expected cache bounded at 200, got %d", s.CacheLen())
	}
	if _, ok := s.Lookup("key-0"); ok {
		t.Error("expected earliest keys to be evicted")
	}
	if _, ok := s.Lookup("key-249"); !ok {
		t.Error("expected newest key present")
	}
}

func TestState_Reset(t *testing.T) {
	s := NewState(10)
	s.Block(time.Now(), time.Minute)
	s.Store("k", "v")

	s.Reset()

	if _, blocked := s.Blocked(time.Now()); blocked {
		t.Error("expected unblocked after reset")
	}
	if s.CacheLen() != 0 {
		t.Error("expected empty cache after reset")
	}
}
