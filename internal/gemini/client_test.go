package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/halcyon-labs/assistant-gateway/internal/config"
)

func testConfig(apiKey, baseURL string) func() config.GeminiConfig {
	cfg := config.DefaultConfig().Gemini
	cfg.APIKey = apiKey
	cfg.BaseURL = baseURL
	return func() config.GeminiConfig { return cfg }
}

func candidateBody(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}`
}

func newTestClient(t *testing.T, cfg func() config.GeminiConfig) *Client {
	t.Helper()
	c := NewClient(cfg, NewState(cfg().CacheCapacity), nil, nil, nil)
	c.randFloat = func() float64 { return 0.5 } // zero jitter
	return c
}

func TestGenerate_OfflinePlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected in offline mode")
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("", srv.URL))

	text, err := c.Generate(context.Background(), "what is kubernetes", CallOptions{})
	if err != nil {
		t.Fatalf("offline mode must not error: %v", err)
	}
	if !strings.HasPrefix(text, "(offline model)") {
		t.Errorf("expected offline placeholder, got %q", text)
	}

	jsonText, err := c.Generate(context.Background(), "route \"this\"\nplease", CallOptions{JSON: true})
	if err != nil {
		t.Fatalf("offline json mode must not error: %v", err)
	}
	if !strings.HasPrefix(jsonText, `{"type":"reply","text":"(offline model) `) {
		t.Errorf("expected offline json stub, got %q", jsonText)
	}
	if strings.Contains(jsonText, "\n") || strings.Contains(jsonText[1:len(jsonText)-2], `\"`) {
		t.Errorf("offline stub must strip quotes and newlines from the snippet: %q", jsonText)
	}
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-1.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("expected credential in query string")
		}
		w.Write([]byte(candidateBody("  hello there  ")))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))

	text, err := c.Generate(context.Background(), "say hello", CallOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("expected trimmed candidate text, got %q", text)
	}
}

func TestGenerate_KnowledgeCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(candidateBody("K8s is a container orchestrator.")))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))

	first, err := c.Generate(context.Background(), "What is Kubernetes?", CallOptions{})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if strings.Contains(first, "(cached)") {
		t.Error("first call must not be cached")
	}

	second, err := c.Generate(context.Background(), "what is  KUBERNETES?", CallOptions{})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if !strings.HasSuffix(second, "_(cached)_") {
		t.Errorf("expected cached marker, got %q", second)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 network call, got %d", got)
	}
}

func TestGenerate_NonKnowledgePromptNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(candidateBody("done")))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))

	for i := 0; i < 2; i++ {
		if _, err := c.Generate(context.Background(), "open youtube", CallOptions{}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("transactional prompts must never hit the cache, got %d calls", got)
	}
}

func TestGenerate_QuotaBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("Resource exhausted. Please retry in 7s."))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))
	base := time.Now()
	clock := base
	c.now = func() time.Time { return clock }

	_, err := c.Generate(context.Background(), "say hello", CallOptions{})
	var qe *QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if qe.RetryAfter != 7*time.Second {
		t.Errorf("expected parsed 7s retry, got %s", qe.RetryAfter)
	}

	// Inside the cool-down window: fail fast, no network call.
	clock = base.Add(3 * time.Second)
	_, err = c.Generate(context.Background(), "say hello again", CallOptions{})
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaError inside cool-down, got %v", err)
	}
	if qe.RetryAfter < 0 || qe.RetryAfter > 4*time.Second {
		t.Errorf("expected remaining duration in (0,4s], got %s", qe.RetryAfter)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected no network call while blocked, got %d", got)
	}

	// After the deadline the call proceeds (and trips 429 again).
	clock = base.Add(8 * time.Second)
	c.Generate(context.Background(), "say hello once more", CallOptions{})
	if got := calls.Load(); got != 2 {
		t.Errorf("expected call to proceed after deadline, got %d calls", got)
	}
}

func TestGenerate_QuotaDefaultBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("quota exceeded"))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))

	_, err := c.Generate(context.Background(), "say hello", CallOptions{})
	var qe *QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if qe.RetryAfter != 20*time.Second {
		t.Errorf("expected default 20s backoff, got %s", qe.RetryAfter)
	}
}

func TestGenerate_OverloadNoFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"The model is overloaded"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))

	_, err := c.Generate(context.Background(), "say hello", CallOptions{})
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	// randFloat=0.5 means zero jitter, so the base backoff applies exactly.
	if ue.RetryAfter != 8*time.Second {
		t.Errorf("expected 8s base backoff, got %s", ue.RetryAfter)
	}

	if _, blocked := c.state.Blocked(time.Now().Add(time.Second)); !blocked {
		t.Error("overload must arm the cool-down clock")
	}
}

func TestGenerate_OverloadSuggestedDelayClamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded, try again in 60s"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))

	_, err := c.Generate(context.Background(), "say hello", CallOptions{})
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if ue.RetryAfter != 15*time.Second {
		t.Errorf("expected suggestion clamped to 15s, got %s", ue.RetryAfter)
	}
}

func TestGenerate_OverloadJitterBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	for _, r := range []float64{0, 0.25, 0.75, 1} {
		c := newTestClient(t, testConfig("test-key", srv.URL))
		c.randFloat = func() float64 { return r }

		_, err := c.Generate(context.Background(), "say hello", CallOptions{})
		var ue *UnavailableError
		if !errors.As(err, &ue) {
			t.Fatalf("rand=%v: expected UnavailableError, got %v", r, err)
		}
		if ue.RetryAfter < 6*time.Second || ue.RetryAfter > 10*time.Second {
			t.Errorf("rand=%v: jittered backoff %s outside ±25%% of 8s", r, ue.RetryAfter)
		}
	}
}

func TestGenerate_OverloadFallbackModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "gemini-1.5-flash-8b") {
			w.Write([]byte(candidateBody("fallback answer")))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig().Gemini
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	cfg.FallbackModel = "gemini-1.5-flash-8b"
	c := NewClient(func() config.GeminiConfig { return cfg }, NewState(cfg.CacheCapacity), nil, nil, nil)
	c.randFloat = func() float64 { return 0.5 }

	text, err := c.Generate(context.Background(), "say hello", CallOptions{})
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if !strings.HasSuffix(text, "_(fallback model)_") {
		t.Errorf("expected fallback marker, got %q", text)
	}
}

func TestGenerate_OverloadFallbackAlsoFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig().Gemini
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL
	cfg.FallbackModel = "gemini-1.5-flash-8b"
	c := NewClient(func() config.GeminiConfig { return cfg }, NewState(cfg.CacheCapacity), nil, nil, nil)
	c.randFloat = func() float64 { return 0.5 }

	_, err := c.Generate(context.Background(), "say hello", CallOptions{})
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnavailableError after fallback failure, got %v", err)
	}
}

func TestGenerate_GenericUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid argument"))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig("test-key", srv.URL))

	_, err := c.Generate(context.Background(), "say hello", CallOptions{})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	var qe *QuotaError
	var ue *UnavailableError
	if errors.As(err, &qe) || errors.As(err, &ue) {
		t.Errorf("400 must map to a generic error, got %v", err)
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("expected status in error text, got %v", err)
	}
	if _, blocked := c.state.Blocked(time.Now()); blocked {
		t.Error("generic errors must not arm the cool-down clock")
	}
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, testConfig("test-key", "http://unused"))

	st := c.Status()
	if !st.GeminiKeyPresent {
		t.Error("expected key present")
	}
	if st.BlockedUntil != 0 {
		t.Errorf("expected zero blockedUntil before any backoff, got %d", st.BlockedUntil)
	}
	if st.Now == 0 {
		t.Error("expected now timestamp")
	}

	c.state.Block(time.Now(), 10*time.Second)
	if st := c.Status(); st.BlockedUntil <= st.Now {
		t.Error("expected blockedUntil in the future after Block")
	}
}
