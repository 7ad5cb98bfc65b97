package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/halcyon-labs/assistant-gateway/internal/config"
	"github.com/halcyon-labs/assistant-gateway/internal/telemetry"
)

// CallOptions tune a single generate call. Zero values fall back to the
// configured model, temperature 0.4 and 512 output tokens.
type CallOptions struct {
	Model           string
	SystemPrompt    string
	JSON            bool
	Temperature     *float64
	MaxOutputTokens *int
}

// Client wraps the generate-content API with offline fallback, knowledge
// caching, and the shared quota/overload cool-down clock.
type Client struct {
	cfg     func() config.GeminiConfig
	http    *http.Client
	state   *State
	metrics *telemetry.Metrics
	logger  *slog.Logger

	// Overridable for tests.
	now       func() time.Time
	randFloat func() float64
}

func NewClient(cfg func() config.GeminiConfig, state *State, httpClient *http.Client, metrics *telemetry.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		http:      httpClient,
		state:     state,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// Status reports credential presence and the cool-down clock for diagnostics.
type Status struct {
	GeminiKeyPresent bool  `json:"geminiKeyPresent"`
	BlockedUntil     int64 `json:"blockedUntil"`
	Now              int64 `json:"now"`
}

func (c *Client) Status() Status {
	until := c.state.BlockedUntil()
	var untilMs int64
	if !until.IsZero() {
		untilMs = until.UnixMilli()
	}
	return Status{
		GeminiKeyPresent: c.cfg().APIKey != "",
		BlockedUntil:     untilMs,
		Now:              c.now().UnixMilli(),
	}
}

var (
	// Knowledge-style prompt detection applies only to the first line; the
	// Definition** marker catches structured enrichment prompts.
	knowledgePromptPattern = regexp.MustCompile(`(?i)\b(what is|what are|define|explain|overview of)\b`)
	definitionMarker       = regexp.MustCompile(`(?i)Definition\*\*`)

	retryDelayPattern   = regexp.MustCompile(`(?i)retry.*?(\d+(?:\.\d+)?)s`)
	suggestedDelayMatch = regexp.MustCompile(`(\d+(?:\.\d+)?)s`)
)

func knowledgeLike(prompt string) bool {
	firstLine, _, _ := strings.Cut(prompt, "\n")
	return knowledgePromptPattern.MatchString(firstLine) || definitionMarker.MatchString(prompt)
}

// Generate calls the model and returns the primary text candidate.
// Failure modes: *QuotaError (429 or armed cool-down), *UnavailableError
// (503 after the fallback retry), or a generic wrapped error. With no API
// key configured it returns a deterministic offline placeholder and nil.
func (c *Client) Generate(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	cfg := c.cfg()
	if cfg.APIKey == "" {
		c.recordUpstream("offline")
		return offlinePlaceholder(prompt, opts.JSON), nil
	}

	model := opts.Model
	if model == "" {
		model = cfg.Model
	}

	knowledge := knowledgeLike(prompt)
	var key string
	if knowledge {
		key = NormalizeKnowledgeKey(prompt, cfg.CacheKeyLimit)
		if cached, ok := c.state.Lookup(key); ok {
			c.recordUpstream("cached")
			return cached + " \n\n_(cached)_", nil
		}
	}

	if remaining, blocked := c.state.Blocked(c.now()); blocked {
		c.recordUpstream("quota")
		return "", &QuotaError{RetryAfter: remaining}
	}

	text, err := c.attempt(ctx, prompt, model, opts, cfg)
	if err == nil {
		if knowledge {
			c.state.Store(key, text)
		}
		c.recordUpstream("ok")
		return text, nil
	}

	var se *statusError
	if !errors.As(err, &se) {
		c.recordUpstream("error")
		return "", fmt.Errorf("gemini network error: %w", err)
	}

	switch se.status {
	case http.StatusTooManyRequests:
		delay := cfg.QuotaDefaultBackoff.Std()
		if m := retryDelayPattern.FindStringSubmatch(se.body); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				delay = time.Duration(secs * float64(time.Second))
			}
		}
		c.state.Block(c.now(), delay)
		c.recordCooldown("quota")
		c.recordUpstream("quota")
		return "", &QuotaError{RetryAfter: delay}

	case http.StatusServiceUnavailable:
		retry := c.overloadBackoff(se.body, cfg)
		c.state.Block(c.now(), retry)
		c.recordCooldown("overload")

		if cfg.FallbackModel != "" && cfg.FallbackModel != model {
			alt, altErr := c.attempt(ctx, prompt, cfg.FallbackModel, opts, cfg)
			if altErr == nil {
				if knowledge {
					c.state.Store(key, alt)
				}
				c.recordUpstream("fallback")
				return alt + "\n\n_(fallback model)_", nil
			}
			c.logger.Warn("fallback model failed after 503 primary",
				"fallback_model", cfg.FallbackModel, "error", altErr)
		}

		c.recordUpstream("unavailable")
		return "", &UnavailableError{RetryAfter: retry}

	default:
		c.recordUpstream("error")
		return "", fmt.Errorf("gemini api error %d: %s", se.status, se.body)
	}
}

// overloadBackoff computes the 503 backoff: base duration, optionally
// replaced by a delay suggested in the error body (clamped), then ±25%
// jitter.
func (c *Client) overloadBackoff(body string, cfg config.GeminiConfig) time.Duration {
	retry := cfg.OverloadBaseBackoff.Std()

	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if jerr := json.Unmarshal([]byte(body), &parsed); jerr == nil {
		msg := parsed.Error.Message
		if msg == "" {
			msg = parsed.Message
		}
		if m := suggestedDelayMatch.FindStringSubmatch(msg); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				suggested := time.Duration(secs * float64(time.Second))
				retry = min(max(suggested, cfg.OverloadMinBackoff.Std()), cfg.OverloadMaxBackoff.Std())
			}
		}
	}

	jitter := time.Duration(float64(retry) * (c.randFloat()*0.5 - 0.25))
	return retry + jitter
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

type generateRequest struct {
	Contents         []contentPart    `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type contentPart struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// attempt performs one live HTTP call against the given model. It skips the
// cool-down and cache checks; Generate owns those.
func (c *Client) attempt(ctx context.Context, prompt, model string, opts CallOptions, cfg config.GeminiConfig) (string, error) {
	var contents []contentPart
	if opts.SystemPrompt != "" {
		contents = append(contents, contentPart{
			Role:  "user",
			Parts: []part{{Text: opts.SystemPrompt + "\n---"}},
		})
	}
	contents = append(contents, contentPart{Role: "user", Parts: []part{{Text: prompt}}})

	temperature := 0.4
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := 512
	if opts.MaxOutputTokens != nil {
		maxTokens = *opts.MaxOutputTokens
	}
	mime := "text/plain"
	if opts.JSON {
		mime = "application/json"
	}

	body := generateRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:      temperature,
			MaxOutputTokens:  maxTokens,
			ResponseMIMEType: mime,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", strings.TrimSuffix(cfg.BaseURL, "/"), model, cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{status: resp.StatusCode, body: string(respBody)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal generate response: %w", err)
	}

	var text string
	if len(parsed.Candidates) > 0 && len(parsed.Candidates[0].Content.Parts) > 0 {
		text = parsed.Candidates[0].Content.Parts[0].Text
	}
	return strings.TrimSpace(text), nil
}

// offlinePlaceholder is the deterministic response used when no credential
// is configured. Callers treat it as a legitimate answer.
func offlinePlaceholder(prompt string, wantJSON bool) string {
	const offlineNote = "(offline model)"
	if wantJSON {
		snippet := prompt
		if len(snippet) > 80 {
			snippet = snippet[:80]
		}
		snippet = strings.ReplaceAll(snippet, `"`, "")
		snippet = strings.ReplaceAll(snippet, "\n", " ")
		return fmt.Sprintf(`{"type":"reply","text":"%s %s..."}`, offlineNote, snippet)
	}
	return offlineNote + " I cannot reach the model right now, but you can retry after configuring GEMINI_API_KEY."
}

func (c *Client) recordUpstream(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordUpstream(outcome)
	}
}

func (c *Client) recordCooldown(cause string) {
	if c.metrics != nil {
		c.metrics.CooldownTrips.WithLabelValues(cause).Inc()
	}
}
