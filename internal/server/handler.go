// Package server exposes the assistant API over HTTP: intent routing,
// event extraction, raw generation, diagnostics, and health.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/halcyon-labs/assistant-gateway/internal/agent"
	"github.com/halcyon-labs/assistant-gateway/internal/config"
	"github.com/halcyon-labs/assistant-gateway/internal/gemini"
	"github.com/halcyon-labs/assistant-gateway/internal/httputil"
	"github.com/halcyon-labs/assistant-gateway/internal/schedule"
	"github.com/halcyon-labs/assistant-gateway/internal/telemetry"
	"github.com/halcyon-labs/assistant-gateway/internal/types"
)

// Handler holds dependencies for the assistant HTTP handlers.
type Handler struct {
	router  *agent.Router
	client  *gemini.Client
	tracker *schedule.Tracker
	cfg     func() *config.Config
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewHandler(router *agent.Router, client *gemini.Client, tracker *schedule.Tracker, cfg func() *config.Config, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		router:  router,
		client:  client,
		tracker: tracker,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// decode enforces the configured body cap while parsing JSON bodies.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, h.cfg().Server.MaxBodyBytes)
	defer body.Close()
	return json.NewDecoder(body).Decode(dest)
}

type routeRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
	Context   struct {
		Recent []types.Turn `json:"recent"`
	} `json:"context"`
}

type intentResponse struct {
	OK bool `json:"ok"`
	types.RoutedIntent
}

// RouteIntent handles POST /api/agent/routeIntent.
func (h *Handler) RouteIntent(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	start := time.Now()

	var req routeRequest
	if err := h.decode(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, "invalid_json")
		h.observe("route", "400", start)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		httputil.WriteBadRequestError(w, "missing_text")
		h.observe("route", "400", start)
		return
	}

	// The schedule slot-filler answers before the model gets involved, so
	// half-specified events keep accumulating instead of round-tripping.
	if req.SessionID != "" {
		outcome := h.tracker.Observe(req.SessionID, req.Text)
		switch {
		case outcome.Complete:
			h.logger.Info("schedule slot-filler completed",
				"request_id", reqID,
				"session_id", req.SessionID,
				"title", outcome.Schedule.Title,
			)
			httputil.WriteJSON(w, http.StatusOK, intentResponse{OK: true, RoutedIntent: scheduleIntent(outcome.Schedule)})
			h.observe("route", "200", start)
			return
		case outcome.Clarify != "":
			httputil.WriteJSON(w, http.StatusOK, intentResponse{OK: true, RoutedIntent: types.RoutedIntent{
				Type:     types.IntentClarify,
				Question: outcome.Clarify,
			}})
			h.observe("route", "200", start)
			return
		}
	}

	intent, err := h.router.Route(r.Context(), req.Text, req.Context.Recent)
	if err != nil {
		h.writeModelError(w, "route", reqID, start, err)
		return
	}

	h.logger.Info("intent routed",
		"request_id", reqID,
		"type", string(intent.Type),
		"tool_id", intent.ToolID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, intentResponse{OK: true, RoutedIntent: intent})
	h.observe("route", "200", start)
}

func scheduleIntent(p schedule.Partial) types.RoutedIntent {
	text := fmt.Sprintf("Opening the scheduler: %s on %s", p.Title, p.Date)
	if p.Time != "" {
		text += " at " + p.Time
	}
	text += ". Adjust details there if needed."
	return types.RoutedIntent{
		Type:   types.IntentOpenTool,
		ToolID: types.ToolTaskScheduler,
		Text:   text,
		Event: &types.Event{
			Title:     p.Title,
			Date:      p.Date,
			Time:      p.Time,
			Attendees: p.Attendees,
			Notes:     p.Notes,
		},
	}
}

type eventRequest struct {
	Text string `json:"text"`
}

type eventResponse struct {
	OK       bool         `json:"ok"`
	Type     string       `json:"type"`
	Action   string       `json:"action,omitempty"`
	Question string       `json:"question,omitempty"`
	Event    *types.Event `json:"event,omitempty"`
}

// ParseEvent handles POST /api/agent/parseEvent.
func (h *Handler) ParseEvent(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	start := time.Now()

	var req eventRequest
	if err := h.decode(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, "invalid_json")
		h.observe("event", "400", start)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		httputil.WriteBadRequestError(w, "missing_text")
		h.observe("event", "400", start)
		return
	}

	outcome, err := h.router.ExtractEvent(r.Context(), req.Text)
	if err != nil {
		h.writeModelError(w, "event", reqID, start, err)
		return
	}

	if outcome.Clarify {
		httputil.WriteJSON(w, http.StatusOK, eventResponse{
			OK:       true,
			Type:     string(types.IntentClarify),
			Question: outcome.Question,
		})
		h.observe("event", "200", start)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, eventResponse{
		OK:     true,
		Type:   string(types.IntentAction),
		Action: "create_event",
		Event:  outcome.Event,
	})
	h.observe("event", "200", start)
}

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Model string `json:"model"`
}

type generateResponse struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

// Generate handles POST /api/gemini/generate, a thin passthrough that
// still benefits from the cache and cool-down layer.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	start := time.Now()

	var req generateRequest
	if err := h.decode(w, r, &req); err != nil {
		httputil.WriteBadRequestError(w, "invalid_json")
		h.observe("generate", "400", start)
		return
	}

	// Chat-style bodies fold into a single prompt, oldest first.
	var parts []string
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	if strings.TrimSpace(req.Prompt) != "" {
		parts = append(parts, req.Prompt)
	}
	prompt := strings.Join(parts, "\n")
	if prompt == "" {
		httputil.WriteBadRequestError(w, "missing_prompt")
		h.observe("generate", "400", start)
		return
	}

	text, err := h.client.Generate(r.Context(), prompt, gemini.CallOptions{Model: req.Model})
	if err != nil {
		h.writeModelError(w, "generate", reqID, start, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, generateResponse{OK: true, Text: text})
	h.observe("generate", "200", start)
}

type diagnosticsResponse struct {
	OK bool `json:"ok"`
	gemini.Status
}

// Diagnostics handles GET /api/agent/diagnostics.
func (h *Handler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, diagnosticsResponse{OK: true, Status: h.client.Status()})
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "assistant-gateway",
		"ts":      time.Now().UnixMilli(),
	})
}

// writeModelError maps the two retryable upstream conditions onto their
// status codes; anything else the router should already have degraded, so
// a leak here is a plain 500.
func (h *Handler) writeModelError(w http.ResponseWriter, route, reqID string, start time.Time, err error) {
	var quota *gemini.QuotaError
	var unavailable *gemini.UnavailableError
	switch {
	case errors.As(err, &quota):
		h.logger.Warn("quota exhausted", "request_id", reqID, "retry_after_ms", quota.RetryAfter.Milliseconds())
		httputil.WriteQuotaExhausted(w, quota.RetryAfter.Milliseconds())
		h.observe(route, "429", start)
	case errors.As(err, &unavailable):
		h.logger.Warn("model unavailable", "request_id", reqID, "retry_after_ms", unavailable.RetryAfter.Milliseconds())
		httputil.WriteModelUnavailable(w, unavailable.RetryAfter.Milliseconds())
		h.observe(route, "503", start)
	default:
		h.logger.Error("model call failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, "model_error")
		h.observe(route, "500", start)
	}
}

func (h *Handler) observe(route, status string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest(route, status, float64(time.Since(start).Milliseconds()))
	}
}
