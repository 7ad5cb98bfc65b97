package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/halcyon-labs/assistant-gateway/internal/config"
	"github.com/halcyon-labs/assistant-gateway/internal/gemini"
	"github.com/halcyon-labs/assistant-gateway/internal/telemetry"
	"github.com/halcyon-labs/assistant-gateway/internal/types"
)

// Caller is the slice of the model gateway the router needs. Satisfied by
// *gemini.Client; tests substitute stubs.
type Caller interface {
	Generate(ctx context.Context, prompt string, opts gemini.CallOptions) (string, error)
}

// Router classifies free-text user input into a RoutedIntent through an
// ordered pipeline: model call, parse/repair, guards, shortcut overrides,
// secondary specialized calls, enrichment. Only quota/overload conditions
// escape Route as errors; every other failure resolves to a well-formed
// intent.
type Router struct {
	model   Caller
	actions *ActionLog
	cfg     func() config.AgentConfig
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewRouter(model Caller, cfg func() config.AgentConfig, metrics *telemetry.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		model:   model,
		actions: NewActionLog(),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

var (
	urlPattern           = regexp.MustCompile(`https?://\S+`)
	httpMentionPattern   = regexp.MustCompile(`(?i)http(s)?://`)
	pureDefPattern       = regexp.MustCompile(`^(what\s+is|what\s+are|define|explain)\b`)
	followUpTopicPattern = regexp.MustCompile(`(?i)(what|who|why|how|when|where|explain|define|difference|overview|tell me about|generation|microprocessors?)`)
	knowledgeQPattern    = regexp.MustCompile(`(?i)(what|who|why|how|when|where|explain|define|difference|overview|tell me about)\b`)

	openYouTubePattern   = regexp.MustCompile(`(open|launch|go to) (youtube|yt)\b`)
	searchYouTubePattern = regexp.MustCompile(`^(search|find) (.+) on youtube`)
	vaguePrepPattern     = regexp.MustCompile(`\b(for|about|regarding)\b`)

	explainCodePattern = regexp.MustCompile(`(?i)explain code`)
	summarizePattern   = regexp.MustCompile(`(?i)summari(s|z)e`)
	codeNounPattern    = regexp.MustCompile(`(?i)\b(code|program|script)\b`)
	codeAskPattern     = regexp.MustCompile(`(?i)(give|show|write|example)`)
	codeLangPattern    = regexp.MustCompile(`(?i)( in [a-zA-Z+#]+|javascript|python|c\b|c\+\+|java|rust|go)`)

	docsDomainPattern = regexp.MustCompile(`(?i)^(https?://)?(www\.)?(kubernetes\.io|django(project)?\.com)`)
	dotsOnlyPattern   = regexp.MustCompile(`^\.*$`)
	keyPointsPattern  = regexp.MustCompile(`(?i)\bKey Points:`)
)

// Route runs the full decision pipeline. The returned error is always a
// *gemini.QuotaError or *gemini.UnavailableError; everything else degrades
// into the returned intent.
func (r *Router) Route(ctx context.Context, text string, recent []types.Turn) (types.RoutedIntent, error) {
	snippet := r.contextSnippet(recent)
	expanded := expandFollowUp(text, recent)

	prompt := intentRouterPrompt + "\n" + snippet + "\nUser: " + expanded
	temp := 0.55
	raw, err := r.model.Generate(ctx, prompt, gemini.CallOptions{JSON: true, Temperature: &temp})
	if err != nil {
		if isRetryable(err) {
			return types.RoutedIntent{}, err
		}
		r.logger.Error("primary model error", "error", err)
		return types.RoutedIntent{
			Type: types.IntentReply,
			Text: "I had a temporary issue reaching the model. Please rephrase or try again in a moment.",
		}, nil
	}

	out := parseDraft(raw)

	r.guardToolOpen(&out, text)
	r.guardMissingURL(&out)
	r.suppressDuplicates(&out)
	r.applyShortcuts(&out, text)
	r.explainCode(ctx, &out, text)
	r.summarize(ctx, &out, text)
	r.generateCode(ctx, &out, text)

	knowledge := isKnowledgeQuestion(text)
	r.reclassifyKnowledgeURL(&out, knowledge)
	r.enrichReply(ctx, &out, text, knowledge)
	r.softenClarify(ctx, &out, text)

	return out, nil
}

func isRetryable(err error) bool {
	var qe *gemini.QuotaError
	var ue *gemini.UnavailableError
	return errors.As(err, &qe) || errors.As(err, &ue)
}

func isKnowledgeQuestion(text string) bool {
	return knowledgeQPattern.MatchString(text) || strings.HasSuffix(strings.TrimSpace(text), "?")
}

func isPureDefinitionQuery(lower string) bool {
	return pureDefPattern.MatchString(lower) && len(strings.Fields(lower)) <= 6
}

// contextSnippet renders at most the last N turns as a transcript block.
func (r *Router) contextSnippet(recent []types.Turn) string {
	if len(recent) == 0 {
		return ""
	}
	turns := recent
	if limit := r.cfg().ContextTurns; limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	var lines []string
	for _, m := range turns {
		role := "User"
		if m.Role == "assistant" {
			role = "Assistant"
		}
		lines = append(lines, role+": "+m.Text)
	}
	return "Recent Conversation (for reference, do not echo verbatim):\n" + strings.Join(lines, "\n") + "\n---"
}

// expandFollowUp rewrites short elliptical follow-ups ("and its history?")
// against the previous user turn when that turn looked like a knowledge
// question.
func expandFollowUp(text string, recent []types.Turn) string {
	var users []types.Turn
	for _, m := range recent {
		if m.Role == "user" {
			users = append(users, m)
		}
	}
	if len(users) < 2 {
		return text
	}
	lastUser := users[len(users)-2]
	wordCount := len(strings.Fields(strings.ToLower(strings.TrimSpace(text))))
	if wordCount > 0 && wordCount <= 3 && followUpTopicPattern.MatchString(lastUser.Text) {
		return fmt.Sprintf("In the context of: %s -> Please elaborate specifically on: %s", lastUser.Text, text)
	}
	return text
}

// sanitizeURL accepts only http/https URLs; everything else (javascript:,
// data:, malformed) is treated as absent.
func sanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return u.String()
	}
	return ""
}

// parseDraft extracts and coerces the model's JSON into a typed intent.
// Shape-free model output is untrusted input: every field is re-validated.
// A response with no type field falls back to URL sniffing, then to a plain
// reply of the raw text.
func parseDraft(raw string) types.RoutedIntent {
	parsed := gemini.ExtractJSONBlock(raw)
	if parsed == nil {
		parsed = map[string]any{}
	}

	if _, ok := parsed["type"]; !ok {
		if httpMentionPattern.MatchString(raw) {
			parsed = map[string]any{"type": "open_url", "url": urlPattern.FindString(raw)}
		} else {
			parsed = map[string]any{"type": "reply", "text": strings.TrimSpace(raw)}
		}
	}

	intentType, ok := types.ParseIntentType(asString(parsed["type"]))
	if !ok {
		intentType = types.IntentReply
	}

	return types.RoutedIntent{
		Type:     intentType,
		Text:     asString(parsed["text"]),
		ToolID:   asString(parsed["toolId"]),
		URL:      sanitizeURL(asString(parsed["url"])),
		Action:   asString(parsed["action"]),
		Question: asString(parsed["question"]),
	}
}

// guardToolOpen accepts open_tool only when the message contains an explicit
// verb phrase naming the tool (or the literal tool id). Short pure-definition
// queries aimed at the knowledge agent downgrade to reply: definition
// questions are answered inline, not routed to a tool.
func (r *Router) guardToolOpen(out *types.RoutedIntent, text string) {
	if out.Type != types.IntentOpenTool {
		return
	}
	lowerMsg := strings.ToLower(text)
	toolID := out.ToolID

	verbPhrase := "(open|launch|use|start|activate) (the )?" + strings.ReplaceAll(regexp.QuoteMeta(toolID), "-", "[ -]")
	explicit := strings.Contains(lowerMsg, toolID)
	if re, err := regexp.Compile(verbPhrase); err == nil && re.MatchString(lowerMsg) {
		explicit = true
	}

	knowledgeTool := toolID == types.ToolKnowledgeAgent
	if !explicit || (knowledgeTool && isPureDefinitionQuery(lowerMsg)) {
		out.Type = types.IntentReply
		r.recordGuard("tool_open")
	}
}

// guardMissingURL converts an open_url with no surviving URL into a clarify.
func (r *Router) guardMissingURL(out *types.RoutedIntent) {
	if out.Type == types.IntentOpenURL && out.URL == "" {
		out.Type = types.IntentClarify
		out.Question = "Which URL should I open?"
		r.recordGuard("missing_url")
	}
}

// suppressDuplicates downgrades a repeat open_url/open_tool fired inside
// the duplicate window to an explanatory reply.
func (r *Router) suppressDuplicates(out *types.RoutedIntent) {
	window := r.cfg().DuplicateWindow.Std()
	if out.Type == types.IntentOpenURL && out.URL != "" {
		if r.actions.Duplicate("url:"+out.URL, window) {
			target := out.URL
			out.Type = types.IntentReply
			out.Text = fmt.Sprintf("Already opened recently. Let me know if you need something else about %s.", target)
			r.recordGuard("duplicate_url")
		}
	}
	if out.Type == types.IntentOpenTool && out.ToolID != "" {
		if r.actions.Duplicate("tool:"+out.ToolID, window) {
			out.Type = types.IntentReply
			out.Text = fmt.Sprintf("The %s is already active recently. Ask your question directly or specify another tool.", out.ToolID)
			r.recordGuard("duplicate_tool")
		}
	}
}

// applyShortcuts handles explicit YouTube phrasings independent of the model
// output, guarded so pure knowledge queries ("what is youtube") stay replies.
func (r *Router) applyShortcuts(out *types.RoutedIntent, text string) {
	lower := strings.ToLower(text)
	pureDef := isPureDefinitionQuery(lower)

	switch {
	case openYouTubePattern.MatchString(lower) && !pureDef:
		out.Type = types.IntentOpenURL
		out.URL = "https://www.youtube.com"
		r.recordGuard("youtube_open")

	case searchYouTubePattern.MatchString(lower):
		q := regexp.MustCompile(`^(search|find) `).ReplaceAllString(lower, "")
		q = regexp.MustCompile(` on youtube.*`).ReplaceAllString(q, "")
		q = strings.TrimSpace(q)
		encoded := strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
		out.Type = types.IntentOpenURL
		out.URL = "https://www.youtube.com/results?search_query=" + encoded
		r.recordGuard("youtube_search")

	case strings.Contains(lower, "youtube") && vaguePrepPattern.MatchString(lower) && !pureDef:
		if out.Type == types.IntentReply {
			out.Type = types.IntentClarify
			out.Question = "Do you want me to search that on YouTube?"
			r.recordGuard("youtube_vague")
		}
	}
}

// explainCode triggers a dedicated code-explanation call for "explain code"
// messages. Its own failures never escape.
func (r *Router) explainCode(ctx context.Context, out *types.RoutedIntent, text string) {
	loc := explainCodePattern.FindStringIndex(text)
	if loc == nil {
		return
	}
	code := strings.TrimSpace(text[loc[1]:])
	raw, err := r.model.Generate(ctx, codeExplainPrompt+"\n\nCODE:\n"+code, gemini.CallOptions{})
	out.Type = types.IntentReply
	if err != nil {
		r.logger.Error("code explain error", "error", err)
		out.Text = "I could not explain that code right now."
		return
	}
	if raw == "" {
		raw = "Here is an explanation."
	}
	out.Text = raw
}

func (r *Router) summarize(ctx context.Context, out *types.RoutedIntent, text string) {
	if !summarizePattern.MatchString(text) {
		return
	}
	raw, err := r.model.Generate(ctx, summarizerPrompt+"\n\nTEXT:\n"+text, gemini.CallOptions{})
	out.Type = types.IntentReply
	if err != nil {
		r.logger.Error("summarizer error", "error", err)
		out.Text = "I could not summarize that right now."
		return
	}
	if raw == "" {
		raw = "Summary unavailable."
	}
	out.Text = raw
}

func (r *Router) generateCode(ctx context.Context, out *types.RoutedIntent, text string) {
	if !(codeNounPattern.MatchString(text) && codeAskPattern.MatchString(text) && codeLangPattern.MatchString(text)) {
		return
	}
	temp := 0.7
	raw, err := r.model.Generate(ctx, codeGeneratePrompt+"\n\nREQUEST: "+text, gemini.CallOptions{Temperature: &temp})
	out.Type = types.IntentReply
	if err != nil {
		r.logger.Error("code generate error", "error", err)
		out.Text = "I was unable to generate code just now."
		return
	}
	if raw == "" {
		raw = "Here is a minimal example."
	}
	out.Text = raw
}

// reclassifyKnowledgeURL forces a documentation-site open_url back to an
// (empty) reply when the message was a knowledge question, so enrichment
// regenerates a proper explanation instead of a site link.
func (r *Router) reclassifyKnowledgeURL(out *types.RoutedIntent, knowledge bool) {
	if knowledge && out.Type == types.IntentOpenURL && docsDomainPattern.MatchString(out.URL) {
		out.Type = types.IntentReply
		out.Text = ""
		r.recordGuard("knowledge_reclassify")
	}
}

// enrichReply regenerates empty or low-information replies with a concise
// answer, structured four-part format for knowledge questions. Non-empty
// short knowledge replies get a follow-up hint line instead.
func (r *Router) enrichReply(ctx context.Context, out *types.RoutedIntent, text string, knowledge bool) {
	if out.Type != types.IntentReply {
		return
	}
	rawText := strings.TrimSpace(out.Text)
	lowInfo := rawText == "" || dotsOnlyPattern.MatchString(rawText) || len(rawText) < 8

	if lowInfo {
		prompt := "You are a helpful, concise assistant. Provide a clear, friendly answer (max 140 words) and avoid repeating earlier phrasing."
		if knowledge {
			prompt += " Use this structure: **Definition** (1 line)\n**Key Points:** bullet list of 3-5 terse bullets\n**Common Use Cases:** 2-3 short bullets\n**Why it matters:** 1 sentence. If very broad, emphasize scope."
		}
		prompt += " Question: " + text
		temp := 0.65
		enriched, err := r.model.Generate(ctx, prompt, gemini.CallOptions{Temperature: &temp})
		if err != nil {
			r.logger.Error("enrichment error", "error", err)
			if out.Text == "" {
				out.Text = "I am here to help."
			}
			return
		}
		if enriched == "" {
			enriched = "I am here to help."
		}
		out.Text = enriched
		return
	}

	if knowledge && len(rawText) < 400 && !keyPointsPattern.MatchString(rawText) {
		out.Text = rawText + "\n\nFollow-up suggestions: ask for examples, architecture, or comparisons."
	}
}

// softenClarify converts a clarify into a direct answer when the original
// message itself was a direct definition request; asking "which one?" about
// "what are microprocessors" is pure friction.
func (r *Router) softenClarify(ctx context.Context, out *types.RoutedIntent, text string) {
	if out.Type != types.IntentClarify {
		return
	}
	trimmed := strings.TrimSpace(text)
	if !pureDefPattern.MatchString(strings.ToLower(trimmed)) {
		return
	}

	temp := 0.55
	direct, err := r.model.Generate(ctx,
		"Provide a direct, concise explanation (max 140 words). If plural, include a short classification. Question: "+text,
		gemini.CallOptions{Temperature: &temp})
	out.Type = types.IntentReply
	out.Question = ""
	if err != nil {
		r.logger.Error("clarify softening error", "error", err)
		if out.Text == "" {
			out.Text = "Here is a concise explanation."
		}
		return
	}
	if direct == "" {
		direct = "Here is a concise explanation."
	}
	out.Text = direct
	r.recordGuard("clarify_soften")
}

func (r *Router) recordGuard(stage string) {
	if r.metrics != nil {
		r.metrics.RecordGuard(stage)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
