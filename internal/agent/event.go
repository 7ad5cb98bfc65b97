package agent

import (
	"context"

	"github.com/halcyon-labs/assistant-gateway/internal/gemini"
	"github.com/halcyon-labs/assistant-gateway/internal/types"
)

// EventOutcome is either a clarify question or a fully-coerced event.
type EventOutcome struct {
	Clarify  bool
	Question string
	Event    *types.Event
}

// ExtractEvent turns free text into a structured calendar event via the
// model. Title and date are mandatory minimums: whatever the model claims,
// their absence forces a clarify. Model-call errors propagate to the caller.
func (r *Router) ExtractEvent(ctx context.Context, text string) (EventOutcome, error) {
	raw, err := r.model.Generate(ctx, taskExtractorPrompt+"\nUSER_INPUT:\n"+text, gemini.CallOptions{JSON: true})
	if err != nil {
		return EventOutcome{}, err
	}

	parsed := gemini.ExtractJSONBlock(raw)
	if parsed == nil {
		parsed = map[string]any{}
	}

	if wantsClarify, _ := parsed["clarify"].(bool); wantsClarify {
		question := asString(parsed["question"])
		if question == "" {
			question = "Need more details."
		}
		return EventOutcome{Clarify: true, Question: question}, nil
	}

	event := &types.Event{
		Title:           asString(parsed["title"]),
		Date:            asString(parsed["date"]),
		Time:            asString(parsed["time"]),
		DurationMinutes: asInt(parsed["durationMinutes"]),
		Attendees:       asStringSlice(parsed["attendees"]),
		Notes:           asString(parsed["notes"]),
	}

	if event.Title == "" || event.Date == "" {
		return EventOutcome{Clarify: true, Question: "Please provide a title and date."}, nil
	}
	return EventOutcome{Event: event}, nil
}

func asInt(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
