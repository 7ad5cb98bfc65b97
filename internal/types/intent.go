package types

// IntentType tags the variant of a routed intent.
type IntentType string

const (
	IntentReply    IntentType = "reply"
	IntentOpenTool IntentType = "open_tool"
	IntentOpenURL  IntentType = "open_url"
	IntentAction   IntentType = "action"
	IntentClarify  IntentType = "clarify"
)

func ParseIntentType(s string) (IntentType, bool) {
	switch IntentType(s) {
	case IntentReply, IntentOpenTool, IntentOpenURL, IntentAction, IntentClarify:
		return IntentType(s), true
	default:
		return "", false
	}
}

// RoutedIntent is the canonical result of intent classification. Exactly one
// variant's fields are meaningful, selected by Type. URL is always validated
// to an http/https scheme before it is set.
type RoutedIntent struct {
	Type     IntentType `json:"type"`
	Text     string     `json:"text,omitempty"`
	ToolID   string     `json:"toolId,omitempty"`
	URL      string     `json:"url,omitempty"`
	Action   string     `json:"action,omitempty"`
	Question string     `json:"question,omitempty"`
	Event    *Event     `json:"event,omitempty"`
}

// Tool identifiers the router may launch.
const (
	ToolTaskScheduler  = "task-scheduler"
	ToolTextSummarizer = "text-summarizer"
	ToolCodeExplainer  = "code-explainer"
	ToolImageCaption   = "image-caption"
	ToolKnowledgeAgent = "knowledge-agent"
)

func KnownToolID(id string) bool {
	switch id {
	case ToolTaskScheduler, ToolTextSummarizer, ToolCodeExplainer, ToolImageCaption, ToolKnowledgeAgent:
		return true
	default:
		return false
	}
}

// Event is a structured calendar event extracted from natural language.
type Event struct {
	Title           string   `json:"title"`
	Date            string   `json:"date"` // YYYY-MM-DD
	Time            string   `json:"time"` // HH:MM 24h, may be empty
	DurationMinutes int      `json:"durationMinutes"`
	Attendees       []string `json:"attendees"`
	Notes           string   `json:"notes"`
}

// Turn is a single prior conversation message supplied as routing context.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}
