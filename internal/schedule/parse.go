// Package schedule implements regex-based partial extraction of calendar
// event fields from chat text, merged incrementally across turns until a
// minimal viable event (title and date) exists. It runs before any model
// call and is entirely model-independent.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Partial is an in-progress event accumulated across turns. Zero values
// mean "not yet provided".
type Partial struct {
	Title     string   `json:"title,omitempty"`
	Date      string   `json:"date,omitempty"` // YYYY-MM-DD
	Time      string   `json:"time,omitempty"` // HH:MM 24h
	Attendees []string `json:"attendees,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// Viable reports whether the minimal event exists; time stays optional.
func (p Partial) Viable() bool {
	return p.Title != "" && p.Date != ""
}

func (p Partial) Empty() bool {
	return p.Title == "" && p.Date == "" && p.Time == "" && len(p.Attendees) == 0 && p.Notes == ""
}

var (
	isoDatePattern  = regexp.MustCompile(`(20\d{2}-\d{2}-\d{2})`)
	usDatePattern   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	tomorrowPattern = regexp.MustCompile(`(?i)\btomorrow\b`)

	timeTokenPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?(\s?(am|pm))?\b`)
	normalTimeShape  = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(am|pm)?$`)

	// The attendee segment stops at punctuation, at/on, or a date/time
	// token, so "with Alex tomorrow 3pm" yields just "Alex".
	attendeeStopPattern  = regexp.MustCompile(`(?i)\.|;|\n| at | on |\btomorrow\b|\b\d{1,2}(?::\d{2})?\s?(?:am|pm)\b|\b20\d{2}-\d{2}-\d{2}\b`)
	attendeeSplitPattern = regexp.MustCompile(`(?i),|and|&`)
	attendeeJunkPattern  = regexp.MustCompile(`(?i)[^a-z0-9@._+-]`)

	titlePattern = regexp.MustCompile(`schedule (?:a |the )?(meeting|call|sync|discussion) with ([^@,\n]+?)(?: at | on | tomorrow| next| for |$)`)
)

// Extract pulls whatever event fields the text carries. The reference time
// resolves relative dates ("tomorrow").
func Extract(text string, now time.Time) Partial {
	return Partial{
		Title:     extractTitle(text),
		Date:      extractDate(text, now),
		Time:      extractTime(text),
		Attendees: extractAttendees(text),
	}
}

func extractDate(text string, now time.Time) string {
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := usDatePattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%s-%02d-%02d", m[3], month, day)
	}
	if tomorrowPattern.MatchString(text) {
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	return ""
}

// normalizeTime converts expressions like "9 p.m.", "9pm", "9:30pm" to 24h
// HH:MM. Returns "" for out-of-range values.
func normalizeTime(raw string) string {
	compact := strings.Join(strings.Fields(strings.ToLower(raw)), "")
	m := normalTimeShape.FindStringSubmatch(compact)
	if m == nil {
		return ""
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func extractTime(text string) string {
	m := timeTokenPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	raw := m[1]
	if m[2] != "" {
		raw += ":" + m[2]
	}
	raw += strings.TrimSpace(m[3])
	return normalizeTime(raw)
}

func extractAttendees(text string) []string {
	lower := strings.ToLower(text)
	withIdx := strings.Index(lower, " with ")
	if withIdx == -1 {
		return nil
	}
	segment := text[withIdx+6:]
	if loc := attendeeStopPattern.FindStringIndex(segment); loc != nil {
		segment = segment[:loc[0]]
	}

	var attendees []string
	for _, token := range attendeeSplitPattern.Split(segment, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		token = attendeeJunkPattern.ReplaceAllString(token, "")
		if len(token) > 1 {
			attendees = append(attendees, token)
		}
	}
	return attendees
}

// extractTitle infers a title only from the specific "schedule a meeting
// with X" phrasing; everything else is left to the model.
func extractTitle(text string) string {
	m := titlePattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return ""
	}
	person := strings.TrimSpace(m[2])
	words := strings.Fields(person)
	if len(words) > 3 {
		words = words[:3]
	}
	person = strings.Join(words, " ")
	return capitalize(m[1]) + " with " + capitalize(person)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Merge overlays incoming onto base: non-empty incoming fields win, empty
// fields never overwrite accumulated state.
func Merge(base, incoming Partial) Partial {
	out := base
	if incoming.Title != "" {
		out.Title = incoming.Title
	}
	if incoming.Date != "" {
		out.Date = incoming.Date
	}
	if incoming.Time != "" {
		out.Time = incoming.Time
	}
	if len(incoming.Attendees) > 0 {
		out.Attendees = incoming.Attendees
	}
	if incoming.Notes != "" {
		out.Notes = incoming.Notes
	}
	return out
}
