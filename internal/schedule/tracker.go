package schedule

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

var schedulingWordPattern = regexp.MustCompile(`(?i)(schedule|meeting|event)\b`)

// Outcome is what a turn of scheduling conversation produced.
type Outcome struct {
	// Active means the turn engaged (or continued) a scheduling flow.
	Active bool
	// Complete means the accumulated event is viable and should be acted on.
	Complete bool
	// Schedule is the accumulated state after merging this turn.
	Schedule Partial
	// Clarify, when non-empty, is a question to send back instead of
	// routing the turn through the model.
	Clarify string
}

type session struct {
	pending Partial
	asked   bool
	touched time.Time
}

// Tracker accumulates partial events per conversation session. Sessions
// idle past the TTL are discarded.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Observe feeds one user turn into the session's scheduling state. A turn
// neither mentioning scheduling nor continuing an open session is ignored.
// The clarifying question is asked at most once per session; once the
// event is viable the session resets.
func (t *Tracker) Observe(sessionID, text string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.purgeLocked(now)

	sess := t.sessions[sessionID]
	if sess == nil && !schedulingWordPattern.MatchString(text) {
		return Outcome{}
	}
	if sess == nil {
		sess = &session{}
		t.sessions[sessionID] = sess
	}
	sess.touched = now
	sess.pending = Merge(sess.pending, Extract(text, now))

	current := sess.pending
	if current.Viable() {
		delete(t.sessions, sessionID)
		return Outcome{Active: true, Complete: true, Schedule: current}
	}
	if !sess.asked {
		sess.asked = true
		return Outcome{Active: true, Schedule: current, Clarify: clarifyMessage(current)}
	}
	return Outcome{Active: true, Schedule: current}
}

// Sessions reports the number of live sessions, for diagnostics.
func (t *Tracker) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked(t.now())
	return len(t.sessions)
}

func (t *Tracker) purgeLocked(now time.Time) {
	for id, sess := range t.sessions {
		if now.Sub(sess.touched) > t.ttl {
			delete(t.sessions, id)
		}
	}
}

func clarifyMessage(p Partial) string {
	var have []string
	if p.Time != "" {
		have = append(have, "time "+p.Time)
	}
	if len(p.Attendees) > 0 {
		label := "attendee"
		if len(p.Attendees) > 1 {
			label = "attendees"
		}
		have = append(have, label+" "+strings.Join(p.Attendees, ", "))
	}
	haveText := "some details"
	if len(have) > 0 {
		haveText = strings.Join(have, " and ")
	}

	var missing []string
	if p.Title == "" {
		missing = append(missing, "title")
	}
	if p.Date == "" {
		missing = append(missing, "date")
	}
	return "I have " + haveText + ". Please provide the " + strings.Join(missing, " and ") + " to schedule."
}
