package orchestration

import (
	"strings"
	"sync"
	"time"

	"github.com/m15labs/voxagent-core/core/conversations"
)

// session is the orchestrator's live view of one conversation. The turn
// log is append-only; everything else is mutable presentation state the
// snapshot exposes to callers.
type session struct {
	mu sync.Mutex

	id     string
	active bool

	turns []conversations.Turn

	// livePartial is the user's in-progress transcript, cleared when the
	// turn finalizes or is suppressed.
	livePartial string
	// assistantLive accumulates response deltas until the response ends.
	assistantLive strings.Builder
	// discardDeltas drops late response deltas after a cancellation; it
	// resets when the next response boundary arrives.
	discardDeltas bool

	lastErr error
}

// SessionSnapshot is a point-in-time copy of session state, detached from
// further mutation.
type SessionSnapshot struct {
	ID            string
	Active        bool
	LivePartial   string
	AssistantLive string
	Err           error
	Turns         []conversations.Turn
}

func newSession(id string) *session {
	return &session{id: id, active: true}
}

func (s *session) appendTurn(role conversations.Role, text string) conversations.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := conversations.Turn{Role: role, Text: text, Timestamp: time.Now()}
	s.turns = append(s.turns, turn)
	return turn
}

// lastUserText returns the most recent user turn's text, or "".
func (s *session) lastUserText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == conversations.RoleUser {
			return s.turns[i].Text
		}
	}
	return ""
}

func (s *session) setLivePartial(transcript string) {
	s.mu.Lock()
	s.livePartial = transcript
	s.mu.Unlock()
}

// addAssistantDelta appends one response fragment, unless deltas are being
// discarded after a cancellation. Reports whether the delta was accepted.
func (s *session) addAssistantDelta(delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discardDeltas {
		return false
	}
	s.assistantLive.WriteString(delta)
	return true
}

// finishAssistantResponse closes out the current response and returns the
// final text: the completion's own text when present, otherwise whatever
// deltas accumulated. Always resets the buffer and the discard gate.
func (s *session) finishAssistantResponse(completionText string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	finalText := strings.TrimSpace(completionText)
	if finalText == "" {
		finalText = strings.TrimSpace(s.assistantLive.String())
	}
	s.assistantLive.Reset()
	s.discardDeltas = false
	return finalText
}

// beginAssistantResponse opens a fresh response accumulation. A cancelled
// response produces no boundary event, so the discard gate left behind by
// the cancellation is lifted here, when the next response is requested,
// rather than waiting for a completion that never comes.
func (s *session) beginAssistantResponse() {
	s.mu.Lock()
	s.assistantLive.Reset()
	s.discardDeltas = false
	s.mu.Unlock()
}

// discardAssistantResponse throws away the partially accumulated response
// and gates out any deltas still in flight.
func (s *session) discardAssistantResponse() {
	s.mu.Lock()
	s.assistantLive.Reset()
	s.discardDeltas = true
	s.mu.Unlock()
}

func (s *session) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *session) deactivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasActive := s.active
	s.active = false
	return wasActive
}

func (s *session) snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]conversations.Turn, len(s.turns))
	copy(turns, s.turns)

	return SessionSnapshot{
		ID:            s.id,
		Active:        s.active,
		LivePartial:   s.livePartial,
		AssistantLive: s.assistantLive.String(),
		Err:           s.lastErr,
		Turns:         turns,
	}
}
