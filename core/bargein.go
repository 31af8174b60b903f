package orchestration

import (
	"sync"
	"time"

	"github.com/m15labs/voxagent-core/core/events"
)

// defaultBargeInDebounce is how long the user must keep speaking before an
// in-progress agent answer is cancelled. Short enough to feel instant,
// long enough that a cough or a door slam does not kill the response.
const defaultBargeInDebounce = 150 * time.Millisecond

type responseCanceller interface {
	CancelResponse()
}

type speechSilencer interface {
	Stop()
	IsSpeaking() bool
}

// bargeInCoordinator decides when user speech should interrupt the agent.
// It is a {idle, userSpeaking} state machine driven by turn events, with a
// single cancel-then-replace debounce timer: at most one timer is ever
// outstanding, re-armed on every turn start and disarmed unconditionally
// on turn end.
//
// The timer firing is not sufficient on its own: the user must still be
// speaking when it fires AND the sink must still be speaking, otherwise
// nothing is cancelled. The two-part condition keeps noise blips shorter
// than the debounce from interrupting, and avoids pointless cancellations
// when the agent already went quiet.
type bargeInCoordinator struct {
	llm  responseCanceller
	sink speechSilencer

	debounce  time.Duration
	onBargeIn func()

	mu           sync.Mutex
	userSpeaking bool
	timer        *time.Timer
}

func newBargeInCoordinator(llm responseCanceller, sink speechSilencer, debounce time.Duration, onBargeIn func()) *bargeInCoordinator {
	if debounce <= 0 {
		debounce = defaultBargeInDebounce
	}
	if onBargeIn == nil {
		onBargeIn = func() {}
	}

	return &bargeInCoordinator{
		llm:       llm,
		sink:      sink,
		debounce:  debounce,
		onBargeIn: onBargeIn,
	}
}

// HandleTurnEvent feeds one turn event through the state machine. Events
// other than turn boundaries are ignored here; transcripts are the
// orchestrator's business.
func (b *bargeInCoordinator) HandleTurnEvent(event events.TurnEvent) {
	switch event.(type) {
	case events.UserTurnStarted:
		b.armDebounce()
	case events.UserTurnEnded:
		b.disarm()
	}
}

// armDebounce starts, or restarts, the single debounce timer. Restarting
// is idempotent: the previous timer is stopped first, so a run of turn
// starts can never stack timers or double-fire a cancellation.
func (b *bargeInCoordinator) armDebounce() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.userSpeaking = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, b.fire)
}

func (b *bargeInCoordinator) disarm() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.userSpeaking = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *bargeInCoordinator) fire() {
	b.mu.Lock()
	if !b.userSpeaking {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if !b.sink.IsSpeaking() {
		return
	}

	logger.Info("barge-in: cancelling agent response")
	b.llm.CancelResponse()
	b.sink.Stop()
	b.onBargeIn()
}
