package events

import (
	"errors"
	"testing"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "user turn started", event: NewUserTurnStarted(), expected: KindUserTurnStarted},
		{name: "user transcript updated", event: NewUserTranscriptUpdated("text"), expected: KindUserTranscriptUpdated},
		{name: "user turn ended", event: NewUserTurnEnded(), expected: KindUserTurnEnded},
		{name: "user transcript final", event: NewUserTranscriptFinal("text"), expected: KindUserTranscriptFinal},
		{name: "speech to text error", event: NewSpeechToTextError(errors.New("boom")), expected: KindSpeechToTextError},
		{name: "assistant connected", event: NewAssistantConnected(), expected: KindAssistantConnected},
		{name: "assistant response delta", event: NewAssistantResponseDelta("seg"), expected: KindAssistantResponseDelta},
		{name: "assistant response final", event: NewAssistantResponseFinal("text"), expected: KindAssistantResponseFinal},
		{name: "assistant response error", event: NewAssistantResponseError(errors.New("boom")), expected: KindAssistantResponseError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected a non-zero timestamp")
			}
		})
	}
}

func TestTurnAndResponseEventsAreDisjoint(t *testing.T) {
	var turnEvent Event = NewUserTurnStarted()
	var responseEvent Event = NewAssistantConnected()

	if _, ok := turnEvent.(ResponseEvent); ok {
		t.Fatalf("expected turn events to not satisfy the response event marker")
	}
	if _, ok := responseEvent.(TurnEvent); ok {
		t.Fatalf("expected response events to not satisfy the turn event marker")
	}
}

func TestTurnBoundaryKindsAreDistinct(t *testing.T) {
	started := NewUserTurnStarted()
	ended := NewUserTurnEnded()

	if started.Kind() == ended.Kind() {
		t.Fatalf("expected turn started and turn ended kinds to differ, both were %q", started.Kind())
	}
}
