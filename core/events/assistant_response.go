package events

const (
	// KindAssistantConnected identifies a ready language model connection.
	KindAssistantConnected Kind = "assistant_response.connected"
	// KindAssistantResponseDelta identifies streamed assistant response text.
	KindAssistantResponseDelta Kind = "assistant_response.delta"
	// KindAssistantResponseFinal identifies assistant response completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
	// KindAssistantResponseError identifies a response stream failure.
	KindAssistantResponseError Kind = "assistant_response.error"
)

// ResponseEvent is the subset of events a language model stream can deliver.
type ResponseEvent interface {
	Event
	responseEvent()
}

// AssistantConnected marks the connection as configured and ready for user
// turns. The persona configuration has already been sent when it is emitted.
type AssistantConnected struct{ Base }

func (AssistantConnected) responseEvent() {}

// NewAssistantConnected creates an assistant connected event.
func NewAssistantConnected() AssistantConnected {
	return AssistantConnected{Base: NewBase(KindAssistantConnected)}
}

// AssistantResponseDelta carries an incremental fragment of response text.
type AssistantResponseDelta struct {
	Base
	Delta string
}

func (AssistantResponseDelta) responseEvent() {}

// NewAssistantResponseDelta creates an assistant response delta event.
func NewAssistantResponseDelta(delta string) AssistantResponseDelta {
	return AssistantResponseDelta{Base: NewBase(KindAssistantResponseDelta), Delta: delta}
}

// AssistantResponseFinal marks the end of one response. Text carries the
// complete response when the server included it, and may be empty; consumers
// fall back to their accumulated deltas in that case.
type AssistantResponseFinal struct {
	Base
	Text string
}

func (AssistantResponseFinal) responseEvent() {}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(text string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Text: text}
}

// AssistantResponseError surfaces a language model stream failure.
type AssistantResponseError struct {
	Base
	Err error
}

func (AssistantResponseError) responseEvent() {}

// NewAssistantResponseError creates an assistant response error event.
func NewAssistantResponseError(err error) AssistantResponseError {
	return AssistantResponseError{Base: NewBase(KindAssistantResponseError), Err: err}
}
