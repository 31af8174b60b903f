package events

const (
	// KindUserTurnStarted identifies the start of a user speech turn.
	KindUserTurnStarted Kind = "user_turn.started"
	// KindUserTranscriptUpdated identifies mutable interim transcript snapshots.
	KindUserTranscriptUpdated Kind = "user_turn.transcript_updated"
	// KindUserTurnEnded identifies the end of a user speech turn.
	KindUserTurnEnded Kind = "user_turn.ended"
	// KindUserTranscriptFinal identifies the final transcript for the turn.
	KindUserTranscriptFinal Kind = "user_turn.transcript_final"
	// KindSpeechToTextError identifies a speech-to-text stream failure.
	KindSpeechToTextError Kind = "user_turn.stream_error"
)

// TurnEvent is the subset of events a speech-to-text stream can deliver.
type TurnEvent interface {
	Event
	turnEvent()
}

// UserTurnStarted marks the start of a user speech turn.
type UserTurnStarted struct{ Base }

func (UserTurnStarted) turnEvent() {}

// NewUserTurnStarted creates a user turn started event.
func NewUserTurnStarted() UserTurnStarted {
	return UserTurnStarted{Base: NewBase(KindUserTurnStarted)}
}

// UserTranscriptUpdated carries the latest cumulative transcript snapshot
// for the in-progress turn. Each snapshot replaces the previous one.
type UserTranscriptUpdated struct {
	Base
	Transcript string
}

func (UserTranscriptUpdated) turnEvent() {}

// NewUserTranscriptUpdated creates an interim transcript snapshot event.
func NewUserTranscriptUpdated(transcript string) UserTranscriptUpdated {
	return UserTranscriptUpdated{Base: NewBase(KindUserTranscriptUpdated), Transcript: transcript}
}

// UserTurnEnded marks the end of a user speech turn.
type UserTurnEnded struct{ Base }

func (UserTurnEnded) turnEvent() {}

// NewUserTurnEnded creates a user turn ended event.
func NewUserTurnEnded() UserTurnEnded {
	return UserTurnEnded{Base: NewBase(KindUserTurnEnded)}
}

// UserTranscriptFinal carries the final transcript for a completed turn.
// It is only emitted when the final transcript is non-empty, and always
// after the matching UserTurnEnded.
type UserTranscriptFinal struct {
	Base
	Transcript string
}

func (UserTranscriptFinal) turnEvent() {}

// NewUserTranscriptFinal creates a final transcript event.
func NewUserTranscriptFinal(transcript string) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript}
}

// SpeechToTextError surfaces a transcription stream failure. The stream
// stops producing events after it; the session itself stays alive.
type SpeechToTextError struct {
	Base
	Err error
}

func (SpeechToTextError) turnEvent() {}

// NewSpeechToTextError creates a speech-to-text stream error event.
func NewSpeechToTextError(err error) SpeechToTextError {
	return SpeechToTextError{Base: NewBase(KindSpeechToTextError), Err: err}
}
