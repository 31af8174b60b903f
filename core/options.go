package orchestration

import (
	"context"
	"time"

	"github.com/m15labs/voxagent-core/core/conversations"
	"github.com/m15labs/voxagent-core/core/events"
	"github.com/m15labs/voxagent-core/core/speechtotext"
)

type OrchestratorOption func(*Orchestrator)

// SpeechToText is the transcription stream the orchestrator consumes.
// SendAudio is fire-and-forget: frames submitted before the connection is
// ready are dropped, never buffered.
type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) (<-chan events.TurnEvent, error)
	SendAudio(frame []byte) error
	Close()
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.speechToText = client }
}

// RealtimeLLM is the streaming language model connection. Connect must
// complete configuration before returning; SendUserText is only legal with
// no response in flight, which the orchestrator guarantees by design.
type RealtimeLLM interface {
	Connect(ctx context.Context) (<-chan events.ResponseEvent, error)
	SendUserText(text string) error
	CancelResponse()
	Close()
}

func WithRealtimeLLM(client RealtimeLLM) OrchestratorOption {
	return func(o *Orchestrator) { o.llm = client }
}

// SpeechSink renders assistant text as audio. Stop must mute locally
// before any network cleanup; IsSpeaking reflects unflushed or
// unacknowledged utterances.
type SpeechSink interface {
	Speak(text string)
	StreamDelta(text string)
	Flush()
	Stop()
	IsSpeaking() bool
	Close()
}

func WithSpeechSink(sink SpeechSink) OrchestratorOption {
	return func(o *Orchestrator) { o.speechSink = sink }
}

// AudioCapture is the microphone boundary: a black box that pushes
// fixed-duration PCM frames into the callback until stopped.
type AudioCapture interface {
	Start(onPCM func(frame []byte)) error
	Stop() error
}

func WithAudioCapture(capture AudioCapture) OrchestratorOption {
	return func(o *Orchestrator) { o.audioCapture = capture }
}

func WithConversationStore(store conversations.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.store = store }
}

// WithBargeInDebounce tunes how long user speech must persist before an
// in-flight response is cancelled.
func WithBargeInDebounce(debounce time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.bargeInDebounce = debounce }
}

// WithSimilarityThreshold tunes duplicate-utterance suppression.
func WithSimilarityThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) { o.similarityThreshold = threshold }
}

type StartOptions struct {
	sessionTitle string

	onPartialTranscript    func(transcript string)
	onAssistantDelta       func(delta string)
	onTurnAppended         func(turn conversations.Turn)
	onSpeakingStateChanged func(speaking bool)
	onBargeIn              func()
	onError                func(err error)
}

type StartOption func(*StartOptions)

func WithSessionTitle(title string) StartOption {
	return func(o *StartOptions) { o.sessionTitle = title }
}

// WithPartialTranscriptCallback delivers live interim user transcripts.
func WithPartialTranscriptCallback(callback func(transcript string)) StartOption {
	return func(o *StartOptions) { o.onPartialTranscript = callback }
}

// WithAssistantDeltaCallback delivers assistant text fragments as they
// stream in.
func WithAssistantDeltaCallback(callback func(delta string)) StartOption {
	return func(o *StartOptions) { o.onAssistantDelta = callback }
}

// WithTurnAppendedCallback delivers every turn appended to the session log.
func WithTurnAppendedCallback(callback func(turn conversations.Turn)) StartOption {
	return func(o *StartOptions) { o.onTurnAppended = callback }
}

// WithSpeakingStateChangedCallback tracks user speech activity boundaries.
func WithSpeakingStateChangedCallback(callback func(speaking bool)) StartOption {
	return func(o *StartOptions) { o.onSpeakingStateChanged = callback }
}

// WithBargeInCallback fires when an agent response is cancelled by a
// user interruption.
func WithBargeInCallback(callback func()) StartOption {
	return func(o *StartOptions) { o.onBargeIn = callback }
}

// WithErrorCallback surfaces stream errors that do not end the session.
func WithErrorCallback(callback func(err error)) StartOption {
	return func(o *StartOptions) { o.onError = callback }
}
