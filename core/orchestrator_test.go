package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m15labs/voxagent-core/core/conversations"
	"github.com/m15labs/voxagent-core/core/events"
	"github.com/m15labs/voxagent-core/core/speechtotext"
)

type speechToTextStub struct {
	turnEvents chan events.TurnEvent

	mu     sync.Mutex
	frames [][]byte
	closed atomic.Bool
}

func newSpeechToTextStub() *speechToTextStub {
	return &speechToTextStub{turnEvents: make(chan events.TurnEvent, 32)}
}

func (s *speechToTextStub) Transcribe(context.Context, ...speechtotext.TranscriptionOption) (<-chan events.TurnEvent, error) {
	return s.turnEvents, nil
}

func (s *speechToTextStub) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *speechToTextStub) Close() { s.closed.Store(true) }

type realtimeLLMStub struct {
	responseEvents chan events.ResponseEvent

	mu      sync.Mutex
	sent    []string
	cancels atomic.Int32
	closed  atomic.Bool
}

func newRealtimeLLMStub() *realtimeLLMStub {
	return &realtimeLLMStub{responseEvents: make(chan events.ResponseEvent, 32)}
}

func (l *realtimeLLMStub) Connect(context.Context) (<-chan events.ResponseEvent, error) {
	return l.responseEvents, nil
}

func (l *realtimeLLMStub) SendUserText(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, text)
	return nil
}

func (l *realtimeLLMStub) CancelResponse() { l.cancels.Add(1) }
func (l *realtimeLLMStub) Close()          { l.closed.Store(true) }

func (l *realtimeLLMStub) sentTexts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.sent...)
}

type speechSinkStub struct {
	mu       sync.Mutex
	deltas   []string
	spoken   []string
	flushes  int
	stops    int
	speaking atomic.Bool
	closed   atomic.Bool
}

func (s *speechSinkStub) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
}

func (s *speechSinkStub) StreamDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, text)
}

func (s *speechSinkStub) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *speechSinkStub) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.speaking.Store(false)
}

func (s *speechSinkStub) IsSpeaking() bool { return s.speaking.Load() }
func (s *speechSinkStub) Close()           { s.closed.Store(true) }

func (s *speechSinkStub) streamedDeltas() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.deltas...)
}

type audioCaptureStub struct {
	mu      sync.Mutex
	onPCM   func(frame []byte)
	started bool
	stopped bool
}

func (a *audioCaptureStub) Start(onPCM func(frame []byte)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onPCM = onPCM
	a.started = true
	return nil
}

func (a *audioCaptureStub) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	return nil
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

type testPipeline struct {
	orchestrator *Orchestrator
	stt          *speechToTextStub
	llm          *realtimeLLMStub
	sink         *speechSinkStub
	capture      *audioCaptureStub
}

func startTestPipeline(t *testing.T, startOpts ...StartOption) *testPipeline {
	t.Helper()

	pipeline := &testPipeline{
		stt:     newSpeechToTextStub(),
		llm:     newRealtimeLLMStub(),
		sink:    &speechSinkStub{},
		capture: &audioCaptureStub{},
	}
	pipeline.orchestrator = NewOrchestrator(
		WithSpeechToTextClient(pipeline.stt),
		WithRealtimeLLM(pipeline.llm),
		WithSpeechSink(pipeline.sink),
		WithAudioCapture(pipeline.capture),
		WithConversationStore(conversations.NewMemoryStore()),
		WithBargeInDebounce(10*time.Millisecond),
	)

	if err := pipeline.orchestrator.Start(context.Background(), startOpts...); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	t.Cleanup(func() {
		pipeline.orchestrator.Stop()
		pipeline.orchestrator.AwaitCompletion()
	})
	return pipeline
}

func TestOrchestratorRoundTrip(t *testing.T) {
	appended := make(chan conversations.Turn, 8)
	pipeline := startTestPipeline(t, WithTurnAppendedCallback(func(turn conversations.Turn) {
		appended <- turn
	}))

	pipeline.stt.turnEvents <- events.NewUserTurnStarted()
	pipeline.stt.turnEvents <- events.NewUserTranscriptUpdated("what time")
	pipeline.stt.turnEvents <- events.NewUserTurnEnded()
	pipeline.stt.turnEvents <- events.NewUserTranscriptFinal("what time is it")

	waitFor(t, "user turn to reach the language model", func() bool {
		sent := pipeline.llm.sentTexts()
		return len(sent) == 1 && sent[0] == "what time is it"
	})

	select {
	case turn := <-appended:
		if turn.Role != conversations.RoleUser || turn.Text != "what time is it" {
			t.Fatalf("expected appended user turn, got %+v", turn)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the user turn callback")
	}

	pipeline.llm.responseEvents <- events.NewAssistantResponseDelta("A")
	pipeline.llm.responseEvents <- events.NewAssistantResponseDelta("B")
	pipeline.llm.responseEvents <- events.NewAssistantResponseFinal("")

	select {
	case turn := <-appended:
		if turn.Role != conversations.RoleAssistant || turn.Text != "AB" {
			t.Fatalf("expected assistant turn assembled from deltas, got %+v", turn)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the assistant turn callback")
	}

	deltas := pipeline.sink.streamedDeltas()
	if len(deltas) != 2 || deltas[0] != "A" || deltas[1] != "B" {
		t.Fatalf("expected deltas [A B] streamed to the sink, got %v", deltas)
	}

	snapshot := pipeline.orchestrator.Snapshot()
	if len(snapshot.Turns) != 2 {
		t.Fatalf("expected 2 turns in the session, got %+v", snapshot)
	}
}

func TestOrchestratorSuppressesDuplicateTranscripts(t *testing.T) {
	pipeline := startTestPipeline(t)

	pipeline.stt.turnEvents <- events.NewUserTranscriptFinal("turn it off")
	waitFor(t, "first transcript to be forwarded", func() bool {
		return len(pipeline.llm.sentTexts()) == 1
	})

	// A near duplicate of the previous turn is absorbed.
	pipeline.stt.turnEvents <- events.NewUserTranscriptFinal("turn it offf")
	// A genuinely different request still goes through.
	pipeline.stt.turnEvents <- events.NewUserTranscriptFinal("call my mom")

	waitFor(t, "distinct transcript to be forwarded", func() bool {
		return len(pipeline.llm.sentTexts()) == 2
	})

	sent := pipeline.llm.sentTexts()
	if sent[1] != "call my mom" {
		t.Fatalf("expected duplicate to be suppressed, got %v", sent)
	}
}

func TestOrchestratorFiresBargeIn(t *testing.T) {
	bargeIns := make(chan struct{}, 1)
	pipeline := startTestPipeline(t, WithBargeInCallback(func() {
		bargeIns <- struct{}{}
	}))

	// The agent is mid-answer when the user starts talking.
	pipeline.llm.responseEvents <- events.NewAssistantResponseDelta("a very long answer")
	pipeline.sink.speaking.Store(true)

	pipeline.stt.turnEvents <- events.NewUserTurnStarted()

	select {
	case <-bargeIns:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for barge-in")
	}

	if got := pipeline.llm.cancels.Load(); got != 1 {
		t.Fatalf("expected one response cancellation, got %d", got)
	}
	waitFor(t, "sink to be stopped", func() bool {
		pipeline.sink.mu.Lock()
		defer pipeline.sink.mu.Unlock()
		return pipeline.sink.stops == 1
	})

	// A cancelled response produces no completion event; its trailing
	// deltas are discarded and leave no turn behind.
	pipeline.llm.responseEvents <- events.NewAssistantResponseDelta("stale tail")
	waitFor(t, "stale delta to drain", func() bool {
		return len(pipeline.llm.responseEvents) == 0
	})

	if turns := pipeline.orchestrator.Snapshot().Turns; len(turns) != 0 {
		t.Fatalf("expected cancelled response to leave no turns, got %v", turns)
	}
	if snapshot := pipeline.orchestrator.Snapshot(); snapshot.AssistantLive != "" {
		t.Fatalf("expected cancelled response to leave no accumulated text, got %q", snapshot.AssistantLive)
	}
}

func TestOrchestratorSpeaksAgainAfterBargeIn(t *testing.T) {
	bargeIns := make(chan struct{}, 1)
	pipeline := startTestPipeline(t, WithBargeInCallback(func() {
		bargeIns <- struct{}{}
	}))

	pipeline.llm.responseEvents <- events.NewAssistantResponseDelta("old answer ")
	pipeline.sink.speaking.Store(true)
	pipeline.stt.turnEvents <- events.NewUserTurnStarted()

	select {
	case <-bargeIns:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for barge-in")
	}

	// The interrupting speech becomes the next user turn. The cancelled
	// response never produced a completion event before it.
	pipeline.stt.turnEvents <- events.NewUserTurnEnded()
	pipeline.stt.turnEvents <- events.NewUserTranscriptFinal("actually, play some music")

	waitFor(t, "interrupting turn to reach the language model", func() bool {
		return len(pipeline.llm.sentTexts()) == 1
	})

	pipeline.llm.responseEvents <- events.NewAssistantResponseDelta("Sure, ")
	pipeline.llm.responseEvents <- events.NewAssistantResponseDelta("starting it now.")

	waitFor(t, "next response to reach the speech sink", func() bool {
		deltas := pipeline.sink.streamedDeltas()
		return len(deltas) >= 2 && deltas[len(deltas)-1] == "starting it now."
	})

	deltas := pipeline.sink.streamedDeltas()
	if deltas[len(deltas)-2] != "Sure, " {
		t.Fatalf("expected the full next response streamed in order, got %v", deltas)
	}

	pipeline.llm.responseEvents <- events.NewAssistantResponseFinal("")
	waitFor(t, "next response to complete", func() bool {
		turns := pipeline.orchestrator.Snapshot().Turns
		return len(turns) == 2 && turns[1].Text == "Sure, starting it now."
	})
}

func TestOrchestratorForwardsAudioFrames(t *testing.T) {
	pipeline := startTestPipeline(t)

	pipeline.capture.mu.Lock()
	onPCM := pipeline.capture.onPCM
	started := pipeline.capture.started
	pipeline.capture.mu.Unlock()

	if !started || onPCM == nil {
		t.Fatalf("expected audio capture to be started with a frame callback")
	}

	onPCM([]byte{1, 2, 3})

	pipeline.stt.mu.Lock()
	frames := len(pipeline.stt.frames)
	pipeline.stt.mu.Unlock()
	if frames != 1 {
		t.Fatalf("expected one forwarded frame, got %d", frames)
	}
}

func TestOrchestratorStartWhileActiveFails(t *testing.T) {
	pipeline := startTestPipeline(t)

	if err := pipeline.orchestrator.Start(context.Background()); err == nil {
		t.Fatalf("expected starting an active session to fail")
	}
}

func TestOrchestratorStopTearsDownOnce(t *testing.T) {
	pipeline := startTestPipeline(t)

	pipeline.orchestrator.Stop()
	pipeline.orchestrator.Stop()
	pipeline.orchestrator.AwaitCompletion()

	if !pipeline.stt.closed.Load() {
		t.Fatalf("expected transcription to be closed")
	}
	if !pipeline.llm.closed.Load() {
		t.Fatalf("expected language model connection to be closed")
	}
	if !pipeline.sink.closed.Load() {
		t.Fatalf("expected speech sink to be closed")
	}

	pipeline.capture.mu.Lock()
	stopped := pipeline.capture.stopped
	pipeline.capture.mu.Unlock()
	if !stopped {
		t.Fatalf("expected audio capture to be stopped")
	}

	if got := pipeline.llm.cancels.Load(); got != 1 {
		t.Fatalf("expected stop to cancel once, got %d", got)
	}

	if pipeline.orchestrator.Snapshot().Active {
		t.Fatalf("expected session to be inactive after stop")
	}
}

func TestOrchestratorRestartAfterStop(t *testing.T) {
	pipeline := startTestPipeline(t)

	pipeline.stt.turnEvents <- events.NewUserTranscriptFinal("first session turn")
	waitFor(t, "first session turn to be forwarded", func() bool {
		return len(pipeline.llm.sentTexts()) == 1
	})

	pipeline.orchestrator.Stop()
	pipeline.orchestrator.AwaitCompletion()

	partials := make(chan string, 8)
	if err := pipeline.orchestrator.Start(context.Background(),
		WithPartialTranscriptCallback(func(transcript string) {
			partials <- transcript
		}),
	); err != nil {
		t.Fatalf("expected restart to succeed, got %v", err)
	}

	// The new session routes through the callbacks passed to the new
	// Start, with a fresh turn log.
	pipeline.stt.turnEvents <- events.NewUserTranscriptUpdated("second sess")

	select {
	case got := <-partials:
		if got != "second sess" {
			t.Fatalf("expected the new session's partial, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the new session's partial callback")
	}

	snapshot := pipeline.orchestrator.Snapshot()
	if !snapshot.Active || len(snapshot.Turns) != 0 {
		t.Fatalf("expected a fresh active session after restart, got %+v", snapshot)
	}
}

func TestOrchestratorReportsStreamErrors(t *testing.T) {
	errs := make(chan error, 2)
	pipeline := startTestPipeline(t, WithErrorCallback(func(err error) {
		errs <- err
	}))

	pipeline.stt.turnEvents <- events.NewSpeechToTextError(context.DeadlineExceeded)

	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected a non-nil stream error")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the error callback")
	}

	if pipeline.orchestrator.Snapshot().Err == nil {
		t.Fatalf("expected the session to record the stream error")
	}
}
