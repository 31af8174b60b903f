package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/m15labs/voxagent-core/core/conversations"
	"github.com/m15labs/voxagent-core/core/events"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator wires one conversation: microphone frames into the
// transcription stream, final user turns into the language model, response
// deltas into the speech sink, and barge-in decisions across all three.
//
// Exactly one session is active at a time. All routing state lives in the
// session and is only mutated from the two event pump goroutines, so the
// arbitrary interleaving of transcription and response events never races
// on shared flags. The pumps capture their session, coordinator, and
// callbacks when they are spawned; a restart never shares state with a
// pump still draining the previous session.
type Orchestrator struct {
	speechToText SpeechToText
	llm          RealtimeLLM
	speechSink   SpeechSink
	audioCapture AudioCapture
	store        conversations.Store

	bargeInDebounce     time.Duration
	similarityThreshold float64

	mu          sync.Mutex
	session     *session
	bargeIn     *bargeInCoordinator
	cancelPumps context.CancelFunc
	pumps       sync.WaitGroup
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		bargeInDebounce:     defaultBargeInDebounce,
		similarityThreshold: defaultSimilarityThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start opens both streams, begins draining them, and only then starts the
// audio source: no audio frame can arrive before its consumers exist, and
// no event is processed without a session to attribute it to.
func (o *Orchestrator) Start(ctx context.Context, opts ...StartOption) error {
	ctx, span := tracer.Start(ctx, "start conversation session")
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil && o.session.snapshot().Active {
		return fmt.Errorf("session already active")
	}

	startOpts := StartOptions{sessionTitle: "Voice Chat"}
	for _, opt := range opts {
		opt(&startOpts)
	}

	sessionID := ""
	if o.store != nil {
		var err error
		if sessionID, err = o.store.NewSession(startOpts.sessionTitle); err != nil {
			return o.recordStartError(span, fmt.Errorf("failed to create session: %w", err))
		}
	}

	responseEvents, err := o.llm.Connect(ctx)
	if err != nil {
		return o.recordStartError(span, fmt.Errorf("failed to connect language model: %w", err))
	}

	turnEvents, err := o.speechToText.Transcribe(ctx)
	if err != nil {
		o.llm.Close()
		return o.recordStartError(span, fmt.Errorf("failed to start transcription: %w", err))
	}

	sess := newSession(sessionID)
	bargeIn := newBargeInCoordinator(o.llm, o.speechSink, o.bargeInDebounce, func() {
		sess.discardAssistantResponse()
		if startOpts.onBargeIn != nil {
			startOpts.onBargeIn()
		}
	})
	o.session = sess
	o.bargeIn = bargeIn

	pumpCtx, cancelPumps := context.WithCancel(context.WithoutCancel(ctx))
	o.cancelPumps = cancelPumps

	o.pumps.Add(2)
	go o.drainTurnEvents(pumpCtx, turnEvents, sess, bargeIn, startOpts)
	go o.drainResponseEvents(pumpCtx, responseEvents, sess, startOpts)

	// Mic last: consumers are live, frames have somewhere to go.
	if o.audioCapture != nil {
		if err := o.audioCapture.Start(func(frame []byte) {
			if err := o.speechToText.SendAudio(frame); err != nil {
				logger.Warn("failed to forward audio frame", "error", err)
			}
		}); err != nil {
			recordedErr := fmt.Errorf("failed to start audio capture: %w", err)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
			sess.recordError(recordedErr)
			if startOpts.onError != nil {
				startOpts.onError(recordedErr)
			}
		}
	}

	logger.Info("session started", "session_id", sessionID)
	return nil
}

func (o *Orchestrator) recordStartError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Stop tears the session down. Audio capture stops no later than the
// connections close, so no frame is ever written into a dead socket.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil || !o.session.deactivate() {
		return
	}

	o.speechSink.Stop()
	o.llm.CancelResponse()

	if o.audioCapture != nil {
		if err := o.audioCapture.Stop(); err != nil {
			logger.Warn("failed to stop audio capture", "error", err)
		}
	}
	if o.bargeIn != nil {
		o.bargeIn.disarm()
	}

	o.speechToText.Close()
	o.llm.Close()
	o.speechSink.Close()

	if o.cancelPumps != nil {
		o.cancelPumps()
		o.cancelPumps = nil
	}

	logger.Info("session stopped")
}

// AwaitCompletion blocks until both event pumps have drained, typically
// after Stop.
func (o *Orchestrator) AwaitCompletion() {
	o.pumps.Wait()
}

// Snapshot returns a point-in-time view of the current session. Before the
// first Start it returns a zero snapshot.
func (o *Orchestrator) Snapshot() SessionSnapshot {
	o.mu.Lock()
	session := o.session
	o.mu.Unlock()

	if session == nil {
		return SessionSnapshot{}
	}
	return session.snapshot()
}

func (o *Orchestrator) drainTurnEvents(ctx context.Context, turnEvents <-chan events.TurnEvent, sess *session, bargeIn *bargeInCoordinator, opts StartOptions) {
	defer o.pumps.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-turnEvents:
			if !ok {
				return
			}
			o.handleTurnEvent(sess, bargeIn, opts, event)
		}
	}
}

func (o *Orchestrator) handleTurnEvent(sess *session, bargeIn *bargeInCoordinator, opts StartOptions, event events.TurnEvent) {
	bargeIn.HandleTurnEvent(event)

	switch typedEvent := event.(type) {
	case events.UserTurnStarted:
		if opts.onSpeakingStateChanged != nil {
			opts.onSpeakingStateChanged(true)
		}

	case events.UserTurnEnded:
		if opts.onSpeakingStateChanged != nil {
			opts.onSpeakingStateChanged(false)
		}

	case events.UserTranscriptUpdated:
		sess.setLivePartial(typedEvent.Transcript)
		if opts.onPartialTranscript != nil {
			opts.onPartialTranscript(typedEvent.Transcript)
		}

	case events.UserTranscriptFinal:
		o.handleFinalTranscript(sess, opts, typedEvent.Transcript)

	case events.SpeechToTextError:
		o.handleStreamError(sess, opts, fmt.Errorf("transcription stream: %w", typedEvent.Err))
	}
}

// handleFinalTranscript applies duplicate suppression before forwarding a
// finished user turn. Turn-end and results-channel events can both
// finalize the same utterance, so an exact or near-duplicate of the
// previous user turn is silently absorbed instead of re-asked.
func (o *Orchestrator) handleFinalTranscript(sess *session, opts StartOptions, transcript string) {
	text := strings.TrimSpace(transcript)
	sess.setLivePartial("")
	if text == "" {
		return
	}

	lastUser := sess.lastUserText()
	if text == lastUser || areSimilar(text, lastUser, o.similarityThreshold) {
		logger.Debug("suppressed duplicate utterance", "text", text)
		return
	}

	turn := sess.appendTurn(conversations.RoleUser, text)
	if o.store != nil {
		if err := o.store.AddUserText(sess.id, text); err != nil {
			logger.Warn("failed to persist user turn", "error", err)
		}
	}
	if opts.onTurnAppended != nil {
		opts.onTurnAppended(turn)
	}

	// A cancelled response leaves the discard gate set with no boundary
	// event to clear it; requesting the next response is the boundary.
	sess.beginAssistantResponse()
	if err := o.llm.SendUserText(text); err != nil {
		o.handleStreamError(sess, opts, fmt.Errorf("failed to send user turn: %w", err))
	}
}

func (o *Orchestrator) drainResponseEvents(ctx context.Context, responseEvents <-chan events.ResponseEvent, sess *session, opts StartOptions) {
	defer o.pumps.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-responseEvents:
			if !ok {
				return
			}
			o.handleResponseEvent(sess, opts, event)
		}
	}
}

func (o *Orchestrator) handleResponseEvent(sess *session, opts StartOptions, event events.ResponseEvent) {
	switch typedEvent := event.(type) {
	case events.AssistantConnected:
		logger.Info("language model connected")

	case events.AssistantResponseDelta:
		// A delta that lost the race against a cancellation is dropped by
		// the session's state, not by trying to outrun the socket.
		if !sess.addAssistantDelta(typedEvent.Delta) {
			return
		}
		o.speechSink.StreamDelta(typedEvent.Delta)
		if opts.onAssistantDelta != nil {
			opts.onAssistantDelta(typedEvent.Delta)
		}

	case events.AssistantResponseFinal:
		finalText := sess.finishAssistantResponse(typedEvent.Text)
		if finalText != "" {
			turn := sess.appendTurn(conversations.RoleAssistant, finalText)
			if o.store != nil {
				if err := o.store.AddAssistantText(sess.id, finalText); err != nil {
					logger.Warn("failed to persist assistant turn", "error", err)
				}
			}
			if opts.onTurnAppended != nil {
				opts.onTurnAppended(turn)
			}
		}
		o.speechSink.Flush()

	case events.AssistantResponseError:
		o.handleStreamError(sess, opts, fmt.Errorf("response stream: %w", typedEvent.Err))
	}
}

// handleStreamError surfaces a sub-stream failure on session state without
// ending the session; the sink is flushed defensively so anything already
// synthesized still plays out.
func (o *Orchestrator) handleStreamError(sess *session, opts StartOptions, err error) {
	logger.Warn("stream error", "error", err)
	sess.recordError(err)
	o.speechSink.Flush()
	if opts.onError != nil {
		opts.onError(err)
	}
}
