package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/m15labs/voxagent-core/core"
	"github.com/m15labs/voxagent-core/core/audio"
	"github.com/m15labs/voxagent-core/core/audio/miniaudio"
	"github.com/m15labs/voxagent-core/core/conversations"
	"github.com/m15labs/voxagent-core/core/llms/realtime"
	"github.com/m15labs/voxagent-core/core/speechtotext/flux"
	"github.com/m15labs/voxagent-core/core/texttospeech/deepgram"
)

const persona = `You are a helpful voice assistant. Keep answers short and
conversational, one or two sentences, since they will be spoken aloud.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	audioClient, err := miniaudio.NewClient()
	if err != nil {
		return fmt.Errorf("failed to set up audio devices: %w", err)
	}
	defer audioClient.Close()

	speechSink, err := deepgram.NewClient(
		deepgram.VoiceAmalthea,
		audioClient,
		deepgram.WithEncodingInfo(audio.PlaybackEncoding()),
	)
	if err != nil {
		return fmt.Errorf("failed to set up speech synthesis: %w", err)
	}

	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithSpeechToTextClient(flux.NewClient()),
		orchestration.WithRealtimeLLM(realtime.NewClient(realtime.WithPersona(persona))),
		orchestration.WithSpeechSink(speechSink),
		orchestration.WithAudioCapture(audioClient),
		orchestration.WithConversationStore(conversations.NewMemoryStore()),
	)

	program := tea.NewProgram(newModel(orchestrator), tea.WithAltScreen())

	err = orchestrator.Start(context.Background(),
		orchestration.WithSessionTitle("Voice Chat"),
		orchestration.WithPartialTranscriptCallback(func(transcript string) {
			program.Send(partialTranscriptMsg(transcript))
		}),
		orchestration.WithAssistantDeltaCallback(func(delta string) {
			program.Send(assistantDeltaMsg(delta))
		}),
		orchestration.WithTurnAppendedCallback(func(turn conversations.Turn) {
			program.Send(turnAppendedMsg(turn))
		}),
		orchestration.WithSpeakingStateChangedCallback(func(speaking bool) {
			program.Send(speakingStateMsg(speaking))
		}),
		orchestration.WithBargeInCallback(func() {
			program.Send(bargeInMsg{})
		}),
		orchestration.WithErrorCallback(func(err error) {
			program.Send(pipelineErrMsg{err: err})
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if _, err := program.Run(); err != nil {
		orchestrator.Stop()
		return fmt.Errorf("failed to run interface: %w", err)
	}

	orchestrator.Stop()
	orchestrator.AwaitCompletion()
	return nil
}
