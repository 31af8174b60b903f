package flux

import (
	"encoding/json"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/m15labs/voxagent-core/core/events"
)

const (
	messageTypeTurnInfo = "TurnInfo"

	turnEventStarted        = "Started"
	turnEventUpdate         = "Update"
	turnEventEagerEndOfTurn = "EagerEndOfTurn"
	turnEventEndOfTurn      = "EndOfTurn"
	turnEventStopped        = "Stopped"
)

type turnInfoMessage struct {
	Type       string `json:"type"`
	Event      string `json:"event"`
	Transcript string `json:"transcript"`
}

type resultsMessage struct {
	Type     string `json:"type"`
	IsFinal  bool   `json:"is_final"`
	Channels []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channels"`
}

// turnParser folds the raw transcription wire protocol into the turn event
// algebra. It tracks a single accumulation buffer holding the latest
// cumulative transcript snapshot; the buffer resets on every turn boundary,
// so no two turn starts can ever share accumulated text.
//
// Turn-oriented and results-oriented envelopes feed the same event sequence;
// consumers never learn which channel an event originated from.
type turnParser struct {
	turnText string
}

// parse decodes one text frame into zero or more turn events. Malformed
// frames are logged by the caller and dropped; parse never fails the stream.
func (p *turnParser) parse(frame []byte) ([]events.TurnEvent, error) {
	var envelope struct {
		Type string `json:"type"`

		// Older endpointing generations signal turn boundaries with
		// top-level flags instead of turn events.
		SpeechStarted bool `json:"speech_started"`
		SpeechFinal   bool `json:"speech_final"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, err
	}

	var turnEvents []events.TurnEvent
	switch api.TypeResponse(envelope.Type) {
	case api.TypeResponse(messageTypeTurnInfo):
		var msg turnInfoMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil, err
		}
		turnEvents = p.parseTurnInfo(msg)

	case api.TypeMessageResponse:
		var msg resultsMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil, err
		}
		turnEvents = p.parseResults(msg)

	default:
		// Unknown envelope types are ignored rather than dropped as
		// malformed; their boundary flags still count.
	}

	if envelope.SpeechStarted {
		turnEvents = append(turnEvents, events.NewUserTurnStarted())
	}
	if envelope.SpeechFinal {
		turnEvents = append(turnEvents, events.NewUserTurnEnded())
	}
	return turnEvents, nil
}

func (p *turnParser) parseTurnInfo(msg turnInfoMessage) []events.TurnEvent {
	switch msg.Event {
	case turnEventStarted:
		p.turnText = ""
		return []events.TurnEvent{events.NewUserTurnStarted()}

	case turnEventUpdate:
		// Updates carry cumulative snapshots, so the latest one replaces
		// whatever was accumulated before it.
		if strings.TrimSpace(msg.Transcript) == "" {
			return nil
		}
		p.turnText = msg.Transcript
		return []events.TurnEvent{events.NewUserTranscriptUpdated(msg.Transcript)}

	case turnEventEagerEndOfTurn, turnEventEndOfTurn, turnEventStopped:
		finalText := strings.TrimSpace(msg.Transcript)
		if finalText == "" {
			finalText = strings.TrimSpace(p.turnText)
		}
		p.turnText = ""

		turnEvents := []events.TurnEvent{events.NewUserTurnEnded()}
		if finalText != "" {
			turnEvents = append(turnEvents, events.NewUserTranscriptFinal(finalText))
		}
		return turnEvents
	}

	return nil
}

func (p *turnParser) parseResults(msg resultsMessage) []events.TurnEvent {
	if len(msg.Channels) == 0 || len(msg.Channels[0].Alternatives) == 0 {
		return nil
	}

	transcript := strings.TrimSpace(msg.Channels[0].Alternatives[0].Transcript)
	if transcript == "" {
		return nil
	}

	if msg.IsFinal {
		p.turnText = ""
		return []events.TurnEvent{events.NewUserTranscriptFinal(transcript)}
	}
	return []events.TurnEvent{events.NewUserTranscriptUpdated(transcript)}
}
