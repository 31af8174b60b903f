package speechtotext

import "github.com/m15labs/voxagent-core/core/audio"

type TranscriptionOptions struct {
	// EncodingInfo describes the audio uploaded to the transcription service.
	EncodingInfo audio.EncodingInfo

	// EventBuffer is the capacity of the turn event channel handed to the
	// consumer.
	EventBuffer int
}

type TranscriptionOption func(*TranscriptionOptions)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithEventBuffer(size int) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EventBuffer = size
	}
}
