package audio

const (
	// CaptureSampleRate is the sample rate uploaded to speech-to-text.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the sample rate requested from text-to-speech.
	PlaybackSampleRate = 48000

	DefaultFormat = "linear16"
)

// CaptureEncoding returns the encoding used for microphone capture.
func CaptureEncoding() EncodingInfo {
	return EncodingInfo{SampleRate: CaptureSampleRate, Format: EncodingLinear16}
}

// PlaybackEncoding returns the encoding used for synthesized speech.
func PlaybackEncoding() EncodingInfo {
	return EncodingInfo{SampleRate: PlaybackSampleRate, Format: EncodingLinear16}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// FrameBytes returns the byte length of a frame spanning durationMs.
func (e EncodingInfo) FrameBytes(durationMs int) int {
	const millisecondsPerSecond = 1000
	return e.SampleRate * e.Format.ByteSize() * durationMs / millisecondsPerSecond
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
