package texttospeech

// AudioOutput is the local playback device synthesized speech renders into.
// Play appends PCM to the device buffer; ClearBuffer discards everything
// buffered, immediately and without blocking on the device.
type AudioOutput interface {
	Play(pcm []byte) error
	ClearBuffer()
}
