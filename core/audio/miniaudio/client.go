// Package miniaudio provides microphone capture and speaker playback on top
// of malgo, shaped for the duplex voice pipeline: capture frames go out
// through a callback, synthesized audio comes in through Play and is drained
// by the device at its own pace.
package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// Client owns a single malgo context and one device of each direction.
// Capture runs at the transcription rate, playback at the synthesis rate;
// the two never share a buffer.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackDevice
	captureDevice
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playbackDevice.init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	// Playback starts immediately so Play only ever buffers; the device
	// emits silence until audio arrives.
	if err := client.playbackDevice.start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureDevice.init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return &client, nil
}

// Start begins delivering microphone frames to onPCM. Frames are raw
// linear16 mono at the capture rate, sized by the device period.
func (c *Client) Start(onPCM func(pcm []byte)) error {
	return c.captureDevice.start(onPCM)
}

// Stop halts microphone capture. Playback keeps running so any queued
// synthesis still plays out.
func (c *Client) Stop() error {
	return c.captureDevice.stop()
}

func (c *Client) Close() {
	_ = c.captureDevice.uninit()
	_ = c.playbackDevice.uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

// Play queues synthesized PCM for the speaker.
func (c *Client) Play(pcm []byte) error {
	return c.playbackDevice.play(pcm)
}

// ClearBuffer drops all queued but not yet played audio.
func (c *Client) ClearBuffer() {
	c.playbackDevice.clearBuffer()
}
