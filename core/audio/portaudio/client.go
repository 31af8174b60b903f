// Package portaudio is a capture-only fallback to the miniaudio backend,
// for platforms where PortAudio is the more reliable host API.
package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/m15labs/voxagent-core/core/audio"
)

type Client struct {
	stream *portaudio.Stream
	in     []int16

	mu      sync.Mutex
	done    chan struct{}
	readers sync.WaitGroup
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.CaptureSampleRate, bufferSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open capture stream: %w", err)
	}

	return &Client{stream: stream, in: in}, nil
}

// Start begins reading microphone frames and handing them to onPCM as
// little-endian linear16 bytes. Reading happens on a dedicated goroutine
// until Stop.
func (c *Client) Start(onPCM func(pcm []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	c.done = make(chan struct{})
	done := c.done
	c.readers.Add(1)
	go func() {
		defer c.readers.Done()
		for {
			select {
			case <-done:
				return
			default:
			}

			if err := c.stream.Read(); err != nil {
				continue
			}

			frame := bytes.Buffer{}
			_ = binary.Write(&frame, binary.LittleEndian, c.in)
			onPCM(frame.Bytes())
		}
	}()

	return nil
}

// Stop halts capture and waits for the reader goroutine to exit.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return nil
	}

	close(c.done)
	c.done = nil
	c.readers.Wait()

	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture stream: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	_ = c.Stop()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}
