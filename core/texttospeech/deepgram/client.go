package deepgram

import (
	"fmt"
	"slices"

	"github.com/m15labs/voxagent-core/core/audio"
	"github.com/m15labs/voxagent-core/core/texttospeech"
)

type deepgramVoice string

const (
	VoiceAmalthea deepgramVoice = "aura-2-amalthea-en"
	VoiceAsteria  deepgramVoice = "aura-2-asteria-en"
	VoiceThalia   deepgramVoice = "aura-2-thalia-en"
	VoiceOrion    deepgramVoice = "aura-2-orion-en"

	defaultVoice = VoiceAmalthea
)

// GetAvailableVoices lists the synthesis voices this client accepts.
func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{VoiceAmalthea, VoiceAsteria, VoiceThalia, VoiceOrion}
}

type Option func(*Client)

// WithBaseURL overrides the synthesis endpoint, primarily for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithAPIKey overrides the DEEPGRAM_API_KEY environment lookup.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) Option {
	return func(c *Client) { c.encodingInfo = encodingInfo }
}

// NewClient creates a speech sink rendering into output. The sink connects
// lazily: the websocket is dialed by the command consumer ahead of draining
// the first command, so commands enqueued before the connection exists are
// never lost or reordered.
func NewClient(voice deepgramVoice, output texttospeech.AudioOutput, opts ...Option) (*Client, error) {
	if voice == "" {
		voice = defaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice")
	}
	if output == nil {
		return nil, fmt.Errorf("audio output is required")
	}

	client := &Client{
		baseURL:      defaultBaseURL,
		voice:        voice,
		encodingInfo: audio.PlaybackEncoding(),
		output:       output,
		outbox:       make(chan speechCommand, commandQueueSize),
		quit:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.dial = client.dialWebsocket

	go client.drainCommands()

	return client, nil
}
