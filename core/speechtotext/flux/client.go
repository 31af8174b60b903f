package flux

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/m15labs/voxagent-core/core/audio"
	"github.com/m15labs/voxagent-core/core/events"
	"github.com/m15labs/voxagent-core/core/speechtotext"
	"github.com/m15labs/voxagent-core/internal/utils"
)

const (
	defaultBaseURL = "wss://api.deepgram.com/v2/listen"
	defaultModel   = "flux-general-en"

	defaultEotThreshold      = 0.85
	defaultEagerEotThreshold = 0.75
	defaultEotTimeoutMs      = 8000

	defaultEventBuffer = 128
)

// Client owns one bidirectional transcription connection. Audio frames are
// uploaded fire-and-forget; turn events come back on the channel returned by
// Transcribe. Frames submitted before the connection is ready are dropped,
// a dropped frame only costs milliseconds of transcription context.
type Client struct {
	baseURL string
	apiKey  string
	model   string

	eotThreshold      float64
	eagerEotThreshold float64
	eotTimeout        time.Duration

	connMu      sync.Mutex
	conn        *websocket.Conn
	lastAudioTs time.Time

	ready  atomic.Bool
	closed atomic.Bool

	turnEvents chan events.TurnEvent
	stopIdle   context.CancelFunc
}

type Option func(*Client)

// WithBaseURL overrides the transcription endpoint, primarily for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithAPIKey overrides the DEEPGRAM_API_KEY environment lookup.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithEndOfTurnThresholds tunes turn ending detection. eager lets the
// consumer act sooner at the cost of occasional retractions.
func WithEndOfTurnThresholds(conservative, eager float64) Option {
	return func(c *Client) {
		c.eotThreshold = conservative
		c.eagerEotThreshold = eager
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:           defaultBaseURL,
		model:             defaultModel,
		eotThreshold:      defaultEotThreshold,
		eagerEotThreshold: defaultEagerEotThreshold,
		eotTimeout:        defaultEotTimeoutMs * time.Millisecond,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Transcribe opens the transcription stream and returns the ordered turn
// event sequence. It is idempotent while a connection is live: repeated
// calls return the already-open stream.
func (c *Client) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) (<-chan events.TurnEvent, error) {
	options := &speechtotext.TranscriptionOptions{
		EncodingInfo: audio.CaptureEncoding(),
		EventBuffer:  defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(options)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.turnEvents, nil
	}

	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
	}

	listenURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid transcription url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("model", c.model)
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	queryParams.Set("eot_threshold", strconv.FormatFloat(c.eotThreshold, 'f', -1, 64))
	queryParams.Set("eager_eot_threshold", strconv.FormatFloat(c.eagerEotThreshold, 'f', -1, 64))
	queryParams.Set("eot_timeout_ms", strconv.Itoa(int(c.eotTimeout.Milliseconds())))
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to transcription: %w", err)
	}

	c.conn = conn
	c.lastAudioTs = time.Now()
	c.turnEvents = make(chan events.TurnEvent, options.EventBuffer)
	c.ready.Store(true)

	idleCtx, cancelIdle := context.WithCancel(ctx)
	c.stopIdle = cancelIdle
	go c.fillIdleGaps(idleCtx, options.EncodingInfo)
	go c.readAndProcessMessages(ctx, conn, c.turnEvents)

	return c.turnEvents, nil
}

// SendAudio submits one audio frame without blocking on the connection.
// Frames are dropped while no connection is ready.
func (c *Client) SendAudio(frame []byte) error {
	if !c.ready.Load() {
		return nil
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}

	c.lastAudioTs = time.Now()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to write audio to transcription socket: %w", err)
	}
	return nil
}

// Close releases the connection and stops event emission. Safe to call at
// any time, including before Transcribe and more than once.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.ready.Store(false)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.stopIdle != nil {
		c.stopIdle()
		c.stopIdle = nil
	}
	if c.conn != nil {
		_ = c.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)})
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, turnEvents chan<- events.TurnEvent) {
	defer close(turnEvents)

	parser := turnParser{}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.ready.Store(false)
			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()
			_ = conn.Close()

			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("transcription socket read failed", "error", err)
				c.emit(ctx, turnEvents, events.NewSpeechToTextError(err))
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			continue
		}

		parsed, err := parser.parse(msg)
		if err != nil {
			logger.Warn("dropping malformed transcription frame", "error", err)
			continue
		}
		for _, event := range parsed {
			if !c.emit(ctx, turnEvents, event) {
				return
			}
		}
	}
}

func (c *Client) emit(ctx context.Context, turnEvents chan<- events.TurnEvent, event events.TurnEvent) bool {
	select {
	case turnEvents <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// fillIdleGaps keeps the remote endpointing model fed when the microphone
// goes quiet: short gaps are bridged with silence frames, longer ones fall
// back to protocol keep-alives so the connection is not reaped as stalled.
func (c *Client) fillIdleGaps(ctx context.Context, encoding audio.EncodingInfo) {
	type idleState string
	const (
		idleStateWaiting   idleState = "waiting"
		idleStateSilence   idleState = "silence"
		idleStateKeepAlive idleState = "keepAlive"
	)

	const tickMs = 50
	ticker := time.NewTicker(tickMs * time.Millisecond)
	defer ticker.Stop()

	chunk := make([]byte, encoding.FrameBytes(tickMs))
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	state := idleStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch state {
			case idleStateWaiting:
				if c.sinceLastAudio() > tickMs*time.Millisecond {
					state = idleStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case idleStateSilence:
				if c.sinceLastAudio() < tickMs*time.Millisecond {
					state = idleStateWaiting
					firstSilenceTime = nil
					continue
				}
				if firstSilenceTime != nil && time.Since(*firstSilenceTime) >= time.Second {
					state = idleStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					continue
				}
				if err := c.sendSilence(chunk); err != nil {
					logger.Warn("failed to send silence frame", "error", err)
				}

			case idleStateKeepAlive:
				if c.sinceLastAudio() < tickMs*time.Millisecond {
					state = idleStateWaiting
					lastKeepAliveTime = nil
					continue
				}
				if lastKeepAliveTime == nil || time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					c.sendKeepAlive()
				}
			}
		}
	}
}

func (c *Client) sinceLastAudio() time.Duration {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return time.Since(c.lastAudioTs)
}

func (c *Client) sendSilence(chunk []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to write silence to transcription socket: %w", err)
	}
	return nil
}

func (c *Client) sendKeepAlive() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}

	if err := c.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "KeepAlive"}); err != nil {
		logger.Warn("failed to send keep-alive", "error", err)
	}
}
