package deepgram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/m15labs/voxagent-core/core/audio"
	"github.com/m15labs/voxagent-core/core/texttospeech"
)

const (
	defaultBaseURL = "wss://api.deepgram.com/v1/speak"

	commandQueueSize = 64
)

type commandKind int

const (
	commandSpeak commandKind = iota
	commandFlush
	commandClear
)

// speechCommand is one entry of the strictly ordered outbound queue. The
// synthesis protocol is stateful, so a Clear must reach the server before
// any Speak enqueued after it takes effect; ordering is preserved by having
// producers only enqueue and exactly one consumer write to the socket.
type speechCommand struct {
	kind commandKind
	text string
}

// wsConn is the slice of *websocket.Conn the sink relies on; tests inject
// stub connections through it.
type wsConn interface {
	WriteJSON(v any) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Client is a streaming speech sink with an instantaneous mute-and-resume
// ("squelch") state that is independent of the connection's lifecycle.
type Client struct {
	baseURL string
	apiKey  string

	voice        deepgramVoice
	encodingInfo audio.EncodingInfo
	output       texttospeech.AudioOutput

	outbox chan speechCommand
	quit   chan struct{}

	connMu sync.Mutex
	conn   wsConn
	dial   func() (wsConn, error)

	// squelched gates inbound audio: while set, PCM from the server is
	// discarded and nothing reaches local playback.
	squelched atomic.Bool
	// speaking reports an unflushed or unacknowledged utterance in the
	// pipeline. Cleared by the server's Flushed confirmation, or by Stop.
	speaking atomic.Bool
	closed   atomic.Bool

	closeOnce sync.Once
}

// Speak replaces whatever is pending with one complete utterance: clear,
// speak, flush, in queue order. Used for full sentences rather than deltas.
func (c *Client) Speak(text string) {
	c.resumeIfSquelched()
	c.enqueue(speechCommand{kind: commandClear})
	c.enqueue(speechCommand{kind: commandSpeak, text: text})
	c.enqueue(speechCommand{kind: commandFlush})
}

// StreamDelta appends an incremental fragment to the pending utterance.
func (c *Client) StreamDelta(text string) {
	c.resumeIfSquelched()
	c.enqueue(speechCommand{kind: commandSpeak, text: text})
}

// Flush forces synthesis of whatever text is pending server-side.
func (c *Client) Flush() {
	c.enqueue(speechCommand{kind: commandFlush})
}

// Stop squelches output for barge-in. Local mute is synchronous and
// unconditional: the playback buffer is discarded before the server-side
// Clear is even enqueued, so interruption latency never depends on the
// network. The Clear itself is best-effort cleanup.
func (c *Client) Stop() {
	c.squelched.Store(true)
	c.speaking.Store(false)
	c.output.ClearBuffer()

	select {
	case c.outbox <- speechCommand{kind: commandClear}:
	default:
		logger.Warn("outbox full, dropping barge-in clear")
	}
}

// IsSpeaking reports whether an utterance is queued or awaiting flush
// confirmation.
func (c *Client) IsSpeaking() bool { return c.speaking.Load() }

// Close tears down the connection and stops the command consumer. Safe to
// call at any time, including when never connected.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.speaking.Store(false)
		close(c.quit)

		c.connMu.Lock()
		defer c.connMu.Unlock()
		if c.conn != nil {
			_ = c.conn.WriteJSON(typeMessage{Type: "Close"})
			_ = c.conn.Close()
			c.conn = nil
		}
	})
}

// resumeIfSquelched lifts the squelch before a new utterance is enqueued,
// so the agent can speak again after an interruption without a dedicated
// resume call. Audio dropped while squelched is gone; nothing is replayed.
func (c *Client) resumeIfSquelched() {
	if c.squelched.CompareAndSwap(true, false) {
		logger.Debug("resuming speech output after barge-in")
	}
}

func (c *Client) enqueue(cmd speechCommand) {
	if c.closed.Load() {
		return
	}
	select {
	case c.outbox <- cmd:
	case <-c.quit:
	}
}

// drainCommands is the queue's single consumer. It establishes the
// connection before the first drain and writes commands strictly in
// submission order; no other goroutine ever writes to the socket.
func (c *Client) drainCommands() {
	for {
		select {
		case <-c.quit:
			return
		case cmd := <-c.outbox:
			conn, err := c.ensureConnected()
			if err != nil {
				logger.Warn("dropping speech command, connect failed", "error", err)
				continue
			}

			var writeErr error
			switch cmd.kind {
			case commandSpeak:
				writeErr = conn.WriteJSON(speakMessage{Type: "Speak", Text: cmd.text})
				if writeErr == nil {
					c.speaking.Store(true)
				}
			case commandFlush:
				writeErr = conn.WriteJSON(typeMessage{Type: "Flush"})
			case commandClear:
				writeErr = conn.WriteJSON(typeMessage{Type: "Clear"})
			}
			if writeErr != nil {
				logger.Warn("dropping speech command, write failed", "error", writeErr)
				c.dropConn(conn)
			}
		}
	}
}

func (c *Client) ensureConnected() (wsConn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	if c.closed.Load() {
		return nil, fmt.Errorf("speech sink closed")
	}

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}

	c.conn = conn
	go c.readAndProcessMessages(conn)
	return conn, nil
}

func (c *Client) dialWebsocket() (wsConn, error) {
	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
	}

	speakURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid synthesis url: %w", err)
	}
	queryParams := speakURL.Query()
	queryParams.Set("model", string(c.voice))
	queryParams.Set("encoding", c.encodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(c.encodingInfo.SampleRate))
	queryParams.Set("container", "none")
	speakURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(speakURL.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to synthesis: %w", err)
	}
	return conn, nil
}

func (c *Client) readAndProcessMessages(conn wsConn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("synthesis socket read failed", "error", err)
			}
			c.dropConn(conn)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if c.squelched.Load() {
				// In-flight audio that raced the barge-in; drop it so
				// resuming never replays stale speech.
				continue
			}
			if len(msg) > 0 {
				if err := c.output.Play(msg); err != nil {
					logger.Warn("failed to play synthesized audio", "error", err)
				}
			}

		case websocket.TextMessage:
			var parsedMsg typeMessage
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Warn("dropping malformed synthesis frame", "error", err)
				continue
			}
			if parsedMsg.Type == "Flushed" {
				c.speaking.Store(false)
			}
		}
	}
}

func (c *Client) dropConn(conn wsConn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	_ = conn.Close()
}

type typeMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
