package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/m15labs/voxagent-core/core/events"
)

const (
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultModel   = "gpt-realtime"

	defaultMaxOutputTokens = 300

	defaultPersona = "You are a fun, witty, friendly assistant. Keep EVERY " +
		"reply VERY short (1-2 sentences). Speak casually, like a cheerful " +
		"friend. Avoid long explanations. No emojis in the response."
	defaultTurnInstructions = "Stay fun, friendly, and VERY brief - 1-2 " +
		"sentences max. Casual tone. No emojis."

	defaultEventBuffer = 128
)

// Client owns one bidirectional language model connection and enforces
// at-most-one concurrent response.
//
// The persona configuration is written inside Connect, before Connect
// returns, which makes "configuration complete" a structural precondition
// of every SendUserText: a user turn can never overtake the persona message
// on the wire.
type Client struct {
	baseURL string
	apiKey  string
	model   string

	persona          string
	turnInstructions string
	maxOutputTokens  int

	connMu sync.Mutex
	conn   *websocket.Conn

	ready            atomic.Bool
	responseInFlight atomic.Bool
	closed           atomic.Bool

	responseEvents chan events.ResponseEvent
}

type Option func(*Client)

// WithBaseURL overrides the realtime endpoint, primarily for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithAPIKey overrides the OPENAI_API_KEY environment lookup.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithPersona replaces the one-time system configuration message.
func WithPersona(persona string) Option {
	return func(c *Client) { c.persona = persona }
}

func WithTurnInstructions(instructions string) Option {
	return func(c *Client) { c.turnInstructions = instructions }
}

func WithMaxOutputTokens(maxOutputTokens int) Option {
	return func(c *Client) { c.maxOutputTokens = maxOutputTokens }
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:          defaultBaseURL,
		model:            defaultModel,
		persona:          defaultPersona,
		turnInstructions: defaultTurnInstructions,
		maxOutputTokens:  defaultMaxOutputTokens,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Connect opens the realtime stream, injects the persona and response
// configuration, and returns the ordered response event sequence. It is
// idempotent while a connection is live.
func (c *Client) Connect(ctx context.Context) (<-chan events.ResponseEvent, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.responseEvents, nil
	}

	apiKey := c.apiKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("OPENAI_API_KEY"); !ok {
			return nil, fmt.Errorf("openai api key not found")
		}
	}

	realtimeURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	queryParams := realtimeURL.Query()
	queryParams.Set("model", c.model)
	realtimeURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, realtimeURL.String(), http.Header{
		"Authorization": {"Bearer " + apiKey},
		"OpenAI-Beta":   {"realtime=v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to realtime: %w", err)
	}

	// Configuration happens before the connection is usable: user turns
	// accepted after Connect returns cannot race the persona message.
	if err := conn.WriteJSON(newSessionUpdate(c.maxOutputTokens)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send session configuration: %w", err)
	}
	if err := conn.WriteJSON(newConversationItemCreate(roleSystem, c.persona)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send persona configuration: %w", err)
	}

	c.conn = conn
	c.responseEvents = make(chan events.ResponseEvent, defaultEventBuffer)
	c.ready.Store(true)
	c.responseEvents <- events.NewAssistantConnected()

	go c.readAndProcessMessages(ctx, conn, c.responseEvents)

	return c.responseEvents, nil
}

// SendUserText appends one user turn and requests a new response. Calling
// it before Connect has completed is a deterministic error, never a silent
// drop. Calling it while a response is in flight is a caller error; the
// orchestrator guarantees single-flight by design.
func (c *Client) SendUserText(text string) error {
	if !c.ready.Load() {
		return fmt.Errorf("realtime connection not ready")
	}
	if !c.responseInFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("response already in flight")
	}

	if err := c.writeJSON(newConversationItemCreate(roleUser, text)); err != nil {
		c.responseInFlight.Store(false)
		return fmt.Errorf("failed to send user turn: %w", err)
	}
	if err := c.writeJSON(newResponseCreate(c.turnInstructions)); err != nil {
		c.responseInFlight.Store(false)
		return fmt.Errorf("failed to request response: %w", err)
	}

	logger.Debug("requested response", "text_length", len(text))
	return nil
}

// CancelResponse cancels the in-flight response, if any. With nothing in
// flight it is an explicit no-op: logged, no state change, no wire message.
func (c *Client) CancelResponse() {
	if !c.responseInFlight.CompareAndSwap(true, false) {
		logger.Info("cancel requested with no response in flight")
		return
	}

	if err := c.writeJSON(typeOnlyMessage{Type: messageTypeResponseCancel}); err != nil {
		logger.Warn("failed to send response cancel", "error", err)
	}
}

// Close releases the connection and stops event emission. Always safe.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.ready.Store(false)
	c.responseInFlight.Store(false)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) writeJSON(msg any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("realtime connection closed")
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, responseEvents chan<- events.ResponseEvent) {
	defer close(responseEvents)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.ready.Store(false)
			c.responseInFlight.Store(false)
			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()
			_ = conn.Close()

			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("realtime socket read failed", "error", err)
				c.emit(ctx, responseEvents, events.NewAssistantResponseError(err))
			}
			return
		}

		for _, event := range c.processMessage(msg) {
			if !c.emit(ctx, responseEvents, event) {
				return
			}
		}
	}
}

func (c *Client) processMessage(msg []byte) []events.ResponseEvent {
	var envelope serverEnvelope
	if err := unmarshal(msg, &envelope); err != nil {
		logger.Warn("dropping malformed realtime frame", "error", err)
		return nil
	}

	switch envelope.Type {
	case serverEventResponseTextDelta:
		// Deltas arriving after cancellation lose the race on purpose:
		// current state decides, not the socket read.
		if !c.responseInFlight.Load() {
			return nil
		}
		var deltaEvent textDeltaEvent
		if err := unmarshal(msg, &deltaEvent); err != nil {
			logger.Warn("dropping malformed realtime frame", "error", err)
			return nil
		}
		if deltaEvent.Delta == "" {
			return nil
		}
		return []events.ResponseEvent{events.NewAssistantResponseDelta(deltaEvent.Delta)}

	case serverEventResponseTextDone:
		if !c.responseInFlight.CompareAndSwap(true, false) {
			return nil
		}
		var doneEvent textDoneEvent
		if err := unmarshal(msg, &doneEvent); err != nil {
			logger.Warn("dropping malformed realtime frame", "error", err)
			return nil
		}
		return []events.ResponseEvent{events.NewAssistantResponseFinal(doneEvent.Text)}

	case serverEventResponseCreated:
		logger.Debug("response stream opened")
		return nil

	case serverEventResponseDone:
		// Covers servers that close a response without a text.done, for
		// example after a server-side cancellation.
		if c.responseInFlight.CompareAndSwap(true, false) {
			return []events.ResponseEvent{events.NewAssistantResponseFinal("")}
		}
		return nil

	default:
		if len(envelope.Error) > 0 {
			c.responseInFlight.Store(false)
			return []events.ResponseEvent{events.NewAssistantResponseError(
				fmt.Errorf("realtime server error: %s", string(envelope.Error)))}
		}
		return nil
	}
}

func (c *Client) emit(ctx context.Context, responseEvents chan<- events.ResponseEvent, event events.ResponseEvent) bool {
	select {
	case responseEvents <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
