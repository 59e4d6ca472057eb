package lcu

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventType represents WebSocket message opcodes
type EventType int

const (
	EventTypeSubscribe   EventType = 5
	EventTypeUnsubscribe EventType = 6
	EventTypeEvent       EventType = 8
)

const (
	// EventPresences carries chat presence batches
	EventPresences = "OnJsonApiEvent_chat_v4_presences"
	// EventMessaging carries messaging-service notifications, including match ids
	EventMessaging = "OnJsonApiEvent_riot-messaging-service_v1_message"
)

// Event is one decoded push event
type Event struct {
	Name      string
	EventType string
	URI       string
	Data      json.RawMessage
}

// Presences returns the presence entries of an EventPresences event
func (e Event) Presences() ([]json.RawMessage, error) {
	var data struct {
		Presences []json.RawMessage `json:"presences"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid presence event: %w", err)
	}
	return data.Presences, nil
}

// EventHandler is called for every event received on a subscribed channel
type EventHandler func(Event)

// WebSocketClient handles the local client WebSocket connection
type WebSocketClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	isConnected bool
	done        chan struct{}
	handler     EventHandler
	logger      zerolog.Logger
}

// NewWebSocketClient creates a WebSocket client delivering events to handler
func NewWebSocketClient(handler EventHandler, logger zerolog.Logger) *WebSocketClient {
	done := make(chan struct{})
	close(done)
	return &WebSocketClient{
		done:    done,
		handler: handler,
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// Connect establishes the WebSocket connection and subscribes to presence and
// messaging events. Events are delivered from a background goroutine until
// the connection drops, which closes Done.
func (w *WebSocketClient) Connect(ctx context.Context, creds *Credentials) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isConnected {
		return nil
	}

	dialer := websocket.Dialer{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	}

	url := fmt.Sprintf("wss://127.0.0.1:%s", creds.Port)
	header := http.Header{}
	header.Set("Authorization", creds.AuthHeader())

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	for _, event := range []string{EventPresences, EventMessaging} {
		if err := conn.WriteJSON([]any{EventTypeSubscribe, event}); err != nil {
			conn.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", event, err)
		}
	}

	w.conn = conn
	w.isConnected = true
	w.done = make(chan struct{})

	go w.listen(conn, w.done)

	w.logger.Info().Str("port", creds.Port).Msg("websocket connected")
	return nil
}

// listen reads messages until the connection fails
func (w *WebSocketClient) listen(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		w.mu.Lock()
		if w.conn == conn {
			w.isConnected = false
			w.conn = nil
		}
		w.mu.Unlock()
		conn.Close()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			w.logger.Warn().Err(err).Msg("websocket closed")
			return
		}

		event, ok := ParseEnvelope(message)
		if !ok {
			continue
		}
		if w.handler != nil {
			w.handler(event)
		}
	}
}

// ParseEnvelope decodes a [opcode, eventName, payload] frame. Frames that are
// not well-formed events report false.
func ParseEnvelope(data []byte) (Event, bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, false
	}

	if len(raw) < 3 {
		return Event{}, false
	}

	var eventType EventType
	if err := json.Unmarshal(raw[0], &eventType); err != nil {
		return Event{}, false
	}

	if eventType != EventTypeEvent {
		return Event{}, false
	}

	var eventName string
	if err := json.Unmarshal(raw[1], &eventName); err != nil {
		return Event{}, false
	}

	var payload struct {
		EventType string          `json:"eventType"`
		URI       string          `json:"uri"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw[2], &payload); err != nil {
		return Event{}, false
	}

	return Event{
		Name:      eventName,
		EventType: payload.EventType,
		URI:       payload.URI,
		Data:      payload.Data,
	}, true
}

// Done is closed when the current connection ends
func (w *WebSocketClient) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Disconnect closes the WebSocket connection
func (w *WebSocketClient) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.isConnected = false
}

// IsConnected returns whether the WebSocket is connected
func (w *WebSocketClient) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isConnected
}
