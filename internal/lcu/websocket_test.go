package lcu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	event, ok := ParseEnvelope([]byte(`[8,"OnJsonApiEvent_riot-messaging-service_v1_message",{"eventType":"Create","uri":"/some/uri","data":{"a":1}}]`))
	require.True(t, ok)
	assert.Equal(t, EventMessaging, event.Name)
	assert.Equal(t, "Create", event.EventType)
	assert.Equal(t, "/some/uri", event.URI)
	assert.JSONEq(t, `{"a":1}`, string(event.Data))

	for _, frame := range []string{
		``,
		`not json`,
		`{"a":1}`,
		`[8,"name"]`,
		`[5,"name",{}]`,
		`["8","name",{}]`,
		`[8,1,{}]`,
		`[8,"name","payload"]`,
	} {
		_, ok := ParseEnvelope([]byte(frame))
		assert.False(t, ok, frame)
	}
}

func TestEvent_Presences(t *testing.T) {
	event := Event{Data: json.RawMessage(`{"presences":[{"puuid":"a"},{"puuid":"b"}]}`)}
	presences, err := event.Presences()
	require.NoError(t, err)
	assert.Len(t, presences, 2)

	_, err = Event{Data: json.RawMessage(`[]`)}.Presences()
	assert.Error(t, err)
}

func TestWebSocketClient_SubscribeAndDispatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan []string, 1)

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pass, _ := r.BasicAuth(); pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var names []string
		for range 2 {
			var msg []any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if len(msg) == 2 && msg[0] == float64(EventTypeSubscribe) {
				names = append(names, msg[1].(string))
			}
		}
		subscribed <- names

		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[8,"OnJsonApiEvent_chat_v4_presences",{"eventType":"Update","uri":"/chat/v4/presences","data":{"presences":[{"puuid":"a"}]}}]`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[8,"OnJsonApiEvent_riot-messaging-service_v1_message",{"eventType":"Create","uri":"/x","data":{}}]`))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	var mu sync.Mutex
	var events []Event
	ws := NewWebSocketClient(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}, zerolog.Nop())

	require.NoError(t, ws.Connect(context.Background(), credentialsFor(t, server)))
	assert.Equal(t, []string{EventPresences, EventMessaging}, <-subscribed)

	select {
	case <-ws.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not close")
	}
	assert.False(t, ws.IsConnected())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventPresences, events[0].Name)
	assert.Equal(t, EventMessaging, events[1].Name)
	assert.Equal(t, "/x", events[1].URI)
}

func TestWebSocketClient_DoneBeforeConnect(t *testing.T) {
	ws := NewWebSocketClient(nil, zerolog.Nop())
	select {
	case <-ws.Done():
	default:
		t.Fatal("Done should be closed before the first connection")
	}
}
