package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/terratale/terratale/core/events"
)

// dialTestChannel upgrades one server-side connection into a
// WebsocketChannel and returns the matching client connection.
func dialTestChannel(t *testing.T) (*WebsocketChannel, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	channelReady := make(chan *WebsocketChannel, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade test connection: %v", err)
			return
		}
		channelReady <- NewWebsocketChannel(conn)
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case channel := <-channelReady:
		t.Cleanup(func() { _ = channel.Close() })
		return channel, client
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side channel")
		return nil, nil
	}
}

func TestSendFramesEventsByKind(t *testing.T) {
	channel, client := dialTestChannel(t)

	if err := channel.Send(events.NewText("written answer")); err != nil {
		t.Fatalf("failed to send text event: %v", err)
	}
	if err := channel.Send(events.NewAudioChunk([]byte{0x01, 0x02})); err != nil {
		t.Fatalf("failed to send audio chunk event: %v", err)
	}
	if err := channel.Send(events.NewAudioEnd()); err != nil {
		t.Fatalf("failed to send audio end event: %v", err)
	}

	msgType, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read text frame: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected text frame, got type %d", msgType)
	}
	var textFrame frame
	if err := json.Unmarshal(msg, &textFrame); err != nil {
		t.Fatalf("failed to decode text frame: %v", err)
	}
	if textFrame.Type != "text" || textFrame.Content != "written answer" {
		t.Fatalf("unexpected text frame: %+v", textFrame)
	}

	msgType, msg, err = client.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read audio frame: %v", err)
	}
	if msgType != websocket.BinaryMessage || len(msg) != 2 {
		t.Fatalf("expected 2-byte binary frame, got type %d with %d bytes", msgType, len(msg))
	}

	_, msg, err = client.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read audio end frame: %v", err)
	}
	var endFrame frame
	if err := json.Unmarshal(msg, &endFrame); err != nil {
		t.Fatalf("failed to decode audio end frame: %v", err)
	}
	if endFrame.Type != "audio_end" {
		t.Fatalf("expected audio_end frame, got %+v", endFrame)
	}
}

func TestSendSerializesConcurrentWriters(t *testing.T) {
	channel, client := dialTestChannel(t)

	const senders = 8
	var wg sync.WaitGroup
	wg.Add(senders)
	for i := 0; i < senders; i++ {
		go func() {
			defer wg.Done()
			_ = channel.Send(events.NewText("concurrent frame"))
		}()
	}

	for i := 0; i < senders; i++ {
		_, msg, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("failed to read frame %d: %v", i, err)
		}
		var decoded frame
		if err := json.Unmarshal(msg, &decoded); err != nil {
			t.Fatalf("frame %d was not an atomic JSON frame: %v", i, err)
		}
		if decoded.Type != "text" {
			t.Fatalf("frame %d had unexpected type %q", i, decoded.Type)
		}
	}
	wg.Wait()
}

func TestReceiveQueryReturnsClientText(t *testing.T) {
	channel, client := dialTestChannel(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte("what do manatees eat?")); err != nil {
		t.Fatalf("failed to send query from client: %v", err)
	}

	query, err := channel.ReceiveQuery(context.Background())
	if err != nil {
		t.Fatalf("expected query, got %v", err)
	}
	if query != "what do manatees eat?" {
		t.Fatalf("unexpected query %q", query)
	}
}

func TestReceiveQueryRejectsEmptyFrame(t *testing.T) {
	channel, client := dialTestChannel(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte("   ")); err != nil {
		t.Fatalf("failed to send frame from client: %v", err)
	}

	_, err := channel.ReceiveQuery(context.Background())
	if !errors.Is(err, ErrMalformedQuery) {
		t.Fatalf("expected ErrMalformedQuery, got %v", err)
	}
}

func TestReceiveQueryReportsDisconnect(t *testing.T) {
	channel, client := dialTestChannel(t)

	_ = client.Close()

	_, err := channel.ReceiveQuery(context.Background())
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestSendAfterCloseReportsDisconnect(t *testing.T) {
	channel, _ := dialTestChannel(t)

	if err := channel.Close(); err != nil {
		t.Fatalf("failed to close channel: %v", err)
	}

	err := channel.Send(events.NewText("too late"))
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	channel, _ := dialTestChannel(t)

	if err := channel.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := channel.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
