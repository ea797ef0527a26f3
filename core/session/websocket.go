package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/terratale/terratale/core/events"
)

// frame is the structured wire form of every non-binary event.
type frame struct {
	Type    string            `json:"type"`
	Content string            `json:"content,omitempty"`
	Results []events.ImageHit `json:"results,omitempty"`
}

// WebsocketChannel frames events onto a single websocket connection.
// Physical writes are serialized behind a mutex so concurrent senders never
// interleave partial frames.
type WebsocketChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ Channel = (*WebsocketChannel)(nil)

// NewWebsocketChannel wraps an upgraded websocket connection.
func NewWebsocketChannel(conn *websocket.Conn) *WebsocketChannel {
	return &WebsocketChannel{conn: conn}
}

// Send writes one event as an atomic frame. Audio chunks go out as binary
// frames; every other event kind is a structured text frame.
func (c *WebsocketChannel) Send(event events.Event) error {
	if c.closed.Load() {
		return fmt.Errorf("failed to send %s frame: %w", event.Kind(), ErrDisconnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var err error
	switch typedEvent := event.(type) {
	case events.AudioChunk:
		err = c.conn.WriteMessage(websocket.BinaryMessage, typedEvent.Audio)
	case events.Text:
		err = c.conn.WriteJSON(frame{Type: string(events.KindText), Content: typedEvent.Content})
	case events.AudioEnd:
		err = c.conn.WriteJSON(frame{Type: string(events.KindAudioEnd)})
	case events.ImageSearchResults:
		err = c.conn.WriteJSON(frame{Type: string(events.KindImageSearchResults), Results: typedEvent.Hits})
	case events.Error:
		err = c.conn.WriteJSON(frame{Type: string(events.KindError), Content: typedEvent.Message})
	default:
		return fmt.Errorf("unsupported event kind %q", event.Kind())
	}

	if err != nil {
		c.closed.Store(true)
		return fmt.Errorf("failed to send %s frame: %w", event.Kind(), ErrDisconnected)
	}
	return nil
}

// ReceiveQuery blocks until the peer sends a text frame carrying the next
// query. Cancelling ctx closes the connection and unblocks the read.
func (c *WebsocketChannel) ReceiveQuery(ctx context.Context) (string, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	msgType, msg, err := c.conn.ReadMessage()
	if err != nil {
		c.closed.Store(true)
		return "", fmt.Errorf("failed to read query frame: %w", ErrDisconnected)
	}

	if msgType != websocket.TextMessage {
		return "", fmt.Errorf("expected text frame, got type %d: %w", msgType, ErrMalformedQuery)
	}

	query := strings.TrimSpace(string(msg))
	if query == "" {
		return "", fmt.Errorf("empty query frame: %w", ErrMalformedQuery)
	}

	return query, nil
}

// Close releases the underlying connection. Safe to call more than once.
func (c *WebsocketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}
