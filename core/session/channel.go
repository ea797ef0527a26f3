// Package session abstracts the bidirectional connection to one client and
// the framing of events onto it.
package session

import (
	"context"
	"errors"

	"github.com/terratale/terratale/core/events"
)

var (
	// ErrDisconnected reports that the peer is gone. It terminates the
	// affected cycle's remaining sends and tears the channel down; it is
	// never retried.
	ErrDisconnected = errors.New("session channel disconnected")
	// ErrMalformedQuery reports an inbound frame that does not decode to a
	// query. The single query is rejected; the channel stays up.
	ErrMalformedQuery = errors.New("malformed query frame")
)

// Channel is one client connection. Send is safe to call concurrently from
// the generation tasks of a cycle; each call's event reaches the wire as one
// atomic frame.
type Channel interface {
	// Send writes one framed event. Returns an error wrapping
	// [ErrDisconnected] once the peer is gone.
	Send(event events.Event) error
	// ReceiveQuery suspends until the next query arrives or the connection
	// closes. Returns an error wrapping [ErrDisconnected] on close and
	// [ErrMalformedQuery] for an undecodable frame.
	ReceiveQuery(ctx context.Context) (string, error)
	// Close releases the connection. Repeated calls are ignored.
	Close() error
}
