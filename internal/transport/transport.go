// Package transport keeps a streaming connection to the upstream health feed
// alive and turns it into a single stream of lifecycle and message events.
//
// The Adapter owns reconnection: after an unexpected close it waits a fixed
// delay and dials again, or, while the Network reports offline, waits for
// the network to come back and dials immediately. Disconnect stops all of
// this, including a retry that is already waiting.
//
// Two Dialers are provided: a plain websocket (gorilla/websocket) and a
// socket.io client. Both surface raw JSON payloads; classification is left to
// the consumer.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned when the adapter has been disconnected.
var ErrClosed = errors.New("transport: adapter closed")

// State is the connection state shown to users.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// EventKind tags an Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "message"
	}
}

// Event is one item of the adapter's stream.
type Event struct {
	Kind EventKind
	// Epoch identifies the connection the event belongs to.
	Epoch string
	// Data is the raw payload of an EventMessage.
	Data []byte
	// Err is the reason for an EventDisconnected, if any.
	Err error
}

// Conn is an open stream.
type Conn interface {
	// Read blocks until the next message arrives or the stream fails.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Conn to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Network reports host connectivity.
type Network interface {
	Online() bool
	// WaitOnline blocks until the network is online or ctx is done.
	WaitOnline(ctx context.Context) error
}

// Resolver produces the URL to dial.
type Resolver func(ctx context.Context) (string, error)

// StaticURL always resolves to url.
func StaticURL(url string) Resolver {
	return func(context.Context) (string, error) { return url, nil }
}
