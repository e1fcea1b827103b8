package websocket

import "context"

// Conn is a minimal interface for a WebSocket connection.
// Read is called from a single goroutine; Write may be called concurrently.
type Conn interface {
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	Close() error
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

