package websocket

import "time"

// MessageType represents a WebSocket message type.
// Values match RFC 6455 opcodes where applicable.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
	// MessageClose is a close control frame.
	MessageClose MessageType = 8
	// MessagePing is a ping control frame.
	MessagePing MessageType = 9
	// MessagePong is a pong control frame.
	MessagePong MessageType = 10
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultIdleTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultReadLimit        = 1 << 20
)

// Backoff defines reconnect backoff behavior.
type Backoff struct {
	// Min is the first delay.
	Min time.Duration
	// Max caps the delay; zero means no cap beyond 30s.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64
}

// ConnConfig tunes a connection's deadlines and keepalive.
type ConnConfig struct {
	// IdleTimeout fails a read when nothing arrives in time. Pongs count as traffic.
	IdleTimeout time.Duration
	// WriteTimeout bounds each write.
	WriteTimeout time.Duration
	// PingInterval sends control pings when positive.
	PingInterval time.Duration
	// ReadLimit is the maximum accepted message size.
	ReadLimit int64
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	return c
}
