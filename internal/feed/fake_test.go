package feed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"signaltrack/pkg/exception"
	"signaltrack/pkg/websocket"
)

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-c.closed:
		return 0, nil, exception.ErrWebSocketConnectionClose
	case b := <-c.in:
		return websocket.MessageText, b, nil
	}
}

func (c *fakeConn) Write(_ context.Context, _ websocket.MessageType, payload []byte) error {
	select {
	case <-c.closed:
		return exception.ErrWebSocketConnectionClose
	default:
	}
	c.mu.Lock()
	c.writes = append(c.writes, append([]byte(nil), payload...))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// subscribed returns the params of every subscribe request written so far.
func (c *fakeConn) subscribed() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]string, 0, len(c.writes))
	for _, w := range c.writes {
		var req struct {
			Params []string `json:"params"`
		}
		if err := json.Unmarshal(w, &req); err == nil {
			out = append(out, req.Params)
		}
	}
	return out
}

// fakeDialer fails the first failures dials, then hands out conns in order.
type fakeDialer struct {
	failures int
	conns    chan *fakeConn
	dials    atomic.Int64
}

func newFakeDialer(failures int) *fakeDialer {
	return &fakeDialer{failures: failures, conns: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context) (websocket.Conn, error) {
	n := d.dials.Add(1)
	if int(n) <= d.failures {
		return nil, exception.ErrWebSocketConnectionClose
	}
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fakeClock never sleeps and records requested delays.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// attemptBackoff encodes the attempt number as the delay.
type attemptBackoff struct{}

func (attemptBackoff) Next(attempt int) time.Duration {
	return time.Duration(attempt) * time.Millisecond
}
