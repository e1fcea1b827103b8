package websocket

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"signaltrack/pkg/exception"
)

type dialer struct {
	url              string
	header           http.Header
	handshakeTimeout time.Duration
	conn             ConnConfig
}

// NewDialer returns a Dialer for a ws:// or wss:// endpoint.
func NewDialer(rawURL string, handshakeTimeout time.Duration, cfg ConnConfig) (Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(exception.ErrWebSocketBadURL, err.Error()).With("url", rawURL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Wrap(exception.ErrWebSocketBadURL, "scheme must be ws or wss").With("url", rawURL)
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	return &dialer{
		url:              u.String(),
		header:           http.Header{},
		handshakeTimeout: handshakeTimeout,
		conn:             cfg.withDefaults(),
	}, nil
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.handshakeTimeout,
	}
	ws, resp, err := wd.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s, status %d", d.url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", d.url)
	}
	return NewConn(ws, d.conn), nil
}

type conn struct {
	ws        *websocket.Conn
	cfg       ConnConfig
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps an established gorilla connection, client or server side.
func NewConn(ws *websocket.Conn, cfg ConnConfig) Conn {
	cfg = cfg.withDefaults()
	c := &conn{
		ws:   ws,
		cfg:  cfg,
		done: make(chan struct{}),
	}
	ws.SetReadLimit(cfg.ReadLimit)
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
	})
	if cfg.PingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

func (c *conn) Read(ctx context.Context) (MessageType, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	msgType, payload, err := c.ws.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, nil, errors.Wrap(exception.ErrWebSocketIdleTimeout, err.Error())
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return 0, nil, errors.Wrap(exception.ErrWebSocketConnectionClose, err.Error())
		}
		return 0, nil, err
	}
	return MessageType(msgType), payload, nil
}

func (c *conn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	switch msgType {
	case MessagePing, MessagePong, MessageClose:
		return c.ws.WriteControl(int(msgType), payload, deadline)
	default:
		_ = c.ws.SetWriteDeadline(deadline)
		return c.ws.WriteMessage(int(msgType), payload)
	}
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Write(context.Background(), MessagePing, nil); err != nil {
				return
			}
		}
	}
}
