package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaltrack/pkg/exception"
)

func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		for {
			mt, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, payload); err != nil {
				return
			}
		}
	}))
}

func TestDialerRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	d, err := NewDialer("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second, ConnConfig{IdleTimeout: 2 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := d.Dial(ctx)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write(ctx, MessageText, []byte(`{"method":"SUBSCRIBE"}`)))
	mt, payload, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageText, mt)
	assert.Equal(t, `{"method":"SUBSCRIBE"}`, string(payload))
}

func TestDialerIdleTimeout(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	d, err := NewDialer("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second, ConnConfig{IdleTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	c, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.Read(context.Background())
	require.ErrorIs(t, err, exception.ErrWebSocketIdleTimeout)
}

func TestNewDialerRejectsBadURL(t *testing.T) {
	_, err := NewDialer("http://example.com/ws", 0, ConnConfig{})
	require.ErrorIs(t, err, exception.ErrWebSocketBadURL)
}
