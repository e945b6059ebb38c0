package telegraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

// wsConn carries one encoded message per binary websocket message.
type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) WriteMessage(m Message) error {
	buf, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.BinaryMessage, buf)
}

func (w wsConn) ReadMessage() (Message, error) {
	for {
		typ, buf, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		return DecodeMessage(buf)
	}
}

func (w wsConn) Close() error {
	return w.c.Close()
}

// WebSocketTransport connects peers over websockets, for networks where
// UDP is not an option. It accepts peers as an http.Handler.
type WebSocketTransport struct {
	*peerTable

	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
}

// NewWebSocketTransport creates a websocket transport for the local peer
// self. Mount it on an HTTP server to accept peers.
func NewWebSocketTransport(self string, log *slog.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		peerTable: newPeerTable(self, log, transportInboxSize),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (t *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Debug(fmt.Sprintf("[telegraph] websocket upgrade from %s failed: %s", r.RemoteAddr, err), "event", "telegraph:ws:upgrade_fail")
		return
	}
	c.SetReadLimit(PacketMaxLen)

	if _, err := t.accept(wsConn{c: c}, r.RemoteAddr); err != nil {
		t.log.Debug(fmt.Sprintf("[telegraph] rejected websocket peer: %s", err), "event", "telegraph:ws:hello_fail")
	}
}

// Dial connects to peerID at url (ws:// or wss://), retrying with
// exponential backoff until it succeeds or ctx is done.
func (t *WebSocketTransport) Dial(ctx context.Context, peerID, url string) error {
	op := func() error {
		c, _, err := t.dialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		c.SetReadLimit(PacketMaxLen)
		_, err = t.connect(peerID, wsConn{c: c}, url)
		if errors.Is(err, ErrConnectionClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		t.log.Debug(fmt.Sprintf("[telegraph] failed to reach peer %s at %s, retrying in %s: %s", peerID, url, d, err), "event", "telegraph:ws:dial_retry")
	}

	return backoff.RetryNotify(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx), notify)
}

// Close drops every peer.
func (t *WebSocketTransport) Close() error {
	return t.closeAll()
}
