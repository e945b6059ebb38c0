package telegraph

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/quic-go/quic-go"
)

// QUICTransport connects peers over QUIC, one bidirectional stream per peer.
// The same UDP socket is used to accept and to dial.
type QUICTransport struct {
	*peerTable

	quicT *quic.Transport
	ln    *quic.Listener
	qconf *quic.Config

	ctx    context.Context
	cancel context.CancelFunc
}

// quicStream closes the whole connection along with its single stream.
type quicStream struct {
	quic.Stream
	conn quic.Connection
}

func (s *quicStream) Close() error {
	s.Stream.CancelRead(0)
	s.Stream.Close()
	return s.conn.CloseWithError(0, "closed")
}

// ListenQUIC opens a QUIC transport on addr for the local peer self. If
// tlsConf is nil a self-signed configuration is used.
func ListenQUIC(self, addr string, tlsConf *tls.Config, log *slog.Logger) (*QUICTransport, error) {
	if tlsConf == nil {
		var err error
		tlsConf, err = ServerTLSConfig(self, "", "")
		if err != nil {
			return nil, err
		}
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	t := &QUICTransport{
		peerTable: newPeerTable(self, log, transportInboxSize),
		quicT:     &quic.Transport{Conn: udpConn},
		qconf: &quic.Config{
			KeepAlivePeriod: 5 * time.Second,
			MaxIdleTimeout:  30 * time.Second,
		},
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.ln, err = t.quicT.Listen(tlsConf, t.qconf)
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("failed to start QUIC listener: %w", err)
	}

	t.log.Info(fmt.Sprintf("[telegraph] listening for QUIC peers on %s", t.ln.Addr()), "event", "telegraph:quic:listen")
	go t.acceptLoop()
	return t, nil
}

// Addr returns the local UDP address.
func (t *QUICTransport) Addr() net.Addr {
	return t.ln.Addr()
}

func (t *QUICTransport) acceptLoop() {
	for {
		conn, err := t.ln.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil {
				t.log.Error(fmt.Sprintf("[telegraph] failed to accept QUIC connection: %s", err), "event", "telegraph:quic:accept_fail")
			}
			return
		}
		go t.handleConn(conn)
	}
}

func (t *QUICTransport) handleConn(conn quic.Connection) {
	ctx, cancel := context.WithTimeout(t.ctx, 10*time.Second)
	defer cancel()

	str, err := conn.AcceptStream(ctx)
	if err != nil {
		t.log.Debug(fmt.Sprintf("[telegraph] no stream from %s: %s", conn.RemoteAddr(), err), "event", "telegraph:quic:stream_fail")
		conn.CloseWithError(0, "no stream")
		return
	}

	if _, err := t.accept(streamConn{rw: &quicStream{Stream: str, conn: conn}}, conn.RemoteAddr().String()); err != nil {
		t.log.Debug(fmt.Sprintf("[telegraph] rejected QUIC peer: %s", err), "event", "telegraph:quic:hello_fail")
	}
}

// Dial connects to peerID at addr, retrying with exponential backoff until
// it succeeds or ctx is done.
func (t *QUICTransport) Dial(ctx context.Context, peerID, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("invalid peer address %s: %w", addr, err)
	}

	op := func() error {
		if t.ctx.Err() != nil {
			return backoff.Permanent(ErrConnectionClosed)
		}
		conn, err := t.quicT.Dial(ctx, udpAddr, ClientTLSConfig(), t.qconf)
		if err != nil {
			return err
		}
		str, err := conn.OpenStreamSync(ctx)
		if err != nil {
			conn.CloseWithError(0, "no stream")
			return err
		}
		_, err = t.connect(peerID, streamConn{rw: &quicStream{Stream: str, conn: conn}}, addr)
		if errors.Is(err, ErrConnectionClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		t.log.Debug(fmt.Sprintf("[telegraph] failed to reach peer %s at %s, retrying in %s: %s", peerID, addr, d, err), "event", "telegraph:quic:dial_retry")
	}

	return backoff.RetryNotify(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx), notify)
}

// Close drops every peer and releases the UDP socket.
func (t *QUICTransport) Close() error {
	t.cancel()
	err := t.closeAll()
	t.ln.Close()
	return errors.Join(err, t.quicT.Close())
}
