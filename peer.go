package telegraph

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/KarpelesLab/goupd"
)

// frameConn is a message oriented connection to a single remote peer.
type frameConn interface {
	WriteMessage(m Message) error
	ReadMessage() (Message, error)
	Close() error
}

// streamConn adapts a byte stream to frameConn using length prefixed frames.
type streamConn struct {
	rw io.ReadWriteCloser
}

func (c streamConn) WriteMessage(m Message) error  { return writeFrame(c.rw, m) }
func (c streamConn) ReadMessage() (Message, error) { return readFrame(c.rw) }
func (c streamConn) Close() error                  { return c.rw.Close() }

// remotePeer is a live connection to a remote peer, owned by a peerTable.
type remotePeer struct {
	id   string
	c    frameConn
	t    *peerTable
	cnx  time.Time // when the connection was established
	addr string

	write sync.Mutex // serializes writes on c
	unreg sync.Once
	alive chan struct{} // closed when the peer is unregistered
}

// peerTable tracks the connected peers of a stream based transport and
// pushes everything they send to a single inbox channel.
type peerTable struct {
	self  string
	log   *slog.Logger
	inbox chan Envelope

	peers   map[string]*remotePeer
	peersLk sync.RWMutex
	closed  bool
	loops   sync.WaitGroup
}

func newPeerTable(self string, log *slog.Logger, inboxSize int) *peerTable {
	if log == nil {
		log = slog.Default()
	}
	return &peerTable{
		self:  self,
		log:   log,
		inbox: make(chan Envelope, inboxSize),
		peers: make(map[string]*remotePeer),
	}
}

// Inbox returns the channel inbound messages are delivered on. It is closed
// once the transport is closed.
func (t *peerTable) Inbox() <-chan Envelope {
	return t.inbox
}

// Peers returns the ids of the connected peers.
func (t *peerTable) Peers() []string {
	t.peersLk.RLock()
	defer t.peersLk.RUnlock()

	res := make([]string, 0, len(t.peers))
	for id := range t.peers {
		res = append(res, id)
	}
	return res
}

func (t *peerTable) hello() *Hello {
	return &Hello{PeerID: t.self, Version: goupd.GIT_TAG}
}

// accept reads the hello of an inbound connection and registers it.
func (t *peerTable) accept(c frameConn, addr string) (*remotePeer, error) {
	m, err := c.ReadMessage()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to read hello from %s: %w", addr, err)
	}
	h, ok := m.(*Hello)
	if !ok || h.PeerID == "" {
		c.Close()
		return nil, fmt.Errorf("peer at %s did not introduce itself", addr)
	}
	if err := c.WriteMessage(t.hello()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to send hello to %s: %w", addr, err)
	}
	if h.Version != "" && h.Version != goupd.GIT_TAG {
		t.log.Warn(fmt.Sprintf("[telegraph] peer %s runs version %s, we run %s", h.PeerID, h.Version, goupd.GIT_TAG), "event", "telegraph:peer:version_mismatch")
	}
	return t.register(h.PeerID, c, addr)
}

// connect introduces ourselves on an outbound connection to peerID and
// registers it once the peer answers.
func (t *peerTable) connect(peerID string, c frameConn, addr string) (*remotePeer, error) {
	if err := c.WriteMessage(t.hello()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to send hello to %s: %w", addr, err)
	}
	m, err := c.ReadMessage()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to read hello from %s: %w", addr, err)
	}
	h, ok := m.(*Hello)
	if !ok || h.PeerID != peerID {
		c.Close()
		return nil, fmt.Errorf("peer at %s is not %s", addr, peerID)
	}
	return t.register(peerID, c, addr)
}

// register adds a connection to the table, replacing any previous
// connection with the same peer, and starts reading from it.
func (t *peerTable) register(id string, c frameConn, addr string) (*remotePeer, error) {
	p := &remotePeer{
		id:    id,
		c:     c,
		t:     t,
		cnx:   time.Now(),
		addr:  addr,
		alive: make(chan struct{}),
	}

	t.peersLk.Lock()
	if t.closed {
		t.peersLk.Unlock()
		c.Close()
		return nil, ErrConnectionClosed
	}
	old := t.peers[id]
	t.peers[id] = p
	t.loops.Add(1)
	t.peersLk.Unlock()

	if old != nil {
		t.log.Debug(fmt.Sprintf("[telegraph] replacing connection with peer %s", id), "event", "telegraph:peer:replace")
		old.close()
	}

	t.log.Debug(fmt.Sprintf("[telegraph] connection with peer %s (%s) established", id, addr), "event", "telegraph:peer:connected")
	go p.readLoop()
	return p, nil
}

func (t *peerTable) get(id string) *remotePeer {
	t.peersLk.RLock()
	defer t.peersLk.RUnlock()
	return t.peers[id]
}

// Send writes msg to the given peer.
func (t *peerTable) Send(peerID string, msg Message) error {
	p := t.get(peerID)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	return p.send(msg)
}

// ClosePeer drops the connection with a peer.
func (t *peerTable) ClosePeer(peerID string) error {
	p := t.get(peerID)
	if p == nil {
		return nil
	}
	return p.close()
}

// closeAll drops every connection and closes the inbox.
func (t *peerTable) closeAll() error {
	t.peersLk.Lock()
	if t.closed {
		t.peersLk.Unlock()
		return nil
	}
	t.closed = true
	peers := t.peers
	t.peers = make(map[string]*remotePeer)
	t.peersLk.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.close(); err != nil {
			errs = append(errs, err)
		}
	}
	// nothing may write to inbox after it is closed
	t.loops.Wait()
	close(t.inbox)
	return errors.Join(errs...)
}

func (p *remotePeer) send(msg Message) error {
	p.write.Lock()
	defer p.write.Unlock()

	select {
	case <-p.alive:
		return fmt.Errorf("%w: %s", ErrConnectionClosed, p.id)
	default:
	}
	return p.c.WriteMessage(msg)
}

func (p *remotePeer) readLoop() {
	defer p.t.loops.Done()
	defer p.unregister()

	for {
		m, err := p.c.ReadMessage()
		if err != nil {
			if errors.Is(err, ErrUnknownMessage) {
				p.t.log.Debug(fmt.Sprintf("[telegraph] ignoring message from peer %s: %s", p.id, err), "event", "telegraph:peer:unknown_message")
				continue
			}
			select {
			case <-p.alive:
			default:
				p.t.log.Debug(fmt.Sprintf("[telegraph] failed to read from peer %s: %s", p.id, err), "event", "telegraph:peer:read_fail")
			}
			return
		}
		if _, ok := m.(*Hello); ok {
			continue
		}

		select {
		case p.t.inbox <- Envelope{From: p.id, Msg: m}:
		case <-p.alive:
			return
		}
	}
}

// unregister removes the peer from the table and marks it as dead.
func (p *remotePeer) unregister() {
	p.unreg.Do(func() {
		p.t.peersLk.Lock()
		if p.t.peers[p.id] == p {
			delete(p.t.peers, p.id)
		}
		p.t.peersLk.Unlock()
		close(p.alive)
		p.c.Close()
		p.t.log.Debug(fmt.Sprintf("[telegraph] connection with peer %s closed after %s", p.id, time.Since(p.cnx).Round(time.Millisecond)), "event", "telegraph:peer:closed")
	})
}

func (p *remotePeer) close() error {
	err := p.c.Close()
	p.unregister()
	return err
}
