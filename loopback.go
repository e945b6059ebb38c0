package telegraph

import (
	"fmt"
	"sync"
)

// LoopbackNetwork connects in-process transports to each other. Messages
// go through the wire codec so receivers never share memory with senders.
type LoopbackNetwork struct {
	lk    sync.Mutex
	nodes map[string]*LoopbackTransport

	// Drop, if set, is called for every message and discards it when it
	// returns true.
	Drop func(from, to string, m Message) bool
}

func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{nodes: make(map[string]*LoopbackTransport)}
}

// Transport registers a node named id. Its inbox holds up to size messages,
// further messages are dropped until it is drained.
func (n *LoopbackNetwork) Transport(id string, size int) *LoopbackTransport {
	t := &LoopbackTransport{
		net:    n,
		id:     id,
		inbox:  make(chan Envelope, size),
		closed: make(map[string]bool),
	}
	n.lk.Lock()
	defer n.lk.Unlock()
	n.nodes[id] = t
	return t
}

// LoopbackTransport is a Transport whose peers live in the same process.
type LoopbackTransport struct {
	net     *LoopbackNetwork
	id      string
	inbox   chan Envelope
	closed  map[string]bool
	dropped uint64
}

func (t *LoopbackTransport) Send(peerID string, m Message) error {
	n := t.net
	n.lk.Lock()
	dst, ok := n.nodes[peerID]
	closed := t.closed[peerID]
	n.lk.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	if closed {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, peerID)
	}
	if n.Drop != nil && n.Drop(t.id, peerID, m) {
		return nil
	}

	buf, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	cp, err := DecodeMessage(buf)
	if err != nil {
		return err
	}

	select {
	case dst.inbox <- Envelope{From: t.id, Msg: cp}:
	default:
		n.lk.Lock()
		dst.dropped++
		n.lk.Unlock()
	}
	return nil
}

func (t *LoopbackTransport) ClosePeer(peerID string) error {
	t.net.lk.Lock()
	defer t.net.lk.Unlock()
	t.closed[peerID] = true
	return nil
}

// Inbox returns the channel this node receives messages on.
func (t *LoopbackTransport) Inbox() <-chan Envelope {
	return t.inbox
}

// Dropped returns how many messages were discarded because the inbox was
// full.
func (t *LoopbackTransport) Dropped() uint64 {
	t.net.lk.Lock()
	defer t.net.lk.Unlock()
	return t.dropped
}
