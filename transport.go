package telegraph

// Transport is a set of reliable, ordered, message oriented channels to
// remote peers, keyed by peer id. Messages sent to a given peer must be
// delivered in the order they were sent.
//
// Inbound messages are not pulled through the Transport: implementations
// push them as Envelope values on a channel, see Inbound, and the owner of
// the session feeds them to P2PBackend.HandleMessage.
type Transport interface {
	Send(peerID string, msg Message) error
	ClosePeer(peerID string) error
}

// Inbound is implemented by transports delivering received messages on a
// channel.
type Inbound interface {
	Inbox() <-chan Envelope
}

// Envelope is an inbound message along with the id of the peer it came
// from.
type Envelope struct {
	From string
	Msg  Message
}

var (
	_ Transport = (*QUICTransport)(nil)
	_ Transport = (*WebSocketTransport)(nil)
	_ Transport = (*LoopbackTransport)(nil)
	_ Inbound   = (*QUICTransport)(nil)
	_ Inbound   = (*WebSocketTransport)(nil)
	_ Inbound   = (*LoopbackTransport)(nil)
)
