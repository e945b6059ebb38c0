package telegraph

import (
	"errors"
	"slices"
	"testing"
)

func TestLoopbackSend(t *testing.T) {
	net := NewLoopbackNetwork()
	a := net.Transport("a", 4)
	b := net.Transport("b", 4)

	msg := &Input{AckFrame: 3, Inputs: []InputValues{{1}}}
	if err := a.Send("b", msg); err != nil {
		t.Fatalf("send: %s", err)
	}
	msg.Inputs[0][0] = 9

	env := <-b.Inbox()
	got, ok := env.Msg.(*Input)
	if env.From != "a" || !ok {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if got.AckFrame != 3 || !slices.Equal(got.Inputs[0], InputValues{1}) {
		t.Errorf("receiver shares memory with the sender: %+v", got)
	}

	if err := a.Send("c", msg); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("send to unknown peer: %v", err)
	}
}

func TestLoopbackDropAndOverflow(t *testing.T) {
	net := NewLoopbackNetwork()
	a := net.Transport("a", 2)
	b := net.Transport("b", 2)

	net.Drop = func(from, to string, m Message) bool {
		_, isAck := m.(*InputAck)
		return isAck
	}
	a.Send("b", &InputAck{})
	if len(b.Inbox()) != 0 {
		t.Errorf("dropped message delivered")
	}

	for i := 0; i < 5; i++ {
		if err := a.Send("b", &KeepAlive{}); err != nil {
			t.Fatalf("send: %s", err)
		}
	}
	if len(b.Inbox()) != 2 || b.Dropped() != 3 {
		t.Errorf("expected 2 queued and 3 dropped, got %d and %d", len(b.Inbox()), b.Dropped())
	}
}

func TestLoopbackClosePeer(t *testing.T) {
	net := NewLoopbackNetwork()
	a := net.Transport("a", 2)
	b := net.Transport("b", 2)

	a.ClosePeer("b")
	if err := a.Send("b", &KeepAlive{}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("send after close: %v", err)
	}
	if err := b.Send("a", &KeepAlive{}); err != nil {
		t.Errorf("closing is one sided, b could not send: %s", err)
	}
}
