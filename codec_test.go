package telegraph

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	msgs := []Message{
		&Hello{Header: Header{Seq: 1}, PeerID: "player-2", Version: "v1.2.3"},
		&SyncRequest{Header: Header{Seq: 2}, RandomRequest: 0xdeadbeef},
		&SyncReply{Header: Header{Seq: 3}, RandomReply: 0xdeadbeef},
		&QualityReport{Header: Header{Seq: 4}, FrameAdvantage: -2, Ping: 1700000000123},
		&QualityReply{Header: Header{Seq: 5}, Pong: 1700000000123},
		&Input{
			Header:              Header{Seq: 6},
			AckFrame:            NullFrame,
			DisconnectRequested: true,
			PeerConnectStatus:   []ConnectionStatus{{LastFrame: 12}, {Disconnected: true, LastFrame: NullFrame}},
			StartFrame:          10,
			Inputs:              []InputValues{{1, 2}, {3}},
		},
		&InputAck{Header: Header{Seq: 7}, AckFrame: 42},
		&KeepAlive{Header: Header{Seq: 8}},
	}

	for _, m := range msgs {
		buf, err := EncodeMessage(m)
		if err != nil {
			t.Fatalf("encode %T: %s", m, err)
		}
		if code := binary.BigEndian.Uint16(buf); code != m.code() {
			t.Errorf("%T encoded with code 0x%04x", m, code)
		}
		got, err := DecodeMessage(buf)
		if err != nil {
			t.Fatalf("decode %T: %s", m, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Errorf("%T: decoded %+v, expected %+v", m, got, m)
		}
	}
}

func TestCodecErrors(t *testing.T) {
	if _, err := DecodeMessage([]byte{0x10}); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short buffer: %v", err)
	}
	if _, err := DecodeMessage([]byte{0x77, 0x77, 0xa0}); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("unknown code: %v", err)
	}
	_, err := DecodeMessage([]byte{0x10, 0x01, 0xff, 0xff})
	if err == nil || errors.Is(err, ErrUnknownMessage) {
		t.Errorf("corrupted body: %v", err)
	}
}

func TestCodecFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := uint32(0); i < 3; i++ {
		if err := writeFrame(&buf, &InputAck{Header: Header{Seq: i}, AckFrame: int(i) * 10}); err != nil {
			t.Fatalf("write frame: %s", err)
		}
	}

	for i := uint32(0); i < 3; i++ {
		m, err := readFrame(&buf)
		if err != nil {
			t.Fatalf("read frame %d: %s", i, err)
		}
		ack, ok := m.(*InputAck)
		if !ok || ack.Seq != i || ack.AckFrame != int(i)*10 {
			t.Errorf("frame %d read as %+v", i, m)
		}
	}
	if _, err := readFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after the last frame, got %v", err)
	}

	// a truncated frame
	writeFrame(&buf, &KeepAlive{})
	buf.Truncate(buf.Len() - 1)
	if _, err := readFrame(&buf); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated frame: %v", err)
	}

	buf.Reset()
	binary.Write(&buf, binary.BigEndian, uint32(PacketMaxLen+1))
	if _, err := readFrame(&buf); err == nil {
		t.Errorf("oversized frame accepted")
	}
}
