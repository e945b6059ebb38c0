package telegraph

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// EncodeMessage serializes m as a 2 bytes big endian message code followed
// by the CBOR encoded message.
func EncodeMessage(m Message) ([]byte, error) {
	body, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message 0x%04x: %w", m.code(), err)
	}
	buf := make([]byte, 2, 2+len(body))
	binary.BigEndian.PutUint16(buf, m.code())
	return append(buf, body...), nil
}

// DecodeMessage parses a buffer produced by EncodeMessage.
func DecodeMessage(buf []byte) (Message, error) {
	if len(buf) < 2 {
		return nil, io.ErrUnexpectedEOF
	}
	pc := binary.BigEndian.Uint16(buf[:2])

	var m Message
	switch pc {
	case PacketHello:
		m = &Hello{}
	case PacketSyncRequest:
		m = &SyncRequest{}
	case PacketSyncReply:
		m = &SyncReply{}
	case PacketQualityReport:
		m = &QualityReport{}
	case PacketQualityReply:
		m = &QualityReply{}
	case PacketInput:
		m = &Input{}
	case PacketInputAck:
		m = &InputAck{}
	case PacketKeepAlive:
		m = &KeepAlive{}
	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownMessage, pc)
	}

	if err := cbor.Unmarshal(buf[2:], m); err != nil {
		return nil, fmt.Errorf("failed to decode message 0x%04x: %w", pc, err)
	}
	return m, nil
}

// writeFrame writes m on a stream, prefixed with its length.
func writeFrame(w io.Writer, m Message) error {
	buf, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	out := make([]byte, 4, 4+len(buf))
	binary.BigEndian.PutUint32(out, uint32(len(buf)))
	_, err = w.Write(append(out, buf...))
	return err
}

// readFrame reads one length prefixed frame and decodes it. Frames that fail
// to decode are returned as errors but leave the stream in sync.
func readFrame(r io.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	ln := binary.BigEndian.Uint32(hdr[:])
	if ln > PacketMaxLen {
		return nil, fmt.Errorf("frame of %d bytes exceeds maximum length", ln)
	}
	buf := make([]byte, ln)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return DecodeMessage(buf)
}
