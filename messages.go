package telegraph

// Message is one of the protocol messages exchanged between endpoints:
// *SyncRequest, *SyncReply, *QualityReport, *QualityReply, *Input, *InputAck
// or *KeepAlive, plus *Hello which stream transports exchange before
// anything else. The set is closed, other packages cannot implement it.
type Message interface {
	Sequence() uint32
	setSequence(uint32)
	code() uint16
}

// Header is embedded in every message. Seq increases by one for every
// message a sender emits.
type Header struct {
	Seq uint32 `cbor:"s"`
}

func (h *Header) Sequence() uint32     { return h.Seq }
func (h *Header) setSequence(s uint32) { h.Seq = s }

// SyncRequest starts a synchronization round trip.
type SyncRequest struct {
	Header
	RandomRequest uint32 `cbor:"r"`
}

// SyncReply echoes the nonce of a SyncRequest.
type SyncReply struct {
	Header
	RandomReply uint32 `cbor:"r"`
}

// QualityReport carries the sender's frame advantage and a timestamp
// (sender clock, unix milliseconds) to be echoed back.
type QualityReport struct {
	Header
	FrameAdvantage int   `cbor:"a"`
	Ping           int64 `cbor:"p"`
}

type QualityReply struct {
	Header
	Pong int64 `cbor:"p"`
}

// Input carries every input not yet acknowledged by the receiver, starting at
// StartFrame, along with the sender's view of all players.
type Input struct {
	Header
	AckFrame            int                `cbor:"ack"`
	DisconnectRequested bool               `cbor:"dis"`
	PeerConnectStatus   []ConnectionStatus `cbor:"st"`
	StartFrame          int                `cbor:"start"`
	Inputs              []InputValues      `cbor:"in"`
}

type InputAck struct {
	Header
	AckFrame int `cbor:"ack"`
}

type KeepAlive struct {
	Header
}

// Hello opens a stream connection and names the peer on the other end. It
// never reaches an Endpoint.
type Hello struct {
	Header
	PeerID  string `cbor:"id"`
	Version string `cbor:"v,omitempty"`
}

func (*Hello) code() uint16         { return PacketHello }
func (*SyncRequest) code() uint16   { return PacketSyncRequest }
func (*SyncReply) code() uint16     { return PacketSyncReply }
func (*QualityReport) code() uint16 { return PacketQualityReport }
func (*QualityReply) code() uint16  { return PacketQualityReply }
func (*Input) code() uint16         { return PacketInput }
func (*InputAck) code() uint16      { return PacketInputAck }
func (*KeepAlive) code() uint16     { return PacketKeepAlive }
