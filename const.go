package telegraph

import "time"

const (
	// NullFrame marks the absence of a frame.
	NullFrame = -1

	InputQueueLength    = 128
	MaxPredictionFrames = 8

	// RecommendationInterval is how often, in frames, the P2P backend asks
	// its endpoints for a time sync recommendation.
	RecommendationInterval = 240

	DefaultDisconnectTimeout     = 5000 * time.Millisecond
	DefaultDisconnectNotifyStart = 750 * time.Millisecond
	DefaultCheckDistance         = 4
)

// endpoint timers
const (
	NumSyncPackets         = 5
	SyncFirstRetryInterval = 200 * time.Millisecond
	SyncRetryInterval      = 2000 * time.Millisecond
	RunningRetryInterval   = 200 * time.Millisecond
	KeepAliveInterval      = 200 * time.Millisecond
	QualityReportInterval  = 1000 * time.Millisecond
	ShutdownTimer          = 5000 * time.Millisecond

	pendingOutputSize = 64
	eventQueueSize    = 64
)

// transportInboxSize is how many decoded messages a stream transport buffers
// before its read loops block.
const transportInboxSize = 256

// wire message codes
const (
	PacketMaxLen = 1024 * 1024 // 1MB

	PacketHello         = 0x1000
	PacketSyncRequest   = 0x1001
	PacketSyncReply     = 0x3001
	PacketQualityReport = 0x1002
	PacketQualityReply  = 0x3002
	PacketInput         = 0x1003
	PacketInputAck      = 0x3003
	PacketKeepAlive     = 0x1fff
)
