package telegraph

import "time"

type PlayerType int

const (
	PlayerLocal PlayerType = iota
	PlayerRemote
	PlayerSpectator
)

func (t PlayerType) String() string {
	switch t {
	case PlayerLocal:
		return "local"
	case PlayerRemote:
		return "remote"
	case PlayerSpectator:
		return "spectator"
	default:
		return "unknown"
	}
}

// PlayerHandle identifies a player within a session. It is the 1-based
// player number.
type PlayerHandle int

// Player describes a participant. PeerID is the transport address of a
// remote player and is ignored for local ones.
type Player struct {
	Type   PlayerType
	Number int
	PeerID string
}

// NetworkStats describes the connection to a player. Local players report
// -1 for Ping and SendQueueLength.
type NetworkStats struct {
	Ping                 time.Duration
	SendQueueLength      int
	LocalFrameAdvantage  int
	RemoteFrameAdvantage int
	OutOfOrder           uint64
}

var localPlayerStats = NetworkStats{Ping: -1, SendQueueLength: -1}

func queueToHandle(queue int) PlayerHandle {
	return PlayerHandle(queue + 1)
}
