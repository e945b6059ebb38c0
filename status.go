package telegraph

import "slices"

// ConnectionStatus is what a peer knows about a player: whether it has been
// disconnected and the last frame of input received from it.
type ConnectionStatus struct {
	Disconnected bool `cbor:"d"`
	LastFrame    int  `cbor:"f"`
}

// StatusReader gives read-only access to a connection status table, indexed
// by player queue.
type StatusReader interface {
	Len() int
	Get(queue int) ConnectionStatus
	Snapshot() []ConnectionStatus
}

// StatusTable is the local view of every player's connection status. It is
// owned by a backend; endpoints and the synchronizer only see it through
// StatusReader.
type StatusTable struct {
	entries []ConnectionStatus
}

func NewStatusTable(numPlayers int) *StatusTable {
	t := &StatusTable{entries: make([]ConnectionStatus, numPlayers)}
	for i := range t.entries {
		t.entries[i].LastFrame = NullFrame
	}
	return t
}

func (t *StatusTable) Len() int {
	return len(t.entries)
}

func (t *StatusTable) Get(queue int) ConnectionStatus {
	return t.entries[queue]
}

// Snapshot returns a copy of the table, suitable for sending on the wire.
func (t *StatusTable) Snapshot() []ConnectionStatus {
	return slices.Clone(t.entries)
}

// Reset marks queue as connected with no frame received.
func (t *StatusTable) Reset(queue int) {
	t.entries[queue] = ConnectionStatus{LastFrame: NullFrame}
}

func (t *StatusTable) SetLastFrame(queue, frame int) {
	t.entries[queue].LastFrame = frame
}

// MarkDisconnected flags queue as disconnected as of frame.
func (t *StatusTable) MarkDisconnected(queue, frame int) {
	t.entries[queue] = ConnectionStatus{Disconnected: true, LastFrame: frame}
}
