package telegraph

import (
	"fmt"
)

// SyncTestBackend runs a session without any network to check that the
// simulation is deterministic. Every CheckDistance frames it rolls the
// simulation back and replays it, and compares the checksums of the
// replayed snapshots with the ones from the first run.
type SyncTestBackend struct {
	*session

	checkDistance int
	running       bool
	lastVerified  int
}

// NewSyncTestBackend creates a sync test session. All players are local.
func NewSyncTestBackend(numPlayers int, cb Callbacks, opts ...SessionOption) *SyncTestBackend {
	s := newSession(numPlayers, cb, opts)
	assertf(s.cfg.checkDistance > 0 && s.cfg.checkDistance < MaxPredictionFrames,
		"synctest: check distance %d must be between 1 and %d", s.cfg.checkDistance, MaxPredictionFrames-1)

	return &SyncTestBackend{
		session:       s,
		checkDistance: s.cfg.checkDistance,
	}
}

func (b *SyncTestBackend) AddPlayer(p Player) (PlayerHandle, error) {
	if p.Number < 1 || p.Number > b.numPlayers {
		return 0, fmt.Errorf("%w: %d not in 1..%d", ErrPlayerOutOfRange, p.Number, b.numPlayers)
	}
	if p.Type != PlayerLocal {
		return 0, fmt.Errorf("%w: %s players in sync test", ErrNotSupported, p.Type)
	}
	return queueToHandle(p.Number - 1), nil
}

func (b *SyncTestBackend) AddLocalInput(h PlayerHandle, values InputValues) error {
	if b.sync.InRollback() {
		return ErrInRollback
	}
	queue, err := b.handleToQueue(h)
	if err != nil {
		return err
	}
	if !b.running {
		b.running = true
		b.emit(EventRunning{})
	}

	input, ok := b.sync.AddLocalInput(queue, values)
	if !ok {
		return ErrPredictionThreshold
	}
	if input.Frame != NullFrame {
		b.status.SetLastFrame(queue, input.Frame)
	}
	return nil
}

func (b *SyncTestBackend) SyncInput() (SyncedInputs, error) {
	return b.sync.SynchronizedInputs(), nil
}

// IncrementFrame advances the frame. Once CheckDistance frames went by
// since the last check, the last CheckDistance frames are replayed and
// ErrDesync is returned if any checksum differs.
func (b *SyncTestBackend) IncrementFrame() error {
	b.sync.IncrementFrame()
	if b.sync.InRollback() {
		return nil
	}

	frame := b.sync.FrameCount()
	if frame-b.lastVerified < b.checkDistance {
		return nil
	}

	seekTo := frame - b.checkDistance
	want := make(map[int]string, b.checkDistance)
	for f := seekTo + 1; f <= frame; f++ {
		ck, ok := b.sync.SavedChecksum(f)
		assertf(ok, "synctest: frame %d missing from snapshot ring", f)
		want[f] = ck
	}

	b.sync.AdjustSimulation(seekTo)

	b.lastVerified = frame
	b.sync.SetLastConfirmedFrame(frame)

	for f := seekTo + 1; f <= frame; f++ {
		got, _ := b.sync.SavedChecksum(f)
		if got != want[f] {
			b.log.Error(fmt.Sprintf("[telegraph] checksum mismatch at frame %d: %q != %q", f, got, want[f]), "event", "telegraph:synctest:desync")
			return fmt.Errorf("%w at frame %d (%q != %q)", ErrDesync, f, got, want[f])
		}
	}
	return nil
}

// PostProcessUpdate has nothing to do without network.
func (b *SyncTestBackend) PostProcessUpdate() {}

func (b *SyncTestBackend) DisconnectPlayer(PlayerHandle) error {
	return ErrNotSupported
}

func (b *SyncTestBackend) NetworkStats(PlayerHandle) (NetworkStats, error) {
	return NetworkStats{}, ErrNotSupported
}

func (b *SyncTestBackend) Close() error {
	if b.cfg.journal != nil {
		return b.cfg.journal.Close()
	}
	return nil
}
