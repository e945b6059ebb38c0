package telegraph

import (
	"slices"
	"testing"
)

// syncStepper runs testGame ticks directly on a Synchronizer.
type syncStepper struct {
	s *Synchronizer
}

func (st syncStepper) SyncInput() (SyncedInputs, error) {
	return st.s.SynchronizedInputs(), nil
}

func (st syncStepper) IncrementFrame() error {
	st.s.IncrementFrame()
	return nil
}

func newTestSynchronizer(players int) (*Synchronizer, *StatusTable, *testGame) {
	g := newTestGame(players)
	cb := g.callbacks()
	status := NewStatusTable(players)
	s := NewSynchronizer(&cb, status, testLogger())
	g.session = syncStepper{s}
	return s, status, g
}

func mustStep(t *testing.T, g *testGame) {
	t.Helper()
	if err := g.step(); err != nil {
		t.Fatalf("step at frame %d: %s", g.frame, err)
	}
}

func TestSynchronizerRollbackMatchesReference(t *testing.T) {
	s, _, g := newTestSynchronizer(2)

	local := func(f int) InputValues { return InputValues{f % 3} }
	remote := func(f int) InputValues { return InputValues{f / 2} }

	for f := 0; f < 6; f++ {
		if _, ok := s.AddLocalInput(0, local(f)); !ok {
			t.Fatalf("frame %d rejected", f)
		}
		mustStep(t, g)
	}

	// remote inputs arrive late, the first one already differs from the
	// empty prediction
	for f := 0; f < 6; f++ {
		s.AddRemoteInput(1, GameInput{Frame: f, Inputs: remote(f)})
	}
	if f := s.firstIncorrectFrame(); f != 0 {
		t.Fatalf("expected misprediction at frame 0, got %d", f)
	}

	s.CheckSimulation()

	ref := newTestGame(2)
	for f := 0; f < 6; f++ {
		ref.apply(SyncedInputs{Inputs: []InputValues{local(f), remote(f)}})
	}
	if g.frame != ref.frame || !slices.Equal(g.sums, ref.sums) {
		t.Errorf("replayed state %s differs from reference %s", g.checksum(), ref.checksum())
	}
	if g.advances != 6 {
		t.Errorf("expected 6 replayed frames, got %d", g.advances)
	}
	if g.lastLoaded != 0 {
		t.Errorf("expected frame 0 to be loaded, got %d", g.lastLoaded)
	}
	if s.FrameCount() != 6 || s.InRollback() {
		t.Errorf("unexpected state after rollback: frame %d, in rollback %t", s.FrameCount(), s.InRollback())
	}
	if s.firstIncorrectFrame() != NullFrame {
		t.Errorf("prediction error still pending after rollback")
	}
}

func TestSynchronizerMispredictionRollsBackToFrame(t *testing.T) {
	s, _, g := newTestSynchronizer(2)

	for f := 0; f < 8; f++ {
		s.AddLocalInput(0, InputValues{0})
		if f < 5 {
			s.AddRemoteInput(1, GameInput{Frame: f, Inputs: InputValues{0}})
		}
		mustStep(t, g)
	}

	s.AddRemoteInput(1, GameInput{Frame: 5, Inputs: InputValues{1}})
	s.CheckSimulation()

	if g.lastLoaded != 5 {
		t.Errorf("expected rollback to frame 5, loaded %d", g.lastLoaded)
	}
	if g.advances != 3 {
		t.Errorf("expected 3 replayed frames, got %d", g.advances)
	}
	if s.FrameCount() != 8 {
		t.Errorf("frame count is %d after rollback", s.FrameCount())
	}
}

func TestSynchronizerPredictionBarrier(t *testing.T) {
	s, _, g := newTestSynchronizer(2)

	for f := 0; f < MaxPredictionFrames; f++ {
		if _, ok := s.AddLocalInput(0, InputValues{1}); !ok {
			t.Fatalf("frame %d rejected before reaching the barrier", f)
		}
		mustStep(t, g)
	}

	if _, ok := s.AddLocalInput(0, InputValues{1}); ok {
		t.Fatalf("input accepted %d frames past the last confirmed frame", s.FrameCount()+1)
	}

	s.SetLastConfirmedFrame(0)
	if _, ok := s.AddLocalInput(0, InputValues{1}); ok {
		t.Fatalf("input accepted with %d frames unconfirmed", s.FrameCount())
	}

	s.SetLastConfirmedFrame(1)
	if _, ok := s.AddLocalInput(0, InputValues{1}); !ok {
		t.Fatalf("input rejected after the confirmed frame moved")
	}
}

func TestSynchronizerAdjustSimulation(t *testing.T) {
	s, _, g := newTestSynchronizer(1)

	for f := 0; f < 7; f++ {
		s.AddLocalInput(0, InputValues{f})
		mustStep(t, g)
	}
	before := g.checksum()

	s.AdjustSimulation(3)

	if s.FrameCount() != 7 {
		t.Errorf("frame count is %d after replay", s.FrameCount())
	}
	if g.lastLoaded != 3 {
		t.Errorf("expected frame 3 to be loaded, got %d", g.lastLoaded)
	}
	if g.advances != 4 {
		t.Errorf("expected 4 replayed frames, got %d", g.advances)
	}
	if g.checksum() != before {
		t.Errorf("deterministic replay changed the state: %s != %s", g.checksum(), before)
	}
	if ck, ok := s.SavedChecksum(7); !ok || ck != before {
		t.Errorf("snapshot of frame 7 is %q (%v), expected %q", ck, ok, before)
	}
	if sf := s.LastSavedFrame(); sf.Frame != 7 {
		t.Errorf("last saved frame is %d", sf.Frame)
	}
}

func TestSynchronizerMissingSnapshot(t *testing.T) {
	s, _, g := newTestSynchronizer(1)

	for f := 0; f < 12; f++ {
		s.AddLocalInput(0, InputValues{f})
		mustStep(t, g)
		s.SetLastConfirmedFrame(s.FrameCount() - 1)
	}

	// the ring holds the last MaxPredictionFrames+2 snapshots only
	expectContractViolation(t, func() { s.AdjustSimulation(1) })
	if s.InRollback() {
		t.Errorf("still in rollback after a failed adjust")
	}
}

func TestSynchronizerDisconnectedPlayerInputs(t *testing.T) {
	s, status, g := newTestSynchronizer(2)

	for f := 0; f < 3; f++ {
		s.AddLocalInput(0, InputValues{1})
		s.AddRemoteInput(1, GameInput{Frame: f, Inputs: InputValues{2}})
		status.SetLastFrame(1, f)
		mustStep(t, g)
	}
	status.MarkDisconnected(1, 2)

	s.AddLocalInput(0, InputValues{1})
	in := s.SynchronizedInputs()
	if !in.Disconnected[1] || len(in.Inputs[1]) != 0 {
		t.Errorf("expected an empty input for the disconnected player, got %+v", in)
	}
	if in.Disconnected[0] || !slices.Equal(in.Inputs[0], InputValues{1}) {
		t.Errorf("local player affected by the disconnect: %+v", in)
	}

	inputs, disconnected, ok := s.ConfirmedInputs(2)
	if !ok || disconnected[1] || !slices.Equal(inputs[1], InputValues{2}) {
		t.Errorf("frame 2 was received before the disconnect: %v %v %v", inputs, disconnected, ok)
	}
	_, disconnected, ok = s.ConfirmedInputs(3)
	if !ok || !disconnected[1] {
		t.Errorf("frame 3 should be confirmed as disconnected: %v %v", disconnected, ok)
	}
}
