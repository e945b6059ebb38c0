package telegraph

import (
	"fmt"
	"log/slog"
)

// SavedFrame is a snapshot of the simulation taken at the start of Frame.
type SavedFrame struct {
	Frame    int
	State    any
	Checksum string
}

// SyncedInputs is the set of inputs to simulate the current frame with, one
// entry per player queue.
type SyncedInputs struct {
	Inputs       []InputValues
	Disconnected []bool
}

// Synchronizer owns the input queues of all players and a ring of recent
// simulation snapshots. It advances frames, detects mispredictions and
// rolls the simulation back to replay them.
type Synchronizer struct {
	log       *slog.Logger
	callbacks *Callbacks
	status    StatusReader

	frameCount          int
	lastConfirmedFrame  int
	maxPredictionFrames int
	inRollback          bool

	queues []*InputQueue

	saved     []SavedFrame
	savedHead int
}

// NewSynchronizer creates a synchronizer with one input queue per entry in
// status.
func NewSynchronizer(cb *Callbacks, status StatusReader, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	s := &Synchronizer{
		log:                 log,
		callbacks:           cb,
		status:              status,
		lastConfirmedFrame:  NullFrame,
		maxPredictionFrames: MaxPredictionFrames,
		saved:               make([]SavedFrame, MaxPredictionFrames+2),
	}
	for i := range s.saved {
		s.saved[i].Frame = NullFrame
	}
	for i := 0; i < status.Len(); i++ {
		s.queues = append(s.queues, NewInputQueue(i, log))
	}
	return s
}

func (s *Synchronizer) FrameCount() int         { return s.frameCount }
func (s *Synchronizer) InRollback() bool        { return s.inRollback }
func (s *Synchronizer) LastConfirmedFrame() int { return s.lastConfirmedFrame }

// SetLastConfirmedFrame moves the watermark used by the prediction barrier
// and lets every queue free the frames before it.
func (s *Synchronizer) SetLastConfirmedFrame(frame int) {
	s.lastConfirmedFrame = frame
	if frame > 0 {
		for _, q := range s.queues {
			q.DiscardConfirmedFrames(frame - 1)
		}
	}
}

// AddLocalInput queues values as the input of player queue for the current
// frame. It returns false when the session is too far ahead of confirmed
// input to accept more. The returned input carries the frame it was stored
// at once the frame delay is applied.
func (s *Synchronizer) AddLocalInput(queue int, values InputValues) (GameInput, bool) {
	framesBehind := s.frameCount - s.lastConfirmedFrame
	if s.frameCount >= s.maxPredictionFrames && framesBehind >= s.maxPredictionFrames {
		s.log.Debug(fmt.Sprintf("[telegraph] rejecting input at frame %d: %d frames past last confirmed frame", s.frameCount, framesBehind), "event", "telegraph:sync:barrier")
		return GameInput{}, false
	}

	if s.frameCount == 0 && s.findSavedFrameIndex(0) < 0 {
		// frame 0 must always be loadable
		s.saveCurrentFrame()
	}

	input := GameInput{Frame: s.frameCount, Inputs: values}
	s.queues[queue].AddInput(&input)
	return input, true
}

// AddRemoteInput queues an input received from a remote player.
func (s *Synchronizer) AddRemoteInput(queue int, input GameInput) {
	s.queues[queue].AddInput(&input)
}

// SynchronizedInputs returns the inputs of every player for the current
// frame. Players disconnected before this frame get an empty input.
func (s *Synchronizer) SynchronizedInputs() SyncedInputs {
	res := SyncedInputs{
		Inputs:       make([]InputValues, len(s.queues)),
		Disconnected: make([]bool, len(s.queues)),
	}
	for i, q := range s.queues {
		st := s.status.Get(i)
		if st.Disconnected && s.frameCount > st.LastFrame {
			res.Inputs[i] = InputValues{}
			res.Disconnected[i] = true
			continue
		}
		res.Inputs[i] = q.GetInput(s.frameCount).Inputs
	}
	return res
}

// ConfirmedInputs returns the received inputs of every player for frame. ok
// is false if any connected player's input for that frame is not held.
func (s *Synchronizer) ConfirmedInputs(frame int) (inputs []InputValues, disconnected []bool, ok bool) {
	inputs = make([]InputValues, len(s.queues))
	disconnected = make([]bool, len(s.queues))
	for i, q := range s.queues {
		st := s.status.Get(i)
		if st.Disconnected && frame > st.LastFrame {
			inputs[i] = InputValues{}
			disconnected[i] = true
			continue
		}
		in, found := q.ConfirmedInput(frame)
		if !found {
			return nil, nil, false
		}
		inputs[i] = in.Inputs
	}
	return inputs, disconnected, true
}

// IncrementFrame moves to the next frame and snapshots it.
func (s *Synchronizer) IncrementFrame() {
	s.frameCount += 1
	s.saveCurrentFrame()
}

// CheckSimulation rolls back to the earliest mispredicted frame, if any.
func (s *Synchronizer) CheckSimulation() {
	if frame := s.firstIncorrectFrame(); frame != NullFrame {
		s.AdjustSimulation(frame)
	}
}

// AdjustSimulation loads the snapshot for seekTo and replays every frame
// since, through the AdvanceFrame callback, until the frame count is back
// where it was.
func (s *Synchronizer) AdjustSimulation(seekTo int) {
	frameCount := s.frameCount
	count := frameCount - seekTo

	s.log.Debug(fmt.Sprintf("[telegraph] rolling back to frame %d from %d", seekTo, frameCount), "event", "telegraph:sync:rollback")
	s.inRollback = true
	defer func() { s.inRollback = false }()

	s.loadFrame(seekTo)
	assertf(s.frameCount == seekTo, "synchronizer: load did not move to frame %d", seekTo)

	s.resetPrediction(s.frameCount)
	for i := 0; i < count; i++ {
		s.callbacks.AdvanceFrame()
	}
	assertf(s.frameCount == frameCount, "synchronizer: replay ended at frame %d instead of %d", s.frameCount, frameCount)
}

// LastSavedFrame returns the most recent snapshot.
func (s *Synchronizer) LastSavedFrame() SavedFrame {
	i := s.savedHead - 1
	if i < 0 {
		i = len(s.saved) - 1
	}
	return s.saved[i]
}

// SavedChecksum returns the checksum recorded with the snapshot of frame.
func (s *Synchronizer) SavedChecksum(frame int) (string, bool) {
	if i := s.findSavedFrameIndex(frame); i >= 0 {
		return s.saved[i].Checksum, true
	}
	return "", false
}

func (s *Synchronizer) SetFrameDelay(queue, delay int) {
	s.queues[queue].SetFrameDelay(delay)
}

func (s *Synchronizer) Queue(queue int) *InputQueue {
	return s.queues[queue]
}

func (s *Synchronizer) loadFrame(frame int) {
	if frame == s.frameCount {
		return
	}

	idx := s.findSavedFrameIndex(frame)
	assertf(idx >= 0, "synchronizer: frame %d is not in the snapshot ring", frame)

	sf := s.saved[idx]
	s.callbacks.LoadState(sf.State)
	s.frameCount = sf.Frame
	s.savedHead = (idx + 1) % len(s.saved)
}

func (s *Synchronizer) saveCurrentFrame() {
	res := s.callbacks.SaveState()
	s.saved[s.savedHead] = SavedFrame{Frame: s.frameCount, State: res.State, Checksum: res.Checksum}
	s.savedHead = (s.savedHead + 1) % len(s.saved)
}

func (s *Synchronizer) findSavedFrameIndex(frame int) int {
	for i, sf := range s.saved {
		if sf.Frame == frame {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) firstIncorrectFrame() int {
	first := NullFrame
	for _, q := range s.queues {
		f := q.FirstIncorrectFrame()
		if f != NullFrame && (first == NullFrame || f < first) {
			first = f
		}
	}
	return first
}

func (s *Synchronizer) resetPrediction(frame int) {
	for _, q := range s.queues {
		q.ResetPrediction(frame)
	}
}
