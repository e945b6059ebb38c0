package telegraph

import (
	"slices"
	"testing"
)

func addInput(q *InputQueue, frame int, values ...int) int {
	in := GameInput{Frame: frame, Inputs: values}
	q.AddInput(&in)
	return in.Frame
}

func TestInputQueueRoundTrip(t *testing.T) {
	q := NewInputQueue(0, testLogger())

	for f := 0; f < 10; f++ {
		if got := addInput(q, f, f, f*2); got != f {
			t.Fatalf("input for frame %d stored at frame %d", f, got)
		}
	}
	for f := 0; f < 10; f++ {
		in := q.GetInput(f)
		if in.Frame != f || !slices.Equal(in.Inputs, InputValues{f, f * 2}) {
			t.Errorf("frame %d: got %+v", f, in)
		}
	}
	if q.FirstIncorrectFrame() != NullFrame {
		t.Errorf("no prediction was made, yet first incorrect frame is %d", q.FirstIncorrectFrame())
	}
}

func TestInputQueueBootstrapPrediction(t *testing.T) {
	q := NewInputQueue(0, testLogger())

	in := q.GetInput(0)
	if in.Frame != 0 || len(in.Inputs) != 0 {
		t.Fatalf("expected an empty prediction for frame 0, got %+v", in)
	}

	addInput(q, 0, 5)
	if q.FirstIncorrectFrame() != 0 {
		t.Errorf("expected frame 0 to be flagged incorrect, got %d", q.FirstIncorrectFrame())
	}
}

func TestInputQueueRepeatLastPrediction(t *testing.T) {
	q := NewInputQueue(0, testLogger())

	addInput(q, 0, 1)
	addInput(q, 1, 2)

	for _, f := range []int{2, 3} {
		in := q.GetInput(f)
		if in.Frame != f || !slices.Equal(in.Inputs, InputValues{2}) {
			t.Fatalf("frame %d: expected prediction [2], got %+v", f, in)
		}
	}

	addInput(q, 2, 2)
	if q.FirstIncorrectFrame() != NullFrame {
		t.Fatalf("correct prediction flagged at frame %d", q.FirstIncorrectFrame())
	}

	addInput(q, 3, 4)
	if q.FirstIncorrectFrame() != 3 {
		t.Errorf("expected misprediction at frame 3, got %d", q.FirstIncorrectFrame())
	}

	// only the first misprediction is remembered
	addInput(q, 4, 9)
	if q.FirstIncorrectFrame() != 3 {
		t.Errorf("first incorrect frame moved to %d", q.FirstIncorrectFrame())
	}

	expectContractViolation(t, func() { q.GetInput(4) })

	q.ResetPrediction(3)
	if in := q.GetInput(3); !slices.Equal(in.Inputs, InputValues{4}) {
		t.Errorf("after reset, frame 3 should be confirmed [4], got %+v", in)
	}
}

func TestInputQueuePredictionClearedWhenCaughtUp(t *testing.T) {
	q := NewInputQueue(0, testLogger())

	addInput(q, 0, 1)
	q.GetInput(1)
	addInput(q, 1, 1)

	// prediction matched and caught up, frame 2 predicts from frame 1 again
	addInput(q, 2, 7)
	if q.FirstIncorrectFrame() != NullFrame {
		t.Fatalf("input past the prediction flagged incorrect at %d", q.FirstIncorrectFrame())
	}
	if in := q.GetInput(2); !slices.Equal(in.Inputs, InputValues{7}) {
		t.Errorf("expected confirmed [7], got %+v", in)
	}
}

func TestInputQueueDiscard(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	for f := 0; f < 6; f++ {
		addInput(q, f, f)
	}

	// nothing requested yet, nothing discarded
	q.DiscardConfirmedFrames(4)
	if in := q.GetInput(0); !slices.Equal(in.Inputs, InputValues{0}) {
		t.Fatalf("frame 0 discarded before being requested: %+v", in)
	}

	q.GetInput(2)
	q.DiscardConfirmedFrames(4)

	// clamped to the last requested frame
	if in := q.GetInput(3); !slices.Equal(in.Inputs, InputValues{3}) {
		t.Errorf("frame 3 should still be held, got %+v", in)
	}
	expectContractViolation(t, func() { q.GetInput(2) })
	expectContractViolation(t, func() { q.DiscardConfirmedFrames(-1) })
}

func TestInputQueueDiscardAll(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	for f := 0; f < 4; f++ {
		addInput(q, f, f)
	}
	q.GetInput(3)
	q.DiscardConfirmedFrames(10)

	addInput(q, 4, 40)
	addInput(q, 5, 50)
	if in := q.GetInput(4); !slices.Equal(in.Inputs, InputValues{40}) {
		t.Errorf("frame 4: got %+v", in)
	}
	if in := q.GetInput(5); !slices.Equal(in.Inputs, InputValues{50}) {
		t.Errorf("frame 5: got %+v", in)
	}
}

func TestInputQueueWraparound(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	for f := 0; f < InputQueueLength*3; f++ {
		addInput(q, f, f)
		if in := q.GetInput(f); !slices.Equal(in.Inputs, InputValues{f}) {
			t.Fatalf("frame %d: got %+v", f, in)
		}
		q.DiscardConfirmedFrames(f)
	}
}

func TestInputQueueFrameDelayPad(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	q.SetFrameDelay(2)

	if got := addInput(q, 0, 1); got != 2 {
		t.Fatalf("expected frame 0 to land on frame 2, got %d", got)
	}
	if got := addInput(q, 1, 2); got != 3 {
		t.Fatalf("expected frame 1 to land on frame 3, got %d", got)
	}

	for f, want := range []InputValues{nil, nil, {1}, {2}} {
		if in := q.GetInput(f); !slices.Equal(in.Inputs, want) {
			t.Errorf("frame %d: expected %v, got %v", f, want, in.Inputs)
		}
	}
}

func TestInputQueueFrameDelayDrop(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	q.SetFrameDelay(2)
	addInput(q, 0, 1)

	q.SetFrameDelay(0)
	if got := addInput(q, 1, 2); got != NullFrame {
		t.Errorf("expected frame 1 to be dropped, got %d", got)
	}
	if got := addInput(q, 2, 3); got != NullFrame {
		t.Errorf("expected frame 2 to be dropped, got %d", got)
	}
	if got := addInput(q, 3, 4); got != 3 {
		t.Errorf("expected frame 3 to be stored, got %d", got)
	}
	if in := q.GetInput(3); !slices.Equal(in.Inputs, InputValues{4}) {
		t.Errorf("frame 3: got %+v", in)
	}
}

func TestInputQueueFrameDelayGrow(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	addInput(q, 0, 1)
	addInput(q, 1, 2)

	q.SetFrameDelay(2)
	if got := addInput(q, 2, 3); got != 4 {
		t.Fatalf("expected frame 2 to land on frame 4, got %d", got)
	}

	for f, want := range []InputValues{{1}, {2}, {2}, {2}, {3}} {
		if in := q.GetInput(f); !slices.Equal(in.Inputs, want) {
			t.Errorf("frame %d: expected %v, got %v", f, want, in.Inputs)
		}
	}
}

func TestInputQueueOutOfOrder(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	addInput(q, 0, 1)
	expectContractViolation(t, func() { addInput(q, 2, 1) })
}

func TestInputQueueConfirmedInput(t *testing.T) {
	q := NewInputQueue(0, testLogger())
	addInput(q, 0, 3)

	if in, ok := q.ConfirmedInput(0); !ok || !slices.Equal(in.Inputs, InputValues{3}) {
		t.Errorf("frame 0: got %+v, %v", in, ok)
	}
	if _, ok := q.ConfirmedInput(1); ok {
		t.Errorf("frame 1 was never added")
	}
	if _, ok := q.ConfirmedInput(-1); ok {
		t.Errorf("negative frame reported as confirmed")
	}
}
