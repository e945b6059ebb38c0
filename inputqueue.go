package telegraph

import (
	"fmt"
	"log/slog"
	"slices"
)

func previousFrame(offset int) int {
	if offset == 0 {
		return InputQueueLength - 1
	}
	return offset - 1
}

// InputQueue holds the inputs of a single player for a sliding window of
// frames. Slots are reused circularly; head is where the next input goes and
// tail is the oldest input still held.
//
// When asked for a frame it does not have yet, the queue predicts the input
// by repeating the last one it received, and remembers the prediction so it
// can flag the first frame where the real input turned out different.
type InputQueue struct {
	log *slog.Logger
	id  int

	inputs [InputQueueLength]GameInput
	head   int
	tail   int
	length int

	isFirstFrame        bool
	lastUserAddedFrame  int
	lastAddedFrame      int
	firstIncorrectFrame int
	lastFrameRequested  int
	frameDelay          int

	// prediction.Frame is NullFrame when no prediction is outstanding
	prediction GameInput
}

// NewInputQueue returns an empty queue. id is only used for logging.
func NewInputQueue(id int, log *slog.Logger) *InputQueue {
	if log == nil {
		log = slog.Default()
	}
	q := &InputQueue{
		log:                 log,
		id:                  id,
		isFirstFrame:        true,
		lastUserAddedFrame:  NullFrame,
		lastAddedFrame:      NullFrame,
		firstIncorrectFrame: NullFrame,
		lastFrameRequested:  NullFrame,
		prediction:          GameInput{Frame: NullFrame},
	}
	for i := range q.inputs {
		q.inputs[i].Frame = NullFrame
	}
	return q
}

// FirstIncorrectFrame returns the earliest frame where a prediction did not
// match the input that was eventually received, or NullFrame.
func (q *InputQueue) FirstIncorrectFrame() int {
	return q.firstIncorrectFrame
}

func (q *InputQueue) LastAddedFrame() int {
	return q.lastAddedFrame
}

func (q *InputQueue) FrameDelay() int {
	return q.frameDelay
}

// SetFrameDelay sets the number of frames added to every input passed to
// AddInput from now on.
func (q *InputQueue) SetFrameDelay(delay int) {
	q.frameDelay = delay
}

// DiscardConfirmedFrames frees the slots of frames up to frame. Frames that
// were never requested through GetInput are kept regardless.
func (q *InputQueue) DiscardConfirmedFrames(frame int) {
	assertf(frame >= 0, "input queue %d: cannot discard negative frame %d", q.id, frame)

	if q.lastFrameRequested == NullFrame {
		return
	}
	frame = min(frame, q.lastFrameRequested)

	q.log.Debug(fmt.Sprintf("[telegraph] queue %d discarding up to frame %d (last added %d, head %d, tail %d, length %d)", q.id, frame, q.lastAddedFrame, q.head, q.tail, q.length), "event", "telegraph:queue:discard")

	if frame >= q.lastAddedFrame {
		q.tail = q.head
		q.length = 0
		return
	}

	offset := frame - q.inputs[q.tail].Frame + 1
	if offset <= 0 {
		return
	}
	assertf(offset <= q.length, "input queue %d: discard offset %d beyond length %d", q.id, offset, q.length)

	q.tail = (q.tail + offset) % InputQueueLength
	q.length -= offset
}

// ResetPrediction drops any outstanding prediction. It is called after a
// rollback has rewound the simulation to frame or earlier.
func (q *InputQueue) ResetPrediction(frame int) {
	assertf(q.firstIncorrectFrame == NullFrame || frame <= q.firstIncorrectFrame,
		"input queue %d: reset prediction for frame %d after first incorrect frame %d", q.id, frame, q.firstIncorrectFrame)

	q.prediction = GameInput{Frame: NullFrame}
	q.firstIncorrectFrame = NullFrame
	q.lastFrameRequested = NullFrame
}

// ConfirmedInput returns the received input for frame, if still held.
func (q *InputQueue) ConfirmedInput(frame int) (GameInput, bool) {
	assertf(q.firstIncorrectFrame == NullFrame || frame < q.firstIncorrectFrame,
		"input queue %d: confirmed input requested for frame %d past incorrect frame %d", q.id, frame, q.firstIncorrectFrame)

	if frame < 0 {
		return GameInput{}, false
	}
	in := q.inputs[frame%InputQueueLength]
	if in.Frame != frame {
		return GameInput{}, false
	}
	return in.clone(), true
}

// GetInput returns the input for requestedFrame, predicting it when the
// frame has not been received. The returned input always carries
// requestedFrame.
func (q *InputQueue) GetInput(requestedFrame int) GameInput {
	assertf(q.firstIncorrectFrame == NullFrame, "input queue %d: get input while a prediction error is pending at frame %d", q.id, q.firstIncorrectFrame)

	q.lastFrameRequested = requestedFrame

	if q.prediction.Frame == NullFrame {
		if q.length > 0 {
			tailFrame := q.inputs[q.tail].Frame
			assertf(requestedFrame >= tailFrame, "input queue %d: frame %d is earlier than queue tail %d", q.id, requestedFrame, tailFrame)

			offset := requestedFrame - tailFrame
			if offset < q.length {
				in := q.inputs[(q.tail+offset)%InputQueueLength]
				assertf(in.Frame == requestedFrame, "input queue %d: slot holds frame %d instead of %d", q.id, in.Frame, requestedFrame)
				return in.clone()
			}
		}

		if q.lastAddedFrame == NullFrame {
			// nothing received yet, predict no input
			q.prediction = GameInput{Frame: 0}
		} else {
			last := q.inputs[previousFrame(q.head)]
			q.prediction = GameInput{Frame: last.Frame + 1, Inputs: slices.Clone(last.Inputs)}
		}
		q.log.Debug(fmt.Sprintf("[telegraph] queue %d predicting frame %d from frame %d", q.id, requestedFrame, q.prediction.Frame-1), "event", "telegraph:queue:predict")
	}

	return GameInput{Frame: requestedFrame, Inputs: slices.Clone(q.prediction.Inputs)}
}

// AddInput appends the next input of this player. Inputs must be added with
// strictly increasing frames. The frame delay is applied and the frame
// actually used is written back into input.Frame, or NullFrame if the input
// was dropped because the delay was lowered.
func (q *InputQueue) AddInput(input *GameInput) {
	assertf(q.lastUserAddedFrame == NullFrame || input.Frame == q.lastUserAddedFrame+1,
		"input queue %d: input out of order (frame %d, last frame was %d)", q.id, input.Frame, q.lastUserAddedFrame)
	q.lastUserAddedFrame = input.Frame

	newFrame := q.advanceQueueHead(input.Frame)
	if newFrame != NullFrame {
		q.addDelayedInputToQueue(input.Inputs, newFrame)
	}
	input.Frame = newFrame
}

// advanceQueueHead returns the frame the input for frame lands on once the
// frame delay is applied, padding the queue if the delay grew.
func (q *InputQueue) advanceQueueHead(frame int) int {
	expectedFrame := 0
	if !q.isFirstFrame {
		expectedFrame = q.inputs[previousFrame(q.head)].Frame + 1
	}

	frame += q.frameDelay

	if expectedFrame > frame {
		// frame delay dropped since the last input, no room for this one
		q.log.Debug(fmt.Sprintf("[telegraph] queue %d dropping input frame %d (expected next to be %d)", q.id, frame, expectedFrame), "event", "telegraph:queue:drop")
		return NullFrame
	}

	for expectedFrame < frame {
		// frame delay grew, repeat the last input to fill the gap
		q.log.Debug(fmt.Sprintf("[telegraph] queue %d adding pad frame %d", q.id, expectedFrame), "event", "telegraph:queue:pad")
		q.addDelayedInputToQueue(q.inputs[previousFrame(q.head)].Inputs, expectedFrame)
		expectedFrame += 1
	}

	assertf(frame == 0 || frame == q.inputs[previousFrame(q.head)].Frame+1, "input queue %d: frame %d does not follow previous frame", q.id, frame)
	return frame
}

func (q *InputQueue) addDelayedInputToQueue(values InputValues, frame int) {
	assertf(q.lastAddedFrame == NullFrame || frame == q.lastAddedFrame+1,
		"input queue %d: frame %d must follow last added frame %d", q.id, frame, q.lastAddedFrame)
	assertf(q.length < InputQueueLength, "input queue %d: overflow at frame %d", q.id, frame)

	q.inputs[q.head] = GameInput{Frame: frame, Inputs: slices.Clone(values)}
	q.head = (q.head + 1) % InputQueueLength
	q.length += 1
	q.isFirstFrame = false
	q.lastAddedFrame = frame

	if q.prediction.Frame == NullFrame {
		return
	}

	assertf(frame == q.prediction.Frame, "input queue %d: added frame %d but prediction is for frame %d", q.id, frame, q.prediction.Frame)

	if q.firstIncorrectFrame == NullFrame && !slices.Equal(q.prediction.Inputs, values) {
		q.log.Debug(fmt.Sprintf("[telegraph] queue %d misprediction at frame %d", q.id, frame), "event", "telegraph:queue:mispredict")
		q.firstIncorrectFrame = frame
	}

	if q.prediction.Frame == q.lastFrameRequested && q.firstIncorrectFrame == NullFrame {
		q.prediction = GameInput{Frame: NullFrame}
	} else {
		q.prediction.Frame += 1
	}
}
