package telegraph

import "slices"

const (
	FrameWindowSize   = 40
	MinUniqueFrames   = 10
	MinFrameAdvantage = 3
	MaxFrameAdvantage = 9
)

// TimeSync keeps a sliding window of local and remote frame advantages and
// recommends how long the local side should wait to let the remote catch up.
type TimeSync struct {
	local      [FrameWindowSize]int
	remote     [FrameWindowSize]int
	lastInputs [MinUniqueFrames]GameInput
}

// AdvanceFrame records the advantages seen when input was sent.
func (t *TimeSync) AdvanceFrame(input GameInput, advantage, remoteAdvantage int) {
	if input.Frame < 0 {
		return
	}
	t.lastInputs[input.Frame%MinUniqueFrames] = input.clone()
	t.local[input.Frame%FrameWindowSize] = advantage
	t.remote[input.Frame%FrameWindowSize] = remoteAdvantage
}

// RecommendFrameWaitDuration returns the number of frames to wait, or 0. When
// requireIdleInput is set, a wait is only recommended if the local input did
// not change over the last MinUniqueFrames frames.
func (t *TimeSync) RecommendFrameWaitDuration(requireIdleInput bool) int {
	var sumLocal, sumRemote int
	for i := range t.local {
		sumLocal += t.local[i]
		sumRemote += t.remote[i]
	}
	advantage := float64(sumLocal) / FrameWindowSize
	remoteAdvantage := float64(sumRemote) / FrameWindowSize

	// we are the ones behind, let them wait
	if advantage >= remoteAdvantage {
		return 0
	}

	sleepFrames := int((remoteAdvantage-advantage)/2 + 0.5)
	if sleepFrames < MinFrameAdvantage {
		return 0
	}

	if requireIdleInput {
		for i := 1; i < len(t.lastInputs); i++ {
			if !slices.Equal(t.lastInputs[i].Inputs, t.lastInputs[0].Inputs) {
				return 0
			}
		}
	}

	return min(sleepFrames, MaxFrameAdvantage)
}
