package telegraph

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// frameStepper is what testGame needs from a session to run a tick.
type frameStepper interface {
	SyncInput() (SyncedInputs, error)
	IncrementFrame() error
}

type testState struct {
	frame int
	sums  []int
}

// testGame is a small deterministic simulation. Each player's sum depends on
// the whole sequence of its inputs, so any replay with different inputs
// yields a different state.
type testGame struct {
	frame int
	sums  []int

	session frameStepper
	events  []Event

	// eventLoads[i] is the number of loads done when events[i] was received
	eventLoads []int

	saves, loads, advances int
	lastLoaded             int

	// corrupt, if set, is called on every step and may alter the state
	corrupt func(g *testGame)
}

func newTestGame(players int) *testGame {
	return &testGame{sums: make([]int, players), lastLoaded: NullFrame}
}

func (g *testGame) checksum() string {
	return fmt.Sprintf("%d:%v", g.frame, g.sums)
}

func (g *testGame) callbacks() Callbacks {
	return Callbacks{
		SaveState: func() SaveResult {
			g.saves++
			return SaveResult{State: testState{frame: g.frame, sums: slices.Clone(g.sums)}, Checksum: g.checksum()}
		},
		LoadState: func(s any) {
			g.loads++
			st := s.(testState)
			g.frame = st.frame
			g.sums = slices.Clone(st.sums)
			g.lastLoaded = st.frame
		},
		AdvanceFrame: func() {
			g.advances++
			if err := g.step(); err != nil {
				panic(err)
			}
		},
		OnEvent: func(ev Event) {
			g.events = append(g.events, ev)
			g.eventLoads = append(g.eventLoads, g.loads)
		},
	}
}

func (g *testGame) apply(in SyncedInputs) {
	for i, v := range in.Inputs {
		x := 0
		if len(v) > 0 {
			x = v[0] + 1
		}
		g.sums[i] = g.sums[i]*31 + x
	}
	g.frame++
	if g.corrupt != nil {
		g.corrupt(g)
	}
}

func (g *testGame) step() error {
	in, err := g.session.SyncInput()
	if err != nil {
		return err
	}
	g.apply(in)
	return g.session.IncrementFrame()
}

func (g *testGame) hasEvent(name string) bool {
	for _, ev := range g.events {
		if ev.Name() == name {
			return true
		}
	}
	return false
}

func (g *testGame) eventIndex(name string) int {
	for i, ev := range g.events {
		if ev.Name() == name {
			return i
		}
	}
	return -1
}

func (g *testGame) eventNames() []string {
	res := make([]string, 0, len(g.events))
	for _, ev := range g.events {
		res = append(res, ev.Name())
	}
	return res
}

func (g *testGame) countEvents(name string) int {
	n := 0
	for _, ev := range g.events {
		if ev.Name() == name {
			n++
		}
	}
	return n
}

// expectContractViolation runs fn and fails unless it panics with a
// contract violation.
func expectContractViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a contract violation, got none")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrContractViolation) {
			t.Fatalf("expected a contract violation, got %v", r)
		}
	}()
	fn()
}
