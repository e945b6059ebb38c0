package main

import (
	"fmt"
	"hash/fnv"

	"github.com/KarpelesLab/telegraph"
)

const (
	inputUp = 1 << iota
	inputDown
	inputLeft
	inputRight

	arenaSize = 1000
)

// game is a toy deterministic simulation: every player moves a point around
// a wrapping arena.
type game struct {
	frame int
	pos   [][2]int
	alive []bool
}

type gameState struct {
	frame int
	pos   [][2]int
	alive []bool
}

func newGame(players int) *game {
	g := &game{pos: make([][2]int, players), alive: make([]bool, players)}
	for i := range g.pos {
		g.pos[i] = [2]int{i * arenaSize / players, arenaSize / 2}
		g.alive[i] = true
	}
	return g
}

func (g *game) step(in telegraph.SyncedInputs) {
	for i, v := range in.Inputs {
		if in.Disconnected[i] {
			g.alive[i] = false
			continue
		}
		if len(v) == 0 {
			continue
		}
		if v[0]&inputUp != 0 {
			g.pos[i][1]--
		}
		if v[0]&inputDown != 0 {
			g.pos[i][1]++
		}
		if v[0]&inputLeft != 0 {
			g.pos[i][0]--
		}
		if v[0]&inputRight != 0 {
			g.pos[i][0]++
		}
		g.pos[i][0] = (g.pos[i][0] + arenaSize) % arenaSize
		g.pos[i][1] = (g.pos[i][1] + arenaSize) % arenaSize
	}
	g.frame++
}

func (g *game) save() telegraph.SaveResult {
	st := &gameState{
		frame: g.frame,
		pos:   append([][2]int(nil), g.pos...),
		alive: append([]bool(nil), g.alive...),
	}
	return telegraph.SaveResult{State: st, Checksum: g.checksum()}
}

func (g *game) load(state any) {
	st := state.(*gameState)
	g.frame = st.frame
	g.pos = append(g.pos[:0], st.pos...)
	g.alive = append(g.alive[:0], st.alive...)
}

func (g *game) checksum() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d %v %v", g.frame, g.pos, g.alive)
	return fmt.Sprintf("%016x", h.Sum64())
}

// botInput derives a pseudo random input for player at frame, changing
// direction every 30 frames.
func botInput(player, frame int) telegraph.InputValues {
	x := uint32(player*7919 + (frame/30)*104729)
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	return telegraph.InputValues{int(x & 0xf)}
}
